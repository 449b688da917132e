package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRegisterReadWrite(t *testing.T) {
	c := NewContext(64)
	require.NoError(t, c.SetRegister(2, DataWord(5)))
	w, err := c.Register(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), w.Value)

	_, err = c.Register(4)
	assert.Error(t, err)
}

func TestContextPushPop(t *testing.T) {
	c := NewContext(32)
	top := c.SP

	require.NoError(t, c.Push(DataWord(11)))
	assert.Equal(t, top-8, c.SP)

	w, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), w.Value)
	assert.Equal(t, top, c.SP)
}

func TestContextStackOverflowAndUnderflow(t *testing.T) {
	c := NewContext(8)
	require.NoError(t, c.Push(DataWord(1)))
	assert.Error(t, c.Push(DataWord(2)), "pushing past the stack's capacity must fault")

	_, err := c.Pop()
	require.NoError(t, err)
	_, err = c.Pop()
	assert.Error(t, err, "popping an empty stack must fault")
}

func TestContextStackWordAddressing(t *testing.T) {
	c := NewContext(32)
	require.NoError(t, c.Push(DataWord(1)))
	require.NoError(t, c.Push(DataWord(2)))

	w, err := c.StackWord(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), w.Value, "[SP+0] is the most recently pushed word")

	w, err = c.StackWord(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.Value)
}

func TestContextLiveStackWordsOnlyReportsReferences(t *testing.T) {
	c := NewContext(32)
	require.NoError(t, c.Push(DataWord(1)))
	require.NoError(t, c.Push(RefWord(3)))

	live := c.LiveStackWords()
	require.Len(t, live, 1)
	assert.Equal(t, uint64(3), live[0].Value)
}
