package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordStoreReadWriteWord(t *testing.T) {
	ws := newWordStore(64)

	require.NoError(t, ws.WriteWord(0, RefWord(9)))
	w, err := ws.ReadWord(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), w.Value)
	assert.Equal(t, Reference, w.Tag)
}

func TestWordStoreUnalignedReadIsAlwaysData(t *testing.T) {
	ws := newWordStore(64)
	require.NoError(t, ws.WriteWord(0, RefWord(1)))

	w, err := ws.ReadWord(1)
	require.NoError(t, err)
	assert.Equal(t, Data, w.Tag, "a tag only has meaning for the aligned slot it was written at")
}

func TestWordStoreBoundsChecking(t *testing.T) {
	ws := newWordStore(8)
	_, err := ws.ReadWord(1)
	assert.Error(t, err)
	_, err = ws.ReadWord(-1)
	assert.Error(t, err)
	assert.Error(t, ws.WriteWord(8, DataWord(1)))
}

func TestWordStoreMoveRangePreservesTags(t *testing.T) {
	ws := newWordStore(32)
	require.NoError(t, ws.WriteWord(16, RefWord(5)))

	ws.moveRange(0, 16, 8)

	w, err := ws.ReadWord(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), w.Value)
	assert.Equal(t, Reference, w.Tag)
}

func TestAlign8(t *testing.T) {
	assert.Equal(t, 0, align8(0))
	assert.Equal(t, 8, align8(1))
	assert.Equal(t, 8, align8(8))
	assert.Equal(t, 16, align8(9))
}
