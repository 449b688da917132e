package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagString(t *testing.T) {
	assert.Equal(t, "data", Data.String())
	assert.Equal(t, "ref", Reference.String())
}

func TestDataWordAndRefWord(t *testing.T) {
	d := DataWord(42)
	assert.Equal(t, uint64(42), d.Value)
	assert.Equal(t, Data, d.Tag)

	r := RefWord(ObjectID(7))
	assert.Equal(t, uint64(7), r.Value)
	assert.Equal(t, Reference, r.Tag)
}

func TestTaintTag(t *testing.T) {
	assert.Equal(t, Data, taintTag(Data, Data))
	assert.Equal(t, Reference, taintTag(Reference, Data))
	assert.Equal(t, Reference, taintTag(Data, Reference))
	assert.Equal(t, Reference, taintTag(Reference, Reference))
}
