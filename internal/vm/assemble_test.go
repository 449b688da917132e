package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleSimpleProgramRuns(t *testing.T) {
	src := `
main:
    MOV 5, R0
    MOV 3, R1
    ADD R1, R0
    HALT
`
	image, err := Assemble(src)
	require.NoError(t, err)

	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(8), in.Context.Registers[0].Value)
}

func TestAssembleForwardLabelReference(t *testing.T) {
	src := `
main:
    JMP done
    MOV 99, R0
done:
    HALT
`
	image, err := Assemble(src)
	require.NoError(t, err)

	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(0), in.Context.Registers[0].Value, "the jump must skip the clobbering MOV")
}

func TestAssembleDefine(t *testing.T) {
	src := `
.define ANSWER 42
main:
    MOV ANSWER, R0
    HALT
`
	image, err := Assemble(src)
	require.NoError(t, err)

	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(42), in.Context.Registers[0].Value)
}

func TestAssembleStringDirective(t *testing.T) {
	src := `
main:
    MOV greeting, R0
    HALT
.string greeting "hi"
`
	image, err := Assemble(src)
	require.NoError(t, err)

	// MOV with a forward label reserves 4 magnitude bytes: 1+1+4+1 = 7 bytes, then HALT at 7.
	assert.Equal(t, []byte("hi"), image[8:10], "the string's bytes must be laid out where the directive appears, after the code before it")

	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(8), in.Context.Registers[0].Value, "greeting resolves to offset 8")
}

func TestAssembleUnknownMnemonicFails(t *testing.T) {
	_, err := Assemble("NOTANOPCODE R0, R1\n")
	assert.Error(t, err)
}

func TestAssembleWrongArityFails(t *testing.T) {
	_, err := Assemble("MOV R0\n")
	assert.Error(t, err)
}

func TestAssembleNegativeImmediate(t *testing.T) {
	src := `
main:
    MOV -5, R0
    HALT
`
	image, err := Assemble(src)
	require.NoError(t, err)

	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFB), in.Context.Registers[0].Value)
}
