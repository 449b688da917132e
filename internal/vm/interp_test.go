package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{HeapSize: 4096, StackSize: 4096}
}

func TestInterpMovImmediateToRegister(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpMov],
		0b00_00_0_001, 0x2a, // immediate 42 (source)
		0b01_00_0_000, // R0 (destination)
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	err := in.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), in.Context.Registers[0].Value)
}

func TestInterpAddStoresSumAndClearsZeroFlag(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 5, 0b01_00_0_000, // MOV 5, R0
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 3, 0b01_01_0_000, // MOV 3, R1
		2<<6 | wireByte[OpAdd], 0b01_01_0_000, 0b01_00_0_000, // ADD R1, R0
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(8), in.Context.Registers[0].Value)
	assert.False(t, in.Context.Flags.Zero)
}

func TestInterpDivisionByZeroFaults(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 5, 0b01_00_0_000, // MOV 5, R0
		2<<6 | wireByte[OpMov], 0b00_00_0_000, 0b01_01_0_000, // MOV 0, R1
		2<<6 | wireByte[OpDiv], 0b01_01_0_000, 0b01_00_0_000, // DIV R1, R0
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	err := in.Run()
	require.Error(t, err)
	fault, ok := err.(*Fault)
	require.True(t, ok)
	assert.Equal(t, FaultArithmetic, fault.Kind)
}

func TestInterpCmpSetsCarryUnsigned(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 10, 0b01_00_0_000, // MOV 10, R0
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 3, 0b01_01_0_000, // MOV 3, R1
		2<<6 | wireByte[OpCmp], 0b01_00_0_000, 0b01_01_0_000, // CMP R0, R1 -> R0>=R1
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.True(t, in.Context.Flags.Carry)
	assert.False(t, in.Context.Flags.Zero)
}

func TestInterpNewAllocatesAndTagsReference(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpNew], 0b00_00_0_001, 8, 0b01_00_0_000, // NEW 8, R0
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, Reference, in.Context.Registers[0].Tag)
}

func TestInterpJmpSkipsInstruction(t *testing.T) {
	// JMP over a MOV that would otherwise clobber R0, then HALT.
	image := []byte{
		1<<6 | wireByte[OpJmp], 0b00_00_0_001, 7, // JMP 7 (offset of HALT below)
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 0x63, 0b01_00_0_000, // skipped: MOV 99, R0
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(0), in.Context.Registers[0].Value)
}

func TestInterpPushPopRoundTrips(t *testing.T) {
	image := []byte{
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 7, 0b01_00_0_000, // MOV 7, R0
		1<<6 | wireByte[OpPush], 0b01_00_0_000, // PUSH R0
		1<<6 | wireByte[OpPop], 0b01_01_0_000, // POP R1
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, testConfig(), nil)
	require.NoError(t, in.Run())
	assert.Equal(t, uint64(7), in.Context.Registers[1].Value)
}

func TestInterpDebugDumpReadsStackRange(t *testing.T) {
	cfg := testConfig()
	pushedAt := cfg.StackSize - 8
	image := []byte{
		2<<6 | wireByte[OpMov], 0b00_00_0_001, 7, 0b01_00_0_000, // MOV 7, R0
		1<<6 | wireByte[OpPush], 0b01_00_0_000, // PUSH R0
		2<<6 | wireByte[OpDebugDump],
		0b00_00_0_010, byte(pushedAt), byte(pushedAt >> 8), // addr = SP after the push
		0b00_00_0_001, 8, // len = 8
		wireByte[OpHalt],
	}
	in := NewInterpreter(image, cfg, nil)
	require.NoError(t, in.Run())
}
