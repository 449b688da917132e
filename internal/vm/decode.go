package vm

import "fmt"

// AddressMode is the 2-bit aa field of an operand descriptor.
type AddressMode byte

const (
	ModeImmediate AddressMode = 0b00
	ModeRegister  AddressMode = 0b01
	ModeHeap      AddressMode = 0b10 // [Rr+v]: v is a byte offset inside the object register Rr references
	ModeStack     AddressMode = 0b11 // [SP+v]: v is a non-negative byte offset from the current SP
)

// Operand is a fully decoded operand: its addressing mode, the
// register it names (when relevant), and its resolved magnitude.
// Resolution of the magnitude into an actual value happens later, in
// the Interpreter, since mode 10 requires a live Heap and a register
// file to dereference through.
type Operand struct {
	Mode     AddressMode
	Register int
	Value    int64 // sign-extended immediate / offset magnitude
}

// Instruction is one fully decoded instruction: its opcode and
// operands, plus the byte length consumed from the image so the
// interpreter can advance IP.
type Instruction struct {
	Opcode   Opcode
	Operands []Operand
	Length   int
}

// Decode parses one instruction starting at image[pc]. It never
// touches registers, the stack, or the heap — addressing-mode
// dereferencing is strictly the Interpreter's job.
func Decode(image []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(image) {
		return Instruction{}, fmt.Errorf("instruction pointer %d out of bounds (image length %d)", pc, len(image))
	}

	header := image[pc]
	cc := header >> 6
	if cc == 0b11 {
		return Instruction{}, fmt.Errorf("reserved operand-count bits (cc=11) at ip=%d", pc)
	}
	opByte := header & 0b0011_1111
	op, err := decodeWire(opByte, cc)
	if err != nil {
		return Instruction{}, fmt.Errorf("%s at ip=%d", err, pc)
	}

	count := int(cc)
	cursor := pc + 1
	operands := make([]Operand, 0, count)
	for i := 0; i < count; i++ {
		opnd, consumed, err := decodeOperand(image, cursor)
		if err != nil {
			return Instruction{}, err
		}
		operands = append(operands, opnd)
		cursor += consumed
	}

	return Instruction{Opcode: op, Operands: operands, Length: cursor - pc}, nil
}

func decodeOperand(image []byte, pos int) (Operand, int, error) {
	if pos < 0 || pos >= len(image) {
		return Operand{}, 0, fmt.Errorf("truncated instruction: missing operand descriptor at ip=%d", pos)
	}

	desc := image[pos]
	mode := AddressMode(desc >> 6)
	reg := int((desc >> 4) & 0b11)
	sign := (desc >> 3) & 0b1
	n := int(desc & 0b0111)

	if pos+1+n > len(image) {
		return Operand{}, 0, fmt.Errorf("truncated instruction: operand declares %d magnitude bytes past end of image at ip=%d", n, pos)
	}

	var magnitude uint64
	for i := n - 1; i >= 0; i-- {
		magnitude = magnitude<<8 | uint64(image[pos+1+i])
	}

	value := int64(magnitude)
	if sign == 1 {
		if mode == ModeStack {
			return Operand{}, 0, fmt.Errorf("negative sign bit is illegal on a [SP+v] operand at ip=%d", pos)
		}
		value = -value
	}

	if mode == ModeRegister || mode == ModeHeap {
		if reg >= NumRegisters {
			return Operand{}, 0, fmt.Errorf("invalid register index R%d at ip=%d", reg, pos)
		}
	}

	return Operand{Mode: mode, Register: reg, Value: value}, 1 + n, nil
}
