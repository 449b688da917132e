package vm

import (
	"fmt"
	"strings"
)

// Disassemble walks a byte image with the Decoder and renders each
// instruction as assembly-like text, one line per instruction,
// prefixed with its byte offset the way a debugger's listing would.
func Disassemble(image []byte) (string, error) {
	var out strings.Builder
	pc := 0
	for pc < len(image) {
		inst, err := Decode(image, pc)
		if err != nil {
			return out.String(), fmt.Errorf("offset %d: %w", pc, err)
		}
		fmt.Fprintf(&out, "%08x: %s\n", pc, formatInstruction(inst))
		pc += inst.Length
	}
	return out.String(), nil
}

func formatInstruction(inst Instruction) string {
	if len(inst.Operands) == 0 {
		return inst.Opcode.String()
	}
	parts := make([]string, len(inst.Operands))
	for i, o := range inst.Operands {
		parts[i] = formatOperand(o)
	}
	return inst.Opcode.String() + " " + strings.Join(parts, ", ")
}

func formatOperand(o Operand) string {
	switch o.Mode {
	case ModeImmediate:
		return fmt.Sprintf("%d", o.Value)
	case ModeRegister:
		return fmt.Sprintf("R%d", o.Register)
	case ModeHeap:
		if o.Value == 0 {
			return fmt.Sprintf("[R%d]", o.Register)
		}
		return fmt.Sprintf("[R%d+%d]", o.Register, o.Value)
	case ModeStack:
		return fmt.Sprintf("[SP+%d]", o.Value)
	default:
		return "?"
	}
}
