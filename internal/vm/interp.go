package vm

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Interpreter fetches, decodes and executes a program image against a
// Context and a Heap. It is the only component that resolves operand
// addressing modes into actual reads and writes.
type Interpreter struct {
	Context *Context
	Heap    *Heap
	Natives *NativeTable
	Image   []byte
	Config  Config
	log     *log.Logger
}

func NewInterpreter(image []byte, cfg Config, logger *log.Logger) *Interpreter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	interp := &Interpreter{
		Context: NewContext(cfg.StackSize),
		Heap:    NewHeap(cfg.HeapSize),
		Image:   image,
		Config:  cfg,
		log:     logger,
	}
	interp.Natives = NewNativeTable(interp)
	return interp
}

// Run executes from the current IP until HALT or a fault. HALT
// returns nil; every other fault is returned as a *Fault after being
// logged with a full register/stack snapshot.
func (in *Interpreter) Run() error {
	for {
		if err := in.Step(); err != nil {
			if err == ErrHalt {
				return nil
			}
			in.logFault(err)
			return err
		}
	}
}

// Step fetches, decodes and executes exactly one instruction.
func (in *Interpreter) Step() error {
	ip := in.Context.IP
	inst, err := Decode(in.Image, int(ip))
	if err != nil {
		return newFault(FaultDecode, ip, "%s", err)
	}

	next := ip + uint64(inst.Length)
	if err := in.execute(inst); err != nil {
		return err
	}
	if in.Context.IP == ip {
		// no jump/call/ret happened; advance past the instruction we just ran
		in.Context.IP = next
	}
	return nil
}

func (in *Interpreter) logFault(err error) {
	regs := make([]string, NumRegisters)
	for i := range regs {
		regs[i] = fmt.Sprintf("%d:%s", in.Context.Registers[i].Value, in.Context.Registers[i].Tag)
	}
	var top uint64
	if w, err := in.Context.StackWord(0); err == nil {
		top = w.Value
	}
	in.log.WithFields(log.Fields{
		"ip":           in.Context.IP,
		"registers":    regs,
		"sp":           in.Context.SP,
		"top_of_stack": top,
		"error":        err.Error(),
	}).Error("vm fault")
}

// rvalue resolves an operand to its current word, without mutating
// anything.
func (in *Interpreter) rvalue(o Operand) (Word, error) {
	switch o.Mode {
	case ModeImmediate:
		return DataWord(uint64(o.Value)), nil
	case ModeRegister:
		return in.Context.Register(o.Register)
	case ModeHeap:
		ref, err := in.Context.Register(o.Register)
		if err != nil {
			return Word{}, err
		}
		return in.Heap.ReadWord(ObjectID(ref.Value), int(o.Value))
	case ModeStack:
		return in.Context.StackWord(int(o.Value))
	default:
		return Word{}, fmt.Errorf("unreachable addressing mode %v", o.Mode)
	}
}

// lvalue writes a word through an operand. Immediate operands can
// never be a destination.
func (in *Interpreter) lvalue(o Operand, w Word) error {
	switch o.Mode {
	case ModeImmediate:
		return fmt.Errorf("immediate operand cannot be a destination")
	case ModeRegister:
		return in.Context.SetRegister(o.Register, w)
	case ModeHeap:
		ref, err := in.Context.Register(o.Register)
		if err != nil {
			return err
		}
		return in.Heap.WriteWord(ObjectID(ref.Value), int(o.Value), w)
	case ModeStack:
		return in.Context.SetStackWord(int(o.Value), w)
	default:
		return fmt.Errorf("unreachable addressing mode %v", o.Mode)
	}
}

func (in *Interpreter) fault(kind FaultKind, format string, args ...any) error {
	return newFault(kind, in.Context.IP, format, args...)
}

// readRefBytes resolves a Reference-tagged word to a byte slice of the
// given length. A `.string` label resolves to an absolute image offset
// (per the assembly surface), not a heap object id, so a ref that
// isn't a live heap id is reinterpreted as an offset into the
// read-only program image instead of being a memory error. This is
// what lets NATIVE 0 (print) read both heap-allocated strings (built
// with NEW/WriteBytes) and string literals placed by `.string`.
func (in *Interpreter) readRefBytes(ref Word, length int) ([]byte, error) {
	if ref.Tag != Reference {
		return nil, fmt.Errorf("expected a reference, got tagged data")
	}
	if raw, err := in.Heap.ReadBytes(ObjectID(ref.Value), 0, length); err == nil {
		return raw, nil
	}
	start := int(ref.Value)
	if start < 0 || length < 0 || start+length > len(in.Image) {
		return nil, fmt.Errorf("invalid string reference %d (not a live object and out of image bounds)", ref.Value)
	}
	return in.Image[start : start+length], nil
}

func (in *Interpreter) execute(inst Instruction) error {
	ip := in.Context.IP

	switch inst.Opcode {
	case OpNop:
		return nil

	case OpMov:
		src, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.lvalue(inst.Operands[1], src); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpOr, OpXor, OpShl, OpShr:
		return in.executeBinary(inst)

	case OpNot:
		a, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		result := Word{Value: ^a.Value, Tag: a.Tag}
		if err := in.lvalue(inst.Operands[0], result); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpCmp:
		a, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		b, err := in.rvalue(inst.Operands[1])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		in.Context.Flags.Zero = a.Value == b.Value
		in.Context.Flags.Carry = a.Value >= b.Value
		return nil

	case OpJmp:
		return in.jumpIf(inst, true)
	case OpJeq:
		return in.jumpIf(inst, in.Context.Flags.Zero)
	case OpJne:
		return in.jumpIf(inst, !in.Context.Flags.Zero)
	case OpJgt:
		return in.jumpIf(inst, in.Context.Flags.Carry && !in.Context.Flags.Zero)
	case OpJge:
		return in.jumpIf(inst, in.Context.Flags.Carry)
	case OpJlt:
		return in.jumpIf(inst, !in.Context.Flags.Carry)
	case OpJle:
		return in.jumpIf(inst, !in.Context.Flags.Carry || in.Context.Flags.Zero)

	case OpCall:
		target, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.Context.Push(RefWord(ObjectID(ip + uint64(inst.Length)))); err != nil {
			return in.fault(FaultStack, "%s", err)
		}
		in.Context.IP = target.Value
		return nil

	case OpRet:
		ret, err := in.Context.Pop()
		if err != nil {
			return in.fault(FaultStack, "%s", err)
		}
		in.Context.IP = ret.Value
		return nil

	case OpPush:
		v, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.Context.Push(v); err != nil {
			return in.fault(FaultStack, "%s", err)
		}
		return nil

	case OpPop:
		v, err := in.Context.Pop()
		if err != nil {
			return in.fault(FaultStack, "%s", err)
		}
		if err := in.lvalue(inst.Operands[0], v); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpNew:
		size, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		id, err := in.Heap.Allocate(int(size.Value), in.collect)
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.lvalue(inst.Operands[1], RefWord(id)); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpGC:
		in.collect()
		return nil

	case OpRef:
		v, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.lvalue(inst.Operands[0], Word{Value: v.Value, Tag: Reference}); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpUnref:
		v, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.lvalue(inst.Operands[0], Word{Value: v.Value, Tag: Data}); err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		return nil

	case OpNative:
		idx, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		if err := in.Natives.Invoke(int(idx.Value)); err != nil {
			return in.fault(FaultArithmetic, "%s", err)
		}
		return nil

	case OpHalt:
		return ErrHalt

	case OpDebugMem:
		s := in.Heap.Stats()
		in.log.WithFields(log.Fields{"live_objects": s.LiveObjects, "live_bytes": s.LiveBytes, "free_bytes": s.FreeBytes}).Info("debugmem")
		return nil

	case OpDebugDump:
		addr, err := in.rvalue(inst.Operands[0])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		length, err := in.rvalue(inst.Operands[1])
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		bytes, err := in.Context.Stack.ReadBytes(int(addr.Value), int(length.Value))
		if err != nil {
			return in.fault(FaultMemory, "%s", err)
		}
		in.log.WithFields(log.Fields{"addr": addr.Value, "len": length.Value, "bytes": fmt.Sprintf("%x", bytes)}).Info("debugdump")
		return nil

	case OpDebugCPU:
		regs := make([]string, NumRegisters)
		for i := range regs {
			regs[i] = fmt.Sprintf("%d:%s", in.Context.Registers[i].Value, in.Context.Registers[i].Tag)
		}
		in.log.WithField("registers", regs).Info("debugcpu")
		return nil

	default:
		return in.fault(FaultDecode, "unimplemented opcode %s", inst.Opcode)
	}
}

func (in *Interpreter) jumpIf(inst Instruction, cond bool) error {
	if !cond {
		return nil
	}
	target, err := in.rvalue(inst.Operands[0])
	if err != nil {
		return in.fault(FaultMemory, "%s", err)
	}
	in.Context.IP = target.Value
	return nil
}

// executeBinary implements ADD/SUB/MUL/DIV/AND/OR/XOR/SHL/SHR. Every
// one of these is `OP s, d` per the instruction semantics: the source
// is operand 0, the destination operand 1. Per the ADD [R0+8],[R0+8]
// ordering rule, the source is read before the destination's lvalue
// is resolved and written.
func (in *Interpreter) executeBinary(inst Instruction) error {
	dstOperand := inst.Operands[1]
	src, err := in.rvalue(inst.Operands[0])
	if err != nil {
		return in.fault(FaultMemory, "%s", err)
	}
	dst, err := in.rvalue(dstOperand)
	if err != nil {
		return in.fault(FaultMemory, "%s", err)
	}

	var result uint64
	switch inst.Opcode {
	case OpAdd:
		result = dst.Value + src.Value
	case OpSub:
		result = dst.Value - src.Value
	case OpMul:
		result = dst.Value * src.Value
	case OpDiv:
		if src.Value == 0 {
			return in.fault(FaultArithmetic, "division by zero")
		}
		result = dst.Value / src.Value
	case OpAnd:
		result = dst.Value & src.Value
	case OpOr:
		result = dst.Value | src.Value
	case OpXor:
		result = dst.Value ^ src.Value
	case OpShl:
		switch amount := src.Value; {
		case amount >= 64:
			in.Context.Flags.Carry = dst.Value != 0
			result = 0
		case amount == 0:
			in.Context.Flags.Carry = false
			result = dst.Value
		default:
			in.Context.Flags.Carry = (dst.Value>>(64-amount))&1 != 0
			result = dst.Value << amount
		}
	case OpShr:
		switch amount := src.Value; {
		case amount >= 64:
			in.Context.Flags.Carry = dst.Value != 0
			result = 0
		case amount == 0:
			in.Context.Flags.Carry = false
			result = dst.Value
		default:
			in.Context.Flags.Carry = (dst.Value>>(amount-1))&1 != 0
			result = dst.Value >> amount
		}
	}

	in.Context.Flags.Zero = result == 0
	if err := in.lvalue(dstOperand, Word{Value: result, Tag: taintTag(dst.Tag, src.Tag)}); err != nil {
		return in.fault(FaultMemory, "%s", err)
	}
	return nil
}

func (in *Interpreter) collect() {
	roots := Roots{
		Registers: in.Context.Registers[:],
		Stack:     in.Context.LiveStackWords(),
	}
	in.Heap.Collect(roots)
}
