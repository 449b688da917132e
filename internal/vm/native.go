package vm

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// NativeFunc is a host-provided blocking call. It reads whatever
// arguments it needs directly off the interpreter's stack (args are
// never popped by NATIVE itself, matching the caller-cleans-up
// convention the rest of the ISA uses for calls).
type NativeFunc func(in *Interpreter) error

// NativeTable is the fixed registry NATIVE dispatches into by index.
// There is no dynamic registration: the set of natives is part of the
// ISA, not an extension point.
type NativeTable struct {
	in    *Interpreter
	funcs []NativeFunc
}

const (
	NativePrint  = 0
	NativeRandom = 1
	NativeSleep  = 2
)

func NewNativeTable(in *Interpreter) *NativeTable {
	return &NativeTable{
		in: in,
		funcs: []NativeFunc{
			NativePrint:  nativePrint,
			NativeRandom: nativeRandom,
			NativeSleep:  nativeSleep,
		},
	}
}

func (t *NativeTable) Invoke(index int) error {
	if index < 0 || index >= len(t.funcs) {
		return fmt.Errorf("no such native function %d", index)
	}
	return t.funcs[index](t.in)
}

// nativePrint reads, top of stack downward: the format string's
// length, then its reference, then one word per placeholder already
// pushed by the caller. Supported verbs are %u (unsigned decimal),
// %d (signed decimal), %s (nested string reference) and %%.
func nativePrint(in *Interpreter) error {
	lenWord, err := in.Context.StackWord(0)
	if err != nil {
		return err
	}
	refWord, err := in.Context.StackWord(8)
	if err != nil {
		return err
	}
	if refWord.Tag != Reference {
		return fmt.Errorf("native print: expected a string reference, got tagged data")
	}

	raw, err := in.readRefBytes(refWord, int(lenWord.Value))
	if err != nil {
		return err
	}

	var out strings.Builder
	argSlot := 16
	i := 0
	for i < len(raw) {
		if raw[i] != '%' || i+1 >= len(raw) {
			out.WriteByte(raw[i])
			i++
			continue
		}
		switch raw[i+1] {
		case '%':
			out.WriteByte('%')
		case 'u':
			w, err := in.Context.StackWord(argSlot)
			if err != nil {
				return err
			}
			fmt.Fprintf(&out, "%d", w.Value)
			argSlot += 8
		case 'd':
			w, err := in.Context.StackWord(argSlot)
			if err != nil {
				return err
			}
			fmt.Fprintf(&out, "%d", int64(w.Value))
			argSlot += 8
		case 's':
			lw, err := in.Context.StackWord(argSlot)
			if err != nil {
				return err
			}
			w, err := in.Context.StackWord(argSlot + 8)
			if err != nil {
				return err
			}
			s, err := in.readRefBytes(w, int(lw.Value))
			if err != nil {
				return err
			}
			out.Write(s)
			argSlot += 16
		default:
			return fmt.Errorf("native print: unknown format verb %%%c", raw[i+1])
		}
		i += 2
	}

	fmt.Print(out.String())
	return nil
}

func nativeRandom(in *Interpreter) error {
	return in.Context.SetRegister(0, DataWord(rand.Uint64()))
}

func nativeSleep(in *Interpreter) error {
	w, err := in.Context.StackWord(0)
	if err != nil {
		return err
	}
	time.Sleep(time.Duration(w.Value) * time.Millisecond)
	return nil
}
