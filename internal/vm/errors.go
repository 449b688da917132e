package vm

import "fmt"

// FaultKind classifies a fatal VM error per the taxonomy in the error
// handling design: decode, stack, arithmetic, and memory errors are all
// fatal and unrecoverable; the interpreter never catches or retries.
type FaultKind int

const (
	FaultDecode FaultKind = iota
	FaultStack
	FaultArithmetic
	FaultMemory
	FaultHalt // not an error; used to unwind the run loop cleanly
)

func (k FaultKind) String() string {
	switch k {
	case FaultDecode:
		return "decode error"
	case FaultStack:
		return "stack error"
	case FaultArithmetic:
		return "arithmetic error"
	case FaultMemory:
		return "memory error"
	case FaultHalt:
		return "halt"
	default:
		return "unknown fault"
	}
}

// Fault is a fatal VM condition. It carries enough context (IP at the
// time of the fault) for the host to print a useful diagnostic; the
// register/stack dump is assembled by the caller since Fault itself
// does not hold a reference to the Context.
type Fault struct {
	Kind FaultKind
	IP   uint64
	Msg  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at ip=%d: %s", f.Kind, f.IP, f.Msg)
}

func newFault(kind FaultKind, ip uint64, format string, args ...any) *Fault {
	return &Fault{Kind: kind, IP: ip, Msg: fmt.Sprintf(format, args...)}
}

// ErrHalt is returned by the interpreter loop when a HALT instruction
// executed cleanly; it is not logged as a fault.
var ErrHalt = &Fault{Kind: FaultHalt, Msg: "halt"}
