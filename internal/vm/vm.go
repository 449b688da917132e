package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// VM is the assembled, ready-to-run machine: a decoded program image
// plus the interpreter state that executes it. Construction never
// fails on a well-formed image; Run/RunDebug surface execution
// faults.
type VM struct {
	interp *Interpreter
}

func New(image []byte, cfg Config) *VM {
	logger := log.New()
	logger.SetLevel(log.InfoLevel)
	if cfg.GCStats {
		logger.SetLevel(log.DebugLevel)
		// The GC writes its per-cycle entry through logrus's standard logger.
		log.SetLevel(log.DebugLevel)
	}
	return &VM{interp: NewInterpreter(image, cfg, logger)}
}

func (v *VM) Run() error {
	return v.interp.Run()
}

// RunDebug runs under a breakpoint REPL: "n"/"next" single-steps,
// "r"/"run" runs to completion or the next breakpoint, "b <addr>"
// sets a breakpoint at a byte offset. Modeled on the teacher's
// debug-mode run loop.
func (v *VM) RunDebug() error {
	breakpoints := map[uint64]bool{}
	reader := bufio.NewReader(os.Stdin)

	for {
		if breakpoints[v.interp.Context.IP] {
			fmt.Printf("breakpoint hit at ip=%d\n", v.interp.Context.IP)
		}

		fmt.Printf("(lakesis) ip=%d > ", v.interp.Context.IP)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n", "next":
			if err := v.interp.Step(); err != nil {
				if err == ErrHalt {
					fmt.Println("halted")
					return nil
				}
				v.interp.logFault(err)
				return err
			}
		case "r", "run":
			for {
				if err := v.interp.Step(); err != nil {
					if err == ErrHalt {
						fmt.Println("halted")
						return nil
					}
					v.interp.logFault(err)
					return err
				}
				if breakpoints[v.interp.Context.IP] {
					fmt.Printf("breakpoint hit at ip=%d\n", v.interp.Context.IP)
					break
				}
			}
		case "b":
			if len(fields) != 2 {
				fmt.Println("usage: b <addr>")
				continue
			}
			addr, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("invalid address: %v\n", err)
				continue
			}
			breakpoints[addr] = true
		case "q", "quit":
			return nil
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func (v *VM) Interpreter() *Interpreter { return v.interp }
