// Command lakesis assembles and runs Lakesis bytecode images.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/davipb/lakesis/internal/vm"
)

var (
	debug     bool
	gcStats   bool
	heapSize  int
	stackSize int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lakesis",
		Short: "Assemble and run Lakesis bytecode images",
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "run under the single-step breakpoint REPL")
	root.PersistentFlags().BoolVar(&gcStats, "gc-stats", false, "log a debug entry after every GC cycle")
	root.PersistentFlags().IntVar(&heapSize, "heap-size", vm.DefaultHeapSize, "heap arena size in bytes")
	root.PersistentFlags().IntVar(&stackSize, "stack-size", vm.DefaultStackSize, "stack region size in bytes")

	root.AddCommand(newAsmCmd(), newRunCmd(), newRunAsmCmd(), newViewCmd())
	return root
}

func config() vm.Config {
	return vm.Config{HeapSize: heapSize, StackSize: stackSize, GCStats: gcStats}
}

func newAsmCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "asm <source.lk>",
		Short: "Assemble a .lk source file into a byte image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			image, err := vm.Assemble(string(src))
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".img"
			}
			return os.WriteFile(out, image, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output image path (default: <source>.img)")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <image>",
		Short: "Run an assembled byte image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return runImage(image)
		},
	}
}

func newRunAsmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runasm <source.lk>",
		Short: "Assemble and immediately run a .lk source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			image, err := vm.Assemble(string(src))
			if err != nil {
				return err
			}
			return runImage(image)
		},
	}
}

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <image>",
		Short: "Disassemble a byte image to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, err := vm.Disassemble(image)
			if err != nil {
				fmt.Print(text)
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}

func runImage(image []byte) error {
	machine := vm.New(image, config())
	if debug {
		if err := machine.RunDebug(); err != nil {
			log.WithError(err).Error("run terminated")
			return err
		}
		return nil
	}
	if err := machine.Run(); err != nil {
		return err
	}
	return nil
}
