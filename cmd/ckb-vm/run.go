package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/juniuszhou/ckb-vm/log"
	"github.com/juniuszhou/ckb-vm/machine"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/syscalls"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

type runOptions struct {
	backend    string
	maxCycles  uint64
	cyclePrice uint64
	raw        bool
	base       uint64
	entry      uint64
}

func newRunCommand() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <program> [args...]",
		Short: "Execute a RISC-V program until it exits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], args)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", "trace", "execution backend (trace|interpreter)")
	cmd.Flags().Uint64Var(&opts.maxCycles, "max-cycles", 0, "cycle budget, 0 for unlimited")
	cmd.Flags().Uint64Var(&opts.cyclePrice, "cycle-price", 1, "cycles charged per instruction, 0 to disable metering")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "treat the program as a flat code image, not ELF")
	cmd.Flags().Uint64Var(&opts.base, "base", 0, "load address for --raw images")
	cmd.Flags().Uint64Var(&opts.entry, "entry", 0, "entry point for --raw images")
	return cmd
}

// runnable is the surface shared by both backends.
type runnable interface {
	machine.Machine
	LoadProgram(program []byte, args []string) error
	Run() error
}

func newBackend(backend string) (runnable, error) {
	mem := memory.NewDefaultPageMemory()
	switch backend {
	case "trace":
		return machine.NewDefaultTraceMachine(mem), nil
	case "interpreter":
		return machine.NewDefaultMachine(mem), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func runProgram(opts runOptions, path string, args []string) error {
	program, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m, err := newBackend(opts.backend)
	if err != nil {
		return err
	}
	dm := defaultMachineOf(m)
	if opts.maxCycles > 0 {
		dm.SetMaxCycles(opts.maxCycles)
	}
	if opts.cyclePrice > 0 {
		dm.SetCycleFunc(machine.ConstantCycleFunc(opts.cyclePrice))
	}
	dm.AddSyscall(syscalls.NewDebugSyscall())

	if opts.raw {
		if err := dm.LoadRaw(opts.base, program, opts.entry); err != nil {
			return err
		}
		if err := dm.InitStack(args, machine.DefaultStackTop-machine.DefaultStackSize, machine.DefaultStackSize); err != nil {
			return err
		}
	} else {
		if err := m.LoadProgram(program, args); err != nil {
			return err
		}
	}

	started := time.Now()
	runErr := m.Run()
	elapsed := time.Since(started)

	log.Info(log.CliModule, "run finished",
		"backend", opts.backend, "cycles", m.Cycles(), "elapsed", elapsed)
	if t, ok := m.(*machine.TraceMachine); ok {
		log.Debug(log.MachineModule, "trace cache stats", "fills", t.Fills(), "hits", t.Hits())
	}

	if runErr != nil {
		if errors.Is(runErr, vmerrors.ErrCyclesExceeded) {
			return fmt.Errorf("%w after %d cycles", vmerrors.ErrCyclesExceeded, m.Cycles())
		}
		return runErr
	}
	if code := m.ExitCode(); code != 0 {
		os.Exit(int(code))
	}
	return nil
}

func defaultMachineOf(m runnable) *machine.DefaultMachine {
	if t, ok := m.(*machine.TraceMachine); ok {
		return t.DefaultMachine
	}
	return m.(*machine.DefaultMachine)
}
