package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/machine"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/syscalls"
)

func newDebugCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <program> [args...]",
		Short: "Step through a program interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m := machine.NewDefaultMachine(memory.NewDefaultPageMemory())
			m.AddSyscall(syscalls.NewDebugSyscall())
			if err := m.LoadProgram(program, args); err != nil {
				return err
			}
			return (&debugger{m: m, breakpoints: map[uint64]bool{}}).repl()
		},
	}
	return cmd
}

type debugger struct {
	m           *machine.DefaultMachine
	breakpoints map[uint64]bool
}

func (d *debugger) repl() error {
	rl, err := readline.New("(ckb-vm) ")
	if err != nil {
		return err
	}
	defer rl.Close()

	d.m.SetRunning(true)
	d.printLocation()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "s", "step":
			n := 1
			if len(fields) > 1 {
				n, _ = strconv.Atoi(fields[1])
			}
			for i := 0; i < n && d.m.Running(); i++ {
				if err := d.m.Step(); err != nil {
					fmt.Println("fault:", err)
					d.m.SetRunning(false)
					break
				}
			}
			d.printLocation()
		case "c", "continue":
			for d.m.Running() {
				if err := d.m.Step(); err != nil {
					fmt.Println("fault:", err)
					d.m.SetRunning(false)
					break
				}
				if d.breakpoints[d.m.PC()] {
					fmt.Printf("breakpoint at %#x\n", d.m.PC())
					break
				}
			}
			d.printLocation()
		case "b", "break":
			if len(fields) < 2 {
				fmt.Println("usage: break <addr>")
				continue
			}
			addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
			if err != nil {
				fmt.Println("bad address:", fields[1])
				continue
			}
			d.breakpoints[addr] = true
		case "r", "regs":
			d.printRegisters()
		case "m", "mem":
			if len(fields) < 3 {
				fmt.Println("usage: mem <addr> <len>")
				continue
			}
			addr, err1 := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
			size, err2 := strconv.ParseUint(fields[2], 10, 64)
			if err1 != nil || err2 != nil {
				fmt.Println("usage: mem <addr> <len>")
				continue
			}
			data, err := d.m.Memory().LoadBytes(addr, size)
			if err != nil {
				fmt.Println("fault:", err)
				continue
			}
			fmt.Printf("% x\n", data)
		case "q", "quit":
			return nil
		default:
			fmt.Println("commands: step [n], continue, break <addr>, regs, mem <addr> <len>, quit")
		}
		if !d.m.Running() {
			fmt.Printf("halted, exit code %d, cycles %d\n", d.m.ExitCode(), d.m.Cycles())
		}
	}
}

func (d *debugger) printLocation() {
	pc := d.m.PC()
	fmt.Printf("pc=%#x", pc)
	if inst, err := machine.DecodeAt(d.m, pc); err == nil {
		fmt.Printf("  %s", instructions.Disassemble(inst, pc))
	}
	fmt.Println()
}

func (d *debugger) printRegisters() {
	for i := 0; i < instructions.RegisterCount; i++ {
		fmt.Printf("%-4s %016x", instructions.RegisterName(i), d.m.Register(i))
		if i%4 == 3 {
			fmt.Println()
		} else {
			fmt.Print("  ")
		}
	}
}
