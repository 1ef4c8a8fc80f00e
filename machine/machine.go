// Package machine holds the RV64 execution state and the two run loops: a
// plain decode-every-step interpreter and a trace caching variant layered on
// top of it. Both produce the same register, memory and cycle trajectory for
// any program.
package machine

import (
	"fmt"

	"github.com/juniuszhou/ckb-vm/decoder"
	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/log"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// SyscallExit is the a7 value of the built-in exit environment call.
const SyscallExit = 93

// CycleFunc prices one instruction. A nil CycleFunc means execution is free.
type CycleFunc func(i instructions.Instruction) uint64

// ConstantCycleFunc charges the same amount for every instruction.
func ConstantCycleFunc(n uint64) CycleFunc {
	return func(instructions.Instruction) uint64 { return n }
}

// Syscall handles environment calls the machine itself does not. Ecall
// reports whether the call was recognized; an unrecognized call falls
// through to the next handler.
type Syscall interface {
	Ecall(m Machine) (bool, error)
}

// Machine is the state surface host calls and debuggers work against.
type Machine interface {
	instructions.Machine

	Running() bool
	SetRunning(bool)
	Cycles() uint64
	AddCycles(n uint64) error
	ExitCode() uint8
}

// DefaultMachine is the plain interpreter: no caching, one decode per
// executed instruction.
type DefaultMachine struct {
	registers [instructions.RegisterCount]uint64
	pc        uint64
	mem       memory.Memory
	dec       *decoder.Decoder

	cycles    uint64
	maxCycles uint64
	cycleFunc CycleFunc

	running         bool
	exitCode        uint8
	loadReservation uint64

	syscalls   []Syscall
	ebreakFunc func(m Machine) error
}

func NewDefaultMachine(mem memory.Memory) *DefaultMachine {
	return &DefaultMachine{
		mem:             mem,
		dec:             decoder.NewIMACDecoder(),
		maxCycles:       ^uint64(0),
		loadReservation: instructions.NoReservation,
	}
}

func (m *DefaultMachine) PC() uint64      { return m.pc }
func (m *DefaultMachine) SetPC(pc uint64) { m.pc = pc }

func (m *DefaultMachine) Register(i int) uint64 { return m.registers[i] }

// SetRegister keeps x0 hardwired to zero.
func (m *DefaultMachine) SetRegister(i int, v uint64) {
	if i == instructions.RegZero {
		return
	}
	m.registers[i] = v
}

func (m *DefaultMachine) Memory() memory.Memory { return m.mem }

func (m *DefaultMachine) Running() bool       { return m.running }
func (m *DefaultMachine) SetRunning(r bool)   { m.running = r }
func (m *DefaultMachine) Cycles() uint64      { return m.cycles }
func (m *DefaultMachine) MaxCycles() uint64   { return m.maxCycles }
func (m *DefaultMachine) SetMaxCycles(n uint64) {
	m.maxCycles = n
}
func (m *DefaultMachine) ExitCode() uint8 { return m.exitCode }

func (m *DefaultMachine) SetCycleFunc(f CycleFunc) { m.cycleFunc = f }

func (m *DefaultMachine) LoadReservation() uint64        { return m.loadReservation }
func (m *DefaultMachine) SetLoadReservation(addr uint64) { m.loadReservation = addr }

// AddSyscall appends a host call handler. Handlers are consulted in order.
func (m *DefaultMachine) AddSyscall(s Syscall) {
	m.syscalls = append(m.syscalls, s)
}

// SetEbreakFunc installs an ebreak hook; debuggers use this for breakpoints.
func (m *DefaultMachine) SetEbreakFunc(f func(m Machine) error) {
	m.ebreakFunc = f
}

// AddCycles accumulates cycle cost, faulting on wraparound or on crossing
// the configured limit.
func (m *DefaultMachine) AddCycles(n uint64) error {
	next := m.cycles + n
	if next < m.cycles {
		return vmerrors.ErrCyclesOverflow
	}
	if next > m.maxCycles {
		m.cycles = m.maxCycles
		return vmerrors.ErrCyclesExceeded
	}
	m.cycles = next
	return nil
}

// Ecall dispatches an environment call. The exit call (a7 = 93) is handled
// by the machine itself; everything else goes through registered handlers.
func (m *DefaultMachine) Ecall() error {
	code := m.registers[instructions.RegA7]
	if code == SyscallExit {
		m.exitCode = uint8(m.registers[instructions.RegA0])
		m.running = false
		log.Debug(log.MachineModule, "exit ecall", "code", m.exitCode, "cycles", m.cycles)
		return nil
	}
	for _, s := range m.syscalls {
		handled, err := s.Ecall(m)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return fmt.Errorf("%w (code=%d)", vmerrors.AtPC(vmerrors.ErrInvalidEcall, m.pc), code)
}

func (m *DefaultMachine) Ebreak() error {
	if m.ebreakFunc != nil {
		return m.ebreakFunc(m)
	}
	return vmerrors.AtPC(vmerrors.ErrUnexpectedEbreak, m.pc)
}

// Step decodes and executes exactly one instruction, charging its cycle
// cost after it has run.
func (m *DefaultMachine) Step() error {
	if !m.running {
		return vmerrors.ErrMachineNotRunning
	}
	inst, err := m.dec.Decode(m.mem, m.pc)
	if err != nil {
		return err
	}
	if err := instructions.Execute(inst, m); err != nil {
		return err
	}
	if m.cycleFunc != nil {
		if err := m.AddCycles(m.cycleFunc(inst)); err != nil {
			return err
		}
	}
	return nil
}

// Run executes from the current pc until the program halts or faults.
func (m *DefaultMachine) Run() error {
	m.running = true
	for m.running {
		if err := m.Step(); err != nil {
			m.running = false
			return err
		}
	}
	return nil
}

// DecodeAt decodes the instruction at addr without executing it.
func DecodeAt(m Machine, addr uint64) (instructions.Instruction, error) {
	return decoder.NewIMACDecoder().Decode(m.Memory(), addr)
}

// Registers returns a copy of the register file.
func (m *DefaultMachine) Registers() [instructions.RegisterCount]uint64 {
	return m.registers
}
