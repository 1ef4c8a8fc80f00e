package machine

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"github.com/juniuszhou/ckb-vm/common"
	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/log"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// Default placement of the runtime stack, grown downwards from the top of
// the default memory size.
const (
	DefaultStackSize = 1 << 20
	DefaultStackTop  = memory.DefaultMemorySize
)

// LoadELF maps a RISC-V ELF executable into the given memory and returns
// its entry point. Segment protections follow the program header flags.
func LoadELF(mem memory.Memory, program []byte) (uint64, error) {
	f, err := elf.NewFile(bytes.NewReader(program))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vmerrors.ErrInvalidElf, err)
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return 0, fmt.Errorf("%w: want 64-bit RISC-V, got class=%v machine=%v",
			vmerrors.ErrInvalidElf, f.Class, f.Machine)
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := io.ReadFull(p.Open(), data); err != nil {
			return 0, fmt.Errorf("%w: truncated segment: %v", vmerrors.ErrInvalidElf, err)
		}

		aligned := memory.RoundPageDown(p.Vaddr)
		size := memory.RoundPageUp(p.Vaddr + p.Memsz - aligned)

		var prot uint8
		if p.Flags&elf.PF_R != 0 {
			prot |= memory.ProtRead
		}
		if p.Flags&elf.PF_W != 0 {
			prot |= memory.ProtWrite
		}
		if p.Flags&elf.PF_X != 0 {
			prot |= memory.ProtExec
		}

		// pad so file bytes land at Vaddr inside the aligned mapping
		source := make([]byte, p.Vaddr-aligned+uint64(len(data)))
		copy(source[p.Vaddr-aligned:], data)
		if err := mem.Mmap(aligned, size, prot, source, 0); err != nil {
			return 0, err
		}
	}

	digest := common.Blake2Hash(program)
	log.Debug(log.ElfModule, "program loaded", "entry", fmt.Sprintf("%#x", f.Entry), "digest", digest.Hex())
	return f.Entry, nil
}

// LoadProgram maps an ELF image, sets up the stack with the given arguments
// and points the machine at the entry.
func (m *DefaultMachine) LoadProgram(program []byte, args []string) error {
	entry, err := LoadELF(m.Memory(), program)
	if err != nil {
		return err
	}
	m.pc = entry
	return m.InitStack(args, DefaultStackTop-DefaultStackSize, DefaultStackSize)
}

// LoadProgram on the trace machine maps through the invalidation hooks so a
// reloaded image evicts any traces left from a previous run.
func (t *TraceMachine) LoadProgram(program []byte, args []string) error {
	entry, err := LoadELF(t.Memory(), program)
	if err != nil {
		return err
	}
	t.pc = entry
	return t.InitStack(args, DefaultStackTop-DefaultStackSize, DefaultStackSize)
}

// LoadRaw maps a flat code image read/execute at base and points the
// machine at entry.
func (m *DefaultMachine) LoadRaw(base uint64, code []byte, entry uint64) error {
	aligned := memory.RoundPageDown(base)
	size := memory.RoundPageUp(base + uint64(len(code)) - aligned)
	source := make([]byte, base-aligned+uint64(len(code)))
	copy(source[base-aligned:], code)
	if err := m.Memory().Mmap(aligned, size, memory.ProtRead|memory.ProtExec, source, 0); err != nil {
		return err
	}
	m.pc = entry
	return nil
}

// InitStack maps a read/write stack region, pushes argc/argv the way a
// RISC-V libc expects and sets sp.
func (m *DefaultMachine) InitStack(args []string, stackStart uint64, stackSize uint64) error {
	mem := m.Memory()
	if err := mem.Mmap(stackStart, stackSize, memory.ProtRead|memory.ProtWrite, nil, 0); err != nil {
		return err
	}
	sp := stackStart + stackSize

	// argument strings first, highest address down
	addrs := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		data := append([]byte(args[i]), 0)
		sp -= uint64(len(data))
		if err := mem.StoreBytes(sp, data); err != nil {
			return err
		}
		addrs[i] = sp
	}
	sp &^= 15

	// null terminator, argv pointers, argc
	sp -= 8
	if err := mem.Store64(sp, 0); err != nil {
		return err
	}
	for i := len(addrs) - 1; i >= 0; i-- {
		sp -= 8
		if err := mem.Store64(sp, addrs[i]); err != nil {
			return err
		}
	}
	sp -= 8
	if err := mem.Store64(sp, uint64(len(args))); err != nil {
		return err
	}

	m.SetRegister(instructions.RegSP, sp)
	return nil
}
