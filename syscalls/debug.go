// Package syscalls provides host call handlers a machine can register for
// environment calls beyond the built-in exit.
package syscalls

import (
	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/log"
	"github.com/juniuszhou/ckb-vm/machine"
)

// debug syscall number, matching the ckb-vm convention
const SyscallDebug = 2177

// Debug prints the NUL-terminated string whose address is in a0. Guest
// programs use it as a printf of last resort.
type Debug struct{}

func NewDebugSyscall() *Debug { return &Debug{} }

func (d *Debug) Ecall(m machine.Machine) (bool, error) {
	if m.Register(instructions.RegA7) != SyscallDebug {
		return false, nil
	}
	addr := m.Register(instructions.RegA0)
	var buf []byte
	for {
		b, err := m.Memory().Load8(addr)
		if err != nil {
			return true, err
		}
		if b == 0 {
			break
		}
		buf = append(buf, byte(b))
		addr++
	}
	log.Info(log.SyscallModule, "debug", "message", string(buf), "cycles", m.Cycles())
	return true, nil
}
