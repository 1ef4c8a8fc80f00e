package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/machine"
	"github.com/juniuszhou/ckb-vm/memory"
)

func TestDebugSyscall(t *testing.T) {
	m := machine.NewDefaultMachine(memory.NewFlatMemory(4096))
	require.NoError(t, m.Memory().StoreBytes(0x100, []byte("hello\x00")))
	m.SetRegister(instructions.RegA0, 0x100)
	m.SetRegister(instructions.RegA7, SyscallDebug)

	handled, err := NewDebugSyscall().Ecall(m)
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestDebugSyscallIgnoresOthers(t *testing.T) {
	m := machine.NewDefaultMachine(memory.NewFlatMemory(4096))
	m.SetRegister(instructions.RegA7, 42)
	handled, err := NewDebugSyscall().Ecall(m)
	require.NoError(t, err)
	assert.False(t, handled)
}
