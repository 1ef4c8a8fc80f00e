package instructions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

type testMachine struct {
	regs        [RegisterCount]uint64
	pc          uint64
	mem         memory.Memory
	reservation uint64
	ecalls      int
	ebreaks     int
}

func newTestMachine() *testMachine {
	return &testMachine{
		mem:         memory.NewFlatMemory(1 << 16),
		reservation: NoReservation,
		pc:          0x100,
	}
}

func (m *testMachine) PC() uint64            { return m.pc }
func (m *testMachine) SetPC(pc uint64)       { m.pc = pc }
func (m *testMachine) Register(i int) uint64 { return m.regs[i] }
func (m *testMachine) SetRegister(i int, v uint64) {
	if i != RegZero {
		m.regs[i] = v
	}
}
func (m *testMachine) Memory() memory.Memory          { return m.mem }
func (m *testMachine) Ecall() error                   { m.ecalls++; return nil }
func (m *testMachine) Ebreak() error                  { m.ebreaks++; return nil }
func (m *testMachine) LoadReservation() uint64        { return m.reservation }
func (m *testMachine) SetLoadReservation(addr uint64) { m.reservation = addr }

func exec(t *testing.T, m *testMachine, i Instruction) {
	t.Helper()
	require.NoError(t, Execute(i, m))
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name     string
		op       byte
		a, b     uint64
		expected uint64
	}{
		{"add wraps", ADD, ^uint64(0), 2, 1},
		{"sub", SUB, 1, 2, ^uint64(0)},
		{"slt signed", SLT, ^uint64(0), 0, 1},
		{"sltu unsigned", SLTU, ^uint64(0), 0, 0},
		{"sll masks shamt", SLL, 1, 65, 2},
		{"srl", SRL, 0x8000000000000000, 63, 1},
		{"sra", SRA, 0x8000000000000000, 63, ^uint64(0)},
		{"addw sign extends", ADDW, 0x7fffffff, 1, 0xffffffff80000000},
		{"subw", SUBW, 0, 1, ^uint64(0)},
		{"sllw", SLLW, 1, 31, 0xffffffff80000000},
		{"srlw ignores high bits", SRLW, 0x1_00000002, 1, 1},
		{"sraw", SRAW, 0x80000000, 31, ^uint64(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine()
			m.SetRegister(11, tc.a)
			m.SetRegister(12, tc.b)
			exec(t, m, New(tc.op, 10, 11, 12, 0, false))
			assert.Equal(t, tc.expected, m.Register(10))
			assert.Equal(t, uint64(0x104), m.PC())
		})
	}
}

func TestDivisionEdgeCases(t *testing.T) {
	minInt64 := uint64(0x8000000000000000)
	negOne := ^uint64(0)
	cases := []struct {
		name     string
		op       byte
		a, b     uint64
		expected uint64
	}{
		{"div by zero", DIV, 42, 0, negOne},
		{"div overflow", DIV, minInt64, negOne, minInt64},
		{"divu by zero", DIVU, 42, 0, negOne},
		{"rem by zero", REM, 42, 0, 42},
		{"rem overflow", REM, minInt64, negOne, 0},
		{"remu by zero", REMU, 42, 0, 42},
		{"divw by zero", DIVW, 42, 0, negOne},
		{"divw overflow", DIVW, 0x80000000, 0xffffffff, 0xffffffff80000000},
		{"remw by zero sign extends", REMW, 0x80000001, 0, 0xffffffff80000001},
		{"divuw by zero", DIVUW, 42, 0, negOne},
		{"remuw", REMUW, 7, 3, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine()
			m.SetRegister(11, tc.a)
			m.SetRegister(12, tc.b)
			exec(t, m, New(tc.op, 10, 11, 12, 0, false))
			assert.Equal(t, tc.expected, m.Register(10))
		})
	}
}

func TestMulHigh(t *testing.T) {
	cases := []struct {
		name     string
		op       byte
		a, b     uint64
		expected uint64
	}{
		{"mulhu", MULHU, ^uint64(0), ^uint64(0), ^uint64(0) - 1},
		{"mulh neg neg", MULH, ^uint64(0), ^uint64(0), 0},
		{"mulh neg pos", MULH, ^uint64(0), 2, ^uint64(0)},
		{"mulhsu neg pos", MULHSU, ^uint64(0), 2, ^uint64(0)},
		{"mulw", MULW, 0x10000, 0x10000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine()
			m.SetRegister(11, tc.a)
			m.SetRegister(12, tc.b)
			exec(t, m, New(tc.op, 10, 11, 12, 0, false))
			assert.Equal(t, tc.expected, m.Register(10))
		})
	}
}

func TestUpperImmediates(t *testing.T) {
	m := newTestMachine()
	exec(t, m, New(LUI, 10, 0, 0, -4096, false))
	assert.Equal(t, uint64(0xfffffffffffff000), m.Register(10))

	m.SetPC(0x1000)
	exec(t, m, New(AUIPC, 11, 0, 0, 0x2000, false))
	assert.Equal(t, uint64(0x3000), m.Register(11))
}

func TestJumps(t *testing.T) {
	m := newTestMachine()
	m.SetPC(0x1000)
	exec(t, m, New(JAL, 1, 0, 0, -16, false))
	assert.Equal(t, uint64(0xff0), m.PC())
	assert.Equal(t, uint64(0x1004), m.Register(1))

	// jalr clears the low bit of the target
	m.SetPC(0x1000)
	m.SetRegister(11, 0x2001)
	exec(t, m, New(JALR, 1, 11, 0, 4, false))
	assert.Equal(t, uint64(0x2004), m.PC())
	assert.Equal(t, uint64(0x1004), m.Register(1))

	// compressed jumps link pc+2
	m.SetPC(0x1000)
	exec(t, m, New(JAL, 1, 0, 0, 8, true))
	assert.Equal(t, uint64(0x1008), m.PC())
	assert.Equal(t, uint64(0x1002), m.Register(1))
}

func TestBranches(t *testing.T) {
	m := newTestMachine()
	m.SetRegister(11, 1)
	m.SetRegister(12, 2)

	m.SetPC(0x1000)
	exec(t, m, New(BLT, 0, 11, 12, 0x20, false))
	assert.Equal(t, uint64(0x1020), m.PC())

	m.SetPC(0x1000)
	exec(t, m, New(BGE, 0, 11, 12, 0x20, false))
	assert.Equal(t, uint64(0x1004), m.PC())

	// signed vs unsigned comparison
	m.SetRegister(11, ^uint64(0))
	m.SetRegister(12, 1)
	m.SetPC(0x1000)
	exec(t, m, New(BLT, 0, 11, 12, 0x20, false))
	assert.Equal(t, uint64(0x1020), m.PC())
	m.SetPC(0x1000)
	exec(t, m, New(BLTU, 0, 11, 12, 0x20, false))
	assert.Equal(t, uint64(0x1004), m.PC())
}

func TestLoadsAndStores(t *testing.T) {
	m := newTestMachine()
	m.SetRegister(11, 0x200)
	m.SetRegister(12, 0xfedcba9876543210)

	exec(t, m, New(SD, 0, 11, 12, 0, false))

	load := func(op byte, off int32) uint64 {
		exec(t, m, New(op, 10, 11, 0, off, false))
		return m.Register(10)
	}
	assert.Equal(t, uint64(0x10), load(LBU, 0))
	assert.Equal(t, uint64(0x3210), load(LHU, 0))
	assert.Equal(t, uint64(0x76543210), load(LWU, 0))
	assert.Equal(t, uint64(0x0000000076543210), load(LW, 0))
	assert.Equal(t, uint64(0xfffffffffffffffe), load(LB, 7))
	assert.Equal(t, uint64(0xfedcba9876543210), load(LD, 0))

	// faults keep the pc at the faulting instruction
	m.SetPC(0x100)
	m.SetRegister(11, 1<<40)
	err := Execute(New(LW, 10, 11, 0, 0, false), m)
	assert.ErrorIs(t, err, vmerrors.ErrOutOfBound)
	assert.Equal(t, uint64(0x100), m.PC())
}

func TestLrSc(t *testing.T) {
	m := newTestMachine()
	m.SetRegister(11, 0x200)
	require.NoError(t, m.mem.Store64(0x200, 77))

	// sc without a reservation fails and does not store
	m.SetRegister(12, 99)
	exec(t, m, New(SCD, 10, 11, 12, 0, false))
	assert.Equal(t, uint64(1), m.Register(10))
	v, _ := m.mem.Load64(0x200)
	assert.Equal(t, uint64(77), v)

	// lr then sc on the same address succeeds
	exec(t, m, New(LRD, 13, 11, 0, 0, false))
	assert.Equal(t, uint64(77), m.Register(13))
	exec(t, m, New(SCD, 10, 11, 12, 0, false))
	assert.Equal(t, uint64(0), m.Register(10))
	v, _ = m.mem.Load64(0x200)
	assert.Equal(t, uint64(99), v)

	// the reservation is consumed
	exec(t, m, New(SCD, 10, 11, 12, 0, false))
	assert.Equal(t, uint64(1), m.Register(10))
}

func TestAmo(t *testing.T) {
	m := newTestMachine()
	m.SetRegister(11, 0x200)

	require.NoError(t, m.mem.Store32(0x200, 0x80000000))
	m.SetRegister(12, 1)
	exec(t, m, New(AMOADDW, 10, 11, 12, 0, false))
	// rd gets the sign-extended old value
	assert.Equal(t, uint64(0xffffffff80000000), m.Register(10))
	v, _ := m.mem.Load32(0x200)
	assert.Equal(t, uint64(0x80000001), v)

	require.NoError(t, m.mem.Store64(0x208, 10))
	m.SetRegister(11, 0x208)
	m.SetRegister(12, 3)
	exec(t, m, New(AMOMAXUD, 10, 11, 12, 0, false))
	assert.Equal(t, uint64(10), m.Register(10))
	v, _ = m.mem.Load64(0x208)
	assert.Equal(t, uint64(10), v)

	m.SetRegister(12, 123)
	exec(t, m, New(AMOSWAPD, 10, 11, 12, 0, false))
	assert.Equal(t, uint64(10), m.Register(10))
	v, _ = m.mem.Load64(0x208)
	assert.Equal(t, uint64(123), v)
}

func TestEnvironmentCalls(t *testing.T) {
	m := newTestMachine()
	m.SetPC(0x100)
	exec(t, m, New(ECALL, 0, 0, 0, 0, false))
	assert.Equal(t, 1, m.ecalls)
	assert.Equal(t, uint64(0x104), m.PC())

	exec(t, m, New(EBREAK, 0, 0, 0, 0, true))
	assert.Equal(t, 1, m.ebreaks)
	assert.Equal(t, uint64(0x106), m.PC())
}

func TestBasicBlockEnds(t *testing.T) {
	assert.True(t, IsBasicBlockEnd(JAL))
	assert.True(t, IsBasicBlockEnd(JALR))
	assert.True(t, IsBasicBlockEnd(BGEU))
	assert.True(t, IsBasicBlockEnd(ECALL))
	assert.True(t, IsBasicBlockEnd(EBREAK))
	assert.False(t, IsBasicBlockEnd(ADDI))
	assert.False(t, IsBasicBlockEnd(SD))
	assert.False(t, IsBasicBlockEnd(FENCE))
}
