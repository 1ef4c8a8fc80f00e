package instructions

import (
	"math/bits"

	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// Machine is the execution state an instruction mutates. The trace machine
// and the plain machine both satisfy it; the trace machine's Memory() returns
// the machine itself so stores feed the invalidation engine.
type Machine interface {
	PC() uint64
	SetPC(uint64)
	Register(i int) uint64
	SetRegister(i int, v uint64)
	Memory() memory.Memory

	// Ecall and Ebreak dispatch environment call / break to the host-call
	// layer.
	Ecall() error
	Ebreak() error

	// Load reservation for LR/SC. The no-reservation state is ^uint64(0).
	LoadReservation() uint64
	SetLoadReservation(addr uint64)
}

// NoReservation is the LoadReservation value meaning no LR is outstanding.
const NoReservation = ^uint64(0)

func sext32(v uint32) uint64 { return uint64(int64(int32(v))) }

// Execute applies one decoded instruction to the machine: registers, memory
// and the program counter. The machine's PC must be the address the
// instruction was decoded at; Execute advances it (or redirects it, for
// control transfers). On error the PC is left at the faulting instruction.
func Execute(i Instruction, m Machine) error {
	pc := m.PC()
	next := pc + i.Length()
	rd, rs1, rs2 := i.Rd(), i.Rs1(), i.Rs2()

	switch i.Op() {
	case LUI:
		m.SetRegister(rd, i.Imm64())
	case AUIPC:
		m.SetRegister(rd, pc+i.Imm64())

	case JAL:
		m.SetRegister(rd, next)
		m.SetPC(pc + i.Imm64())
		return nil
	case JALR:
		target := (m.Register(rs1) + i.Imm64()) &^ uint64(1)
		m.SetRegister(rd, next)
		m.SetPC(target)
		return nil

	case BEQ:
		return branch(m, pc, next, i, m.Register(rs1) == m.Register(rs2))
	case BNE:
		return branch(m, pc, next, i, m.Register(rs1) != m.Register(rs2))
	case BLT:
		return branch(m, pc, next, i, int64(m.Register(rs1)) < int64(m.Register(rs2)))
	case BGE:
		return branch(m, pc, next, i, int64(m.Register(rs1)) >= int64(m.Register(rs2)))
	case BLTU:
		return branch(m, pc, next, i, m.Register(rs1) < m.Register(rs2))
	case BGEU:
		return branch(m, pc, next, i, m.Register(rs1) >= m.Register(rs2))

	case LB:
		v, err := m.Memory().Load8(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, uint64(int64(int8(v))))
	case LH:
		v, err := m.Memory().Load16(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, uint64(int64(int16(v))))
	case LW:
		v, err := m.Memory().Load32(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, sext32(uint32(v)))
	case LD:
		v, err := m.Memory().Load64(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, v)
	case LBU:
		v, err := m.Memory().Load8(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, v)
	case LHU:
		v, err := m.Memory().Load16(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, v)
	case LWU:
		v, err := m.Memory().Load32(m.Register(rs1) + i.Imm64())
		if err != nil {
			return err
		}
		m.SetRegister(rd, v)

	case SB:
		if err := m.Memory().Store8(m.Register(rs1)+i.Imm64(), m.Register(rs2)); err != nil {
			return err
		}
	case SH:
		if err := m.Memory().Store16(m.Register(rs1)+i.Imm64(), m.Register(rs2)); err != nil {
			return err
		}
	case SW:
		if err := m.Memory().Store32(m.Register(rs1)+i.Imm64(), m.Register(rs2)); err != nil {
			return err
		}
	case SD:
		if err := m.Memory().Store64(m.Register(rs1)+i.Imm64(), m.Register(rs2)); err != nil {
			return err
		}

	case ADDI:
		m.SetRegister(rd, m.Register(rs1)+i.Imm64())
	case SLTI:
		m.SetRegister(rd, b2u(int64(m.Register(rs1)) < int64(i.Imm64())))
	case SLTIU:
		m.SetRegister(rd, b2u(m.Register(rs1) < i.Imm64()))
	case XORI:
		m.SetRegister(rd, m.Register(rs1)^i.Imm64())
	case ORI:
		m.SetRegister(rd, m.Register(rs1)|i.Imm64())
	case ANDI:
		m.SetRegister(rd, m.Register(rs1)&i.Imm64())
	case SLLI:
		m.SetRegister(rd, m.Register(rs1)<<(i.Imm()&63))
	case SRLI:
		m.SetRegister(rd, m.Register(rs1)>>(i.Imm()&63))
	case SRAI:
		m.SetRegister(rd, uint64(int64(m.Register(rs1))>>(i.Imm()&63)))

	case ADDIW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1)+i.Imm64())))
	case SLLIW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))<<(i.Imm()&31)))
	case SRLIW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))>>(i.Imm()&31)))
	case SRAIW:
		m.SetRegister(rd, uint64(int64(int32(m.Register(rs1))>>(i.Imm()&31))))

	case ADD:
		m.SetRegister(rd, m.Register(rs1)+m.Register(rs2))
	case SUB:
		m.SetRegister(rd, m.Register(rs1)-m.Register(rs2))
	case SLL:
		m.SetRegister(rd, m.Register(rs1)<<(m.Register(rs2)&63))
	case SLT:
		m.SetRegister(rd, b2u(int64(m.Register(rs1)) < int64(m.Register(rs2))))
	case SLTU:
		m.SetRegister(rd, b2u(m.Register(rs1) < m.Register(rs2)))
	case XOR:
		m.SetRegister(rd, m.Register(rs1)^m.Register(rs2))
	case SRL:
		m.SetRegister(rd, m.Register(rs1)>>(m.Register(rs2)&63))
	case SRA:
		m.SetRegister(rd, uint64(int64(m.Register(rs1))>>(m.Register(rs2)&63)))
	case OR:
		m.SetRegister(rd, m.Register(rs1)|m.Register(rs2))
	case AND:
		m.SetRegister(rd, m.Register(rs1)&m.Register(rs2))

	case ADDW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))+uint32(m.Register(rs2))))
	case SUBW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))-uint32(m.Register(rs2))))
	case SLLW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))<<(m.Register(rs2)&31)))
	case SRLW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))>>(m.Register(rs2)&31)))
	case SRAW:
		m.SetRegister(rd, uint64(int64(int32(m.Register(rs1))>>(m.Register(rs2)&31))))

	case MUL:
		m.SetRegister(rd, m.Register(rs1)*m.Register(rs2))
	case MULH:
		m.SetRegister(rd, mulh(int64(m.Register(rs1)), int64(m.Register(rs2))))
	case MULHSU:
		m.SetRegister(rd, mulhsu(int64(m.Register(rs1)), m.Register(rs2)))
	case MULHU:
		hi, _ := bits.Mul64(m.Register(rs1), m.Register(rs2))
		m.SetRegister(rd, hi)
	case DIV:
		m.SetRegister(rd, div64(int64(m.Register(rs1)), int64(m.Register(rs2))))
	case DIVU:
		m.SetRegister(rd, divu64(m.Register(rs1), m.Register(rs2)))
	case REM:
		m.SetRegister(rd, rem64(int64(m.Register(rs1)), int64(m.Register(rs2))))
	case REMU:
		m.SetRegister(rd, remu64(m.Register(rs1), m.Register(rs2)))
	case MULW:
		m.SetRegister(rd, sext32(uint32(m.Register(rs1))*uint32(m.Register(rs2))))
	case DIVW:
		m.SetRegister(rd, uint64(int64(div32(int32(m.Register(rs1)), int32(m.Register(rs2))))))
	case DIVUW:
		m.SetRegister(rd, sext32(divu32(uint32(m.Register(rs1)), uint32(m.Register(rs2)))))
	case REMW:
		m.SetRegister(rd, uint64(int64(rem32(int32(m.Register(rs1)), int32(m.Register(rs2))))))
	case REMUW:
		m.SetRegister(rd, sext32(remu32(uint32(m.Register(rs1)), uint32(m.Register(rs2)))))

	case LRW:
		addr := m.Register(rs1)
		v, err := m.Memory().Load32(addr)
		if err != nil {
			return err
		}
		m.SetLoadReservation(addr)
		m.SetRegister(rd, sext32(uint32(v)))
	case LRD:
		addr := m.Register(rs1)
		v, err := m.Memory().Load64(addr)
		if err != nil {
			return err
		}
		m.SetLoadReservation(addr)
		m.SetRegister(rd, v)
	case SCW:
		addr := m.Register(rs1)
		if m.LoadReservation() == addr {
			if err := m.Memory().Store32(addr, m.Register(rs2)); err != nil {
				return err
			}
			m.SetRegister(rd, 0)
		} else {
			m.SetRegister(rd, 1)
		}
		m.SetLoadReservation(NoReservation)
	case SCD:
		addr := m.Register(rs1)
		if m.LoadReservation() == addr {
			if err := m.Memory().Store64(addr, m.Register(rs2)); err != nil {
				return err
			}
			m.SetRegister(rd, 0)
		} else {
			m.SetRegister(rd, 1)
		}
		m.SetLoadReservation(NoReservation)

	case AMOSWAPW, AMOADDW, AMOXORW, AMOANDW, AMOORW, AMOMINW, AMOMAXW, AMOMINUW, AMOMAXUW:
		addr := m.Register(rs1)
		old, err := m.Memory().Load32(addr)
		if err != nil {
			return err
		}
		v := amo32(i.Op(), uint32(old), uint32(m.Register(rs2)))
		if err := m.Memory().Store32(addr, uint64(v)); err != nil {
			return err
		}
		m.SetRegister(rd, sext32(uint32(old)))
	case AMOSWAPD, AMOADDD, AMOXORD, AMOANDD, AMOORD, AMOMIND, AMOMAXD, AMOMINUD, AMOMAXUD:
		addr := m.Register(rs1)
		old, err := m.Memory().Load64(addr)
		if err != nil {
			return err
		}
		v := amo64(i.Op(), old, m.Register(rs2))
		if err := m.Memory().Store64(addr, v); err != nil {
			return err
		}
		m.SetRegister(rd, old)

	case ECALL:
		if err := m.Ecall(); err != nil {
			return err
		}
	case EBREAK:
		if err := m.Ebreak(); err != nil {
			return err
		}
	case FENCE, FENCEI:
		// Single hart, synchronous invalidation: nothing to order.

	default:
		return vmerrors.AtPC(vmerrors.ErrInvalidInstruction, pc)
	}

	m.SetPC(next)
	return nil
}

func branch(m Machine, pc uint64, next uint64, i Instruction, taken bool) error {
	if taken {
		m.SetPC(pc + i.Imm64())
	} else {
		m.SetPC(next)
	}
	return nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func mulh(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi
}

func mulhsu(a int64, b uint64) uint64 {
	hi, _ := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	return hi
}

// Division edge cases follow the unprivileged spec: divide by zero yields
// all ones (or the dividend for remainders), signed overflow wraps.

func div64(a, b int64) uint64 {
	switch {
	case b == 0:
		return ^uint64(0)
	case a == -1<<63 && b == -1:
		return uint64(a)
	default:
		return uint64(a / b)
	}
}

func divu64(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func rem64(a, b int64) uint64 {
	switch {
	case b == 0:
		return uint64(a)
	case a == -1<<63 && b == -1:
		return 0
	default:
		return uint64(a % b)
	}
}

func remu64(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func div32(a, b int32) int32 {
	switch {
	case b == 0:
		return -1
	case a == -1<<31 && b == -1:
		return a
	default:
		return a / b
	}
}

func divu32(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func rem32(a, b int32) int32 {
	switch {
	case b == 0:
		return a
	case a == -1<<31 && b == -1:
		return 0
	default:
		return a % b
	}
}

func remu32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

func amo32(op byte, old, v uint32) uint32 {
	switch op {
	case AMOSWAPW:
		return v
	case AMOADDW:
		return old + v
	case AMOXORW:
		return old ^ v
	case AMOANDW:
		return old & v
	case AMOORW:
		return old | v
	case AMOMINW:
		if int32(v) < int32(old) {
			return v
		}
		return old
	case AMOMAXW:
		if int32(v) > int32(old) {
			return v
		}
		return old
	case AMOMINUW:
		return min(old, v)
	default: // AMOMAXUW
		return max(old, v)
	}
}

func amo64(op byte, old, v uint64) uint64 {
	switch op {
	case AMOSWAPD:
		return v
	case AMOADDD:
		return old + v
	case AMOXORD:
		return old ^ v
	case AMOANDD:
		return old & v
	case AMOORD:
		return old | v
	case AMOMIND:
		if int64(v) < int64(old) {
			return v
		}
		return old
	case AMOMAXD:
		if int64(v) > int64(old) {
			return v
		}
		return old
	case AMOMINUD:
		return min(old, v)
	default: // AMOMAXUD
		return max(old, v)
	}
}
