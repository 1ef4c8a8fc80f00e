// Package decoder turns raw bytes at an address into packed instruction
// values. Decoding is a pure function of current memory contents; it holds
// no state, so the same bytes always decode to the same instruction.
package decoder

import (
	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// Memory is the fetch view the decoder needs: half-word instruction loads
// with execute permission checks.
type Memory interface {
	ExecuteLoad16(addr uint64) (uint16, error)
}

// Decoder decodes the RV64 IMAC instruction set, compressed forms included.
type Decoder struct{}

// NewIMACDecoder returns a decoder for RV64 I+M+A+C.
func NewIMACDecoder() *Decoder {
	return &Decoder{}
}

// Decode reads the instruction at pc. The low half-word determines the
// encoding width: anything with the two low bits set is a 32-bit form,
// everything else a 16-bit compressed form.
func (d *Decoder) Decode(mem Memory, pc uint64) (instructions.Instruction, error) {
	lo, err := mem.ExecuteLoad16(pc)
	if err != nil {
		return 0, err
	}
	if lo&0x3 != 0x3 {
		return decodeCompressed(lo, pc)
	}
	hi, err := mem.ExecuteLoad16(pc + 2)
	if err != nil {
		return 0, err
	}
	return decodeFull(uint32(lo)|uint32(hi)<<16, pc)
}

func illegal(pc uint64) (instructions.Instruction, error) {
	return 0, vmerrors.AtPC(vmerrors.ErrInvalidInstruction, pc)
}

// decodeFull decodes one 32-bit encoding.
func decodeFull(word uint32, pc uint64) (instructions.Instruction, error) {
	rd := int(word>>7) & 0x1f
	rs1 := int(word>>15) & 0x1f
	rs2 := int(word>>20) & 0x1f
	funct3 := (word >> 12) & 0x7
	funct7 := word >> 25

	immI := int32(word) >> 20
	immS := (int32(word)>>25)<<5 | int32((word>>7)&0x1f)
	immB := (int32(word)>>31)<<12 |
		int32((word>>25)&0x3f)<<5 |
		int32((word>>8)&0xf)<<1 |
		int32((word>>7)&0x1)<<11
	immU := int32(word & 0xfffff000)
	immJ := (int32(word)>>31)<<20 |
		int32((word>>21)&0x3ff)<<1 |
		int32((word>>20)&0x1)<<11 |
		int32((word>>12)&0xff)<<12

	switch word & 0x7f {
	case 0x37:
		return instructions.New(instructions.LUI, rd, 0, 0, immU, false), nil
	case 0x17:
		return instructions.New(instructions.AUIPC, rd, 0, 0, immU, false), nil
	case 0x6f:
		return instructions.New(instructions.JAL, rd, 0, 0, immJ, false), nil
	case 0x67:
		if funct3 != 0 {
			return illegal(pc)
		}
		return instructions.New(instructions.JALR, rd, rs1, 0, immI, false), nil

	case 0x63:
		var op byte
		switch funct3 {
		case 0:
			op = instructions.BEQ
		case 1:
			op = instructions.BNE
		case 4:
			op = instructions.BLT
		case 5:
			op = instructions.BGE
		case 6:
			op = instructions.BLTU
		case 7:
			op = instructions.BGEU
		default:
			return illegal(pc)
		}
		return instructions.New(op, 0, rs1, rs2, immB, false), nil

	case 0x03:
		var op byte
		switch funct3 {
		case 0:
			op = instructions.LB
		case 1:
			op = instructions.LH
		case 2:
			op = instructions.LW
		case 3:
			op = instructions.LD
		case 4:
			op = instructions.LBU
		case 5:
			op = instructions.LHU
		case 6:
			op = instructions.LWU
		default:
			return illegal(pc)
		}
		return instructions.New(op, rd, rs1, 0, immI, false), nil

	case 0x23:
		var op byte
		switch funct3 {
		case 0:
			op = instructions.SB
		case 1:
			op = instructions.SH
		case 2:
			op = instructions.SW
		case 3:
			op = instructions.SD
		default:
			return illegal(pc)
		}
		return instructions.New(op, 0, rs1, rs2, immS, false), nil

	case 0x13:
		switch funct3 {
		case 0:
			return instructions.New(instructions.ADDI, rd, rs1, 0, immI, false), nil
		case 2:
			return instructions.New(instructions.SLTI, rd, rs1, 0, immI, false), nil
		case 3:
			return instructions.New(instructions.SLTIU, rd, rs1, 0, immI, false), nil
		case 4:
			return instructions.New(instructions.XORI, rd, rs1, 0, immI, false), nil
		case 6:
			return instructions.New(instructions.ORI, rd, rs1, 0, immI, false), nil
		case 7:
			return instructions.New(instructions.ANDI, rd, rs1, 0, immI, false), nil
		case 1:
			if word>>26 != 0 {
				return illegal(pc)
			}
			return instructions.New(instructions.SLLI, rd, rs1, 0, int32((word>>20)&0x3f), false), nil
		default: // 5
			shamt := int32((word >> 20) & 0x3f)
			switch word >> 26 {
			case 0x00:
				return instructions.New(instructions.SRLI, rd, rs1, 0, shamt, false), nil
			case 0x10:
				return instructions.New(instructions.SRAI, rd, rs1, 0, shamt, false), nil
			default:
				return illegal(pc)
			}
		}

	case 0x1b:
		switch funct3 {
		case 0:
			return instructions.New(instructions.ADDIW, rd, rs1, 0, immI, false), nil
		case 1:
			if funct7 != 0 {
				return illegal(pc)
			}
			return instructions.New(instructions.SLLIW, rd, rs1, 0, int32(rs2), false), nil
		case 5:
			switch funct7 {
			case 0x00:
				return instructions.New(instructions.SRLIW, rd, rs1, 0, int32(rs2), false), nil
			case 0x20:
				return instructions.New(instructions.SRAIW, rd, rs1, 0, int32(rs2), false), nil
			default:
				return illegal(pc)
			}
		default:
			return illegal(pc)
		}

	case 0x33:
		var op byte
		switch funct7 {
		case 0x00:
			switch funct3 {
			case 0:
				op = instructions.ADD
			case 1:
				op = instructions.SLL
			case 2:
				op = instructions.SLT
			case 3:
				op = instructions.SLTU
			case 4:
				op = instructions.XOR
			case 5:
				op = instructions.SRL
			case 6:
				op = instructions.OR
			default:
				op = instructions.AND
			}
		case 0x20:
			switch funct3 {
			case 0:
				op = instructions.SUB
			case 5:
				op = instructions.SRA
			default:
				return illegal(pc)
			}
		case 0x01:
			switch funct3 {
			case 0:
				op = instructions.MUL
			case 1:
				op = instructions.MULH
			case 2:
				op = instructions.MULHSU
			case 3:
				op = instructions.MULHU
			case 4:
				op = instructions.DIV
			case 5:
				op = instructions.DIVU
			case 6:
				op = instructions.REM
			default:
				op = instructions.REMU
			}
		default:
			return illegal(pc)
		}
		return instructions.New(op, rd, rs1, rs2, 0, false), nil

	case 0x3b:
		var op byte
		switch funct7 {
		case 0x00:
			switch funct3 {
			case 0:
				op = instructions.ADDW
			case 1:
				op = instructions.SLLW
			case 5:
				op = instructions.SRLW
			default:
				return illegal(pc)
			}
		case 0x20:
			switch funct3 {
			case 0:
				op = instructions.SUBW
			case 5:
				op = instructions.SRAW
			default:
				return illegal(pc)
			}
		case 0x01:
			switch funct3 {
			case 0:
				op = instructions.MULW
			case 4:
				op = instructions.DIVW
			case 5:
				op = instructions.DIVUW
			case 6:
				op = instructions.REMW
			case 7:
				op = instructions.REMUW
			default:
				return illegal(pc)
			}
		default:
			return illegal(pc)
		}
		return instructions.New(op, rd, rs1, rs2, 0, false), nil

	case 0x0f:
		switch funct3 {
		case 0:
			return instructions.New(instructions.FENCE, rd, rs1, 0, immI, false), nil
		case 1:
			return instructions.New(instructions.FENCEI, rd, rs1, 0, immI, false), nil
		default:
			return illegal(pc)
		}

	case 0x73:
		switch word {
		case 0x00000073:
			return instructions.New(instructions.ECALL, 0, 0, 0, 0, false), nil
		case 0x00100073:
			return instructions.New(instructions.EBREAK, 0, 0, 0, 0, false), nil
		default:
			return illegal(pc)
		}

	case 0x2f:
		return decodeAtomic(word, pc)

	default:
		return illegal(pc)
	}
}

// atomic funct5 values, shared by the .W and .D columns
var amoOps = map[uint32][2]byte{
	0x02: {instructions.LRW, instructions.LRD},
	0x03: {instructions.SCW, instructions.SCD},
	0x01: {instructions.AMOSWAPW, instructions.AMOSWAPD},
	0x00: {instructions.AMOADDW, instructions.AMOADDD},
	0x04: {instructions.AMOXORW, instructions.AMOXORD},
	0x0c: {instructions.AMOANDW, instructions.AMOANDD},
	0x08: {instructions.AMOORW, instructions.AMOORD},
	0x10: {instructions.AMOMINW, instructions.AMOMIND},
	0x14: {instructions.AMOMAXW, instructions.AMOMAXD},
	0x18: {instructions.AMOMINUW, instructions.AMOMINUD},
	0x1c: {instructions.AMOMAXUW, instructions.AMOMAXUD},
}

func decodeAtomic(word uint32, pc uint64) (instructions.Instruction, error) {
	rd := int(word>>7) & 0x1f
	rs1 := int(word>>15) & 0x1f
	rs2 := int(word>>20) & 0x1f
	funct3 := (word >> 12) & 0x7
	funct5 := word >> 27

	ops, ok := amoOps[funct5]
	if !ok {
		return illegal(pc)
	}
	var op byte
	switch funct3 {
	case 2:
		op = ops[0]
	case 3:
		op = ops[1]
	default:
		return illegal(pc)
	}
	if (op == instructions.LRW || op == instructions.LRD) && rs2 != 0 {
		return illegal(pc)
	}
	return instructions.New(op, rd, rs1, rs2, 0, false), nil
}
