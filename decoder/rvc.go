package decoder

import (
	"github.com/juniuszhou/ckb-vm/instructions"
)

// Compressed forms expand to the same packed opcodes as their 32-bit
// counterparts, with the compressed flag set so length accounting stays
// correct. Register fields named rd' or rs' in the manual address x8..x15.

func creg(v uint16) int {
	return 8 + int(v&0x7)
}

func sext(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func decodeCompressed(h uint16, pc uint64) (instructions.Instruction, error) {
	switch h & 0x3 {
	case 0:
		return decodeQuadrant0(h, pc)
	case 1:
		return decodeQuadrant1(h, pc)
	default:
		return decodeQuadrant2(h, pc)
	}
}

func decodeQuadrant0(h uint16, pc uint64) (instructions.Instruction, error) {
	rd := creg(h >> 2)
	rs1 := creg(h >> 7)
	switch h >> 13 {
	case 0: // c.addi4spn
		uimm := uint32(h>>11&0x3)<<4 | uint32(h>>7&0xf)<<6 | uint32(h>>6&0x1)<<2 | uint32(h>>5&0x1)<<3
		if uimm == 0 {
			// covers the canonical all-zero illegal encoding
			return illegal(pc)
		}
		return instructions.New(instructions.ADDI, rd, instructions.RegSP, 0, int32(uimm), true), nil
	case 2: // c.lw
		uimm := uint32(h>>10&0x7)<<3 | uint32(h>>6&0x1)<<2 | uint32(h>>5&0x1)<<6
		return instructions.New(instructions.LW, rd, rs1, 0, int32(uimm), true), nil
	case 3: // c.ld
		uimm := uint32(h>>10&0x7)<<3 | uint32(h>>5&0x3)<<6
		return instructions.New(instructions.LD, rd, rs1, 0, int32(uimm), true), nil
	case 6: // c.sw
		uimm := uint32(h>>10&0x7)<<3 | uint32(h>>6&0x1)<<2 | uint32(h>>5&0x1)<<6
		return instructions.New(instructions.SW, 0, rs1, rd, int32(uimm), true), nil
	case 7: // c.sd
		uimm := uint32(h>>10&0x7)<<3 | uint32(h>>5&0x3)<<6
		return instructions.New(instructions.SD, 0, rs1, rd, int32(uimm), true), nil
	default:
		return illegal(pc)
	}
}

func decodeQuadrant1(h uint16, pc uint64) (instructions.Instruction, error) {
	rd := int(h>>7) & 0x1f
	imm6 := sext(uint32(h>>2&0x1f)|uint32(h>>12&0x1)<<5, 6)
	switch h >> 13 {
	case 0: // c.addi, c.nop when rd is x0
		return instructions.New(instructions.ADDI, rd, rd, 0, imm6, true), nil
	case 1: // c.addiw
		if rd == 0 {
			return illegal(pc)
		}
		return instructions.New(instructions.ADDIW, rd, rd, 0, imm6, true), nil
	case 2: // c.li
		return instructions.New(instructions.ADDI, rd, instructions.RegZero, 0, imm6, true), nil
	case 3:
		if rd == instructions.RegSP { // c.addi16sp
			raw := uint32(h>>12&0x1)<<9 | uint32(h>>6&0x1)<<4 | uint32(h>>5&0x1)<<6 |
				uint32(h>>3&0x3)<<7 | uint32(h>>2&0x1)<<5
			imm := sext(raw, 10)
			if imm == 0 {
				return illegal(pc)
			}
			return instructions.New(instructions.ADDI, rd, rd, 0, imm, true), nil
		}
		// c.lui
		if imm6 == 0 {
			return illegal(pc)
		}
		return instructions.New(instructions.LUI, rd, 0, 0, imm6<<12, true), nil
	case 4:
		rdP := creg(h >> 7)
		switch h >> 10 & 0x3 {
		case 0: // c.srli
			shamt := int32(h>>2&0x1f) | int32(h>>12&0x1)<<5
			return instructions.New(instructions.SRLI, rdP, rdP, 0, shamt, true), nil
		case 1: // c.srai
			shamt := int32(h>>2&0x1f) | int32(h>>12&0x1)<<5
			return instructions.New(instructions.SRAI, rdP, rdP, 0, shamt, true), nil
		case 2: // c.andi
			return instructions.New(instructions.ANDI, rdP, rdP, 0, imm6, true), nil
		default:
			rs2 := creg(h >> 2)
			var op byte
			if h>>12&0x1 == 0 {
				switch h >> 5 & 0x3 {
				case 0:
					op = instructions.SUB
				case 1:
					op = instructions.XOR
				case 2:
					op = instructions.OR
				default:
					op = instructions.AND
				}
			} else {
				switch h >> 5 & 0x3 {
				case 0:
					op = instructions.SUBW
				case 1:
					op = instructions.ADDW
				default:
					return illegal(pc)
				}
			}
			return instructions.New(op, rdP, rdP, rs2, 0, true), nil
		}
	case 5: // c.j
		raw := uint32(h>>12&0x1)<<11 | uint32(h>>11&0x1)<<4 | uint32(h>>9&0x3)<<8 |
			uint32(h>>8&0x1)<<10 | uint32(h>>7&0x1)<<6 | uint32(h>>6&0x1)<<7 |
			uint32(h>>3&0x7)<<1 | uint32(h>>2&0x1)<<5
		return instructions.New(instructions.JAL, instructions.RegZero, 0, 0, sext(raw, 12), true), nil
	case 6: // c.beqz
		return instructions.New(instructions.BEQ, 0, creg(h>>7), instructions.RegZero, cbOffset(h), true), nil
	default: // c.bnez
		return instructions.New(instructions.BNE, 0, creg(h>>7), instructions.RegZero, cbOffset(h), true), nil
	}
}

func cbOffset(h uint16) int32 {
	raw := uint32(h>>12&0x1)<<8 | uint32(h>>10&0x3)<<3 | uint32(h>>5&0x3)<<6 |
		uint32(h>>3&0x3)<<1 | uint32(h>>2&0x1)<<5
	return sext(raw, 9)
}

func decodeQuadrant2(h uint16, pc uint64) (instructions.Instruction, error) {
	rd := int(h>>7) & 0x1f
	rs2 := int(h>>2) & 0x1f
	switch h >> 13 {
	case 0: // c.slli
		shamt := int32(h>>2&0x1f) | int32(h>>12&0x1)<<5
		return instructions.New(instructions.SLLI, rd, rd, 0, shamt, true), nil
	case 2: // c.lwsp
		if rd == 0 {
			return illegal(pc)
		}
		uimm := uint32(h>>12&0x1)<<5 | uint32(h>>4&0x7)<<2 | uint32(h>>2&0x3)<<6
		return instructions.New(instructions.LW, rd, instructions.RegSP, 0, int32(uimm), true), nil
	case 3: // c.ldsp
		if rd == 0 {
			return illegal(pc)
		}
		uimm := uint32(h>>12&0x1)<<5 | uint32(h>>5&0x3)<<3 | uint32(h>>2&0x7)<<6
		return instructions.New(instructions.LD, rd, instructions.RegSP, 0, int32(uimm), true), nil
	case 4:
		if h>>12&0x1 == 0 {
			if rs2 == 0 { // c.jr
				if rd == 0 {
					return illegal(pc)
				}
				return instructions.New(instructions.JALR, instructions.RegZero, rd, 0, 0, true), nil
			}
			// c.mv
			return instructions.New(instructions.ADD, rd, instructions.RegZero, rs2, 0, true), nil
		}
		if rs2 == 0 {
			if rd == 0 { // c.ebreak
				return instructions.New(instructions.EBREAK, 0, 0, 0, 0, true), nil
			}
			// c.jalr
			return instructions.New(instructions.JALR, instructions.RegRA, rd, 0, 0, true), nil
		}
		// c.add
		return instructions.New(instructions.ADD, rd, rd, rs2, 0, true), nil
	case 6: // c.swsp
		uimm := uint32(h>>9&0xf)<<2 | uint32(h>>7&0x3)<<6
		return instructions.New(instructions.SW, 0, instructions.RegSP, rs2, int32(uimm), true), nil
	case 7: // c.sdsp
		uimm := uint32(h>>10&0x7)<<3 | uint32(h>>7&0x7)<<6
		return instructions.New(instructions.SD, 0, instructions.RegSP, rs2, int32(uimm), true), nil
	default:
		return illegal(pc)
	}
}
