package instructions

import "fmt"

var opcodeNames = map[byte]string{
	ECALL: "ecall", EBREAK: "ebreak", FENCE: "fence", FENCEI: "fence.i",
	LUI: "lui", AUIPC: "auipc",
	JAL: "jal", JALR: "jalr",
	BEQ: "beq", BNE: "bne", BLT: "blt", BGE: "bge", BLTU: "bltu", BGEU: "bgeu",
	LB: "lb", LH: "lh", LW: "lw", LD: "ld", LBU: "lbu", LHU: "lhu", LWU: "lwu",
	SB: "sb", SH: "sh", SW: "sw", SD: "sd",
	ADDI: "addi", SLTI: "slti", SLTIU: "sltiu", XORI: "xori", ORI: "ori", ANDI: "andi",
	SLLI: "slli", SRLI: "srli", SRAI: "srai",
	ADDIW: "addiw", SLLIW: "slliw", SRLIW: "srliw", SRAIW: "sraiw",
	ADD: "add", SUB: "sub", SLL: "sll", SLT: "slt", SLTU: "sltu", XOR: "xor",
	SRL: "srl", SRA: "sra", OR: "or", AND: "and",
	ADDW: "addw", SUBW: "subw", SLLW: "sllw", SRLW: "srlw", SRAW: "sraw",
	MUL: "mul", MULH: "mulh", MULHSU: "mulhsu", MULHU: "mulhu",
	DIV: "div", DIVU: "divu", REM: "rem", REMU: "remu",
	MULW: "mulw", DIVW: "divw", DIVUW: "divuw", REMW: "remw", REMUW: "remuw",
	LRW: "lr.w", SCW: "sc.w", AMOSWAPW: "amoswap.w", AMOADDW: "amoadd.w",
	AMOXORW: "amoxor.w", AMOANDW: "amoand.w", AMOORW: "amoor.w",
	AMOMINW: "amomin.w", AMOMAXW: "amomax.w", AMOMINUW: "amominu.w", AMOMAXUW: "amomaxu.w",
	LRD: "lr.d", SCD: "sc.d", AMOSWAPD: "amoswap.d", AMOADDD: "amoadd.d",
	AMOXORD: "amoxor.d", AMOANDD: "amoand.d", AMOORD: "amoor.d",
	AMOMIND: "amomin.d", AMOMAXD: "amomax.d", AMOMINUD: "amominu.d", AMOMAXUD: "amomaxu.d",
}

// OpcodeName returns the mnemonic for an opcode.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", op)
}

// Disassemble renders one decoded instruction at the given address in the
// conventional objdump-like form. Branch and jump targets are printed as
// absolute addresses.
func Disassemble(i Instruction, addr uint64) string {
	name := OpcodeName(i.Op())
	rd := RegisterName(i.Rd())
	rs1 := RegisterName(i.Rs1())
	rs2 := RegisterName(i.Rs2())

	switch i.Op() {
	case ECALL, EBREAK, FENCE, FENCEI:
		return name
	case LUI, AUIPC:
		return fmt.Sprintf("%s %s,%#x", name, rd, uint32(i.Imm())>>12)
	case JAL:
		return fmt.Sprintf("%s %s,%#x", name, rd, addr+i.Imm64())
	case JALR:
		return fmt.Sprintf("%s %s,%d(%s)", name, rd, i.Imm(), rs1)
	case BEQ, BNE, BLT, BGE, BLTU, BGEU:
		return fmt.Sprintf("%s %s,%s,%#x", name, rs1, rs2, addr+i.Imm64())
	case LB, LH, LW, LD, LBU, LHU, LWU:
		return fmt.Sprintf("%s %s,%d(%s)", name, rd, i.Imm(), rs1)
	case SB, SH, SW, SD:
		return fmt.Sprintf("%s %s,%d(%s)", name, rs2, i.Imm(), rs1)
	case ADDI, SLTI, SLTIU, XORI, ORI, ANDI, SLLI, SRLI, SRAI,
		ADDIW, SLLIW, SRLIW, SRAIW:
		return fmt.Sprintf("%s %s,%s,%d", name, rd, rs1, i.Imm())
	case LRW, LRD:
		return fmt.Sprintf("%s %s,(%s)", name, rd, rs1)
	case SCW, SCD,
		AMOSWAPW, AMOADDW, AMOXORW, AMOANDW, AMOORW, AMOMINW, AMOMAXW, AMOMINUW, AMOMAXUW,
		AMOSWAPD, AMOADDD, AMOXORD, AMOANDD, AMOORD, AMOMIND, AMOMAXD, AMOMINUD, AMOMAXUD:
		return fmt.Sprintf("%s %s,%s,(%s)", name, rd, rs2, rs1)
	default:
		return fmt.Sprintf("%s %s,%s,%s", name, rd, rs1, rs2)
	}
}
