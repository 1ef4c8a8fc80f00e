// Package instructions defines the decoded-instruction value for RV64 IMAC,
// its opcode set, and the executor that applies one instruction to a machine.
package instructions

// Instruction is a decoded instruction packed into one 64-bit value. It is
// produced for exactly one (address, memory-contents) pair and immutable
// afterwards; the trace cache stores these by value.
//
// Layout:
//
//	bits  0..7   opcode
//	bit   8      compressed (2-byte encoding)
//	bits 10..14  rd
//	bits 15..19  rs1
//	bits 20..24  rs2
//	bits 32..63  immediate (two's complement)
type Instruction uint64

const compressedBit = 1 << 8

// New packs a decoded instruction. Register indices out of [0,31] are masked.
func New(op byte, rd int, rs1 int, rs2 int, imm int32, compressed bool) Instruction {
	i := Instruction(op) |
		Instruction(rd&0x1f)<<10 |
		Instruction(rs1&0x1f)<<15 |
		Instruction(rs2&0x1f)<<20 |
		Instruction(uint64(uint32(imm))<<32)
	if compressed {
		i |= compressedBit
	}
	return i
}

func (i Instruction) Op() byte  { return byte(i) }
func (i Instruction) Rd() int   { return int(i>>10) & 0x1f }
func (i Instruction) Rs1() int  { return int(i>>15) & 0x1f }
func (i Instruction) Rs2() int  { return int(i>>20) & 0x1f }
func (i Instruction) Imm() int32 {
	return int32(uint32(i >> 32))
}

// Imm64 is the immediate sign-extended to the register width.
func (i Instruction) Imm64() uint64 { return uint64(int64(i.Imm())) }

func (i Instruction) IsCompressed() bool { return i&compressedBit != 0 }

// Length is the encoded byte length: 2 for a compressed form, 4 otherwise.
func (i Instruction) Length() uint64 {
	if i.IsCompressed() {
		return 2
	}
	return 4
}

// Opcodes, grouped by encoding family.

// System
const (
	ECALL  byte = 1
	EBREAK byte = 2
	FENCE  byte = 3
	FENCEI byte = 4
)

// Upper immediate
const (
	LUI   byte = 10
	AUIPC byte = 11
)

// Jumps
const (
	JAL  byte = 20
	JALR byte = 21
)

// Conditional branches
const (
	BEQ  byte = 30
	BNE  byte = 31
	BLT  byte = 32
	BGE  byte = 33
	BLTU byte = 34
	BGEU byte = 35
)

// Loads
const (
	LB  byte = 40
	LH  byte = 41
	LW  byte = 42
	LD  byte = 43
	LBU byte = 44
	LHU byte = 45
	LWU byte = 46
)

// Stores
const (
	SB byte = 50
	SH byte = 51
	SW byte = 52
	SD byte = 53
)

// Register-immediate ops
const (
	ADDI  byte = 60
	SLTI  byte = 61
	SLTIU byte = 62
	XORI  byte = 63
	ORI   byte = 64
	ANDI  byte = 65
	SLLI  byte = 66
	SRLI  byte = 67
	SRAI  byte = 68
)

// 32-bit register-immediate ops
const (
	ADDIW byte = 70
	SLLIW byte = 71
	SRLIW byte = 72
	SRAIW byte = 73
)

// Register-register ops
const (
	ADD  byte = 80
	SUB  byte = 81
	SLL  byte = 82
	SLT  byte = 83
	SLTU byte = 84
	XOR  byte = 85
	SRL  byte = 86
	SRA  byte = 87
	OR   byte = 88
	AND  byte = 89
)

// 32-bit register-register ops
const (
	ADDW byte = 90
	SUBW byte = 91
	SLLW byte = 92
	SRLW byte = 93
	SRAW byte = 94
)

// M extension
const (
	MUL    byte = 100
	MULH   byte = 101
	MULHSU byte = 102
	MULHU  byte = 103
	DIV    byte = 104
	DIVU   byte = 105
	REM    byte = 106
	REMU   byte = 107
	MULW   byte = 108
	DIVW   byte = 109
	DIVUW  byte = 110
	REMW   byte = 111
	REMUW  byte = 112
)

// A extension
const (
	LRW      byte = 120
	SCW      byte = 121
	AMOSWAPW byte = 122
	AMOADDW  byte = 123
	AMOXORW  byte = 124
	AMOANDW  byte = 125
	AMOORW   byte = 126
	AMOMINW  byte = 127
	AMOMAXW  byte = 128
	AMOMINUW byte = 129
	AMOMAXUW byte = 130
	LRD      byte = 131
	SCD      byte = 132
	AMOSWAPD byte = 133
	AMOADDD  byte = 134
	AMOXORD  byte = 135
	AMOANDD  byte = 136
	AMOORD   byte = 137
	AMOMIND  byte = 138
	AMOMAXD  byte = 139
	AMOMINUD byte = 140
	AMOMAXUD byte = 141
)

// IsBasicBlockEnd reports whether op can transfer control elsewhere, which
// ends a basic block: jumps, conditional branches, and environment
// call/break. Illegal encodings never reach a trace at all (decode fails),
// so these are the only block terminators.
func IsBasicBlockEnd(op byte) bool {
	switch op {
	case JAL, JALR, BEQ, BNE, BLT, BGE, BLTU, BGEU, ECALL, EBREAK:
		return true
	default:
		return false
	}
}

// IsBasicBlockEndInstruction is the Instruction-level form of IsBasicBlockEnd.
func IsBasicBlockEndInstruction(i Instruction) bool {
	return IsBasicBlockEnd(i.Op())
}
