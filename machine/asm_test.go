package machine

// Hand-rolled RV64 encoders for test programs. Register arguments use the
// plain x-register index; immediates are the signed offsets or values the
// assembly mnemonic would take.

func encAddi(rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)&0xfff<<20 | rs1<<15 | rd<<7 | 0x13
}

func encAdd(rd, rs1, rs2 uint32) uint32 {
	return rs2<<20 | rs1<<15 | rd<<7 | 0x33
}

func encLui(rd uint32, value uint32) uint32 {
	return value&0xfffff000 | rd<<7 | 0x37
}

func encJal(rd uint32, offset int32) uint32 {
	u := uint32(offset)
	return (u>>20&0x1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&0x1)<<20 | (u>>12&0xff)<<12 | rd<<7 | 0x6f
}

func encJalr(rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)&0xfff<<20 | rs1<<15 | rd<<7 | 0x67
}

func encBranch(funct3, rs1, rs2 uint32, offset int32) uint32 {
	u := uint32(offset)
	return (u>>12&0x1)<<31 | (u>>5&0x3f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 |
		(u>>1&0xf)<<8 | (u>>11&0x1)<<7 | 0x63
}

func encBne(rs1, rs2 uint32, offset int32) uint32 { return encBranch(1, rs1, rs2, offset) }

func encStore(funct3, rs1, rs2 uint32, offset int32) uint32 {
	u := uint32(offset)
	return (u>>5&0x7f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | 0x23
}

func encSw(rs1, rs2 uint32, offset int32) uint32 { return encStore(2, rs1, rs2, offset) }

func encLoad(funct3, rd, rs1 uint32, offset int32) uint32 {
	return uint32(offset)&0xfff<<20 | rs1<<15 | funct3<<12 | rd<<7 | 0x03
}

const (
	encEcall  = uint32(0x00000073)
	encEbreak = uint32(0x00100073)
)

// exitSequence sets a7/a0 and traps; exit code is the low byte of code.
func exitSequence(code int32) []uint32 {
	return []uint32{
		encAddi(10, 0, code),
		encAddi(17, 0, 93),
		encEcall,
	}
}

func assemble(words ...uint32) []byte {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return buf
}
