package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

func codeMem(t *testing.T, words ...uint32) memory.Memory {
	t.Helper()
	mem := memory.NewFlatMemory(4096)
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	require.NoError(t, mem.StoreBytes(0, buf))
	return mem
}

func halfMem(t *testing.T, halves ...uint16) memory.Memory {
	t.Helper()
	mem := memory.NewFlatMemory(4096)
	buf := make([]byte, 0, len(halves)*2)
	for _, h := range halves {
		buf = append(buf, byte(h), byte(h>>8))
	}
	require.NoError(t, mem.StoreBytes(0, buf))
	return mem
}

func TestDecodeFullWidth(t *testing.T) {
	d := NewIMACDecoder()

	cases := []struct {
		name string
		word uint32
		op   byte
		rd   int
		rs1  int
		rs2  int
		imm  int32
	}{
		{"lui a0", 0x000017b7 & 0xfffff07f | 10<<7, instructions.LUI, 10, 0, 0, 0x1000},
		{"auipc t0", 0x00000297, instructions.AUIPC, 5, 0, 0, 0},
		{"jal ra, +16", 0x010000ef, instructions.JAL, 1, 0, 0, 16},
		{"jalr x0, 0(ra)", 0x00008067, instructions.JALR, 0, 1, 0, 0},
		{"beq a0, a1, -4", 0xfeb50ee3, instructions.BEQ, 0, 10, 11, -4},
		{"ld a2, 8(sp)", 0x00813603, instructions.LD, 12, 2, 0, 8},
		{"sw a1, -4(a0)", 0xfeb52e23, instructions.SW, 0, 10, 11, -4},
		{"addi sp, sp, -32", 0xfe010113, instructions.ADDI, 2, 2, 0, -32},
		{"slli a0, a0, 3", 0x00351513, instructions.SLLI, 10, 10, 0, 3},
		{"srai a0, a0, 63", 0x43f55513, instructions.SRAI, 10, 10, 0, 63},
		{"addiw a0, a0, 1", 0x0015051b, instructions.ADDIW, 10, 10, 0, 1},
		{"add a0, a1, a2", 0x00c58533, instructions.ADD, 10, 11, 12, 0},
		{"sub a0, a1, a2", 0x40c58533, instructions.SUB, 10, 11, 12, 0},
		{"mul a0, a1, a2", 0x02c58533, instructions.MUL, 10, 11, 12, 0},
		{"divu a0, a1, a2", 0x02c5d533, instructions.DIVU, 10, 11, 12, 0},
		{"remw a0, a1, a2", 0x02c5e53b, instructions.REMW, 10, 11, 12, 0},
		{"addw a0, a1, a2", 0x00c5853b, instructions.ADDW, 10, 11, 12, 0},
		{"ecall", 0x00000073, instructions.ECALL, 0, 0, 0, 0},
		{"ebreak", 0x00100073, instructions.EBREAK, 0, 0, 0, 0},
		{"lr.w a0, (a1)", 0x1005a52f, instructions.LRW, 10, 11, 0, 0},
		{"sc.d a0, a2, (a1)", 0x18c5b52f, instructions.SCD, 10, 11, 12, 0},
		{"amoadd.w a0, a2, (a1)", 0x00c5a52f, instructions.AMOADDW, 10, 11, 12, 0},
		{"amomaxu.d a0, a2, (a1)", 0xe0c5b52f, instructions.AMOMAXUD, 10, 11, 12, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i, err := d.Decode(codeMem(t, tc.word), 0)
			require.NoError(t, err)
			assert.Equal(t, tc.op, i.Op())
			assert.Equal(t, tc.rd, i.Rd())
			assert.Equal(t, tc.rs1, i.Rs1())
			assert.Equal(t, tc.rs2, i.Rs2())
			assert.Equal(t, tc.imm, i.Imm())
			assert.False(t, i.IsCompressed())
			assert.Equal(t, uint64(4), i.Length())
		})
	}
}

func TestDecodeCompressed(t *testing.T) {
	d := NewIMACDecoder()

	cases := []struct {
		name string
		half uint16
		op   byte
		rd   int
		rs1  int
		rs2  int
		imm  int32
	}{
		{"c.addi4spn a0, 16", 0x0808, instructions.ADDI, 10, 2, 0, 16},
		{"c.lw a0, 0(a1)", 0x4188, instructions.LW, 10, 11, 0, 0},
		{"c.ld a0, 8(a1)", 0x6588, instructions.LD, 10, 11, 0, 8},
		{"c.sw a0, 0(a1)", 0xc188, instructions.SW, 0, 11, 10, 0},
		{"c.sd a0, 8(a1)", 0xe588, instructions.SD, 0, 11, 10, 8},
		{"c.nop", 0x0001, instructions.ADDI, 0, 0, 0, 0},
		{"c.addi a0, -1", 0x157d, instructions.ADDI, 10, 10, 0, -1},
		{"c.addiw a0, 1", 0x2505, instructions.ADDIW, 10, 10, 0, 1},
		{"c.li a0, 31", 0x457d, instructions.ADDI, 10, 0, 0, 31},
		{"c.addi16sp -64", 0x7139, instructions.ADDI, 2, 2, 0, -64},
		{"c.lui a1, 0x1f000", 0x65fd, instructions.LUI, 11, 0, 0, 0x1f000},
		{"c.srli a0, 2", 0x8109, instructions.SRLI, 10, 10, 0, 2},
		{"c.andi a0, 15", 0x893d, instructions.ANDI, 10, 10, 0, 15},
		{"c.sub a0, a1", 0x8d0d, instructions.SUB, 10, 10, 11, 0},
		{"c.addw a0, a1", 0x9d2d, instructions.ADDW, 10, 10, 11, 0},
		{"c.j -4", 0xbff5, instructions.JAL, 0, 0, 0, -4},
		{"c.beqz a0, +8", 0xc501, instructions.BEQ, 0, 10, 0, 8},
		{"c.beqz a0, +12", 0xc511, instructions.BEQ, 0, 10, 0, 12},
		{"c.bnez a0, -4", 0xfd75, instructions.BNE, 0, 10, 0, -4},
		{"c.slli a0, 4", 0x0512, instructions.SLLI, 10, 10, 0, 4},
		{"c.lwsp a0, 4(sp)", 0x4512, instructions.LW, 10, 2, 0, 4},
		{"c.ldsp a0, 8(sp)", 0x6522, instructions.LD, 10, 2, 0, 8},
		{"c.jr ra", 0x8082, instructions.JALR, 0, 1, 0, 0},
		{"c.mv a0, a1", 0x852e, instructions.ADD, 10, 0, 11, 0},
		{"c.ebreak", 0x9002, instructions.EBREAK, 0, 0, 0, 0},
		{"c.jalr a0", 0x9502, instructions.JALR, 1, 10, 0, 0},
		{"c.add a0, a1", 0x952e, instructions.ADD, 10, 10, 11, 0},
		{"c.swsp a0, 4(sp)", 0xc22a, instructions.SW, 0, 2, 10, 4},
		{"c.sdsp a0, 8(sp)", 0xe42a, instructions.SD, 0, 2, 10, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i, err := d.Decode(halfMem(t, tc.half), 0)
			require.NoError(t, err)
			assert.Equal(t, tc.op, i.Op())
			assert.Equal(t, tc.rd, i.Rd())
			assert.Equal(t, tc.rs1, i.Rs1())
			assert.Equal(t, tc.rs2, i.Rs2())
			assert.Equal(t, tc.imm, i.Imm())
			assert.True(t, i.IsCompressed())
			assert.Equal(t, uint64(2), i.Length())
		})
	}
}

func TestDecodeIllegal(t *testing.T) {
	d := NewIMACDecoder()

	for _, word := range []uint32{
		0x00000000, // all zero, canonical illegal
		0x0000007f, // unknown major opcode
		0x0030a073, // csrrs, not implemented
		0xfff5f57f, // andi with the major opcode mangled
	} {
		_, err := d.Decode(codeMem(t, word), 0)
		assert.ErrorIs(t, err, vmerrors.ErrInvalidInstruction, "word %#x", word)
	}
}

func TestDecodeFetchFault(t *testing.T) {
	d := NewIMACDecoder()
	mem := memory.NewFlatMemory(4096)

	_, err := d.Decode(mem, 8192)
	assert.ErrorIs(t, err, vmerrors.ErrOutOfBound)

	// 32-bit encoding straddling the end of mapped memory
	require.NoError(t, mem.StoreBytes(4094, []byte{0x03, 0x85}))
	_, err = d.Decode(mem, 4094)
	assert.ErrorIs(t, err, vmerrors.ErrOutOfBound)
}
