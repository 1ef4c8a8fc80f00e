package instructions

// RegisterCount is the number of general purpose registers.
const RegisterCount = 32

// ABI register indices used by the machine and the host-call layer.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegGP   = 3
	RegTP   = 4
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
	RegA4   = 14
	RegA5   = 15
	RegA6   = 16
	RegA7   = 17
)

// RegisterNames maps register index to ABI name, for the disassembler and
// the interactive debugger.
var RegisterNames = [RegisterCount]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegisterName returns the ABI name for a register index.
func RegisterName(i int) string {
	if i < 0 || i >= RegisterCount {
		return "?"
	}
	return RegisterNames[i]
}
