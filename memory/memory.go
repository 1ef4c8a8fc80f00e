// Package memory implements the emulated address space: byte-addressed
// load/store primitives plus page-granular mapping with protection bits.
package memory

// Page protection bits, combinable.
const (
	ProtRead  uint8 = 1
	ProtWrite uint8 = 2
	ProtExec  uint8 = 4
)

const (
	PageSize      = 4096
	PageSizeShift = 12

	// DefaultMemorySize bounds the guest address space unless the caller
	// asks for a different size.
	DefaultMemorySize = 16 * 1024 * 1024
)

// Memory is the byte-addressed guest address space. Every mutating call is
// fallible; a non-nil error means the operation had no observable effect
// except where noted on the implementation.
type Memory interface {
	// Mmap maps [addr, addr+size) with the given protection, optionally
	// initializing it from source[offset:]. addr must be page aligned; size
	// is rounded up to a page multiple. Remapping pages updates their
	// protection in place.
	Mmap(addr uint64, size uint64, prot uint8, source []byte, offset uint64) error

	// Munmap unmaps [addr, addr+size). addr must be page aligned.
	Munmap(addr uint64, size uint64) error

	// ExecuteLoad16 fetches one instruction half-word. It requires ProtExec
	// on the page, unlike the data loads below.
	ExecuteLoad16(addr uint64) (uint16, error)

	Load8(addr uint64) (uint64, error)
	Load16(addr uint64) (uint64, error)
	Load32(addr uint64) (uint64, error)
	Load64(addr uint64) (uint64, error)

	Store8(addr uint64, value uint64) error
	Store16(addr uint64, value uint64) error
	Store32(addr uint64, value uint64) error
	Store64(addr uint64, value uint64) error

	// StoreBytes writes value at addr.
	StoreBytes(addr uint64, value []byte) error

	// StoreByte fills [addr, addr+size) with value.
	StoreByte(addr uint64, size uint64, value byte) error

	// LoadBytes reads size bytes at addr into a fresh slice.
	LoadBytes(addr uint64, size uint64) ([]byte, error)
}

// RoundPageUp rounds size up to the next page multiple.
func RoundPageUp(size uint64) uint64 {
	return (size + PageSize - 1) &^ uint64(PageSize-1)
}

// RoundPageDown rounds addr down to its page base.
func RoundPageDown(addr uint64) uint64 {
	return addr &^ uint64(PageSize-1)
}
