package memory

import (
	"encoding/binary"

	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// PageMemory is the production address space: a bounded range of 4 KiB pages
// with per-page protection, frames allocated lazily on first map.
type PageMemory struct {
	size   uint64
	frames [][]byte // nil entry = unmapped page
	flags  []uint8
}

func NewPageMemory(size uint64) *PageMemory {
	size = RoundPageUp(size)
	n := size / PageSize
	return &PageMemory{
		size:   size,
		frames: make([][]byte, n),
		flags:  make([]uint8, n),
	}
}

// NewDefaultPageMemory returns a PageMemory covering DefaultMemorySize bytes.
func NewDefaultPageMemory() *PageMemory {
	return NewPageMemory(DefaultMemorySize)
}

func (m *PageMemory) Size() uint64 { return m.size }

// PageFlags reports the protection bits of the page containing addr, and
// whether that page is mapped.
func (m *PageMemory) PageFlags(addr uint64) (uint8, bool) {
	if addr >= m.size {
		return 0, false
	}
	idx := addr >> PageSizeShift
	return m.flags[idx], m.frames[idx] != nil
}

func (m *PageMemory) Mmap(addr uint64, size uint64, prot uint8, source []byte, offset uint64) error {
	if addr%PageSize != 0 {
		return vmerrors.AtAddr(vmerrors.ErrUnalignedPage, addr)
	}
	size = RoundPageUp(size)
	if size == 0 {
		return nil
	}
	end := addr + size
	if end < addr || end > m.size {
		return vmerrors.AtAddr(vmerrors.ErrOutOfBound, addr)
	}
	for page := addr; page < end; page += PageSize {
		idx := page >> PageSizeShift
		if m.frames[idx] == nil {
			m.frames[idx] = make([]byte, PageSize)
		} else {
			clear(m.frames[idx])
		}
		m.flags[idx] = prot
	}
	if offset < uint64(len(source)) {
		src := source[offset:]
		if uint64(len(src)) > size {
			src = src[:size]
		}
		m.copyIn(addr, src)
	}
	return nil
}

func (m *PageMemory) Munmap(addr uint64, size uint64) error {
	if addr%PageSize != 0 {
		return vmerrors.AtAddr(vmerrors.ErrUnalignedPage, addr)
	}
	size = RoundPageUp(size)
	end := addr + size
	if end < addr || end > m.size {
		return vmerrors.AtAddr(vmerrors.ErrOutOfBound, addr)
	}
	for page := addr; page < end; page += PageSize {
		idx := page >> PageSizeShift
		m.frames[idx] = nil
		m.flags[idx] = 0
	}
	return nil
}

// copyIn writes data across page frames without protection checks. Only used
// while mapping, when the pages in range are known to exist.
func (m *PageMemory) copyIn(addr uint64, data []byte) {
	for len(data) > 0 {
		idx := addr >> PageSizeShift
		off := addr & (PageSize - 1)
		n := copy(m.frames[idx][off:], data)
		data = data[n:]
		addr += uint64(n)
	}
}

// check verifies that every page covering [addr, addr+size) is mapped and
// carries the wanted protection bit.
func (m *PageMemory) check(addr uint64, size uint64, prot uint8) error {
	end := addr + size
	if end < addr || end > m.size {
		return vmerrors.AtAddr(vmerrors.ErrOutOfBound, addr)
	}
	for page := RoundPageDown(addr); page < end; page += PageSize {
		idx := page >> PageSizeShift
		if m.frames[idx] == nil {
			return vmerrors.AtAddr(vmerrors.ErrUnmappedAccess, addr)
		}
		if m.flags[idx]&prot == 0 {
			switch prot {
			case ProtWrite:
				return vmerrors.AtAddr(vmerrors.ErrMemWriteProtected, addr)
			case ProtExec:
				return vmerrors.AtAddr(vmerrors.ErrMemExecProtected, addr)
			default:
				return vmerrors.AtAddr(vmerrors.ErrUnmappedAccess, addr)
			}
		}
	}
	return nil
}

func (m *PageMemory) loadInto(buf []byte, addr uint64, prot uint8) error {
	if err := m.check(addr, uint64(len(buf)), prot); err != nil {
		return err
	}
	for len(buf) > 0 {
		idx := addr >> PageSizeShift
		off := addr & (PageSize - 1)
		n := copy(buf, m.frames[idx][off:])
		buf = buf[n:]
		addr += uint64(n)
	}
	return nil
}

func (m *PageMemory) ExecuteLoad16(addr uint64) (uint16, error) {
	var buf [2]byte
	if err := m.loadInto(buf[:], addr, ProtExec); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (m *PageMemory) Load8(addr uint64) (uint64, error) {
	var buf [1]byte
	if err := m.loadInto(buf[:], addr, ProtRead); err != nil {
		return 0, err
	}
	return uint64(buf[0]), nil
}

func (m *PageMemory) Load16(addr uint64) (uint64, error) {
	var buf [2]byte
	if err := m.loadInto(buf[:], addr, ProtRead); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint16(buf[:])), nil
}

func (m *PageMemory) Load32(addr uint64) (uint64, error) {
	var buf [4]byte
	if err := m.loadInto(buf[:], addr, ProtRead); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(buf[:])), nil
}

func (m *PageMemory) Load64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.loadInto(buf[:], addr, ProtRead); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *PageMemory) LoadBytes(addr uint64, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if err := m.loadInto(buf, addr, ProtRead); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *PageMemory) StoreBytes(addr uint64, value []byte) error {
	if err := m.check(addr, uint64(len(value)), ProtWrite); err != nil {
		return err
	}
	m.copyIn(addr, value)
	return nil
}

func (m *PageMemory) StoreByte(addr uint64, size uint64, value byte) error {
	if err := m.check(addr, size, ProtWrite); err != nil {
		return err
	}
	for i := uint64(0); i < size; i++ {
		idx := (addr + i) >> PageSizeShift
		off := (addr + i) & (PageSize - 1)
		m.frames[idx][off] = value
	}
	return nil
}

func (m *PageMemory) Store8(addr uint64, value uint64) error {
	return m.StoreBytes(addr, []byte{byte(value)})
}

func (m *PageMemory) Store16(addr uint64, value uint64) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(value))
	return m.StoreBytes(addr, buf[:])
}

func (m *PageMemory) Store32(addr uint64, value uint64) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(value))
	return m.StoreBytes(addr, buf[:])
}

func (m *PageMemory) Store64(addr uint64, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.StoreBytes(addr, buf[:])
}
