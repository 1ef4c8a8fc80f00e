package memory

import (
	"encoding/binary"

	"github.com/juniuszhou/ckb-vm/vmerrors"
)

// FlatMemory is a single read-write-execute region with no page table. Used
// by tests and the debugger, where protection faults are not the subject.
type FlatMemory struct {
	data []byte
}

func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{data: make([]byte, RoundPageUp(size))}
}

func (m *FlatMemory) Size() uint64 { return uint64(len(m.data)) }

func (m *FlatMemory) bounds(addr uint64, size uint64) error {
	end := addr + size
	if end < addr || end > uint64(len(m.data)) {
		return vmerrors.AtAddr(vmerrors.ErrOutOfBound, addr)
	}
	return nil
}

func (m *FlatMemory) Mmap(addr uint64, size uint64, prot uint8, source []byte, offset uint64) error {
	if addr%PageSize != 0 {
		return vmerrors.AtAddr(vmerrors.ErrUnalignedPage, addr)
	}
	size = RoundPageUp(size)
	if err := m.bounds(addr, size); err != nil {
		return err
	}
	region := m.data[addr : addr+size]
	clear(region)
	if offset < uint64(len(source)) {
		copy(region, source[offset:])
	}
	return nil
}

func (m *FlatMemory) Munmap(addr uint64, size uint64) error {
	if addr%PageSize != 0 {
		return vmerrors.AtAddr(vmerrors.ErrUnalignedPage, addr)
	}
	size = RoundPageUp(size)
	if err := m.bounds(addr, size); err != nil {
		return err
	}
	clear(m.data[addr : addr+size])
	return nil
}

func (m *FlatMemory) ExecuteLoad16(addr uint64) (uint16, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

func (m *FlatMemory) Load8(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 1); err != nil {
		return 0, err
	}
	return uint64(m.data[addr]), nil
}

func (m *FlatMemory) Load16(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint16(m.data[addr:])), nil
}

func (m *FlatMemory) Load32(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 4); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(m.data[addr:])), nil
}

func (m *FlatMemory) Load64(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), nil
}

func (m *FlatMemory) LoadBytes(addr uint64, size uint64) ([]byte, error) {
	if err := m.bounds(addr, size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	copy(buf, m.data[addr:])
	return buf, nil
}

func (m *FlatMemory) StoreBytes(addr uint64, value []byte) error {
	if err := m.bounds(addr, uint64(len(value))); err != nil {
		return err
	}
	copy(m.data[addr:], value)
	return nil
}

func (m *FlatMemory) StoreByte(addr uint64, size uint64, value byte) error {
	if err := m.bounds(addr, size); err != nil {
		return err
	}
	for i := uint64(0); i < size; i++ {
		m.data[addr+i] = value
	}
	return nil
}

func (m *FlatMemory) Store8(addr uint64, value uint64) error {
	if err := m.bounds(addr, 1); err != nil {
		return err
	}
	m.data[addr] = byte(value)
	return nil
}

func (m *FlatMemory) Store16(addr uint64, value uint64) error {
	if err := m.bounds(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], uint16(value))
	return nil
}

func (m *FlatMemory) Store32(addr uint64, value uint64) error {
	if err := m.bounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], uint32(value))
	return nil
}

func (m *FlatMemory) Store64(addr uint64, value uint64) error {
	if err := m.bounds(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[addr:], value)
	return nil
}
