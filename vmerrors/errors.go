// Package vmerrors defines the error kinds surfaced by the emulation core.
// Every fallible operation in the run loop wraps one of these sentinels with
// the faulting address or program counter, so callers can classify failures
// with errors.Is while still seeing where the program broke.
package vmerrors

import (
	"errors"
	"fmt"
)

// Decode errors. Fatal: the program is broken at that address, a failed
// decode is never treated as a cache miss to retry.
var (
	ErrInvalidInstruction = errors.New("D1|InvalidInstruction: illegal or unsupported encoding")
)

// Memory errors.
var (
	ErrOutOfBound        = errors.New("M1|OutOfBound: access beyond the machine address space")
	ErrUnmappedAccess    = errors.New("M2|UnmappedAccess: access to an unmapped page")
	ErrMemWriteProtected = errors.New("M3|WriteProtected: store to a non-writable page")
	ErrMemExecProtected  = errors.New("M4|ExecProtected: instruction fetch from a non-executable page")
	ErrUnalignedPage     = errors.New("M5|UnalignedPage: mmap/munmap range not page aligned")
)

// Run errors.
var (
	ErrCyclesExceeded    = errors.New("R1|CyclesExceeded: cycle budget exhausted")
	ErrCyclesOverflow    = errors.New("R2|CyclesOverflow: cycle counter overflowed")
	ErrInvalidEcall      = errors.New("R3|InvalidEcall: no handler accepted the environment call")
	ErrUnexpectedEbreak  = errors.New("R4|UnexpectedEbreak: ebreak without a debugger handler")
	ErrInvalidElf        = errors.New("R5|InvalidElf: malformed or unsupported ELF image")
	ErrMachineNotRunning = errors.New("R6|MachineNotRunning: step on a machine that is not running")
)

// AtAddr wraps a memory error kind with the faulting guest address.
func AtAddr(kind error, addr uint64) error {
	return fmt.Errorf("%w (addr=%#x)", kind, addr)
}

// AtPC wraps a decode or execute error kind with the faulting program counter.
func AtPC(kind error, pc uint64) error {
	return fmt.Errorf("%w (pc=%#x)", kind, pc)
}
