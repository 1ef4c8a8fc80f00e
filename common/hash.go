// Package common holds the small shared types used across the emulator.
package common

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const HashLength = 32

// Hash identifies a program image by content.
type Hash [HashLength]byte

// Blake2Hash computes the BLAKE2b-256 hash of the given data.
func Blake2Hash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func IsNilHash(h Hash) bool {
	return h == Hash{}
}
