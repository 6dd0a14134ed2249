// Package account decodes the on-chain account byte layout used by the
// exchange program: fixed framing padding wrapped around a little-endian
// word payload, and the event-queue ring buffer stored inside that payload.
package account

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Head and tail padding are fixed literal byte strings the exchange program
// writes around every account it owns, a cheap magic-number style guard
// against misinterpreting a foreign account's bytes.
var (
	headPadding = []byte("serum")
	tailPadding = []byte("padding")
)

// Words is an opaque little-endian word view over an account's inner
// payload. Callers cannot observe whether it was produced via a zero-copy
// cast or an owned copy.
type Words []uint64

// ErrTooShort is returned when the raw account is too small to contain both
// padding literals.
var ErrTooShort = fmt.Errorf("account bytes shorter than head+tail padding")

// ErrHeadMismatch / ErrTailMismatch mean the fixed framing bytes didn't
// compare equal to the expected literal.
var (
	ErrHeadMismatch = fmt.Errorf("account head padding mismatch")
	ErrTailMismatch = fmt.Errorf("account tail padding mismatch")
)

// StripPadding validates and removes the head/tail padding from a raw
// account, returning the inner region reinterpreted as 64-bit
// little-endian words.
func StripPadding(raw []byte) (Words, error) {
	if len(raw) < len(headPadding)+len(tailPadding) {
		return nil, ErrTooShort
	}
	head := raw[:len(headPadding)]
	if string(head) != string(headPadding) {
		return nil, ErrHeadMismatch
	}
	tail := raw[len(raw)-len(tailPadding):]
	if string(tail) != string(tailPadding) {
		return nil, ErrTailMismatch
	}
	inner := raw[len(headPadding) : len(raw)-len(tailPadding)]
	return wordsFromBytes(inner)
}

// wordsFromBytes reinterprets inner as a []uint64, zero-copy when the
// backing array is 8-byte aligned and the length is a clean multiple of 8,
// falling back to an owned copy when the backing array is misaligned. A
// length that isn't a multiple of 8 is rejected with an error before either
// path is tried.
func wordsFromBytes(inner []byte) (Words, error) {
	n := len(inner)
	if n%8 != 0 {
		return nil, fmt.Errorf("inner payload length %d not a multiple of 8", n)
	}
	if n == 0 {
		return Words{}, nil
	}
	if uintptr(unsafe.Pointer(&inner[0]))%8 == 0 {
		words := unsafe.Slice((*uint64)(unsafe.Pointer(&inner[0])), n/8)
		return Words(words), nil
	}
	words := make(Words, n/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(inner[i*8 : i*8+8])
	}
	return words, nil
}
