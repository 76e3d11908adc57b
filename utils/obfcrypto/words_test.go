package obfcrypto

import (
	"bytes"
	"testing"
)

func TestWordViews(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}
	if got := Word(b, 1); got != 0xDDCCBBAA {
		t.Errorf("Word(b, 1) = %#x, want 0xddccbbaa", got)
	}
	XORWord(b, 0, 0x04030201)
	if !bytes.Equal(b[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("XORWord did not clear word 0: %x", b[:4])
	}
	if got := WordsToBytes(0x11223344, 0x55667788); !bytes.Equal(got, []byte{0x44, 0x33, 0x22, 0x11, 0x88, 0x77, 0x66, 0x55}) {
		t.Errorf("WordsToBytes() = %x", got)
	}
	if !Contains([]byte{1, 0xA6, 3}, 0xA6) || Contains([]byte{1, 2}, 0xA6) {
		t.Error("Contains() mismatch")
	}
}
