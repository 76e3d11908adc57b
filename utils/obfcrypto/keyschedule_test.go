package obfcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		want  string
	}{
		{"zero words", []uint32{0, 0, 0, 0}, "a788b1e7"},
		{"counting", []uint32{1, 2, 3, 4}, "09e3431f"},
		{"single word", []uint32{0xDEADBEEF}, "8dcc9e95"},
		{"five words", []uint32{0x12345678, 0x9ABCDEF0, 0x0F1E2D3C, 0x4B5A6978, 0x11223344}, "b55a194c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(DeriveKeyWords(tt.words...))
			if got != tt.want {
				t.Errorf("DeriveKeyWords() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveKeyEmptyIsSeed(t *testing.T) {
	want := []byte{0x53, 0x61, 0x64, 0xC1}
	if got := DeriveKey(nil); !bytes.Equal(got, want) {
		t.Errorf("DeriveKey(nil) = %x, want %x", got, want)
	}
}

func TestKeyStateRungs(t *testing.T) {
	tests := []struct {
		name string
		rung int
		in   keyState
		b    byte
		want keyState
	}{
		{"high low nibble", 1, keyState{key: 0x86734721, t1: 0x68F53AA6, t2: 0xBABCED20}, 0x1E, keyState{key: 0x2803C849, t1: 0x68F53AA6, t2: 0xBABCED20}},
		{"high low nibble zero carry", 1, keyState{key: 0x881ED162, t1: 0x68F53AA6, t2: 0x00000000}, 0x4C, keyState{key: 0x5F209AD9, t1: 0x68F53AA6, t2: 0x00000000}},
		{"high byte nibble", 2, keyState{key: 0x3488F876, t1: 0x68F53AA6, t2: 0x2587BE6B}, 0xC2, keyState{key: 0x896743A6, t1: 0x68F53AA6, t2: 0x2587BE6B}},
		{"high byte nibble small t2", 2, keyState{key: 0xC4AAEAC1, t1: 0x49952399, t2: 0x000000CB}, 0x14, keyState{key: 0x3CE76586, t1: 0x49952399, t2: 0x000000CB}},
		{"second nibble low", 3, keyState{key: 0x4EF8AA38, t1: 0x8F6D0558, t2: 0x00000025}, 0x5F, keyState{key: 0x2E0DF197, t1: 0x841CA51E, t2: 0x00000025}},
		{"t1 overflow", 4, keyState{key: 0x52E6B438, t1: 0xF2A74DE4, t2: 0x0128B2F3}, 0x18, keyState{key: 0xAFBD3B50, t1: 0xAFBDC9F7, t2: 0x0128B2F3}},
		{"t1 below t2", 5, keyState{key: 0x5D9DC9F8, t1: 0x9531985D, t2: 0xE8E25D94}, 0x6F, keyState{key: 0x11570967, t1: 0xE8776C0C, t2: 0xE8E25D94}},
		{"magic t1 reset", 6, keyState{key: 0x42594052, t1: 0x68F53AA6, t2: 0x00000000}, 0xF4, keyState{key: 0x8D814B86, t1: 0x602B1178, t2: 0x00000000}},
		{"magic t1 t2 step", 6, keyState{key: 0xAE658F33, t1: 0x68F53AA6, t2: 0x00000000}, 0x05, keyState{key: 0x7B177598, t1: 0x68F53AA6, t2: 0x89F5E9B7}},
		{"fallback high key", 7, keyState{key: 0x6B0D549B, t1: 0x11E20B8F, t2: 0x00F21DDB}, 0x1F, keyState{key: 0xCCB7E81B, t1: 0x76864398, t2: 0x00F21DDB}},
		{"fallback low key", 7, keyState{key: 0xF28C105D, t1: 0x39263059, t2: 0x00000025}, 0x0B, keyState{key: 0x440E1C09, t1: 0x62624ECF, t2: 0x00000025}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.in
			if rung := s.mix(tt.b); rung != tt.rung {
				t.Errorf("mix() rung = %d, want %d", rung, tt.rung)
			}
			if s != tt.want {
				t.Errorf("mix() state = %+v, want %+v", s, tt.want)
			}
		})
	}
}
