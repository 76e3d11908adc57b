package deobfuscator

import (
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils/obfcrypto"
)

const (
	fairGuardBlockLimit = 0x500
	fairGuardMarker     = 0xB7
)

// fairGuard encrypts the head of the first storage block. The blocks info
// itself is left readable.
type fairGuard struct {
	schemeInfo
}

func newFairGuard() *fairGuard {
	return &fairGuard{schemeInfo{name: "fairguard", priority: DefaultPriority}}
}

func (s *fairGuard) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	c, err := locateRawFirstBlock(src, fairGuardBlockLimit, true)
	if err != nil || c == nil {
		return false
	}
	return len(c.data) >= 31 && obfcrypto.Contains(c.data[:4], fairGuardMarker)
}

func (s *fairGuard) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	c, err := locateRawFirstBlock(src, fairGuardBlockLimit, true)
	if err != nil {
		return nil, malformed(s.name, "locate first block: %w", err)
	}
	if c == nil {
		return nil, malformed(s.name, "no first block")
	}
	if err := decryptFairGuard(c.data); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return c.patchedOutput(src)
}

// decryptFairGuard reverses the FairGuard block cipher in place.
func decryptFairGuard(enc []byte) error {
	if len(enc) < 32 {
		return fmt.Errorf("candidate of %d bytes is too short", len(enc))
	}
	l := uint32(len(enc))
	if l == 0x9F {
		return fmt.Errorf("candidate length 0x9f has no key block")
	}
	w := obfcrypto.Words(enc, 8)
	b := [4]uint32{
		w[2] ^ w[5] ^ 0x3F72EAF3,
		w[3] ^ w[7] ^ l,
		w[1] ^ w[4] ^ l ^ 0x753BDCAA,
		w[0] ^ w[6] ^ 0xE3D947D3,
	}
	k2 := obfcrypto.DeriveKeyWords(b[:]...)
	k2Word := obfcrypto.Word(k2, 0)
	k1 := l ^ b[0] ^ b[1] ^ b[2] ^ b[3] ^ 0x5E8BC918

	head := obfcrypto.WordsToBytes(b[:]...)
	obfcrypto.FairGuardRC4.XORKeyStream(head, obfcrypto.LE32(k1))
	for i := range b {
		b[i] = obfcrypto.Word(head, i)
	}
	crc := obfcrypto.FairGuardChecksum(head)

	obfcrypto.XORBytes(enc[:32], fairGuardMarker)
	if l == 32 {
		return nil
	}
	if l < 0x9F {
		obfcrypto.FairGuardRC4.XORKeyStream(enc[32:], k2)
		return nil
	}

	m := [4]uint32{
		(b[3] + 0x6F1A36D8) ^ (crc + 2),
		(b[2] - 0x7E9A2C76) ^ k2Word,
		b[0] ^ 0x840CF7D0 ^ (crc + 2),
		(b[1] + 0x48D0E844) ^ k2Word,
	}
	keyBlock := append([]byte(nil), enc[0x20:0xA0]...)
	obfcrypto.FairGuardRC4.XORKeyStream(keyBlock, obfcrypto.DeriveKeyWords(m[:]...))
	obfcrypto.FairGuardRC4.XORKeyStream(enc[0x20:0xA0], obfcrypto.WordsToBytes(m[:]...)[:12])

	mix := &blockMix{
		table:    [9]uint32{0x88558046, m[3], 0x5C7782C2, 0x38922E17, m[0], m[1], 0x44B38670, m[2], 0x6B07A514},
		tailKeys: m,
		keyBlock: keyBlock,
	}
	mix.mix = func(kind, idx, kv uint32) uint32 {
		switch kind {
		case 0:
			return kv ^ mix.table[m[idx&3]%9] ^ (mixGroupWords - idx)
		case 1:
			return kv ^ m[kv&3] ^ mix.table[kv%9]
		case 2:
			return kv ^ m[kv&3] ^ idx
		default:
			return kv ^ m[mix.table[idx%9]&3] ^ (mixGroupWords - idx)
		}
	}
	mix.apply(enc[0xA0:])
	return nil
}
