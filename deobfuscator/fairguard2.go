package deobfuscator

import (
	"io"

	"haruki-asset-deobfuscator/utils/obfcrypto"
)

const fairGuard2Marker = 0xA6

type fairGuard2 struct {
	schemeInfo
}

func newFairGuard2() *fairGuard2 {
	return &fairGuard2{schemeInfo{name: "fairguard2", priority: DefaultPriority}}
}

func (s *fairGuard2) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	c, err := locateFirstBlock(src, fairGuardBlockLimit)
	if err != nil || c == nil {
		return false
	}
	return len(c.data) >= 32 && obfcrypto.Contains(c.data[:4], fairGuard2Marker)
}

func (s *fairGuard2) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	c, err := locateFirstBlock(src, fairGuardBlockLimit)
	if err != nil {
		return nil, malformed(s.name, "locate first block: %w", err)
	}
	if c == nil || len(c.data) < 32 {
		return nil, malformed(s.name, "first block too short")
	}
	decryptFairGuard2(c.data)
	return c.patchedOutput(src)
}

// decryptFairGuard2 reverses the second FairGuard revision in place. enc
// must hold at least 32 bytes.
func decryptFairGuard2(enc []byte) {
	l := uint32(len(enc))
	obfcrypto.XORBytes(enc[:32], fairGuard2Marker)
	if l == 32 {
		return
	}

	w := obfcrypto.Words(enc, 8)
	b := [5]uint32{
		w[2] ^ w[6] ^ 0x2D06211F,
		w[3] ^ w[0] ^ l ^ 0xBE482704,
		w[1] ^ w[5] ^ l ^ 0x753BDCAA,
		w[0] ^ w[7] ^ 0x611C39EF,
		w[4] ^ w[7] ^ 0x6F2A7347 ^ 0x4736C714,
	}
	c1 := obfcrypto.FairGuardChecksum(obfcrypto.DeriveKeyWords(b[:]...)) + 2
	c1Key := obfcrypto.LE32(c1)
	k1 := w[1] ^ w[2] ^ w[6] ^ 0x1274CBEC ^ w[3] ^ w[5] ^ l ^ w[4] ^ 0x6F2A7347 ^ 0xD22BEFA6

	head := obfcrypto.WordsToBytes(b[:]...)
	obfcrypto.FairGuardRC4.XORKeyStream(head, obfcrypto.LE32(k1))
	for i := range b {
		b[i] = obfcrypto.Word(head, i)
	}
	c2 := obfcrypto.FairGuardChecksum(head) + 2
	s := obfcrypto.DeriveKeyUint32(c2)

	m21 := (b[3] - 0x1C26B82D) ^ s
	m22 := b[0] ^ 0x82C57E3C ^ s
	m23 := (b[1] + 0x6F2A7347) ^ c1
	m24 := (b[2] + 0x3F72EAF3) ^ c1

	if l-32 < 0x80 {
		obfcrypto.FairGuardRC4.XORKeyStream(enc[32:], c1Key)
		return
	}

	obfcrypto.FairGuardRC4.XORKeyStream(enc[0x20:0x80], c1Key)
	obfcrypto.XORBytes(enc[0x20:0x80], byte(c1^0x6E))

	segment := int((l - 0x80) / 4)
	roundKeys := [4]uint32{
		c1 ^ m21 ^ 0x6142756E,
		c1 ^ m24 ^ 0x62496E66,
		c1 ^ m22 ^ 0x1304B000,
		c1 ^ m23 ^ 0x6E8E30EC,
	}
	for i, rk := range roundKeys {
		cur := enc[0x80+i*segment : 0x80+(i+1)*segment]
		obfcrypto.FairGuardRC4.XORKeyStream(cur, c1Key)
		for j := 0; j < segment/4; j++ {
			obfcrypto.XORWord(cur, j, rk)
		}
	}
}
