package deobfuscator

import (
	"encoding/binary"
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils/obfcrypto"
)

const (
	neteaseBlockLimit  = 0x1000
	neteaseMinBlock    = 64
	neteaseVersionMark = 0xDDEE
	// Bit n set means the packed year 0x2017+n is a known release year.
	neteaseYearMask = 0x7E07
)

// netease encrypts the first storage block and additionally packs the
// Unity version year of the embedded serialized file.
type netease struct {
	schemeInfo
}

func newNetease() *netease {
	return &netease{schemeInfo{name: "netease", priority: DefaultPriority}}
}

func (s *netease) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	c, err := locateRawFirstBlock(src, neteaseBlockLimit, false)
	if err != nil || c == nil {
		return false
	}
	return hasNeteaseMagic(c.data) || neteaseVersionOffset(c.data) >= 0
}

func (s *netease) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	c, err := locateRawFirstBlock(src, neteaseBlockLimit, false)
	if err != nil {
		return nil, malformed(s.name, "locate first block: %w", err)
	}
	if c == nil {
		return nil, malformed(s.name, "no first block")
	}
	if err := decryptNetease(c.data); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return c.patchedOutput(src)
}

func hasNeteaseMagic(enc []byte) bool {
	if len(enc) < neteaseMinBlock {
		return false
	}
	switch obfcrypto.Word(enc, 0) {
	case 0xAEA6A6FB, 0xA6A6A6FB:
		return true
	}
	if obfcrypto.Word(enc, 1)&0xFFFFFF == 0xA6A6A7 {
		return true
	}
	for i := 0; i < 12; i++ {
		switch obfcrypto.Word(enc, i) {
		case 0xA6B3A6A6, 0xA6B7A6A6:
			return true
		}
	}
	return false
}

// neteaseVersionOffset returns the offset of the packed version year, or
// -1. Years below 0x2017 wrap into the shift count like the packer does.
func neteaseVersionOffset(enc []byte) int {
	if len(enc) < neteaseMinBlock {
		return -1
	}
	for i := 0; i < neteaseMinBlock && i+4 <= len(enc); i++ {
		if binary.LittleEndian.Uint16(enc[i:]) != neteaseVersionMark {
			continue
		}
		d := int(binary.LittleEndian.Uint16(enc[i+2:])) - 0x2017
		if d > 0xE {
			continue
		}
		if neteaseYearMask&(1<<(uint(d)&31)) == 0 {
			continue
		}
		return i
	}
	return -1
}

// repairNeteaseVersion unpacks the year at v back into ASCII ("21 20" ->
// "2021") and restores the separators of the version string.
func repairNeteaseVersion(enc []byte, v int) error {
	if v < 0 || v+10 > len(enc) {
		return fmt.Errorf("version marker at %d outside candidate", v)
	}
	year := binary.LittleEndian.Uint16(enc[v+2:])
	enc[v] = byte(year>>12)&0xF | 0x30
	enc[v+1] = byte(year>>8)&0xF | 0x30
	enc[v+2] = byte(year>>4)&0xF | 0x30
	enc[v+3] = byte(year)&0xF | 0x30
	enc[v+4] = '.'
	enc[v+6] = '.'
	if enc[v+8] == byte(v) {
		enc[v+8] = 'f'
	}
	if enc[v+9] == byte(v) {
		enc[v+9] = 'f'
	}
	return nil
}

func decryptNetease(enc []byte) error {
	v := neteaseVersionOffset(enc)
	if v < 0 {
		return fmt.Errorf("no version marker")
	}
	if err := repairNeteaseVersion(enc, v); err != nil {
		return err
	}
	o := 0x30
	if v > 0x1F {
		o += 0x10
	}
	return decryptNeteaseSection(enc, o)
}

func decryptNeteaseSection(enc []byte, o int) error {
	if len(enc) < o+0x20 {
		return fmt.Errorf("candidate of %d bytes is too short", len(enc))
	}
	l := uint32(len(enc) - o)
	c := obfcrypto.Words(enc[o:], 8)
	crc := obfcrypto.NeteaseChecksum(obfcrypto.WordsToBytes(c[3], c[1], c[4], l, c[2]))
	obfcrypto.XORBytes(enc[o:o+0x20], 0xA6)

	k := [4]uint32{
		crc ^ (c[5] + 0x1985),
		crc ^ (c[7] + 0x1981),
		crc ^ (l + 0x2013),
		crc ^ (c[6] + 0x2018),
	}
	data := enc[o+0x20:]
	if l <= 0x9F {
		obfcrypto.DefaultNeteaseCipher.XORKeyStream(data, obfcrypto.LE32(crc))
		return nil
	}

	keyBlock := append([]byte(nil), data[:0x80]...)
	obfcrypto.DefaultNeteaseCipher.XORKeyStream(data[:0x80], obfcrypto.LE32(crc))
	obfcrypto.DefaultNeteaseCipher.XORKeyStream(keyBlock, obfcrypto.LE32(k[2]))

	mix := &blockMix{
		table:    [9]uint32{0x571, k[3], 0x892, 0x750, k[0], k[1], 0x746, k[2], 0x568},
		tailKeys: k,
		keyBlock: keyBlock,
	}
	mix.mix = func(kind, idx, kv uint32) uint32 {
		switch kind {
		case 0:
			return mix.table[idx%9] ^ kv ^ (mixGroupWords - idx)
		case 1:
			return k[kv&3] ^ kv
		case 2:
			return k[kv&3] ^ kv ^ idx
		default:
			return k[mix.table[idx%9]&3] ^ kv ^ idx
		}
	}
	mix.apply(data[0x80:])
	return nil
}
