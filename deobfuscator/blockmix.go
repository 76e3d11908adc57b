package deobfuscator

import "haruki-asset-deobfuscator/utils/obfcrypto"

const (
	mixGroupSize  = 0x80
	mixGroupWords = mixGroupSize / 4
)

// wordMixer returns the value XORed into word idx of a group, given the
// group kind (0..3) and the matching key block word kv.
type wordMixer func(kind, idx, kv uint32) uint32

// blockMix walks the section after the 0xA0 byte head shared by the
// FairGuard and Netease formats: whole 0x80 byte groups are mixed word by
// word, the remaining tail byte by byte.
type blockMix struct {
	table    [9]uint32
	tailKeys [4]uint32
	keyBlock []byte
	mix      wordMixer
}

func (m *blockMix) apply(section []byte) {
	groups := len(section) / mixGroupSize
	for g := 0; g < groups; g++ {
		group := section[g*mixGroupSize : (g+1)*mixGroupSize]
		kind := m.table[g%9] & 3
		for idx := 0; idx < mixGroupWords; idx++ {
			kv := obfcrypto.Word(m.keyBlock, idx)
			obfcrypto.XORWord(group, idx, m.mix(kind, uint32(idx), kv))
		}
	}
	tail := section[groups*mixGroupSize:]
	for i := range tail {
		tk := byte(m.table[m.tailKeys[i&3]%9] % 0xFF)
		tail[i] ^= byte(i) ^ m.keyBlock[i&0x7F] ^ tk
	}
}
