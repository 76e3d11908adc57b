package obfcrypto

import "encoding/binary"

// Word returns the i-th little-endian 32-bit word of b.
func Word(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*4:])
}

func PutWord(b []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(b[i*4:], v)
}

func XORWord(b []byte, i int, v uint32) {
	PutWord(b, i, Word(b, i)^v)
}

func Words(b []byte, n int) []uint32 {
	ws := make([]uint32, n)
	for i := range ws {
		ws[i] = Word(b, i)
	}
	return ws
}

func WordsToBytes(words ...uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func LE32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func XORBytes(b []byte, v byte) {
	for i := range b {
		b[i] ^= v
	}
}

func Contains(b []byte, v byte) bool {
	for _, c := range b {
		if c == v {
			return true
		}
	}
	return false
}
