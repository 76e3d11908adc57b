package obfcrypto

import "encoding/binary"

const (
	keySeed   = 0xC1646153
	temp1Seed = 0x78DA0550
	temp2Seed = 0x2947E56B
)

type keyState struct {
	key, t1, t2 uint32
}

func newKeyState() keyState {
	return keyState{key: keySeed, t1: temp1Seed, t2: temp2Seed}
}

// carry is the low bit toggled by rungs 1, 2 and 7. The ladder tests the
// high and low parts of v separately; together that is just v != 0.
func carry(v uint32) uint32 {
	if v != 0 {
		return 1
	}
	return 0
}

// mix folds one byte into the state and returns which rung of the ladder
// fired (1..7).
func (s *keyState) mix(b byte) int {
	s.key = 0x21*s.key + uint32(b)
	switch {
	case s.key&0xF > 0xA:
		s.key = (s.key ^ carry(s.t2)) - 0x2CD86315
		return 1
	case byte(s.key)>>4 == 0xF:
		s.key = (s.key ^ carry(s.t2)) + (s.t1 ^ 0xAB4A010B)
		return 2
	case (s.key>>8)&0xF <= 1:
		s.t1 = s.key ^ ((s.t2 >> 3) - 0x55EEAB7B)
		return 3
	case s.t1+0x567A > 0xAB5489E3:
		s.t1 = s.key ^ ((s.t1 & 0xFFFF0000) >> 16)
		return 4
	case s.t1^0x738766FA <= s.t2:
		s.t1 = s.t2 ^ (s.t1 >> 8)
		return 5
	case s.t1 == 0x68F53AA6:
		if (s.key+s.t2)^0x68F53AA6 > 0x594AF86E {
			s.t1 = 0x602B1178
		} else {
			s.t2 -= 0x760A1649
		}
		return 6
	default:
		if s.key <= 0x865703AF {
			s.t1 = s.key ^ (s.t1 - 0x12B9DD92)
		} else {
			s.t1 = (s.key - 0x564389D7) ^ s.t2
		}
		s.key ^= carry(s.t1)
		return 7
	}
}

// DeriveKey folds data through the key ladder and returns the final key
// as 4 little-endian bytes.
func DeriveKey(data []byte) []byte {
	s := newKeyState()
	for _, b := range data {
		s.mix(b)
	}
	return binary.LittleEndian.AppendUint32(nil, s.key)
}

func DeriveKeyWords(words ...uint32) []byte {
	return DeriveKey(WordsToBytes(words...))
}

func DeriveKeyUint32(words ...uint32) uint32 {
	return binary.LittleEndian.Uint32(DeriveKeyWords(words...))
}
