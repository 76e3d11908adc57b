package obfcrypto

import "math/bits"

// NeteaseCipher is a separate RC4 engine. Its key schedule only ever looks
// at the first four key bytes and reduces the swap index arithmetically
// rather than by byte truncation.
type NeteaseCipher struct {
	Add         byte
	RotateRight bool
}

var DefaultNeteaseCipher = NeteaseCipher{Add: 0x3A}

func (c NeteaseCipher) schedule(key []byte) [256]byte {
	var kt [256]byte
	for i := range kt {
		kt[i] = byte(i)
	}
	swap := 0
	for i := 0; i < 256; i++ {
		a := int(kt[i])
		b := a + swap
		k := int(key[i&3])
		d := k + b + 0xFF
		e := k + b
		if e >= 0 {
			d = e
		}
		swap = e - (d & 0xFFFF00)
		kt[i], kt[swap] = kt[swap], kt[i]
	}
	return kt
}

func (c NeteaseCipher) XORKeyStream(data []byte, key []byte) {
	if len(data) == 0 {
		return
	}
	if len(key) < 4 {
		panic(&InvariantViolation{Op: "netease rc4", Msg: "key shorter than 4 bytes"})
	}
	kt := c.schedule(key)
	var j, k byte
	for i := range data {
		j++
		a := kt[j]
		k += a
		kt[j] = kt[k]
		kt[k] = a
		kb := kt[a+kt[j]]
		if c.RotateRight {
			kb = bits.RotateLeft8(kb, -6)
		} else {
			kb = bits.RotateLeft8(kb, 6)
		}
		data[i] ^= kb + c.Add
	}
}
