package obfcrypto

import (
	"fmt"
	"math/bits"
)

// InvariantViolation is raised with panic when a primitive is called with
// arguments no caller can legitimately produce.
type InvariantViolation struct {
	Op  string
	Msg string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("obfcrypto: %s: %s", e.Op, e.Msg)
}

// Transform post-processes each keystream byte before it is XORed in.
type Transform func(kb byte) byte

func Identity(kb byte) byte {
	return kb
}

func FairGuardTransform(kb byte) byte {
	return bits.RotateLeft8(kb, 1) - 0x61
}

// StreamCipher is an RC4 engine with a pluggable keystream transform.
// With Identity it is plain RC4.
type StreamCipher struct {
	Transform Transform
}

var (
	PlainRC4     = StreamCipher{Transform: Identity}
	FairGuardRC4 = StreamCipher{Transform: FairGuardTransform}
)

func (c StreamCipher) schedule(key []byte) [256]byte {
	var kt [256]byte
	for i := range kt {
		kt[i] = byte(i)
	}
	var swap byte
	for i := 0; i < 256; i++ {
		swap += kt[i] + key[i%len(key)]
		kt[i], kt[swap] = kt[swap], kt[i]
	}
	return kt
}

// XORKeyStream decrypts (or encrypts) data in place.
func (c StreamCipher) XORKeyStream(data []byte, key []byte) {
	if len(data) == 0 {
		return
	}
	if len(key) == 0 {
		panic(&InvariantViolation{Op: "rc4", Msg: "empty key for non-empty buffer"})
	}
	transform := c.Transform
	if transform == nil {
		transform = Identity
	}
	kt := c.schedule(key)
	var j, k byte
	for i := range data {
		j++
		a := kt[j]
		k += a
		kt[j] = kt[k]
		kt[k] = a
		data[i] ^= transform(kt[a+kt[j]])
	}
}

// Keystream returns the first n transformed keystream bytes.
func (c StreamCipher) Keystream(n int, key []byte) []byte {
	buf := make([]byte, n)
	c.XORKeyStream(buf, key)
	return buf
}
