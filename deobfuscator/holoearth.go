package deobfuscator

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"
)

const (
	holoearthPassword   = "a4886faf24895680f4af42ab802b3dc44d70e3aaccb26b9098d65fc8ff8d9184"
	holoearthIterations = 100
	holoearthKeySize    = 16
)

// holoearth encrypts the whole file with AES-128 in a counter mode whose
// key is derived from the file name.
type holoearth struct {
	schemeInfo
}

func newHoloearth() *holoearth {
	return &holoearth{schemeInfo{name: "holoearth", priority: DefaultPriority}}
}

// holoearthKey is PBKDF1-SHA1 over the password, salted with the file
// name without its extension.
func holoearthKey(name string) []byte {
	h := sha1.Sum(append([]byte(holoearthPassword), utils.FileNameWithoutExtension(name)...))
	for i := 1; i < holoearthIterations; i++ {
		h = sha1.Sum(h[:])
	}
	return h[:holoearthKeySize]
}

// holoearthXOR applies the keystream: block n (from 1) is the encryption
// of n as a little-endian int32 in an otherwise zero block.
func holoearthXOR(block cipher.Block, data []byte) {
	var counter, ks [aes.BlockSize]byte
	for off := 0; off < len(data); off += aes.BlockSize {
		binary.LittleEndian.PutUint32(counter[:], uint32(off/aes.BlockSize+1))
		block.Encrypt(ks[:], counter[:])
		end := min(off+aes.BlockSize, len(data))
		for i := off; i < end; i++ {
			data[i] ^= ks[i-off]
		}
	}
}

func holoearthCipher(name string) cipher.Block {
	block, err := aes.NewCipher(holoearthKey(name))
	if err != nil {
		// A 16 byte key is always accepted.
		panic(err)
	}
	return block
}

func (s *holoearth) Probe(src io.ReadSeeker, name string) bool {
	defer restoreStart(src)
	head, err := utils.NewBinaryStream(src, "little").ReadUpTo(len(bundle.Signature))
	if err != nil || len(head) != len(bundle.Signature) {
		return false
	}
	holoearthXOR(holoearthCipher(name), head)
	return string(head) == bundle.Signature
}

func (s *holoearth) Decode(src io.ReadSeeker, name string) (*Output, error) {
	data, err := stream.ReadAll(src)
	if err != nil {
		return nil, malformed(s.name, "read input: %w", err)
	}
	holoearthXOR(holoearthCipher(name), data)
	return bytesOutput(data), nil
}
