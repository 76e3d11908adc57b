package deobfuscator

import (
	"bytes"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"
)

const sekaiMaskedSize = 128

var (
	sekaiPlainPrefix  = []byte{0x20, 0x00, 0x00, 0x00}
	sekaiMaskedPrefix = []byte{0x10, 0x00, 0x00, 0x00}
	sekaiMask         = bytes.Repeat([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00}, 16)
)

// sekai prefixes the container with a 4 byte tag. Tag 0x10 additionally
// masks the first 128 bytes.
type sekai struct {
	schemeInfo
}

func newSekai() *sekai {
	return &sekai{schemeInfo{name: "sekai", priority: DefaultPriority}}
}

func (s *sekai) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	head, err := utils.NewBinaryStream(src, "big").ReadUpTo(len(sekaiPlainPrefix) + len(bundle.Signature))
	if err != nil || len(head) < len(sekaiPlainPrefix)+len(bundle.Signature) {
		return false
	}
	prefix, sig := head[:4], head[4:]
	switch {
	case bytes.Equal(prefix, sekaiPlainPrefix):
		return string(sig) == bundle.Signature
	case bytes.Equal(prefix, sekaiMaskedPrefix):
		unmask(sig)
		return string(sig) == bundle.Signature
	}
	return false
}

func unmask(data []byte) {
	for i := range data {
		data[i] ^= sekaiMask[i]
	}
}

func (s *sekai) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "big")
	prefix, err := bs.ReadBytes(len(sekaiPlainPrefix))
	if err != nil {
		return nil, malformed(s.name, "read prefix: %w", err)
	}
	body, err := stream.NewOffset(src, int64(len(prefix)))
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if !bytes.Equal(prefix, sekaiMaskedPrefix) || body.Size() < sekaiMaskedSize {
		return streamOutput(body), nil
	}
	header, err := bs.ReadBytes(sekaiMaskedSize)
	if err != nil {
		return nil, malformed(s.name, "read masked header: %w", err)
	}
	unmask(header)
	v, err := stream.NewPatched(body, stream.Patch{Offset: 0, Data: header})
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return streamOutput(v), nil
}

// Obfuscate applies the sekai layer to a canonical container. Inputs too
// short to be masked get the plain prefix.
func Obfuscate(data []byte) []byte {
	if len(data) < sekaiMaskedSize {
		return append(append([]byte(nil), sekaiPlainPrefix...), data...)
	}
	out := make([]byte, 0, len(data)+len(sekaiMaskedPrefix))
	out = append(out, sekaiMaskedPrefix...)
	out = append(out, data...)
	unmask(out[len(sekaiMaskedPrefix) : len(sekaiMaskedPrefix)+sekaiMaskedSize])
	return out
}
