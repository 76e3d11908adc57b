package deobfuscator

import (
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/stream"
)

var unityFSHeader = []byte("UnityFS\x00")

// singleByteXor XORs the whole file with one byte. It is tried last since
// its probe only looks at eight bytes.
type singleByteXor struct {
	schemeInfo
}

func newSingleByteXor() *singleByteXor {
	return &singleByteXor{schemeInfo{name: "singlebytexor", priority: 5}}
}

func (s *singleByteXor) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "big")
	if bs.Length() < int64(len(unityFSHeader)) {
		return false
	}
	head, err := bs.ReadBytes(len(unityFSHeader))
	if err != nil {
		return false
	}
	key := head[0] ^ unityFSHeader[0]
	if key == 0 {
		return false
	}
	for i := range head {
		if head[i]^unityFSHeader[i] != key {
			return false
		}
	}
	return true
}

func (s *singleByteXor) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	first, err := utils.NewBinaryStream(src, "big").ReadByte()
	if err != nil {
		return nil, malformed(s.name, "read first byte: %w", err)
	}
	v, err := stream.NewXOR(src, first^'U')
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return streamOutput(v), nil
}
