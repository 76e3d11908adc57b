package deobfuscator

import (
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"

	"github.com/pierrec/lz4/v4"
)

const (
	onePieceVersion = "2018.4.13f1"
	onePieceKeys    = 0x200
)

// onePiece hides the container behind a fake header and encrypts every
// storage block with one of 0x200 simple ciphers.
type onePiece struct {
	schemeInfo
}

func newOnePiece() *onePiece {
	return &onePiece{schemeInfo{name: "onepiece", priority: 100}}
}

func (s *onePiece) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "big")
	first, err := bs.ReadBytes(len(onePieceVersion))
	if err != nil || string(first) != onePieceVersion {
		return false
	}
	if err := bs.Skip(7); err != nil {
		return false
	}
	second, err := bs.ReadBytes(len(onePieceVersion))
	return err == nil && string(second) == onePieceVersion
}

// decryptOnePiece reverses block encryption with key in place. Key 0 is
// the identity, keys above 0x100 shuffle and XOR, the rest chain XOR.
func decryptOnePiece(enc []byte, key int) {
	switch {
	case key == 0 || len(enc) == 0:
		return
	case key > 0x100:
		kb := byte(key - 0x100)
		sq := int(kb) * int(kb)
		for j := range enc {
			x := (j + len(enc) + sq) % (j + 1)
			enc[j], enc[x] = enc[x], enc[j]
			enc[x] ^= kb
			enc[j] ^= kb
		}
	default:
		enc[0] ^= byte(key)
		for j := 1; j < len(enc); j++ {
			enc[j] ^= enc[j-1]
		}
	}
}

// findOnePieceKey tries every key on the first block and keeps the first
// one that yields a well formed LZ4 block of the expected size.
func findOnePieceKey(block []byte, uncompressed int) (int, error) {
	// An LZ4 block never expands by more than 255 times.
	if uncompressed < 0 || uncompressed > len(block)*255+16 {
		return -1, fmt.Errorf("first block sizes %d/%d cannot be lz4", len(block), uncompressed)
	}
	buf := make([]byte, len(block))
	out := make([]byte, uncompressed)
	for key := 0; key < onePieceKeys; key++ {
		copy(buf, block)
		decryptOnePiece(buf, key)
		// Strict: the block must decode to exactly its declared size, not
		// merely decode without error.
		if n, err := lz4.UncompressBlock(buf, out); err == nil && n == uncompressed {
			return key, nil
		}
	}
	return -1, fmt.Errorf("no block key found")
}

func (s *onePiece) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	off, err := findFakeHeaderOffset(src)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if off < 0 {
		return nil, malformed(s.name, "container signature not found")
	}
	view, err := stream.NewOffset(src, off)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	f, err := bundle.Parse(view)
	if err != nil {
		return nil, malformed(s.name, "parse container: %w", err)
	}
	if len(f.Blocks) == 0 {
		return nil, malformed(s.name, "container has no blocks")
	}
	data, err := stream.ReadAll(view)
	if err != nil {
		return nil, malformed(s.name, "read container: %w", err)
	}

	first := f.Blocks[0]
	start := f.DataOffset
	if start+int64(first.CompressedSize) > int64(len(data)) {
		return nil, malformed(s.name, "first block exceeds input")
	}
	key, err := findOnePieceKey(data[start:start+int64(first.CompressedSize)], int(first.UncompressedSize))
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	logger.Debugf("onepiece block key %#x", key)

	for i, block := range f.Blocks {
		end := start + int64(block.CompressedSize)
		if end > int64(len(data)) {
			return nil, malformed(s.name, "block %d exceeds input", i)
		}
		decryptOnePiece(data[start:end], key)
		start = end
	}
	return bytesOutput(data), nil
}

