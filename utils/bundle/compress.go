package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

type CompressionType uint32

const (
	CompressionNone CompressionType = iota
	CompressionLZMA
	CompressionLZ4
	CompressionLZ4HC
	CompressionLZHAM
)

var ErrUnsupportedCompression = errors.New("bundle: unsupported compression type")

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZ4HC:
		return "lz4hc"
	case CompressionLZHAM:
		return "lzham"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// Decompress expands data to exactly size bytes.
func Decompress(data []byte, ct CompressionType, size int) ([]byte, error) {
	switch ct {
	case CompressionNone:
		return data, nil
	case CompressionLZ4, CompressionLZ4HC:
		return DecompressLZ4(data, size)
	case CompressionLZMA:
		return decompressLZMA(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, ct)
	}
}

func DecompressLZ4(data []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrBlocksInfoSize
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("lz4: decoded %d bytes, want %d", n, size)
	}
	return out, nil
}

// decompressLZMA handles the raw Unity layout: five property bytes followed
// by the stream, with the decoded size known from the block table.
func decompressLZMA(data []byte, size int) ([]byte, error) {
	if len(data) < 5 {
		return nil, io.ErrUnexpectedEOF
	}
	header := make([]byte, 13)
	copy(header, data[:5])
	binary.LittleEndian.PutUint64(header[5:], uint64(size))
	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(data[5:])))
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompressLZ4 returns data as a raw LZ4 block. Incompressible input is
// encoded as a single literal run so the result always decodes.
func CompressLZ4(data []byte) ([]byte, error) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return literalLZ4Block(data), nil
	}
	return dst[:n], nil
}

func literalLZ4Block(data []byte) []byte {
	var out []byte
	n := len(data)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}
	return append(out, data...)
}
