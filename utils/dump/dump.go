// Package dump describes structured containers in JSON, msgpack or CBOR.
package dump

import (
	"encoding/hex"
	"fmt"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
	"github.com/iancoleman/orderedmap"
	"github.com/shamaton/msgpack/v2"
)

var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dump: CBOR encoder initialization failed: " + err.Error())
	}
}

type Block struct {
	UncompressedSize uint32 `json:"uncompressed_size" msgpack:"uncompressed_size"`
	CompressedSize   uint32 `json:"compressed_size" msgpack:"compressed_size"`
	Flags            uint16 `json:"flags" msgpack:"flags"`
	Compression      string `json:"compression" msgpack:"compression"`
}

type Node struct {
	Path   string `json:"path" msgpack:"path"`
	Offset int64  `json:"offset" msgpack:"offset"`
	Size   int64  `json:"size" msgpack:"size"`
	Flags  uint32 `json:"flags" msgpack:"flags"`
}

// Container is the metadata of a parsed container. Entry data is not
// included; it is exported as separate files.
type Container struct {
	Scheme                     string  `json:"scheme" msgpack:"scheme"`
	Signature                  string  `json:"signature" msgpack:"signature"`
	Version                    uint32  `json:"version" msgpack:"version"`
	UnityVersion               string  `json:"unity_version" msgpack:"unity_version"`
	UnityRevision              string  `json:"unity_revision" msgpack:"unity_revision"`
	Size                       int64   `json:"size" msgpack:"size"`
	CompressedBlocksInfoSize   uint32  `json:"compressed_blocks_info_size" msgpack:"compressed_blocks_info_size"`
	UncompressedBlocksInfoSize uint32  `json:"uncompressed_blocks_info_size" msgpack:"uncompressed_blocks_info_size"`
	Flags                      uint32  `json:"flags" msgpack:"flags"`
	Compression                string  `json:"compression" msgpack:"compression"`
	BlocksInfoHash             string  `json:"blocks_info_hash" msgpack:"blocks_info_hash"`
	DataOffset                 int64   `json:"data_offset" msgpack:"data_offset"`
	Blocks                     []Block `json:"blocks" msgpack:"blocks"`
	Nodes                      []Node  `json:"nodes" msgpack:"nodes"`
}

func Describe(scheme string, f *bundle.File) *Container {
	h := f.Header
	c := &Container{
		Scheme:                     scheme,
		Signature:                  h.Signature,
		Version:                    h.Version,
		UnityVersion:               h.UnityVersion,
		UnityRevision:              h.UnityRevision,
		Size:                       h.Size,
		CompressedBlocksInfoSize:   h.CompressedBlocksInfoSize,
		UncompressedBlocksInfoSize: h.UncompressedBlocksInfoSize,
		Flags:                      uint32(h.Flags),
		Compression:                h.Flags.Compression().String(),
		BlocksInfoHash:             hex.EncodeToString(f.BlocksInfoHash[:]),
		DataOffset:                 f.DataOffset,
		Blocks:                     make([]Block, 0, len(f.Blocks)),
		Nodes:                      make([]Node, 0, len(f.Nodes)),
	}
	for _, b := range f.Blocks {
		c.Blocks = append(c.Blocks, Block{
			UncompressedSize: b.UncompressedSize,
			CompressedSize:   b.CompressedSize,
			Flags:            b.Flags,
			Compression:      b.Compression().String(),
		})
	}
	for _, n := range f.Nodes {
		c.Nodes = append(c.Nodes, Node{Path: n.Path, Offset: n.Offset, Size: n.Size, Flags: n.Flags})
	}
	return c
}

// Ordered returns the container as a JSON object whose keys follow the
// on-disk field order.
func (c *Container) Ordered() *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.SetEscapeHTML(false)
	om.Set("scheme", c.Scheme)

	header := orderedmap.New()
	header.SetEscapeHTML(false)
	header.Set("signature", c.Signature)
	header.Set("version", c.Version)
	header.Set("unity_version", c.UnityVersion)
	header.Set("unity_revision", c.UnityRevision)
	header.Set("size", c.Size)
	header.Set("compressed_blocks_info_size", c.CompressedBlocksInfoSize)
	header.Set("uncompressed_blocks_info_size", c.UncompressedBlocksInfoSize)
	header.Set("flags", c.Flags)
	header.Set("compression", c.Compression)
	om.Set("header", header)

	om.Set("blocks_info_hash", c.BlocksInfoHash)
	om.Set("data_offset", c.DataOffset)
	om.Set("blocks", c.Blocks)
	om.Set("nodes", c.Nodes)
	return om
}

func Marshal(c *Container, format utils.HarukiDumpFormat) ([]byte, error) {
	switch format {
	case utils.HarukiDumpFormatJSON, "":
		return sonic.ConfigStd.MarshalIndent(c.Ordered(), "", "  ")
	case utils.HarukiDumpFormatMsgpack:
		return msgpack.Marshal(c)
	case utils.HarukiDumpFormatCBOR:
		return cborMode.Marshal(c)
	default:
		return nil, fmt.Errorf("unsupported dump format: %s", format)
	}
}
