package deobfuscator

import (
	"io"
	"strings"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"
)

const (
	miscCnHeaderFlag bundle.ArchiveFlags = 0x400
	miscCnBlockFlag                      = 0x80
	miscCnNodeFlag                       = 8
)

// miscCn scrambles the size fields of the header, the storage blocks and
// the directory nodes. The result is returned as a parsed container.
type miscCn struct {
	schemeInfo
}

func newMiscCn() *miscCn {
	return &miscCn{schemeInfo{name: "misccn", priority: 11, structured: true}}
}

func (s *miscCn) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "big")
	sig, err := bundle.ReadSignature(bs)
	if err != nil || !strings.HasSuffix(sig, bundle.Signature) {
		return false
	}
	var h bundle.Header
	if err := bundle.ReadHeader(bs, &h); err != nil {
		return false
	}
	return h.Flags&miscCnHeaderFlag != 0
}

func repairMiscCnHeader(h *bundle.Header) {
	h.Size = (h.Size - 0x10CE1029) ^ 0x37F00D0F
	h.CompressedBlocksInfoSize -= 0x08670814
	h.UncompressedBlocksInfoSize = ((h.UncompressedBlocksInfoSize - 0x0DFC0343) ^ 0x166C2D5C) ^ h.CompressedBlocksInfoSize
	h.CompressedBlocksInfoSize ^= 0x37F00D0F
}

func repairMiscCnDirectory(f *bundle.File) {
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if b.Flags&miscCnBlockFlag != 0 {
			b.CompressedSize ^= b.UncompressedSize
			b.CompressedSize ^= 0x166C2D5C
			b.UncompressedSize ^= 0x37F00D0F
		}
	}
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Flags&miscCnNodeFlag != 0 {
			n.Offset ^= n.Size
			n.Offset ^= 0x3A6426D4
			n.Size ^= 0x1BF80687
		}
	}
}

func (s *miscCn) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	off, err := findFakeHeaderOffset(src)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if off < 0 {
		off = 0
	}
	view, err := stream.NewOffset(src, off)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	bs := utils.NewBinaryStream(view, "big")
	f := &bundle.File{}
	if f.Header.Signature, err = bundle.ReadSignature(bs); err != nil {
		return nil, malformed(s.name, "read signature: %w", err)
	}
	if err := bundle.ReadHeader(bs, &f.Header); err != nil {
		return nil, malformed(s.name, "read header: %w", err)
	}
	repairMiscCnHeader(&f.Header)
	if err := bundle.ReadBlocksInfoAndDirectory(bs, f, nil); err != nil {
		return nil, malformed(s.name, "read blocks info: %w", err)
	}
	repairMiscCnDirectory(f)
	return readStructured(s.name, f, view)
}

// readStructured decompresses the blocks of an already repaired container
// and slices out its entries.
func readStructured(scheme string, f *bundle.File, r io.ReadSeeker) (*Output, error) {
	blocks, err := f.ReadBlocks(r, nil)
	if err != nil {
		return nil, malformed(scheme, "read blocks: %w", err)
	}
	if err := f.ReadFiles(blocks); err != nil {
		return nil, malformed(scheme, "read entries: %w", err)
	}
	return &Output{Bundle: f, Size: f.Header.Size}, nil
}
