// Package bundle reads and writes UnityFS container images: the header,
// the blocks-info table with its storage blocks and directory nodes, and
// the data blocks themselves.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils"
)

const Signature = "UnityFS"

// Upper bounds applied before allocating buffers sized by header fields.
const (
	maxBlocksInfoSize = 1 << 28
	maxBlockSize      = 1 << 30
)

var (
	ErrNotUnityFS      = errors.New("bundle: not a UnityFS container")
	ErrBlocksInfoSize  = errors.New("bundle: blocks info size out of range")
	ErrNodeOutOfBounds = errors.New("bundle: directory node outside block data")
)

type ArchiveFlags uint32

const (
	CompressionTypeMask            ArchiveFlags = 0x3F
	BlocksAndDirectoryInfoCombined ArchiveFlags = 0x40
	BlocksInfoAtTheEnd             ArchiveFlags = 0x80
	OldWebPluginCompatibility      ArchiveFlags = 0x100
	BlockInfoNeedPaddingAtStart    ArchiveFlags = 0x200
)

func (f ArchiveFlags) Compression() CompressionType {
	return CompressionType(f & CompressionTypeMask)
}

type Header struct {
	Signature                  string
	Version                    uint32
	UnityVersion               string
	UnityRevision              string
	Size                       int64
	CompressedBlocksInfoSize   uint32
	UncompressedBlocksInfoSize uint32
	Flags                      ArchiveFlags
}

type StorageBlock struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16
}

func (b StorageBlock) Compression() CompressionType {
	return CompressionType(b.Flags) & CompressionType(CompressionTypeMask)
}

type Node struct {
	Offset int64
	Size   int64
	Flags  uint32
	Path   string
}

type Entry struct {
	Node
	Data []byte
}

type File struct {
	Header         Header
	BlocksInfoHash [16]byte
	Blocks         []StorageBlock
	Nodes          []Node
	// DataOffset is where the first storage block starts in the source.
	DataOffset int64
	Entries    []Entry
}

// Patch transforms a buffer in place before it is decompressed.
type Patch func(data []byte)

// BlockPatch transforms the i-th storage block in place before it is
// decompressed.
type BlockPatch func(index int, data []byte)

func ReadSignature(bs *utils.BinaryStream) (string, error) {
	return bs.ReadStringToNull()
}

// ReadHeader reads the fields that follow the signature.
func ReadHeader(bs *utils.BinaryStream, h *Header) error {
	var err error
	if h.Version, err = bs.ReadUInt32(); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if h.UnityVersion, err = bs.ReadStringToNull(); err != nil {
		return fmt.Errorf("read unity version: %w", err)
	}
	if h.UnityRevision, err = bs.ReadStringToNull(); err != nil {
		return fmt.Errorf("read unity revision: %w", err)
	}
	if h.Size, err = bs.ReadInt64(); err != nil {
		return fmt.Errorf("read size: %w", err)
	}
	if h.CompressedBlocksInfoSize, err = bs.ReadUInt32(); err != nil {
		return fmt.Errorf("read compressed blocks info size: %w", err)
	}
	if h.UncompressedBlocksInfoSize, err = bs.ReadUInt32(); err != nil {
		return fmt.Errorf("read uncompressed blocks info size: %w", err)
	}
	flags, err := bs.ReadUInt32()
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	h.Flags = ArchiveFlags(flags)
	return nil
}

// ReadBlocksInfoAndDirectory reads the blocks-info table described by
// f.Header, applying patch to the raw bytes before decompression. On return
// f.DataOffset points at the first storage block.
func ReadBlocksInfoAndDirectory(bs *utils.BinaryStream, f *File, patch Patch) error {
	h := &f.Header
	if h.Version >= 7 {
		if err := bs.AlignStream(16); err != nil {
			return err
		}
	}
	if int64(h.CompressedBlocksInfoSize) > bs.Length() {
		return ErrBlocksInfoSize
	}
	var raw []byte
	var err error
	if h.Flags&BlocksInfoAtTheEnd != 0 {
		raw, err = bs.ReadBytesAt(int(h.CompressedBlocksInfoSize), bs.Length()-int64(h.CompressedBlocksInfoSize))
	} else {
		raw, err = bs.ReadBytes(int(h.CompressedBlocksInfoSize))
	}
	if err != nil {
		return fmt.Errorf("read blocks info: %w", err)
	}
	if patch != nil {
		patch(raw)
	}
	info := raw
	if ct := h.Flags.Compression(); ct != CompressionNone {
		if h.UncompressedBlocksInfoSize > maxBlocksInfoSize {
			return ErrBlocksInfoSize
		}
		if info, err = Decompress(raw, ct, int(h.UncompressedBlocksInfoSize)); err != nil {
			return fmt.Errorf("decompress blocks info: %w", err)
		}
	}
	if err := parseBlocksInfo(info, f); err != nil {
		return err
	}
	if h.Flags&BlockInfoNeedPaddingAtStart != 0 {
		if err := bs.AlignStream(16); err != nil {
			return err
		}
	}
	f.DataOffset = bs.Position()
	return nil
}

func parseBlocksInfo(info []byte, f *File) error {
	bs := utils.NewBinaryStream(bytes.NewReader(info), "big")
	hash, err := bs.ReadBytes(16)
	if err != nil {
		return fmt.Errorf("read blocks info hash: %w", err)
	}
	copy(f.BlocksInfoHash[:], hash)
	count, err := bs.ReadInt32()
	if err != nil {
		return fmt.Errorf("read block count: %w", err)
	}
	// Each storage block takes 10 bytes.
	if count < 0 || int64(count)*10 > bs.Remaining() {
		return fmt.Errorf("bundle: invalid block count %d", count)
	}
	f.Blocks = make([]StorageBlock, count)
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if b.UncompressedSize, err = bs.ReadUInt32(); err != nil {
			return err
		}
		if b.CompressedSize, err = bs.ReadUInt32(); err != nil {
			return err
		}
		if b.Flags, err = bs.ReadUInt16(); err != nil {
			return err
		}
	}
	nodeCount, err := bs.ReadInt32()
	if err != nil {
		return fmt.Errorf("read node count: %w", err)
	}
	// Each node takes at least 21 bytes.
	if nodeCount < 0 || int64(nodeCount)*21 > bs.Remaining() {
		return fmt.Errorf("bundle: invalid node count %d", nodeCount)
	}
	f.Nodes = make([]Node, nodeCount)
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Offset, err = bs.ReadInt64(); err != nil {
			return err
		}
		if n.Size, err = bs.ReadInt64(); err != nil {
			return err
		}
		if n.Flags, err = bs.ReadUInt32(); err != nil {
			return err
		}
		if n.Path, err = bs.ReadStringToNull(); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads the header and the blocks-info table of a UnityFS image.
func Parse(r io.ReadSeeker) (*File, error) {
	bs := utils.NewBinaryStream(r, "big")
	f := &File{}
	sig, err := ReadSignature(bs)
	if err != nil {
		return nil, err
	}
	if sig != Signature {
		return nil, ErrNotUnityFS
	}
	f.Header.Signature = sig
	if err := ReadHeader(bs, &f.Header); err != nil {
		return nil, err
	}
	if err := ReadBlocksInfoAndDirectory(bs, f, nil); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadBlocks reads every storage block starting at f.DataOffset and returns
// the concatenated decompressed block data.
func (f *File) ReadBlocks(r io.ReadSeeker, patch BlockPatch) ([]byte, error) {
	if _, err := r.Seek(f.DataOffset, io.SeekStart); err != nil {
		return nil, err
	}
	bs := utils.NewBinaryStream(r, "big")
	var out []byte
	for i, block := range f.Blocks {
		if block.CompressedSize > maxBlockSize || block.UncompressedSize > maxBlockSize {
			return nil, fmt.Errorf("bundle: block %d too large", i)
		}
		raw, err := bs.ReadBytes(int(block.CompressedSize))
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", i, err)
		}
		if patch != nil {
			patch(i, raw)
		}
		data, err := Decompress(raw, block.Compression(), int(block.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("decompress block %d: %w", i, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// ReadFiles slices the directory nodes out of decompressed block data into
// f.Entries.
func (f *File) ReadFiles(blocks []byte) error {
	f.Entries = make([]Entry, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.Offset < 0 || n.Size < 0 || n.Offset+n.Size > int64(len(blocks)) {
			return fmt.Errorf("%w: %s", ErrNodeOutOfBounds, n.Path)
		}
		data := make([]byte, n.Size)
		copy(data, blocks[n.Offset:n.Offset+n.Size])
		f.Entries = append(f.Entries, Entry{Node: n, Data: data})
	}
	return nil
}

// Load parses r and reads all entries.
func Load(r io.ReadSeeker) (*File, error) {
	f, err := Parse(r)
	if err != nil {
		return nil, err
	}
	blocks, err := f.ReadBlocks(r, nil)
	if err != nil {
		return nil, err
	}
	if err := f.ReadFiles(blocks); err != nil {
		return nil, err
	}
	return f, nil
}
