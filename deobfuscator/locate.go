package deobfuscator

import (
	"bytes"
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"
)

// candidateBlock is the leading part of the first storage block together
// with its absolute offset in the source.
type candidateBlock struct {
	data   []byte
	offset int64
}

// patchedOutput overlays the decrypted candidate on the untouched source.
func (c *candidateBlock) patchedOutput(src io.ReadSeeker) (*Output, error) {
	v, err := stream.NewPatched(src, stream.Patch{Offset: c.offset, Data: c.data})
	if err != nil {
		return nil, err
	}
	return streamOutput(v), nil
}

// locateRawFirstBlock finds the first storage block without going through
// the full container parser. Only uncompressed or LZ4HC blocks info is
// accepted. It returns nil when src does not have that shape.
func locateRawFirstBlock(src io.ReadSeeker, limit uint32, honorPadding bool) (*candidateBlock, error) {
	bs := utils.NewBinaryStream(src, "big")
	sig, err := bundle.ReadSignature(bs)
	if err != nil || sig != bundle.Signature {
		return nil, err
	}
	var h bundle.Header
	if err := bundle.ReadHeader(bs, &h); err != nil {
		return nil, err
	}
	if h.Version >= 7 {
		if err := bs.AlignStream(16); err != nil {
			return nil, err
		}
	}
	ct := h.Flags.Compression()
	if ct != bundle.CompressionNone && ct != bundle.CompressionLZ4HC {
		return nil, nil
	}
	if int64(h.CompressedBlocksInfoSize) > bs.Remaining() {
		return nil, bundle.ErrBlocksInfoSize
	}
	info, err := bs.ReadBytes(int(h.CompressedBlocksInfoSize))
	if err != nil {
		return nil, err
	}
	if ct == bundle.CompressionLZ4HC {
		if int64(h.UncompressedBlocksInfoSize) > int64(len(info))*255+16 {
			return nil, bundle.ErrBlocksInfoSize
		}
		if info, err = bundle.DecompressLZ4(info, int(h.UncompressedBlocksInfoSize)); err != nil {
			return nil, err
		}
	}

	ibs := utils.NewBinaryStream(bytes.NewReader(info), "big")
	if err := ibs.Skip(16); err != nil {
		return nil, err
	}
	if _, err := ibs.ReadInt32(); err != nil {
		return nil, fmt.Errorf("read block count: %w", err)
	}
	if _, err := ibs.ReadUInt32(); err != nil {
		return nil, err
	}
	compressed, err := ibs.ReadUInt32()
	if err != nil {
		return nil, fmt.Errorf("read first block size: %w", err)
	}

	if honorPadding && h.Flags&bundle.BlockInfoNeedPaddingAtStart != 0 {
		if err := bs.AlignStream(16); err != nil {
			return nil, err
		}
	}
	return readCandidate(bs, compressed, limit)
}

// locateFirstBlock parses the container normally and takes the start of
// its first storage block.
func locateFirstBlock(src io.ReadSeeker, limit uint32) (*candidateBlock, error) {
	bs := utils.NewBinaryStream(src, "big")
	f := &bundle.File{}
	sig, err := bundle.ReadSignature(bs)
	if err != nil || sig != bundle.Signature {
		return nil, err
	}
	f.Header.Signature = sig
	if err := bundle.ReadHeader(bs, &f.Header); err != nil {
		return nil, err
	}
	if err := bundle.ReadBlocksInfoAndDirectory(bs, f, nil); err != nil {
		return nil, err
	}
	if len(f.Blocks) == 0 {
		return nil, nil
	}
	return readCandidate(bs, f.Blocks[0].CompressedSize, limit)
}

func readCandidate(bs *utils.BinaryStream, size uint32, limit uint32) (*candidateBlock, error) {
	size = min(size, limit)
	offset := bs.Position()
	data, err := bs.ReadUpTo(int(size))
	if err != nil {
		return nil, err
	}
	return &candidateBlock{data: data, offset: offset}, nil
}
