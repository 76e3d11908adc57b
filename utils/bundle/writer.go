package bundle

import (
	"fmt"

	"haruki-asset-deobfuscator/utils"
)

// EncodeBlocksInfo serializes the blocks-info table (zero hash).
func EncodeBlocksInfo(blocks []StorageBlock, nodes []Node) []byte {
	bw := utils.NewBinaryWriter("big")
	bw.WriteBytes(make([]byte, 16))
	bw.WriteInt32(int32(len(blocks)))
	for _, b := range blocks {
		bw.WriteUInt32(b.UncompressedSize)
		bw.WriteUInt32(b.CompressedSize)
		bw.WriteUInt16(b.Flags)
	}
	bw.WriteInt32(int32(len(nodes)))
	for _, n := range nodes {
		bw.WriteInt64(n.Offset)
		bw.WriteInt64(n.Size)
		bw.WriteUInt32(n.Flags)
		bw.WriteStringToNull(n.Path)
	}
	return bw.Bytes()
}

// WriteHeader writes signature and header fields, then the version 7
// alignment.
func WriteHeader(bw *utils.BinaryWriter, h Header) {
	sig := h.Signature
	if sig == "" {
		sig = Signature
	}
	bw.WriteStringToNull(sig)
	bw.WriteUInt32(h.Version)
	bw.WriteStringToNull(h.UnityVersion)
	bw.WriteStringToNull(h.UnityRevision)
	bw.WriteInt64(h.Size)
	bw.WriteUInt32(h.CompressedBlocksInfoSize)
	bw.WriteUInt32(h.UncompressedBlocksInfoSize)
	bw.WriteUInt32(uint32(h.Flags))
	if h.Version >= 7 {
		bw.AlignStream(16)
	}
}

// Assemble builds a complete image with the blocks info stored in front of
// data. The blocks-info sizes and the total size in h are filled in; the
// blocks info is LZ4 compressed when h.Flags asks for LZ4 or LZ4HC.
func Assemble(h Header, blocks []StorageBlock, nodes []Node, data []byte) ([]byte, error) {
	info := EncodeBlocksInfo(blocks, nodes)
	h.UncompressedBlocksInfoSize = uint32(len(info))
	switch ct := h.Flags.Compression(); ct {
	case CompressionNone:
	case CompressionLZ4, CompressionLZ4HC:
		packed, err := CompressLZ4(info)
		if err != nil {
			return nil, err
		}
		info = packed
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, ct)
	}
	h.CompressedBlocksInfoSize = uint32(len(info))
	h.Flags &^= BlocksInfoAtTheEnd

	probe := utils.NewBinaryWriter("big")
	WriteHeader(probe, h)
	headerLen := probe.Len()
	padLen := 0
	if h.Flags&BlockInfoNeedPaddingAtStart != 0 {
		padLen = (16 - (headerLen+len(info))%16) % 16
	}
	h.Size = int64(headerLen + len(info) + padLen + len(data))

	bw := utils.NewBinaryWriter("big")
	WriteHeader(bw, h)
	bw.WriteBytes(info)
	bw.WriteBytes(make([]byte, padLen))
	bw.WriteBytes(data)
	return bw.Bytes(), nil
}

// StoredBlocks describes data as uncompressed storage blocks of at most
// blockSize bytes.
func StoredBlocks(data []byte, blockSize int) []StorageBlock {
	var blocks []StorageBlock
	for off := 0; off < len(data); off += blockSize {
		n := min(blockSize, len(data)-off)
		blocks = append(blocks, StorageBlock{UncompressedSize: uint32(n), CompressedSize: uint32(n)})
	}
	return blocks
}
