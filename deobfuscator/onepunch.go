package deobfuscator

import (
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
)

var onePunchBlocksInfoKey = []byte{0x1E, 0x1E, 0x01, 0x01, 0xFC}

// onePunch keeps the signature but replaces the rest of the header with
// six bit-permuted words, and XORs the blocks info with a short key.
type onePunch struct {
	schemeInfo
}

func newOnePunch() *onePunch {
	return &onePunch{schemeInfo{name: "onepunch", priority: DefaultPriority, structured: true}}
}

func (s *onePunch) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "big")
	sig, err := bundle.ReadSignature(bs)
	if err != nil || sig != bundle.Signature {
		return false
	}
	first, err := bs.ReadUInt32()
	if err != nil {
		return false
	}
	if first == 0 {
		second, err := bs.ReadUInt32()
		if err != nil || second == 0 {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		v, err := bs.ReadUInt32()
		if err != nil || v == 0 {
			return false
		}
	}
	return true
}

func decodeOnePunchField(v uint32) uint32 {
	return (v>>5)&0x00FFE000 |
		(v>>29)&0x00000007 |
		(v<<14)&0xFF000000 |
		(v<<3)&0x00001FF8
}

// onePunchHeader rebuilds the header from the six stored words, in file
// order: compressed, size, unused, flags, size2, uncompressed.
func onePunchHeader(sig string, w [6]uint32) bundle.Header {
	compressed, size, flags, size2, uncompressed := w[0], uint64(w[1]), w[3], uint64(w[4]), w[5]
	total := size2&0xFF | (size2&0xFFFFFF00)<<32 | size<<8
	total ^= uint64(flags)<<32 | uint64(compressed)
	return bundle.Header{
		Signature:                  sig,
		Version:                    7,
		UnityVersion:               "2019.4.40f1",
		UnityRevision:              "5.x.x",
		Size:                       int64(total),
		CompressedBlocksInfoSize:   decodeOnePunchField(compressed) ^ flags,
		UncompressedBlocksInfoSize: decodeOnePunchField(uncompressed) ^ compressed,
		Flags:                      bundle.ArchiveFlags(decodeOnePunchField(flags) ^ 0x70020017),
	}
}

func xorOnePunchBlocksInfo(data []byte) {
	for i := range data {
		data[i] ^= onePunchBlocksInfoKey[i%len(onePunchBlocksInfoKey)]
	}
}

func (s *onePunch) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "big")
	sig, err := bundle.ReadSignature(bs)
	if err != nil {
		return nil, malformed(s.name, "read signature: %w", err)
	}
	var words [6]uint32
	for i := range words {
		if words[i], err = bs.ReadUInt32(); err != nil {
			return nil, malformed(s.name, "read header word %d: %w", i, err)
		}
	}
	f := &bundle.File{Header: onePunchHeader(sig, words)}
	if err := bundle.ReadBlocksInfoAndDirectory(bs, f, xorOnePunchBlocksInfo); err != nil {
		return nil, malformed(s.name, "read blocks info: %w", err)
	}
	return readStructured(s.name, f, src)
}
