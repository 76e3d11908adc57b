package deobfuscator

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"

	"github.com/cespare/xxhash/v2"
)

const (
	shengquSignature   = "SQGDNFS"
	shengquBlocksSeed  = "q2xXocd2OdC5cfHCUN1FHgXGK48IgsH0"
	shengquKeyWords    = 128
	shengquOutputSlack = 32
)

var shengquStaticKey, _ = hex.DecodeString("caf1fcf7fee8ecc6def8f4fceac6ced6ddc6d5dfc6caf8f5ed")

// shengqu replaces the UnityFS header with its own signature, packs the
// version and encrypts sizes, blocks info and the first block.
type shengqu struct {
	schemeInfo
}

func newShengqu() *shengqu {
	return &shengqu{schemeInfo{name: "shengqu", priority: DefaultPriority}}
}

func (s *shengqu) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	sig, err := utils.NewBinaryStream(src, "big").ReadStringToNull()
	return err == nil && sig == shengquSignature
}

// shengquKey expands seed into a 1 KiB key by chaining XXH64 digests over
// alternating suffixes of seed and the static key.
func shengquKey(seed []byte) []byte {
	key := make([]byte, 0, shengquKeyWords*8)
	cur := uint64(len(seed) ^ len(shengquStaticKey))
	var staticOffset, seedOffset int
	for i := 0; i < shengquKeyWords; i++ {
		d := xxhash.NewWithSeed(cur)
		if i&1 != 0 {
			_, _ = d.Write(shengquStaticKey[staticOffset%len(shengquStaticKey):])
			staticOffset++
		} else {
			_, _ = d.Write(seed[seedOffset%len(seed):])
			seedOffset++
		}
		cur = d.Sum64()
		key = binary.LittleEndian.AppendUint64(key, cur)
	}
	return key
}

func shengquXOR(data, key []byte, keyOffset int32) {
	off := int(uint32(keyOffset) & uint32(len(key)-8))
	for i := range data {
		data[i] ^= key[(off+i)%len(key)]
	}
}

func (s *shengqu) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "big")
	if _, err := bs.ReadStringToNull(); err != nil {
		return nil, malformed(s.name, "read signature: %w", err)
	}
	packed, err := bs.ReadUInt32()
	if err != nil {
		return nil, malformed(s.name, "read version: %w", err)
	}
	version := packed & 0xFFFF
	if version != 7 {
		return nil, malformed(s.name, "unsupported bundle version %d (encryption %d)", version, packed>>16)
	}
	total, err := bs.ReadUInt64()
	if err != nil {
		return nil, malformed(s.name, "read size: %w", err)
	}
	keyOffset, err := bs.ReadInt32()
	if err != nil {
		return nil, malformed(s.name, "read key offset: %w", err)
	}
	var sizes [12]byte
	for i := 0; i < 3; i++ {
		v, err := bs.ReadUInt32()
		if err != nil {
			return nil, malformed(s.name, "read sizes: %w", err)
		}
		binary.LittleEndian.PutUint32(sizes[i*4:], v)
	}
	shengquXOR(sizes[:], shengquKey([]byte(shengquSignature)), keyOffset)
	cbis := binary.LittleEndian.Uint32(sizes[0:])
	ubis := binary.LittleEndian.Uint32(sizes[4:])
	flags := binary.LittleEndian.Uint32(sizes[8:])

	if int64(cbis) > bs.Remaining() {
		return nil, malformed(s.name, "blocks info size %d exceeds input", cbis)
	}
	blocksInfo, err := bs.ReadBytes(int(cbis))
	if err != nil {
		return nil, malformed(s.name, "read blocks info: %w", err)
	}
	key := shengquKey([]byte(shengquBlocksSeed))
	shengquXOR(blocksInfo, key, keyOffset)

	bw := utils.NewBinaryWriter("big")
	bw.WriteStringToNull(bundle.Signature)
	bw.WriteUInt32(version)
	// The packer stores revision and version in this order.
	bw.WriteStringToNull("5.x.x")
	bw.WriteStringToNull("2019.4.40f1")
	bw.WriteUInt64(total)
	bw.WriteUInt32(cbis)
	bw.WriteUInt32(ubis)
	bw.WriteUInt32(flags)
	bw.AlignStream(16)
	bw.WriteBytes(blocksInfo)

	out := make([]byte, bs.Length()+shengquOutputSlack)
	n := copy(out, bw.Bytes())
	f, err := bundle.Parse(bytes.NewReader(out))
	if err != nil {
		return nil, malformed(s.name, "parse rebuilt header: %w", err)
	}

	for i, block := range f.Blocks {
		if int64(block.CompressedSize) > bs.Remaining() {
			return nil, malformed(s.name, "block %d exceeds input", i)
		}
		data, err := bs.ReadBytes(int(block.CompressedSize))
		if err != nil {
			return nil, malformed(s.name, "read block %d: %w", i, err)
		}
		if i == 0 {
			shengquXOR(data, key, keyOffset)
		} else {
			if len(data) < 4 {
				return nil, malformed(s.name, "block %d shorter than a word", i)
			}
			binary.LittleEndian.PutUint32(data, binary.LittleEndian.Uint32(data)^uint32(keyOffset))
		}
		if n+len(data) > len(out) {
			return nil, malformed(s.name, "rebuilt container overflows")
		}
		n += copy(out[n:], data)
	}
	rest, err := bs.ReadUpTo(int(bs.Remaining()))
	if err != nil {
		return nil, malformed(s.name, "read trailer: %w", err)
	}
	if n+len(rest) > len(out) {
		return nil, malformed(s.name, "rebuilt container overflows")
	}
	copy(out[n:], rest)
	return bytesOutput(out), nil
}
