package deobfuscator

import (
	"encoding/binary"
	"fmt"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
)

var narutoMagics = map[string]int{
	"UnityKHFS":  0,
	"UnityKHNFS": 1,
	"UnityKH1FS": 2,
}

var narutoKeys = [2][]byte{
	[]byte("X@85Pq!6v$lCt7UYsihH3!cPb1P71bo4lX59FXqY!VO$YiYsu!Keu3aVZwi5on5l"),
	[]byte("hAi5luE8FlyblDdCTQC9uxnj3rkNwd1swrKI7Mx1aDFEe2B5h#3X&s54%GuSeHf@"),
}

const (
	narutoHeaderSize = 0x1F
	narutoSizesSize  = 0xC
	narutoZeroFill   = 0xE
)

// naruto renames the signature and encrypts the blocks info. Three
// revisions are told apart by the signature.
type naruto struct {
	schemeInfo
}

func newNaruto() *naruto {
	return &naruto{schemeInfo{name: "naruto", priority: DefaultPriority}}
}

func (s *naruto) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	magic, err := utils.NewBinaryStream(src, "big").ReadStringToNullMax(10)
	if err != nil {
		return false
	}
	_, ok := narutoMagics[magic]
	return ok
}

func (s *naruto) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "big")
	magic, err := bs.ReadStringToNullMax(11)
	if err != nil {
		return nil, malformed(s.name, "read magic: %w", err)
	}
	revision, ok := narutoMagics[magic]
	if !ok {
		return nil, malformed(s.name, "unknown magic %q", magic)
	}
	// The header starts at the terminator of the magic.
	if err := bs.Skip(-1); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	header, err := bs.ReadBytes(narutoHeaderSize)
	if err != nil {
		return nil, malformed(s.name, "read header: %w", err)
	}
	sizes, err := bs.ReadBytes(narutoSizesSize)
	if err != nil {
		return nil, malformed(s.name, "read sizes: %w", err)
	}
	size := binary.BigEndian.Uint32(sizes)
	skip := int64(0xB)
	if revision == 0 {
		skip = 0xC
	}
	if err := bs.Skip(skip); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if int64(size) > bs.Remaining() {
		return nil, malformed(s.name, "blocks info size %d exceeds input", size)
	}
	blocks, err := bs.ReadBytes(int(size))
	if err != nil {
		return nil, malformed(s.name, "read blocks info: %w", err)
	}
	if err := decryptNaruto(blocks, revision); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	rest, err := bs.ReadUpTo(int(bs.Remaining()))
	if err != nil {
		return nil, malformed(s.name, "read trailer: %w", err)
	}

	bw := utils.NewBinaryWriter("big")
	bw.WriteBytes([]byte(bundle.Signature))
	bw.WriteBytes(header)
	bw.WriteBytes(sizes)
	bw.WriteBytes(make([]byte, narutoZeroFill))
	bw.WriteBytes(blocks)
	bw.WriteBytes(rest)
	return bytesOutput(bw.Bytes()), nil
}

func narutoXOR(data, key []byte) {
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}

func decryptNaruto(enc []byte, revision int) error {
	size := uint32(len(enc))
	sizeKey := binary.BigEndian.AppendUint64(nil, uint64(size))
	switch revision {
	case 0:
		narutoXOR(enc, narutoKeys[0])
	case 1:
		narutoXOR(enc, narutoKeys[1])
		narutoXOR(enc, sizeKey)
	case 2:
		n := len(enc)
		if n == 0 {
			return fmt.Errorf("empty blocks info")
		}
		aligned := (n%7 + 7) % n
		if aligned == 0 {
			return fmt.Errorf("blocks info of %d bytes has no rotation stride", n)
		}
		narutoRotate(enc, 0, n, aligned)
		key := narutoKeys[0]
		if size%3 == 0 || size%5 == 0 || size%7 == 0 {
			key = narutoKeys[1]
		}
		narutoXOR(enc, key)
		narutoXOR(enc, sizeKey)
		end := (n%7 + 1) % aligned
		for i := 0; i < n; i += aligned {
			narutoRotate(enc, i, aligned, end)
		}
		narutoRotate(enc, 0, n, end)
	}
	return nil
}

// narutoRotate rotates data[offset:offset+length] (clamped to data) left by
// shift using three reversals.
func narutoRotate(data []byte, offset, length, shift int) {
	last := len(data) - 1
	offset = min(last, offset)
	end := min(last, offset-1+length)
	length = end - offset + 1
	if length < 2 {
		return
	}
	s := shift % length
	if s == 0 {
		return
	}
	mid := min(max(end-s, offset), end)
	reverse(data, offset, min(last, mid))
	reverse(data, min(last, mid+1), end)
	reverse(data, offset, end)
}

func reverse(data []byte, start, end int) {
	for end > start {
		data[start], data[end] = data[end], data[start]
		start++
		end--
	}
}
