package deobfuscator

import (
	"encoding/binary"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/obfcrypto"
)

const (
	xinYuanMagic      = "XINYUAN"
	xinYuanHeaderSize = 9
	xinYuanMaxShift   = 30
)

var xinYuanKey = []byte{0xE4, 0x21, 0x13, 0x14, 0xD0, 0x47, 0xB5, 0x0A}

// xinYuan encrypts the whole file with one repeating RC4 keystream block.
type xinYuan struct {
	schemeInfo
}

func newXinYuan() *xinYuan {
	return &xinYuan{schemeInfo{name: "xinyuan", priority: DefaultPriority}}
}

func (s *xinYuan) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	magic, err := utils.NewBinaryStream(src, "little").ReadUpTo(len(xinYuanMagic))
	return err == nil && string(magic) == xinYuanMagic
}

func (s *xinYuan) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "little")
	if err := bs.SetPosition(int64(len(xinYuanMagic))); err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	header, err := bs.ReadBytes(xinYuanHeaderSize)
	if err != nil {
		return nil, malformed(s.name, "read header: %w", err)
	}
	obfcrypto.PlainRC4.XORKeyStream(header, xinYuanKey)
	if header[0] > xinYuanMaxShift {
		return nil, malformed(s.name, "block shift %d out of range", header[0])
	}
	blockSize := 1 << header[0]
	total := int64(binary.LittleEndian.Uint64(header[1:]))
	if total < 0 || total > bs.Remaining() {
		return nil, malformed(s.name, "payload length %d exceeds input", total)
	}
	data, err := bs.ReadBytes(int(total))
	if err != nil {
		return nil, malformed(s.name, "read payload: %w", err)
	}
	keystream := obfcrypto.PlainRC4.Keystream(min(blockSize, len(data)), xinYuanKey)
	for i := range data {
		data[i] ^= keystream[i%blockSize]
	}
	return bytesOutput(data), nil
}
