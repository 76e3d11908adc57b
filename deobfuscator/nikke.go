package deobfuscator

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"io"

	"haruki-asset-deobfuscator/utils"
)

const (
	nikkeSignature = "NKAB"
	nikkeVersion   = 1
	// Header shorts are stored with this bias subtracted.
	nikkeFieldBias = 100
)

type nikkeHeader struct {
	headerLen    int
	mode         int
	keyLen       int
	encryptedLen int
	key          []byte
	iv           []byte
}

// nikke prepends a small header and AES-CBC encrypts the first bytes of
// the container with a key stored in that header.
type nikke struct {
	schemeInfo
}

func newNikke() *nikke {
	return &nikke{schemeInfo{name: "nikke", priority: DefaultPriority}}
}

func readNikkeHeader(bs *utils.BinaryStream) (*nikkeHeader, bool, error) {
	sig, err := bs.ReadStringToNullMax(4)
	if err != nil {
		return nil, false, err
	}
	ver, err := bs.ReadUInt32()
	if err != nil {
		return nil, false, err
	}
	if sig != nikkeSignature || ver != nikkeVersion {
		return nil, false, nil
	}
	var fields [4]int
	for i := range fields {
		v, err := bs.ReadInt16()
		if err != nil {
			return nil, false, err
		}
		fields[i] = int(v) + nikkeFieldBias
	}
	h := &nikkeHeader{headerLen: fields[0], mode: fields[1], keyLen: fields[2], encryptedLen: fields[3]}
	if h.key, err = bs.ReadUpTo(h.keyLen); err != nil {
		return nil, false, err
	}
	if h.iv, err = bs.ReadUpTo(aes.BlockSize); err != nil {
		return nil, false, err
	}
	return h, true, nil
}

func (s *nikke) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "little")
	if bs.Length() < 8 {
		return false
	}
	h, ok, err := readNikkeHeader(bs)
	if err != nil || !ok || h.mode != 0 {
		return false
	}
	return bs.Position() == int64(h.headerLen)
}

func (s *nikke) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	bs := utils.NewBinaryStream(src, "little")
	h, ok, err := readNikkeHeader(bs)
	if err != nil {
		return nil, malformed(s.name, "read header: %w", err)
	}
	if !ok {
		return nil, malformed(s.name, "bad signature")
	}
	if len(h.iv) != aes.BlockSize {
		return nil, malformed(s.name, "truncated iv")
	}
	if h.encryptedLen < 0 || h.encryptedLen%aes.BlockSize != 0 {
		return nil, malformed(s.name, "encrypted length %d is not whole blocks", h.encryptedLen)
	}
	enc, err := bs.ReadBytes(h.encryptedLen)
	if err != nil {
		return nil, malformed(s.name, "read encrypted head: %w", err)
	}
	sum := sha256.Sum256(h.key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	cipher.NewCBCDecrypter(block, h.iv).CryptBlocks(enc, enc)

	rest, err := bs.ReadUpTo(int(bs.Remaining()))
	if err != nil {
		return nil, malformed(s.name, "read body: %w", err)
	}
	return bytesOutput(append(enc, rest...)), nil
}
