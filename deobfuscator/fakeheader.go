package deobfuscator

import (
	"bytes"
	"io"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/stream"
)

// fakeHeaderWindow is how far into the file a hidden container is looked for.
const fakeHeaderWindow = 0x250

var unityFSBytes = []byte(bundle.Signature)

// findFakeHeaderOffset returns the offset of the last UnityFS signature in
// the window that starts at byte 1, or -1.
func findFakeHeaderOffset(src io.ReadSeeker) (int64, error) {
	bs := utils.NewBinaryStream(src, "big")
	if err := bs.SetPosition(1); err != nil {
		return -1, err
	}
	window, err := bs.ReadUpTo(fakeHeaderWindow)
	if err != nil {
		return -1, err
	}
	idx := bytes.LastIndex(window, unityFSBytes)
	if idx < 0 {
		return -1, nil
	}
	return int64(idx) + 1, nil
}

// fakeHeader prepends junk, possibly including a decoy signature, to an
// otherwise untouched container.
type fakeHeader struct {
	schemeInfo
}

func newFakeHeader() *fakeHeader {
	return &fakeHeader{schemeInfo{name: "fakeheader", priority: DefaultPriority}}
}

func (s *fakeHeader) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	if n, err := utils.StreamLength(src); err != nil || n < 8 {
		return false
	}
	off, err := findFakeHeaderOffset(src)
	return err == nil && off >= 0
}

func (s *fakeHeader) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	off, err := findFakeHeaderOffset(src)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if off < 0 {
		return nil, malformed(s.name, "no signature in the first %#x bytes", fakeHeaderWindow)
	}
	v, err := stream.NewOffset(src, off)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return streamOutput(v), nil
}

// jewelPri writes a bare UnityFS signature in front of the real header.
type jewelPri struct {
	schemeInfo
}

func newJewelPri() *jewelPri {
	return &jewelPri{schemeInfo{name: "jewelpri", priority: DefaultPriority}}
}

// jewelPriOffset reports where the real container starts relative to the
// end of the decoy signature, or -1.
func jewelPriOffset(src io.ReadSeeker) (int64, error) {
	bs := utils.NewBinaryStream(src, "big")
	if bs.Length() < 8 {
		return -1, nil
	}
	decoy, err := bs.ReadStringToNullMax(8)
	if err != nil || decoy != bundle.Signature {
		return -1, err
	}
	window, err := bs.ReadUpTo(fakeHeaderWindow + len(unityFSBytes) - 1)
	if err != nil {
		return -1, err
	}
	idx := bytes.Index(window, unityFSBytes)
	if idx < 0 || idx >= fakeHeaderWindow {
		return -1, nil
	}
	return int64(idx), nil
}

func (s *jewelPri) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	off, err := jewelPriOffset(src)
	return err == nil && off >= 0
}

func (s *jewelPri) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	off, err := jewelPriOffset(src)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	if off < 0 {
		return nil, malformed(s.name, "real signature not found")
	}
	v, err := stream.NewOffset(src, int64(len(bundle.Signature))+1+off)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return streamOutput(v), nil
}

// tenkafuMA prepends a single junk byte.
type tenkafuMA struct {
	schemeInfo
}

func newTenkafuMA() *tenkafuMA {
	return &tenkafuMA{schemeInfo{name: "tenkafuma", priority: DefaultPriority}}
}

func (s *tenkafuMA) Probe(src io.ReadSeeker, _ string) bool {
	defer restoreStart(src)
	bs := utils.NewBinaryStream(src, "big")
	if _, err := bs.ReadByte(); err != nil {
		return false
	}
	sig, err := bs.ReadStringToNullMax(20)
	return err == nil && sig == bundle.Signature
}

func (s *tenkafuMA) Decode(src io.ReadSeeker, _ string) (*Output, error) {
	v, err := stream.NewOffset(src, 1)
	if err != nil {
		return nil, malformed(s.name, "%w", err)
	}
	return streamOutput(v), nil
}
