package deobfuscator

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"haruki-asset-deobfuscator/utils/bundle"
)

func readFixture(t *testing.T, name string) (in, out []byte) {
	t.Helper()
	var err error
	if in, err = os.ReadFile(filepath.Join("testdata", name+".in")); err != nil {
		t.Fatal(err)
	}
	if out, err = os.ReadFile(filepath.Join("testdata", name+".out")); err != nil {
		t.Fatal(err)
	}
	return in, out
}

func testHeader(flags bundle.ArchiveFlags) bundle.Header {
	return bundle.Header{
		Signature:     bundle.Signature,
		Version:       7,
		UnityVersion:  "5.x.x",
		UnityRevision: "2019.4.40f1",
		Flags:         flags,
	}
}

// sampleImage is a small canonical container with two stored blocks.
func sampleImage(t *testing.T) []byte {
	t.Helper()
	payload := bytes.Repeat([]byte("sekai-asset-"), 30)
	nodes := []bundle.Node{
		{Offset: 0, Size: 100, Flags: 4, Path: "CAB-sample"},
		{Offset: 100, Size: int64(len(payload) - 100), Path: "CAB-sample.resS"},
	}
	img, err := bundle.Assemble(testHeader(bundle.BlocksAndDirectoryInfoCombined), bundle.StoredBlocks(payload, 200), nodes, payload)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

// withFirstBlock builds a container whose first block starts with block.
// It returns the image and the offset of the block.
func withFirstBlock(t *testing.T, block []byte, flags bundle.ArchiveFlags, trailer int) ([]byte, int) {
	t.Helper()
	data := append(append([]byte(nil), block...), bytes.Repeat([]byte{0x5A}, trailer)...)
	blocks := []bundle.StorageBlock{{UncompressedSize: uint32(len(data)), CompressedSize: uint32(len(data))}}
	img, err := bundle.Assemble(testHeader(flags), blocks, nil, data)
	if err != nil {
		t.Fatal(err)
	}
	return img, len(img) - len(data)
}

func decodeWith(t *testing.T, name string, src []byte, fileName string) *Output {
	t.Helper()
	s, ok := DefaultCatalog().Lookup(name)
	if !ok {
		t.Fatalf("scheme %s not registered", name)
	}
	r := bytes.NewReader(src)
	if !s.Probe(r, fileName) {
		t.Fatalf("%s probe rejected the input", name)
	}
	if err := rewind(r); err != nil {
		t.Fatal(err)
	}
	out, err := s.Decode(r, fileName)
	if err != nil {
		t.Fatalf("%s decode error = %v", name, err)
	}
	return out
}

func outputBytes(t *testing.T, out *Output) []byte {
	t.Helper()
	b, err := out.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(b)) != out.Size {
		t.Errorf("Size = %d, read %d bytes", out.Size, len(b))
	}
	return b
}
