package bundle

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func sampleHeader(flags ArchiveFlags) Header {
	return Header{
		Signature:     Signature,
		Version:       7,
		UnityVersion:  "5.x.x",
		UnityRevision: "2019.4.40f1",
		Flags:         flags,
	}
}

func TestAssembleParseRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("haruki-"), 40)
	nodes := []Node{
		{Offset: 0, Size: 14, Flags: 4, Path: "CAB-a"},
		{Offset: 14, Size: int64(len(payload) - 14), Flags: 0, Path: "CAB-a.resS"},
	}
	tests := []struct {
		name  string
		flags ArchiveFlags
	}{
		{"uncompressed", BlocksAndDirectoryInfoCombined},
		{"lz4hc blocks info", BlocksAndDirectoryInfoCombined | ArchiveFlags(CompressionLZ4HC)},
		{"padding", BlocksAndDirectoryInfoCombined | BlockInfoNeedPaddingAtStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := StoredBlocks(payload, 100)
			img, err := Assemble(sampleHeader(tt.flags), blocks, nodes, payload)
			if err != nil {
				t.Fatal(err)
			}
			f, err := Load(bytes.NewReader(img))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if f.Header.Size != int64(len(img)) {
				t.Errorf("Header.Size = %d, want %d", f.Header.Size, len(img))
			}
			if diff := deep.Equal(f.Blocks, blocks); diff != nil {
				t.Error(diff)
			}
			if diff := deep.Equal(f.Nodes, nodes); diff != nil {
				t.Error(diff)
			}
			if int(f.DataOffset)+len(payload) != len(img) {
				t.Errorf("DataOffset = %d, want %d", f.DataOffset, len(img)-len(payload))
			}
			if tt.flags&BlockInfoNeedPaddingAtStart != 0 && f.DataOffset%16 != 0 {
				t.Errorf("DataOffset %d not aligned", f.DataOffset)
			}
			if len(f.Entries) != 2 || string(f.Entries[0].Data) != "haruki-haruki-" {
				t.Errorf("Entries = %+v", f.Entries)
			}
		})
	}
}

func TestLZ4Blocks(t *testing.T) {
	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 64)
	packed, err := CompressLZ4(payload)
	if err != nil {
		t.Fatal(err)
	}
	blocks := []StorageBlock{{UncompressedSize: uint32(len(payload)), CompressedSize: uint32(len(packed)), Flags: uint16(CompressionLZ4HC)}}
	nodes := []Node{{Offset: 0, Size: int64(len(payload)), Path: "CAB-lz4"}}
	img, err := Assemble(sampleHeader(0), blocks, nodes, packed)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Load(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Entries[0].Data, payload) {
		t.Error("decompressed entry does not match payload")
	}
}

func TestLiteralLZ4Block(t *testing.T) {
	for _, n := range []int{5, 15, 300} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*131 + 7)
		}
		out, err := DecompressLZ4(literalLZ4Block(data), n)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("n=%d: round trip mismatch", n)
		}
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse(bytes.NewReader([]byte("UnityWeb\x00"))); !errors.Is(err, ErrNotUnityFS) {
		t.Errorf("Parse() error = %v, want ErrNotUnityFS", err)
	}
	img, _ := Assemble(sampleHeader(0), nil, nil, nil)
	if _, err := Parse(bytes.NewReader(img[:len(img)-3])); err == nil {
		t.Error("Parse() of a truncated image returned no error")
	}
}

func TestReadFilesOutOfBounds(t *testing.T) {
	f := &File{Nodes: []Node{{Offset: 4, Size: 10, Path: "x"}}}
	if err := f.ReadFiles(make([]byte, 8)); !errors.Is(err, ErrNodeOutOfBounds) {
		t.Errorf("ReadFiles() error = %v, want ErrNodeOutOfBounds", err)
	}
}
