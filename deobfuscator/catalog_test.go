package deobfuscator

import (
	"bytes"
	"io"
	"testing"

	"haruki-asset-deobfuscator/utils/bundle"

	"github.com/go-test/deep"
)

func TestDefaultCatalogOrder(t *testing.T) {
	var names []string
	for _, s := range DefaultCatalog().Schemes() {
		names = append(names, s.Name())
	}
	want := []string{
		"onepiece", "misccn",
		"fairguard", "fairguard2", "netease", "shengqu", "naruto", "xinyuan", "nikke", "holoearth",
		"onepunch", "jewelpri", "fakeheader", "tenkafuma", "sekai",
		"singlebytexor",
	}
	if diff := deep.Equal(names, want); diff != nil {
		t.Error(diff)
	}
}

func TestDefaultCatalogIsShared(t *testing.T) {
	if DefaultCatalog() != DefaultCatalog() {
		t.Error("DefaultCatalog() built twice")
	}
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		name       string
		found      bool
		priority   int
		structured bool
	}{
		{"onepiece", true, 100, false},
		{"misccn", true, 11, true},
		{"onepunch", true, DefaultPriority, true},
		{"netease", true, DefaultPriority, false},
		{"singlebytexor", true, 5, false},
		{"unityweb", false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := c.Lookup(tt.name)
			if ok != tt.found {
				t.Fatalf("Lookup() found = %v, want %v", ok, tt.found)
			}
			if !ok {
				return
			}
			if s.Priority() != tt.priority {
				t.Errorf("Priority() = %d, want %d", s.Priority(), tt.priority)
			}
			if s.ProducesStructuredContainer() != tt.structured {
				t.Errorf("ProducesStructuredContainer() = %v, want %v", s.ProducesStructuredContainer(), tt.structured)
			}
		})
	}
}

func TestNewCatalogStableOrder(t *testing.T) {
	c := NewCatalog(
		&stubScheme{schemeInfo: schemeInfo{name: "a", priority: 10}},
		&stubScheme{schemeInfo: schemeInfo{name: "b", priority: 50}},
		&stubScheme{schemeInfo: schemeInfo{name: "c", priority: 10}},
		&stubScheme{schemeInfo: schemeInfo{name: "d", priority: 5}},
		&stubScheme{schemeInfo: schemeInfo{name: "e", priority: 50}},
	)
	var names []string
	for _, s := range c.Schemes() {
		names = append(names, s.Name())
	}
	if diff := deep.Equal(names, []string{"b", "e", "a", "c", "d"}); diff != nil {
		t.Error(diff)
	}
}

type namedSource struct {
	name string
	data []byte
}

// matchingSources returns, per scheme, an input that scheme accepts.
func matchingSources(t *testing.T) map[string]namedSource {
	t.Helper()
	img := sampleImage(t)
	combined := bundle.BlocksAndDirectoryInfoCombined
	firstBlock := func(fixture string, trailer int) []byte {
		in, _ := readFixture(t, fixture)
		src, _ := withFirstBlock(t, in, combined, trailer)
		return src
	}
	wholeFile := func(fixture string) []byte {
		in, _ := readFixture(t, fixture)
		return in
	}
	onePiece, _, _ := onePieceSource(t, 0x42)
	const holoName = "assets/cab-0001.bundle"
	holo := append([]byte(nil), img...)
	holoearthXOR(holoearthCipher(holoName), holo)
	xored := append([]byte(nil), img...)
	for i := range xored {
		xored[i] ^= 0x33
	}
	return map[string]namedSource{
		"onepiece":      {"op.bundle", onePiece},
		"misccn":        {"misc.ab", miscCnSource().src},
		"fairguard":     {"fg.ab", firstBlock("fairguard_0500", 0x40)},
		"fairguard2":    {"fg2.ab", firstBlock("fairguard2_0500", 0x33)},
		"netease":       {"ne.ab", firstBlock("netease_0800", 0)},
		"shengqu":       {"shengqu", wholeFile("shengqu")},
		"naruto":        {"naruto", wholeFile("naruto_v2_005b")},
		"xinyuan":       {"xinyuan", wholeFile("xinyuan")},
		"nikke":         {"nikke.ab", nikkeSource(t, img)},
		"holoearth":     {holoName, holo},
		"onepunch":      {"punch.ab", onePunchSource().src},
		"jewelpri":      {"jp.ab", append([]byte("UnityFS\x00abcde"), img...)},
		"fakeheader":    {"fh.ab", append([]byte("\x01\x02UnityFS\x00decoy-junk"), img...)},
		"tenkafuma":     {"tk.ab", append([]byte{0x07}, img...)},
		"sekai":         {"sekai.ab", Obfuscate(img)},
		"singlebytexor": {"x.ab", xored},
	}
}

func TestSchemesRestoreStartPosition(t *testing.T) {
	sources := matchingSources(t)
	inputs := []namedSource{{"garbage", []byte("definitely not an asset bundle")}, {"canonical", sampleImage(t)}}
	for _, s := range DefaultCatalog().Schemes() {
		own, ok := sources[s.Name()]
		if !ok {
			t.Fatalf("no matching input for %s", s.Name())
		}
		t.Run(s.Name(), func(t *testing.T) {
			for _, in := range append([]namedSource{own}, inputs...) {
				src := bytes.NewReader(in.data)
				first := probe(s, src, in.name)
				pos, _ := src.Seek(0, io.SeekCurrent)
				if pos != 0 {
					t.Errorf("%s: position after first call = %d, want 0", in.name, pos)
				}
				second := probe(s, src, in.name)
				pos, _ = src.Seek(0, io.SeekCurrent)
				if pos != 0 {
					t.Errorf("%s: position after second call = %d, want 0", in.name, pos)
				}
				if first != second {
					t.Errorf("%s: results differ: %v then %v", in.name, first, second)
				}
				if in.name == own.name && !first {
					t.Errorf("%s rejected its own input", s.Name())
				}
			}
		})
	}
}
