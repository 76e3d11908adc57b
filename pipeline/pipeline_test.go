package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"

	"github.com/go-test/deep"
)

func sampleImage(t *testing.T) []byte {
	t.Helper()
	payload := bytes.Repeat([]byte("pipeline-"), 40)
	nodes := []bundle.Node{
		{Offset: 0, Size: 60, Flags: 4, Path: "CAB-pipe"},
		{Offset: 60, Size: int64(len(payload) - 60), Path: "CAB-pipe.resS"},
	}
	h := bundle.Header{Signature: bundle.Signature, Version: 7, UnityVersion: "5.x.x", UnityRevision: "2019.4.40f1", Flags: bundle.BlocksAndDirectoryInfoCombined}
	img, err := bundle.Assemble(h, bundle.StoredBlocks(payload, 128), nodes, payload)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func writeInput(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(t *testing.T, mutate func(*utils.HarukiPipelineConfig)) (*Pipeline, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.InputDir = t.TempDir()
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.RecordFile = filepath.Join(t.TempDir(), "records.json")
	if mutate != nil {
		mutate(&cfg.Pipeline)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p, cfg.Pipeline.InputDir
}

func statuses(s *Summary) map[string]Status {
	m := make(map[string]Status)
	for _, it := range s.Items {
		m[filepath.Base(it.Source)] = it.Status
	}
	return m
}

func TestRunDirectory(t *testing.T) {
	img := sampleImage(t)
	p, in := newTestPipeline(t, func(c *utils.HarukiPipelineConfig) {
		c.KeepUnrecognized = true
		c.ExportEntries = true
		c.NameFilter = `\.(ab|bin)$`
	})
	writeInput(t, in, "chara/a.ab", deobfuscator.Obfuscate(img))
	writeInput(t, in, "b.bin", []byte("not an asset bundle at all"))
	writeInput(t, in, "notes.txt", []byte("ignored by the filter"))

	summary, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]Status{"a.ab": StatusDecoded, "b.bin": StatusUnrecognized}
	if diff := deep.Equal(statuses(summary), want); diff != nil {
		t.Fatal(diff)
	}

	out := p.cfg.OutputDir
	got, err := os.ReadFile(filepath.Join(out, "chara", "a.ab"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Error("decoded output differs from the canonical image")
	}
	if _, err := os.Stat(filepath.Join(out, "b.bin")); err != nil {
		t.Errorf("unrecognized input was not kept: %v", err)
	}
	entry, err := os.ReadFile(filepath.Join(out, "chara", "a.ab_entries", "CAB-pipe"))
	if err != nil {
		t.Fatal(err)
	}
	if string(entry) != string(bytes.Repeat([]byte("pipeline-"), 40)[:60]) {
		t.Errorf("exported entry = %q", entry)
	}

	records, err := loadRecords(p.cfg.RecordFile)
	if err != nil {
		t.Fatal(err)
	}
	rec := records[filepath.Join(in, "chara", "a.ab")]
	if rec.Scheme != "sekai" || rec.Blake3 != digest(img) || rec.Size != int64(len(img)) {
		t.Errorf("record = %+v", rec)
	}

	again, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Count(StatusSkipped) != 1 || again.Count(StatusUnrecognized) != 1 {
		t.Errorf("second run = %+v", again.Items)
	}
}

func TestRunURL(t *testing.T) {
	retryDelay = 0
	img := sampleImage(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/assets/c.ab" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(deobfuscator.Obfuscate(img))
	}))
	defer server.Close()

	p, _ := newTestPipeline(t, nil)
	summary, err := p.Run(context.Background(), []string{server.URL + "/assets/c.ab"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Count(StatusDecoded) != 1 {
		t.Fatalf("summary = %+v", summary.Items)
	}
	got, err := os.ReadFile(filepath.Join(p.cfg.OutputDir, "assets", "c.ab"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Error("decoded output differs from the canonical image")
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d requests, want 2", calls.Load())
	}

	summary, err = p.Run(context.Background(), []string{server.URL + "/missing.ab"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Count(StatusFailed) != 1 {
		t.Errorf("missing url summary = %+v", summary.Items)
	}
}

func TestRunRejectsEscapingURL(t *testing.T) {
	img := sampleImage(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(deobfuscator.Obfuscate(img))
	}))
	defer server.Close()

	parent := t.TempDir()
	p, _ := newTestPipeline(t, func(c *utils.HarukiPipelineConfig) {
		c.OutputDir = filepath.Join(parent, "out")
	})
	for _, u := range []string{server.URL + "/%2e%2e/escaped.ab", server.URL + "/a/%2e%2e/%2e%2e/escaped.ab"} {
		if _, err := p.Run(context.Background(), []string{u}); err == nil {
			t.Errorf("Run(%s) returned no error", u)
		}
	}
	if _, err := os.Stat(filepath.Join(parent, "escaped.ab")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written outside the output directory: %v", err)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	img := sampleImage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		cancel()
		_, _ = w.Write(deobfuscator.Obfuscate(img))
	}))
	defer server.Close()

	p, _ := newTestPipeline(t, func(c *utils.HarukiPipelineConfig) { c.Concurrency = 1 })
	summary, err := p.Run(ctx, []string{server.URL + "/first.ab", server.URL + "/second.ab"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(summary.Items) != 1 {
		t.Errorf("summary = %+v, want only the first input", summary.Items)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, path := range seen {
		if path == "/second.ab" {
			t.Error("second input was fetched after cancellation")
		}
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	p, in := newTestPipeline(t, nil)
	writeInput(t, in, "a.ab", deobfuscator.Obfuscate(sampleImage(t)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := p.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(summary.Items) != 0 {
		t.Errorf("summary = %+v, want no items", summary.Items)
	}
	if _, err := os.Stat(filepath.Join(p.cfg.OutputDir, "a.ab")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cancelled run wrote output: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"dump format", func(c *config.Config) { c.Pipeline.DumpFormat = "xml" }},
		{"name filter", func(c *config.Config) { c.Pipeline.NameFilter = "(" }},
		{"output dir", func(c *config.Config) { c.Pipeline.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() returned no error")
			}
		})
	}
}

func TestExportEntriesRejectsEscapingPaths(t *testing.T) {
	f := &bundle.File{Entries: []bundle.Entry{{Node: bundle.Node{Path: "../evil"}, Data: []byte("x")}}}
	if _, err := exportEntries(f, t.TempDir()); err == nil {
		t.Error("exportEntries() wrote outside the export directory")
	}
}

func TestWriteDump(t *testing.T) {
	f, err := bundle.Load(bytes.NewReader(sampleImage(t)))
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Join(t.TempDir(), "x.ab")
	for _, format := range []utils.HarukiDumpFormat{utils.HarukiDumpFormatJSON, utils.HarukiDumpFormatMsgpack, utils.HarukiDumpFormatCBOR} {
		p, err := writeDump("misccn", f, base, format)
		if err != nil {
			t.Fatal(err)
		}
		if p != base+format.Extension() {
			t.Errorf("dump path = %s", p)
		}
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("dump %s missing or empty", p)
		}
	}
}
