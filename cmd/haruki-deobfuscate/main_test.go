package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/pipeline"
	"haruki-asset-deobfuscator/utils/bundle"
)

func obfuscatedSample(t *testing.T) ([]byte, []byte) {
	t.Helper()
	payload := bytes.Repeat([]byte("cli-"), 64)
	nodes := []bundle.Node{{Offset: 0, Size: int64(len(payload)), Path: "CAB-cli"}}
	h := bundle.Header{Signature: bundle.Signature, Version: 7, UnityVersion: "5.x.x", UnityRevision: "2019.4.40f1", Flags: bundle.BlocksAndDirectoryInfoCombined}
	img, err := bundle.Assemble(h, bundle.StoredBlocks(payload, 100), nodes, payload)
	if err != nil {
		t.Fatal(err)
	}
	return img, deobfuscator.Obfuscate(img)
}

func TestList(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--list"}, &out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != deobfuscator.DefaultCatalog().Len()+1 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "onepiece") || !strings.Contains(lines[2], "structured") {
		t.Errorf("unexpected listing:\n%s", out.String())
	}
}

func TestProbeOnly(t *testing.T) {
	_, obf := obfuscatedSample(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.ab"), obf, 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := run([]string{"--probe-only", dir}, &out); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "a.ab") + "\tsekai\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestDecodeFile(t *testing.T) {
	img, obf := obfuscatedSample(t)
	in := filepath.Join(t.TempDir(), "a.ab")
	if err := os.WriteFile(in, obf, 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	var out bytes.Buffer
	if err := run([]string{"--out", outDir, in}, &out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "a.ab"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Error("decoded file differs from the canonical image")
	}
	if !strings.HasPrefix(out.String(), "decoded\t") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLogLevelAppliesToEveryPackage(t *testing.T) {
	defer func() {
		deobfuscator.SetLogLevel("info")
		pipeline.SetLogLevel("info")
	}()
	var out bytes.Buffer
	if err := run([]string{"--log-level", "debug", "--list"}, &out); err != nil {
		t.Fatal(err)
	}
	if got := deobfuscator.LogLevel(); got != "debug" {
		t.Errorf("deobfuscator level = %q, want debug", got)
	}
	if got := pipeline.LogLevel(); got != "debug" {
		t.Errorf("pipeline level = %q, want debug", got)
	}
}
