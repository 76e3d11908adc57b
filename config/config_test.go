package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte(`
backend:
  port: 9000
  enable_authorization: true
  accept_authorization_token: secret
pipeline:
  output_dir: out
  concurrency: 8
remote_storages:
  - type: s3
    base: assets
    bucket: haruki
    region: us-east-1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Port != 9000 {
		t.Errorf("Backend.Port = %d, want 9000", cfg.Backend.Port)
	}
	if cfg.Backend.Host != "0.0.0.0" {
		t.Errorf("Backend.Host = %q, want default 0.0.0.0", cfg.Backend.Host)
	}
	if cfg.Pipeline.Concurrency != 8 || cfg.Pipeline.OutputDir != "out" {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
	want := []RemoteStorageConfig{{Type: "s3", Base: "assets", Bucket: "haruki", Region: "us-east-1"}}
	if diff := deep.Equal(cfg.RemoteStorages, want); diff != nil {
		t.Error(diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() on a missing file returned no error")
	}
	if diff := deep.Equal(cfg, Default()); diff != nil {
		t.Error(diff)
	}
}
