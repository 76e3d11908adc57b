package cloud

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/utils"

	"github.com/go-test/deep"
)

func writeFiles(t *testing.T, root string, names ...string) []string {
	t.Helper()
	var files []string
	for _, name := range names {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("data:"+name), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, p)
	}
	return files
}

func TestNewUploader(t *testing.T) {
	tests := []struct {
		name    string
		storage config.RemoteStorageConfig
		wantErr bool
	}{
		{"command", config.RemoteStorageConfig{Program: "rclone"}, false},
		{"command without program", config.RemoteStorageConfig{Type: "command"}, true},
		{"s3", config.RemoteStorageConfig{Type: "s3", Bucket: "b", Region: "us-east-1"}, false},
		{"s3 without bucket", config.RemoteStorageConfig{Type: "s3"}, true},
		{"unknown", config.RemoteStorageConfig{Type: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUploader(tt.storage)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewUploader() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemotePathFor(t *testing.T) {
	root := filepath.Join("out", "assets")
	file := filepath.Join(root, "a", "b.bundle")
	got, err := remotePathFor(utils.HarukiRemoteStorageTypeS3, "mirror", root, file)
	if err != nil || got != "mirror/a/b.bundle" {
		t.Errorf("remotePathFor(s3) = %q, %v", got, err)
	}
	got, err = remotePathFor(utils.HarukiRemoteStorageTypeCommand, "remote:", root, file)
	if err != nil || got != filepath.Join("remote:", "a", "b.bundle") {
		t.Errorf("remotePathFor(command) = %q, %v", got, err)
	}
}

func TestCommandUpload(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	files := writeFiles(t, root, "x.bundle", filepath.Join("sub", "y.bundle"))
	storage := config.RemoteStorageConfig{
		Type:    "command",
		Base:    dest,
		Program: "sh",
		Args:    []string{"-c", `mkdir -p "$(dirname "$1")" && cp "$0" "$1"`, "src", "dst"},
	}
	if err := UploadToAllStorages(context.Background(), []config.RemoteStorageConfig{storage}, files, root, 2, true); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"x.bundle", filepath.Join("sub", "y.bundle")} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "data:"+name {
			t.Errorf("%s = %q", name, data)
		}
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("local %s was not removed", name)
		}
	}
}

func TestCommandUploadFailure(t *testing.T) {
	root := t.TempDir()
	files := writeFiles(t, root, "x.bundle")
	storage := config.RemoteStorageConfig{Program: "false"}
	if err := UploadToStorage(context.Background(), storage, files, root, 1, true); err == nil {
		t.Fatal("UploadToStorage() returned no error")
	}
	if _, err := os.Stat(files[0]); err != nil {
		t.Error("local file removed after a failed upload")
	}
}

func TestS3Upload(t *testing.T) {
	var mu sync.Mutex
	received := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			received[r.URL.Path] = string(body)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	root := t.TempDir()
	files := writeFiles(t, root, filepath.Join("a", "b.bundle"))
	storage := config.RemoteStorageConfig{
		Type:            "s3",
		Base:            "mirror",
		Bucket:          "haruki",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	}
	if err := UploadToStorage(context.Background(), storage, files, root, 1, false); err != nil {
		t.Fatal(err)
	}
	var paths []string
	for p := range received {
		paths = append(paths, p)
	}
	if diff := deep.Equal(paths, []string{"/haruki/mirror/a/b.bundle"}); diff != nil {
		t.Error(diff)
	}
}
