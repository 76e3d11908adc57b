package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/dump"
)

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// exportEntries writes every directory entry of f under dir and returns
// the written paths.
func exportEntries(f *bundle.File, dir string) ([]string, error) {
	var written []string
	for _, e := range f.Entries {
		rel := filepath.FromSlash(e.Path)
		if !filepath.IsLocal(rel) {
			return written, fmt.Errorf("entry path %q escapes the export directory", e.Path)
		}
		p := filepath.Join(dir, rel)
		if err := writeFile(p, e.Data); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

func writeDump(scheme string, f *bundle.File, base string, format utils.HarukiDumpFormat) (string, error) {
	data, err := dump.Marshal(dump.Describe(scheme, f), format)
	if err != nil {
		return "", err
	}
	p := base + format.Extension()
	return p, writeFile(p, data)
}
