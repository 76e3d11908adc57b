package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// CompileNameFilter compiles an optional file-name filter. An empty pattern
// yields a nil filter that accepts everything.
func CompileNameFilter(pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("invalid name filter %q: %w", pattern, err)
	}
	return re, nil
}

// FindFilesMatching walks dir and returns the regular files whose slash
// separated path relative to dir matches filter, sorted.
func FindFilesMatching(dir string, filter *regexp2.Regexp) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filter != nil {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			ok, err := filter.MatchString(filepath.ToSlash(rel))
			if err != nil {
				return fmt.Errorf("failed to match %s: %w", rel, err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// FileNameWithoutExtension accepts both slash styles since asset names often
// come from Windows tooling.
func FileNameWithoutExtension(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}
