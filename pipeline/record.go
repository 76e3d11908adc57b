package pipeline

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/zeebo/blake3"
)

// Record is what the record file remembers about one input.
type Record struct {
	Scheme string `json:"scheme"`
	Source string `json:"source"`
	Blake3 string `json:"blake3,omitempty"`
	Size   int64  `json:"size"`
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func loadRecords(path string) (map[string]Record, error) {
	records := make(map[string]Record)
	if path == "" {
		return records, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, err
	}
	if err = sonic.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func saveRecords(path string, records map[string]Record) error {
	if path == "" {
		return nil
	}
	data, err := sonic.Marshal(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
