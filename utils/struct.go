package utils

import "fmt"

type HarukiPipelineConfig struct {
	InputDir         string `yaml:"input_dir,omitempty"`
	OutputDir        string `yaml:"output_dir"`
	NameFilter       string `yaml:"name_filter,omitempty"`
	Concurrency      int    `yaml:"concurrency,omitempty"`
	RecordFile       string `yaml:"record_file,omitempty"`
	ExportEntries    bool   `yaml:"export_entries,omitempty"`
	DumpFormat       string `yaml:"dump_format,omitempty"`
	KeepUnrecognized bool   `yaml:"keep_unrecognized,omitempty"`
	Overwrite        bool   `yaml:"overwrite,omitempty"`
	UploadToCloud    bool   `yaml:"upload_to_cloud,omitempty"`
	RemoveLocal      bool   `yaml:"remove_local_after_upload,omitempty"`
	UserAgent        string `yaml:"user_agent,omitempty"`
}

type HarukiRemoteStorageType string

const (
	HarukiRemoteStorageTypeCommand HarukiRemoteStorageType = "command"
	HarukiRemoteStorageTypeS3      HarukiRemoteStorageType = "s3"
)

func ParseRemoteStorageType(s string) (HarukiRemoteStorageType, error) {
	switch HarukiRemoteStorageType(s) {
	case "":
		return HarukiRemoteStorageTypeCommand, nil
	case HarukiRemoteStorageTypeCommand, HarukiRemoteStorageTypeS3:
		return HarukiRemoteStorageType(s), nil
	default:
		return "", fmt.Errorf("invalid remote storage type: %s", s)
	}
}

type HarukiDumpFormat string

const (
	HarukiDumpFormatJSON    HarukiDumpFormat = "json"
	HarukiDumpFormatMsgpack HarukiDumpFormat = "msgpack"
	HarukiDumpFormatCBOR    HarukiDumpFormat = "cbor"
)

func ParseDumpFormat(s string) (HarukiDumpFormat, error) {
	switch HarukiDumpFormat(s) {
	case "":
		return HarukiDumpFormatJSON, nil
	case HarukiDumpFormatJSON, HarukiDumpFormatMsgpack, HarukiDumpFormatCBOR:
		return HarukiDumpFormat(s), nil
	default:
		return "", fmt.Errorf("invalid dump format: %s", s)
	}
}

func (f HarukiDumpFormat) Extension() string {
	switch f {
	case HarukiDumpFormatMsgpack:
		return ".msgpack"
	case HarukiDumpFormatCBOR:
		return ".cbor"
	default:
		return ".json"
	}
}
