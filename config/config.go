package config

import (
	"errors"
	"os"

	"haruki-asset-deobfuscator/utils"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"

	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	SSL                      bool   `yaml:"ssl"`
	SSLCert                  string `yaml:"ssl_cert"`
	SSLKey                   string `yaml:"ssl_key"`
	LogLevel                 string `yaml:"log_level"`
	MainLogFile              string `yaml:"main_log_file"`
	AccessLog                string `yaml:"access_log"`
	AccessLogPath            string `yaml:"access_log_path"`
	BodyLimitMB              int    `yaml:"body_limit_mb,omitempty"`
	EnableAuthorization      bool   `yaml:"enable_authorization,omitempty"`
	AcceptUserAgentPrefix    string `yaml:"accept_user_agent_prefix,omitempty"`
	AcceptAuthorizationToken string `yaml:"accept_authorization_token,omitempty"`
}

type RemoteStorageConfig struct {
	Type    string   `yaml:"type"`
	Base    string   `yaml:"base"`
	Program string   `yaml:"program,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	Bucket          string `yaml:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
}

type Config struct {
	Proxy             string                     `yaml:"proxy,omitempty"`
	ConcurrentUploads int                        `yaml:"concurrent_uploads,omitempty"`
	Backend           BackendConfig              `yaml:"backend,omitempty"`
	Pipeline          utils.HarukiPipelineConfig `yaml:"pipeline,omitempty"`
	RemoteStorages    []RemoteStorageConfig      `yaml:"remote_storages,omitempty"`
}

var Version = "v1.0.0-dev"
var Cfg = Default()

const defaultConfigPath = "haruki-deobfuscator-configs.yaml"

func Default() Config {
	return Config{
		ConcurrentUploads: 4,
		Backend: BackendConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			LogLevel:    "INFO",
			BodyLimitMB: 256,
		},
		Pipeline: utils.HarukiPipelineConfig{
			OutputDir:   "output",
			Concurrency: 4,
			DumpFormat:  string(utils.HarukiDumpFormatJSON),
		},
	}
}

// Load reads a YAML config on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func init() {
	logger := harukiLogger.NewLogger("ConfigLoader", "INFO", nil)
	path := os.Getenv("HARUKI_DEOBFUSCATOR_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debugf("Config file %s not found, using defaults", path)
			return
		}
		logger.Errorf("Failed to parse config: %v", err)
		os.Exit(1)
	}
	Cfg = cfg
}
