package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file. It also supports
// environment variable overrides with an NCAST_ prefix.
func Load(configPath string) (*types.Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid: the server port, the
// storage adapter requirements and the llmThreads/ttsThreads ranges. Block
// budgets are not range-checked.
func Validate(cfg *types.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Storage.Adapter != "local" && cfg.Storage.Adapter != "s3" {
		return fmt.Errorf("invalid storage adapter: %s (must be 'local' or 's3')", cfg.Storage.Adapter)
	}
	if cfg.Storage.Adapter == "local" {
		if cfg.Storage.Local.BasePath == "" {
			return fmt.Errorf("local storage base_path is required")
		}
		if !filepath.IsAbs(cfg.Storage.Local.BasePath) {
			return fmt.Errorf("local storage base_path must be absolute: %s", cfg.Storage.Local.BasePath)
		}
	}
	if cfg.Storage.Adapter == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	}

	if cfg.Pipeline.LLMThreads < 1 || cfg.Pipeline.LLMThreads > 10 {
		return fmt.Errorf("pipeline.llm_threads must be between 1 and 10, got %d", cfg.Pipeline.LLMThreads)
	}
	if cfg.Pipeline.TTSThreads < 1 || cfg.Pipeline.TTSThreads > 30 {
		return fmt.Errorf("pipeline.tts_threads must be between 1 and 30, got %d", cfg.Pipeline.TTSThreads)
	}

	return nil
}

// applyDefaults fills in zero-valued pipeline settings; it never overrides
// a value the config file already set.
func applyDefaults(cfg *types.Config) {
	if cfg.Pipeline.LLMThreads == 0 {
		cfg.Pipeline.LLMThreads = 2
	}
	if cfg.Pipeline.TTSThreads == 0 {
		cfg.Pipeline.TTSThreads = 15
	}
	if cfg.Pipeline.ExtractBudget == 0 {
		cfg.Pipeline.ExtractBudget = 16000
	}
	if cfg.Pipeline.AssignBudget == 0 {
		cfg.Pipeline.AssignBudget = 8000
	}
	if cfg.Voices.OutputFormat == "" {
		cfg.Voices.OutputFormat = "mp3"
	}
}

// applyEnvOverrides applies environment variable overrides prefixed with
// NCAST_, layered over the YAML file values.
func applyEnvOverrides(cfg *types.Config) {
	if val := os.Getenv("NCAST_SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("NCAST_SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	if val := os.Getenv("NCAST_STORAGE_ADAPTER"); val != "" {
		cfg.Storage.Adapter = val
	}
	if val := os.Getenv("NCAST_STORAGE_LOCAL_BASE_PATH"); val != "" {
		cfg.Storage.Local.BasePath = val
	}
	if val := os.Getenv("NCAST_STORAGE_S3_BUCKET"); val != "" {
		cfg.Storage.S3.Bucket = val
	}
	if val := os.Getenv("NCAST_STORAGE_S3_REGION"); val != "" {
		cfg.Storage.S3.Region = val
	}
	if val := os.Getenv("NCAST_STORAGE_S3_ENDPOINT"); val != "" {
		cfg.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("NCAST_STORAGE_S3_ACCESS_KEY_ID"); val != "" {
		cfg.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("NCAST_STORAGE_S3_SECRET_ACCESS_KEY"); val != "" {
		cfg.Storage.S3.SecretAccessKey = val
	}

	applyProviderEnvOverrides(cfg)
}

// applyProviderEnvOverrides applies provider-specific env vars, keyed by
// the provider's configured name.
func applyProviderEnvOverrides(cfg *types.Config) {
	for i := range cfg.Providers.LLM {
		prefix := fmt.Sprintf("NCAST_LLM_%s_", strings.ToUpper(cfg.Providers.LLM[i].Name))
		if val := os.Getenv(prefix + "API_KEY"); val != "" {
			cfg.Providers.LLM[i].APIKey = val
		}
		if val := os.Getenv(prefix + "ENDPOINT"); val != "" {
			cfg.Providers.LLM[i].Endpoint = val
		}
	}

	for i := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("NCAST_TTS_%s_", strings.ToUpper(cfg.Providers.TTS[i].Name))
		if val := os.Getenv(prefix + "API_KEY"); val != "" {
			cfg.Providers.TTS[i].APIKey = val
		}
		if val := os.Getenv(prefix + "ENDPOINT"); val != "" {
			cfg.Providers.TTS[i].Endpoint = val
		}
	}
}

// GetDefault returns a default configuration suitable for local development.
func GetDefault() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 15,
		},
		Storage: types.StorageConfig{
			Adapter: "local",
			Local: types.LocalStorageOpts{
				BasePath: "/var/lib/narrationcast/storage",
			},
		},
		Pipeline: types.PipelineConfig{
			LLMThreads:    2,
			TTSThreads:    15,
			ExtractBudget: 16000,
			AssignBudget:  8000,
			TempDir:       "/tmp/narrationcast",
		},
		Voices: types.VoiceConfig{
			OutputFormat: "mp3",
		},
	}
}
