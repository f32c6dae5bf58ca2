package types

// Config represents the overall application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Voices    VoiceConfig     `yaml:"voices" json:"voices"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"write_timeout"` // seconds
}

// StorageConfig defines storage adapter settings
type StorageConfig struct {
	Adapter string            `yaml:"adapter" json:"adapter"` // "local" or "s3"
	Local   LocalStorageOpts  `yaml:"local" json:"local"`
	S3      S3StorageOpts     `yaml:"s3" json:"s3"`
	Options map[string]string `yaml:"options" json:"options"` // Additional adapter-specific options
}

// LocalStorageOpts configures the local filesystem adapter
type LocalStorageOpts struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

// S3StorageOpts configures the S3-compatible adapter
type S3StorageOpts struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
}

// ProvidersConfig holds all provider configurations
type ProvidersConfig struct {
	LLM []LLMProviderConfig `yaml:"llm" json:"llm"`
	TTS []TTSProviderConfig `yaml:"tts" json:"tts"`
}

// LLMProviderConfig configures an LLM provider
type LLMProviderConfig struct {
	Name          string            `yaml:"name" json:"name"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Endpoint      string            `yaml:"endpoint" json:"endpoint"`
	APIKey        string            `yaml:"api_key" json:"api_key"`
	Model         string            `yaml:"model" json:"model"`
	ContextWindow int               `yaml:"context_window" json:"context_window"`
	TimeoutSec    int               `yaml:"timeout_sec" json:"timeout_sec"` // not read; the OpenAI client applies a fixed 120 s per-call timeout
	Options       map[string]string `yaml:"options" json:"options"`
}

// TTSProviderConfig configures a TTS provider
type TTSProviderConfig struct {
	Name          string            `yaml:"name" json:"name"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Endpoint      string            `yaml:"endpoint" json:"endpoint"`
	APIKey        string            `yaml:"api_key" json:"api_key"`
	ReadTimeoutSec int              `yaml:"read_timeout_sec" json:"read_timeout_sec"` // not read; the TTS connection sets no per-read deadline
	TimestampPrec string            `yaml:"timestamp_precision" json:"timestamp_precision"` // "word" or "sentence"
	Options       map[string]string `yaml:"options" json:"options"`
}

// PipelineConfig holds pipeline-level settings
type PipelineConfig struct {
	LLMThreads     int    `yaml:"llm_threads" json:"llm_threads"`         // 1-10, default 2
	TTSThreads     int    `yaml:"tts_threads" json:"tts_threads"`         // 1-30, default 15
	ExtractBudget  int    `yaml:"extract_budget" json:"extract_budget"`   // chars/4 budget, default 16000
	AssignBudget   int    `yaml:"assign_budget" json:"assign_budget"`     // chars/4 budget, default 8000
	TempDir        string `yaml:"temp_dir" json:"temp_dir"`

	// PronunciationDictionary maps source substrings to replacement text,
	// applied as case-sensitive substring replacement before synthesis.
	// Empty/nil disables the pass.
	PronunciationDictionary map[string]string `yaml:"pronunciation_dictionary" json:"pronunciation_dictionary"`
}

// VoiceConfig holds the voice pool and per-conversion TTS tuning
type VoiceConfig struct {
	NarratorVoice  string   `yaml:"narrator_voice" json:"narrator_voice"`
	EnabledVoices  []string `yaml:"enabled_voices" json:"enabled_voices"`
	Rate           int      `yaml:"rate" json:"rate"`     // -50..+100 (%)
	Pitch          int      `yaml:"pitch" json:"pitch"`   // -50..+50 (Hz)
	OutputFormat   string   `yaml:"output_format" json:"output_format"` // "mp3", "opus", "wav"
	SilenceRemoval bool     `yaml:"silence_removal" json:"silence_removal"`
	Normalization  bool     `yaml:"normalization" json:"normalization"`
}
