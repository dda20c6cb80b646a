// Package config loads the service configuration from an optional
// .env file, a recall config file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// TranscriptionEngine selects the provider chain.
type TranscriptionEngine string

const (
	EngineLocalSmall  TranscriptionEngine = "local-small"
	EngineLocalDistil TranscriptionEngine = "local-distil"
	EngineCloud       TranscriptionEngine = "cloud"
)

// VadEngine selects the voice-activity filter implementation.
type VadEngine string

const (
	VadSpectral VadEngine = "spectral"
	VadNeural   VadEngine = "neural"
)

// Config is the process-wide configuration record. Unknown fields in
// the config file are ignored.
type Config struct {
	TranscriptionEngine TranscriptionEngine `mapstructure:"transcription_engine"`
	VadEngine           VadEngine           `mapstructure:"vad_engine"`
	CloudAPIKey         string              `mapstructure:"cloud_api_key"`
	OutputDirectory     string              `mapstructure:"output_directory"`
	ClipDurationSeconds int                 `mapstructure:"clip_duration_seconds"`
	Devices             []string            `mapstructure:"devices"`

	// Model locations for the local engines.
	WhisperModelPath string `mapstructure:"whisper_model_path"`
	SileroModelPath  string `mapstructure:"silero_model_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".recall")
	return Config{
		TranscriptionEngine: EngineLocalSmall,
		VadEngine:           VadSpectral,
		OutputDirectory:     filepath.Join(base, "data"),
		ClipDurationSeconds: 30,
		WhisperModelPath:    filepath.Join(base, "models", "ggml-small.bin"),
		SileroModelPath:     filepath.Join(base, "models", "silero_vad.onnx"),
	}
}

// Load reads path (or the default search locations when path is
// empty) and applies environment overrides. A missing config file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	// .env first so RECALL_* and DEEPGRAM_API_KEY can live there.
	_ = godotenv.Load()

	v := viper.New()
	def := Default()
	v.SetDefault("transcription_engine", string(def.TranscriptionEngine))
	v.SetDefault("vad_engine", string(def.VadEngine))
	v.SetDefault("output_directory", def.OutputDirectory)
	v.SetDefault("clip_duration_seconds", def.ClipDurationSeconds)
	v.SetDefault("whisper_model_path", def.WhisperModelPath)
	v.SetDefault("silero_model_path", def.SileroModelPath)

	v.SetEnvPrefix("recall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recall")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".recall"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// Deepgram key can also come from the conventional variable.
	if cfg.CloudAPIKey == "" {
		cfg.CloudAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.TranscriptionEngine {
	case EngineLocalSmall, EngineLocalDistil, EngineCloud:
	default:
		return fmt.Errorf("unknown transcription_engine %q", c.TranscriptionEngine)
	}
	switch c.VadEngine {
	case VadSpectral, VadNeural:
	default:
		return fmt.Errorf("unknown vad_engine %q", c.VadEngine)
	}
	if c.ClipDurationSeconds <= 0 {
		return fmt.Errorf("clip_duration_seconds must be positive, got %d", c.ClipDurationSeconds)
	}
	return nil
}
