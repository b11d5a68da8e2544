package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/assist"
	"github.com/spf13/viper"
)

type Config struct {
	Storage StorageConfig
	Assist  AssistConfig
	Server  ServerConfig
	Sweep   SweepConfig
	Log     LogConfig
}

type StorageConfig struct {
	Root     string
	Database string
}

type AssistConfig struct {
	Provider     string
	Model        string
	Timeout      time.Duration
	Temperature  float64
	OllamaURL    string
	OpenAIKey    string
	OpenAIURL    string
	GeminiAPIKey string
}

type ServerConfig struct {
	Port          string
	MaxUploadSize int64
}

type SweepConfig struct {
	Grace time.Duration
}

type LogConfig struct {
	Level string
}

// Load reads configuration from defaults and the environment. The caller
// is expected to have loaded any .env file already.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("LIFEINDEX_ROOT", "./lifeindex-data")
	v.SetDefault("LIFEINDEX_DB", "")
	v.SetDefault("ASSIST_PROVIDER", "ollama")
	v.SetDefault("ASSIST_MODEL", "")
	v.SetDefault("ASSIST_TIMEOUT", "60s")
	v.SetDefault("ASSIST_TEMPERATURE", 0.1)
	v.SetDefault("OLLAMA_URL", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("SERVER_PORT", "8888")
	v.SetDefault("SERVER_MAX_UPLOAD_SIZE", 20*1024*1024) // 20MB
	v.SetDefault("SWEEP_GRACE", "1h")
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Storage: StorageConfig{
			Root:     v.GetString("LIFEINDEX_ROOT"),
			Database: v.GetString("LIFEINDEX_DB"),
		},
		Assist: AssistConfig{
			Provider:     strings.ToLower(v.GetString("ASSIST_PROVIDER")),
			Model:        v.GetString("ASSIST_MODEL"),
			Timeout:      v.GetDuration("ASSIST_TIMEOUT"),
			Temperature:  v.GetFloat64("ASSIST_TEMPERATURE"),
			OllamaURL:    v.GetString("OLLAMA_URL"),
			OpenAIKey:    v.GetString("OPENAI_API_KEY"),
			OpenAIURL:    v.GetString("OPENAI_BASE_URL"),
			GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
		},
		Server: ServerConfig{
			Port:          v.GetString("SERVER_PORT"),
			MaxUploadSize: v.GetInt64("SERVER_MAX_UPLOAD_SIZE"),
		},
		Sweep: SweepConfig{
			Grace: v.GetDuration("SWEEP_GRACE"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	// OLLAMA_HOST is what the ollama CLI itself reads
	if cfg.Assist.OllamaURL == "" {
		cfg.Assist.OllamaURL = os.Getenv("OLLAMA_HOST")
	}
	if cfg.Assist.Model == "" {
		cfg.Assist.Model = assist.DefaultModel(cfg.Assist.Provider)
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = filepath.Join(cfg.Storage.Root, "lifeindex.db")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("LIFEINDEX_ROOT must not be empty")
	}
	switch c.Assist.Provider {
	case "ollama", "openai", "gemini", "none":
	default:
		return fmt.Errorf("unsupported ASSIST_PROVIDER %q", c.Assist.Provider)
	}
	if c.Assist.Timeout <= 0 {
		return fmt.Errorf("ASSIST_TIMEOUT must be positive, got %s", c.Assist.Timeout)
	}
	if c.Sweep.Grace < 0 {
		return fmt.Errorf("SWEEP_GRACE must not be negative, got %s", c.Sweep.Grace)
	}
	return nil
}

// ProviderConfig returns the backend settings for assist.NewProvider.
func (c *Config) ProviderConfig() assist.ProviderConfig {
	return assist.ProviderConfig{
		OllamaURL:    c.Assist.OllamaURL,
		OpenAIKey:    c.Assist.OpenAIKey,
		OpenAIURL:    c.Assist.OpenAIURL,
		GeminiAPIKey: c.Assist.GeminiAPIKey,
	}
}

// LogLevel parses Log.Level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
