// Package config loads the application configuration from config.yaml
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the pipeline needs to run.
type Config struct {
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Processing ProcessingConfig `mapstructure:"processing"`
}

// OracleConfig selects and configures the inference backend.
type OracleConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"apiKey"`
	BaseURL        string `mapstructure:"baseUrl"`
	ChatModel      string `mapstructure:"chatModel"`
	EmbeddingModel string `mapstructure:"embeddingModel"`
	OllamaBaseURL  string `mapstructure:"ollamaBaseUrl"`
	OllamaPort     int    `mapstructure:"ollamaPort"`
	OllamaModel    string `mapstructure:"ollamaModel"`
}

// StorageConfig locates the output tree and the optional Postgres index.
type StorageConfig struct {
	OutputDir    string `mapstructure:"outputDir"`
	DownloadsDir string `mapstructure:"downloadsDir"`
	PostgresURL  string `mapstructure:"postgresUrl"`
}

// ProcessingConfig carries the default pipeline knobs; CLI flags
// override them per run.
type ProcessingConfig struct {
	DurationSeconds int `mapstructure:"durationSeconds"`
	MaxFrames       int `mapstructure:"maxFrames"`
	BatchSize       int `mapstructure:"batchSize"`
	MaxVideos       int `mapstructure:"maxVideos"`
}

// Load reads config.yaml from the working directory, applies defaults,
// and lets environment variables override file values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("oracle.provider", "openai")
	v.SetDefault("oracle.chatModel", "gpt-4o")
	v.SetDefault("oracle.embeddingModel", "text-embedding-3-small")
	v.SetDefault("oracle.ollamaBaseUrl", "http://localhost")
	v.SetDefault("oracle.ollamaPort", 11434)
	v.SetDefault("oracle.ollamaModel", "llama3.2-vision:11b")
	v.SetDefault("storage.outputDir", "batch_outputs")
	v.SetDefault("storage.downloadsDir", "")
	v.SetDefault("processing.durationSeconds", 20)
	v.SetDefault("processing.maxFrames", 20)
	v.SetDefault("processing.batchSize", 5)
	v.SetDefault("processing.maxVideos", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Oracle.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.Oracle.BaseURL = url
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		cfg.Oracle.ChatModel = model
	}
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		cfg.Storage.PostgresURL = url
	}

	return &cfg, nil
}

// Validate checks that the selected oracle backend is usable.
func (c *Config) Validate() error {
	var problems []string

	switch c.Oracle.Provider {
	case "openai":
		if strings.TrimSpace(c.Oracle.APIKey) == "" {
			problems = append(problems, "an OpenAI API key is required (set OPENAI_API_KEY or oracle.apiKey)")
		}
	case "ollama":
		if strings.TrimSpace(c.Oracle.OllamaModel) == "" {
			problems = append(problems, "an Ollama model is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown oracle provider %q", c.Oracle.Provider))
	}

	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		problems = append(problems, "an output directory is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
