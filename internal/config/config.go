// Package config loads engine configuration from a TOML file, environment
// variables (KB_ prefix) and CLI flags, in that order of increasing priority.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds every setting spec.md §6 "Configuration recognized" lists.
type Config struct {
	// Storage.
	DBPath    string `toml:"db_path"`
	RemoteURL string `toml:"remote_url"` // non-empty selects the Postgres backend

	// Embedding service.
	EmbeddingURL       string `toml:"embedding_url"`
	EmbeddingModel     string `toml:"embedding_model"`
	EmbeddingTimeoutMS int    `toml:"embedding_timeout_ms"`
	EmbeddingDimension int    `toml:"embedding_dimension"`

	// LLM providers. Extraction (ingestion + enrichment) and planning may use
	// different providers/models.
	ExtractionProvider string `toml:"extraction_provider"`
	ExtractionModel    string `toml:"extraction_model"`
	PlanningProvider   string `toml:"planning_provider"`
	PlanningModel      string `toml:"planning_model"`
	ProviderAPIKey     string `toml:"provider_api_key"`
	ProviderRegion     string `toml:"provider_region"`
	ProviderTimeoutMS  int    `toml:"provider_timeout_ms"`

	// Ingestion.
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"`

	// Ambient.
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Gated destructive maintenance (kb_maintain).
	ManagerMode bool `toml:"manager_mode"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		DBPath:             "kb.sqlite3",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingTimeoutMS: 10_000,
		EmbeddingDimension: 1024,
		ExtractionProvider: "anthropic",
		PlanningProvider:   "anthropic",
		ProviderTimeoutMS:  20_000,
		MaxFileSizeBytes:   500 * 1024,
		LogLevel:           "info",
		LogFormat:          "console",
		ManagerMode:        false,
	}
}

// Load reads path (if non-empty and present) as a TOML overlay on Default,
// then applies KB_-prefixed environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, derr := toml.DecodeFile(path, &cfg); derr != nil {
				return cfg, derr
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	i64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	i := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v == "1" || v == "true"
		}
	}

	str("KB_DB_PATH", &cfg.DBPath)
	str("KB_REMOTE_URL", &cfg.RemoteURL)
	str("KB_EMBEDDING_URL", &cfg.EmbeddingURL)
	str("KB_EMBEDDING_MODEL", &cfg.EmbeddingModel)
	i("KB_EMBEDDING_TIMEOUT_MS", &cfg.EmbeddingTimeoutMS)
	i("KB_EMBEDDING_DIMENSION", &cfg.EmbeddingDimension)
	str("KB_EXTRACTION_PROVIDER", &cfg.ExtractionProvider)
	str("KB_EXTRACTION_MODEL", &cfg.ExtractionModel)
	str("KB_PLANNING_PROVIDER", &cfg.PlanningProvider)
	str("KB_PLANNING_MODEL", &cfg.PlanningModel)
	str("KB_PROVIDER_API_KEY", &cfg.ProviderAPIKey)
	str("KB_PROVIDER_REGION", &cfg.ProviderRegion)
	i("KB_PROVIDER_TIMEOUT_MS", &cfg.ProviderTimeoutMS)
	i64("KB_MAX_FILE_SIZE_BYTES", &cfg.MaxFileSizeBytes)
	str("KB_LOG_LEVEL", &cfg.LogLevel)
	str("KB_LOG_FORMAT", &cfg.LogFormat)
	b("KB_MANAGER_MODE", &cfg.ManagerMode)
}
