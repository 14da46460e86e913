// Package config loads paperdesk configuration from defaults, an optional
// TOML file, and PAPERDESK_* environment variables, in that precedence
// order (env wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Store     StoreConfig     `toml:"store"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Ingest    IngestConfig    `toml:"ingest"`
	Retrieval RetrievalConfig `toml:"retrieval"`
}

type ServerConfig struct {
	Port     int    `toml:"port"`
	APIToken string `toml:"api_token"`
	LogLevel string `toml:"log_level"`
}

type OllamaConfig struct {
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	EmbedModel  string `toml:"embed_model"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

type StoreConfig struct {
	// Backend is "sqlite" or "qdrant".
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
}

type QdrantConfig struct {
	URL         string `toml:"url"`
	Collection  string `toml:"collection"`
	Dimension   int    `toml:"dimension"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

type IngestConfig struct {
	MaxFileSize      int64    `toml:"max_file_size"`
	SupportedFormats []string `toml:"supported_formats"`
}

type RetrievalConfig struct {
	TopK        int `toml:"top_k"`
	MaxDocChars int `toml:"max_doc_chars"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4000,
			LogLevel: "info",
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "deepseek-r1",
			EmbedModel:  "nomic-embed-text",
			TimeoutSecs: 120,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Qdrant: QdrantConfig{
			URL:         "http://localhost:6333",
			Collection:  "research_papers",
			Dimension:   768,
			TimeoutSecs: 15,
		},
		Ingest: IngestConfig{
			MaxFileSize:      32 << 20,
			SupportedFormats: []string{".pdf", ".txt"},
		},
		Retrieval: RetrievalConfig{
			TopK:        3,
			MaxDocChars: 2000,
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "paperdesk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "paperdesk-data"
	}
	return filepath.Join(home, ".paperdesk")
}

// Load builds the configuration. path selects an explicit TOML file; when
// empty, PAPERDESK_CONFIG is consulted, then ./config.toml. A missing file
// is not an error unless it was named explicitly.
func Load(path string) (Config, error) {
	cfg := defaults()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("PAPERDESK_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "config.toml"
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown store backend %q (want sqlite or qdrant)", c.Store.Backend)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxDocChars < 1 {
		return fmt.Errorf("retrieval max_doc_chars must be positive, got %d", c.Retrieval.MaxDocChars)
	}
	if c.Store.Backend == "qdrant" && c.Qdrant.Dimension < 1 {
		return fmt.Errorf("qdrant dimension must be positive, got %d", c.Qdrant.Dimension)
	}
	return nil
}
