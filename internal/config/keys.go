package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kInt64
	kStringList
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "PAPERDESK_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "PAPERDESK_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "PAPERDESK_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.LogLevel = v.(string) },
	},
	{
		env: "PAPERDESK_OLLAMA_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
	},
	{
		env: "PAPERDESK_OLLAMA_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
	},
	{
		env: "PAPERDESK_OLLAMA_EMBED_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
	},
	{
		env: "PAPERDESK_OLLAMA_TIMEOUT_SECS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Ollama.TimeoutSecs = v.(int) },
	},
	{
		env: "PAPERDESK_STORE_BACKEND", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Store.Backend = v.(string) },
	},
	{
		env: "PAPERDESK_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Store.DataDir = v.(string) },
	},
	{
		env: "PAPERDESK_QDRANT_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Qdrant.URL = v.(string) },
	},
	{
		env: "PAPERDESK_QDRANT_COLLECTION", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Qdrant.Collection = v.(string) },
	},
	{
		env: "PAPERDESK_QDRANT_DIMENSION", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Qdrant.Dimension = v.(int) },
	},
	{
		env: "PAPERDESK_MAX_FILE_SIZE", typ: kInt64,
		apply: func(cfg *Config, v any) { cfg.Ingest.MaxFileSize = v.(int64) },
	},
	{
		env: "PAPERDESK_SUPPORTED_FORMATS", typ: kStringList,
		apply: func(cfg *Config, v any) { cfg.Ingest.SupportedFormats = v.([]string) },
	},
	{
		env: "PAPERDESK_RETRIEVAL_TOP_K", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		env: "PAPERDESK_RETRIEVAL_MAX_DOC_CHARS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Retrieval.MaxDocChars = v.(int) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kInt64:
			if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kStringList:
			parts := strings.Split(raw, ",")
			list := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					list = append(list, p)
				}
			}
			s.apply(cfg, list)
		}
	}
}
