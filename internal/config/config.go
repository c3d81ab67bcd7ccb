// Package config loads the layered configuration: a TOML base file,
// overlaid by XAYN_-prefixed environment variables (__ as the nesting
// separator), overlaid by CLI flags.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type NetConfig struct {
	BindTo               string        `toml:"bind_to"`
	MaxBodySize          int64         `toml:"max_body_size"`
	KeepAlive            bool          `toml:"keep_alive"`
	ClientRequestTimeout time.Duration `toml:"client_request_timeout"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type PostgresConfig struct {
	URL      string `toml:"url"`
	PoolSize int    `toml:"pool_size"`
}

type ElasticConfig struct {
	URL         string `toml:"url"`
	IndexPrefix string `toml:"index_prefix"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
}

type StorageConfig struct {
	Postgres PostgresConfig `toml:"postgres"`
	Elastic  ElasticConfig  `toml:"elastic"`
}

type EmbedderConfig struct {
	ModelPath  string `toml:"model_path"`
	TokenSize  int    `toml:"token_size"`
	Endpoint   string `toml:"endpoint"`
	ProjectID  string `toml:"project_id"`
	Dimensions int    `toml:"dimensions"`
}

type IngestionConfig struct {
	MaxDocumentBatchSize    int `toml:"max_document_batch_size"`
	MaxIndexedProperties    int `toml:"max_indexed_properties"`
	MaxSnippetSize          int `toml:"max_snippet_size"`
	MaxPropertiesSize       int `toml:"max_properties_size"`
	MaxPropertiesStringSize int `toml:"max_properties_string_size"`
}

type PersonalizationConfig struct {
	StoreUserHistory      bool    `toml:"store_user_history"`
	MaxCoisForKNN         int     `toml:"max_cois_for_knn"`
	DefaultDocumentsCount int     `toml:"default_documents_count"`
	OverfetchFactor       float64 `toml:"overfetch_factor"`
	MaxPageSize           int     `toml:"max_page_size"`
}

type CoIConfig struct {
	ShiftFactor     float64   `toml:"shift_factor"`
	Threshold       float64   `toml:"threshold"`
	MinPositiveCoIs int       `toml:"min_positive_cois"`
	MinNegativeCoIs int       `toml:"min_negative_cois"`
	Horizon         time.Duration `toml:"horizon"`
	Gamma           float64   `toml:"gamma"`
	Penalty         []float64 `toml:"penalty"`
}

type TenantsConfig struct {
	EnableLegacyTenant bool `toml:"enable_legacy_tenant"`
}

// Config is the fully resolved, immutable configuration tree.
type Config struct {
	Net             NetConfig             `toml:"net"`
	Logging         LoggingConfig         `toml:"logging"`
	Storage         StorageConfig         `toml:"storage"`
	Embedder        EmbedderConfig        `toml:"embedder"`
	Ingestion       IngestionConfig       `toml:"ingestion"`
	Personalization PersonalizationConfig `toml:"personalization"`
	CoI             CoIConfig             `toml:"coi"`
	Tenants         TenantsConfig         `toml:"tenants"`
}

// Defaults returns the configuration baseline applied before the TOML
// file, env vars, and CLI flags are overlaid.
func Defaults() Config {
	return Config{
		Net: NetConfig{
			BindTo:               "0.0.0.0:8080",
			MaxBodySize:          1 << 20,
			KeepAlive:            true,
			ClientRequestTimeout: 3500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{
			Postgres: PostgresConfig{PoolSize: 25},
			Elastic:  ElasticConfig{IndexPrefix: "docs"},
		},
		Embedder: EmbedderConfig{TokenSize: 512, Dimensions: 768},
		Ingestion: IngestionConfig{
			MaxDocumentBatchSize:    100,
			MaxIndexedProperties:    20,
			MaxSnippetSize:          8192,
			MaxPropertiesSize:       16384,
			MaxPropertiesStringSize: 2048,
		},
		Personalization: PersonalizationConfig{
			StoreUserHistory:      true,
			MaxCoisForKNN:         5,
			DefaultDocumentsCount: 20,
			OverfetchFactor:       3,
			MaxPageSize:           100,
		},
		CoI: CoIConfig{
			ShiftFactor:     0.1,
			Threshold:       0.6,
			MinPositiveCoIs: 3,
			MinNegativeCoIs: 3,
			Horizon:         30 * 24 * time.Hour,
			Gamma:           0.5,
			Penalty:         []float64{1.0, 0.8, 0.6, 0.4, 0.2},
		},
		Tenants: TenantsConfig{EnableLegacyTenant: false},
	}
}

// inlinePrefix marks --config as carrying a literal TOML document
// instead of a path, e.g. `--config inline:net.bind_to = "0.0.0.0:9000"`.
const inlinePrefix = "inline:"

// Load builds the final Config by applying, in order: defaults, the TOML
// file at path (if path is non-empty) or the inline TOML document when
// path starts with inlinePrefix, XAYN_-prefixed environment overrides,
// and finally the CLI flag overrides already parsed into overrides.
func Load(path string, overrides CLIOverrides) (*Config, error) {
	cfg := Defaults()

	switch {
	case strings.HasPrefix(path, inlinePrefix):
		body := strings.TrimPrefix(path, inlinePrefix)
		if _, err := toml.Decode(body, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: decoding inline config: %w", err)
		}
	case path != "":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: decoding %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	overrides.apply(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants spec.md places on CoI configuration and
// a handful of other load-bearing fields.
func Validate(cfg *Config) error {
	if cfg.CoI.ShiftFactor <= 0 || cfg.CoI.ShiftFactor > 1 {
		return fmt.Errorf("coi.shift_factor must be in (0,1], got %v", cfg.CoI.ShiftFactor)
	}
	if cfg.CoI.Threshold < 0 || cfg.CoI.Threshold > 2 {
		return fmt.Errorf("coi.threshold must be in [0,2], got %v", cfg.CoI.Threshold)
	}
	if cfg.CoI.Gamma < 0 || cfg.CoI.Gamma > 1 {
		return fmt.Errorf("coi.gamma must be in [0,1], got %v", cfg.CoI.Gamma)
	}
	if len(cfg.CoI.Penalty) == 0 {
		return fmt.Errorf("coi.penalty must be non-empty")
	}
	for i, p := range cfg.CoI.Penalty {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("coi.penalty must be finite and positive, got %v at rank %d", p, i)
		}
		if i > 0 && p >= cfg.CoI.Penalty[i-1] {
			return fmt.Errorf("coi.penalty must be strictly descending, rank %d (%v) >= rank %d (%v)", i, p, i-1, cfg.CoI.Penalty[i-1])
		}
	}
	if cfg.Net.BindTo == "" {
		return fmt.Errorf("net.bind_to must not be empty")
	}
	return nil
}

// applyEnv overlays XAYN_-prefixed environment variables, using __ as the
// section/key nesting separator, e.g. XAYN_STORAGE__POSTGRES__URL.
func applyEnv(cfg *Config) {
	set := func(path string, assign func(string)) {
		key := "XAYN_" + strings.ToUpper(strings.ReplaceAll(path, ".", "__"))
		if v, ok := os.LookupEnv(key); ok {
			assign(v)
		}
	}

	set("net.bind_to", func(v string) { cfg.Net.BindTo = v })
	set("net.max_body_size", func(v string) { cfg.Net.MaxBodySize = mustInt64(v, cfg.Net.MaxBodySize) })
	set("net.keep_alive", func(v string) { cfg.Net.KeepAlive = mustBool(v, cfg.Net.KeepAlive) })
	set("net.client_request_timeout", func(v string) { cfg.Net.ClientRequestTimeout = mustDuration(v, cfg.Net.ClientRequestTimeout) })

	set("logging.level", func(v string) { cfg.Logging.Level = v })
	set("logging.file", func(v string) { cfg.Logging.File = v })

	set("storage.postgres.url", func(v string) { cfg.Storage.Postgres.URL = v })
	set("storage.postgres.pool_size", func(v string) { cfg.Storage.Postgres.PoolSize = mustInt(v, cfg.Storage.Postgres.PoolSize) })
	set("storage.elastic.url", func(v string) { cfg.Storage.Elastic.URL = v })
	set("storage.elastic.index_prefix", func(v string) { cfg.Storage.Elastic.IndexPrefix = v })
	set("storage.elastic.username", func(v string) { cfg.Storage.Elastic.Username = v })
	set("storage.elastic.password", func(v string) { cfg.Storage.Elastic.Password = v })

	set("embedder.model_path", func(v string) { cfg.Embedder.ModelPath = v })
	set("embedder.token_size", func(v string) { cfg.Embedder.TokenSize = mustInt(v, cfg.Embedder.TokenSize) })
	set("embedder.endpoint", func(v string) { cfg.Embedder.Endpoint = v })
	set("embedder.project_id", func(v string) { cfg.Embedder.ProjectID = v })
	set("embedder.dimensions", func(v string) { cfg.Embedder.Dimensions = mustInt(v, cfg.Embedder.Dimensions) })

	set("ingestion.max_document_batch_size", func(v string) { cfg.Ingestion.MaxDocumentBatchSize = mustInt(v, cfg.Ingestion.MaxDocumentBatchSize) })
	set("ingestion.max_indexed_properties", func(v string) { cfg.Ingestion.MaxIndexedProperties = mustInt(v, cfg.Ingestion.MaxIndexedProperties) })
	set("ingestion.max_snippet_size", func(v string) { cfg.Ingestion.MaxSnippetSize = mustInt(v, cfg.Ingestion.MaxSnippetSize) })
	set("ingestion.max_properties_size", func(v string) { cfg.Ingestion.MaxPropertiesSize = mustInt(v, cfg.Ingestion.MaxPropertiesSize) })
	set("ingestion.max_properties_string_size", func(v string) { cfg.Ingestion.MaxPropertiesStringSize = mustInt(v, cfg.Ingestion.MaxPropertiesStringSize) })

	set("personalization.store_user_history", func(v string) { cfg.Personalization.StoreUserHistory = mustBool(v, cfg.Personalization.StoreUserHistory) })
	set("personalization.max_cois_for_knn", func(v string) { cfg.Personalization.MaxCoisForKNN = mustInt(v, cfg.Personalization.MaxCoisForKNN) })
	set("personalization.default_documents_count", func(v string) { cfg.Personalization.DefaultDocumentsCount = mustInt(v, cfg.Personalization.DefaultDocumentsCount) })
	set("personalization.overfetch_factor", func(v string) { cfg.Personalization.OverfetchFactor = mustFloat(v, cfg.Personalization.OverfetchFactor) })
	set("personalization.max_page_size", func(v string) { cfg.Personalization.MaxPageSize = mustInt(v, cfg.Personalization.MaxPageSize) })

	set("coi.shift_factor", func(v string) { cfg.CoI.ShiftFactor = mustFloat(v, cfg.CoI.ShiftFactor) })
	set("coi.threshold", func(v string) { cfg.CoI.Threshold = mustFloat(v, cfg.CoI.Threshold) })
	set("coi.min_positive_cois", func(v string) { cfg.CoI.MinPositiveCoIs = mustInt(v, cfg.CoI.MinPositiveCoIs) })
	set("coi.min_negative_cois", func(v string) { cfg.CoI.MinNegativeCoIs = mustInt(v, cfg.CoI.MinNegativeCoIs) })
	set("coi.horizon", func(v string) { cfg.CoI.Horizon = mustDuration(v, cfg.CoI.Horizon) })
	set("coi.gamma", func(v string) { cfg.CoI.Gamma = mustFloat(v, cfg.CoI.Gamma) })

	set("tenants.enable_legacy_tenant", func(v string) { cfg.Tenants.EnableLegacyTenant = mustBool(v, cfg.Tenants.EnableLegacyTenant) })
}

func mustInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustInt64(v string, fallback int64) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func mustDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
