package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8650"
	defaultDataDir       = "./data/lendingd"
	defaultNonceCapacity = 4096
	defaultStreamBuffer  = 64
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	Environment   string                     `yaml:"environment"`
	DataDir       string                     `yaml:"data_dir"`
	GenesisPath   string                     `yaml:"genesis"`
	AllowMigrate  bool                       `yaml:"allow_migrate"`
	TLS           TLSConfig                  `yaml:"tls"`
	Auth          AuthConfig                 `yaml:"auth"`
	Signatures    SignatureConfig            `yaml:"signatures"`
	CORS          CORSConfig                 `yaml:"cors"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	Indexer       IndexerConfig              `yaml:"indexer"`
	Stream        StreamConfig               `yaml:"stream"`
	Log           LogConfig                  `yaml:"log"`
	Telemetry     TelemetryConfig            `yaml:"telemetry"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures the optional JWT bearer gate. Admin routes require
// AdminScope when the gate is enabled.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmac_secret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ScopeClaim     string        `yaml:"scope_claim"`
	AdminScope     string        `yaml:"admin_scope"`
	OptionalPaths  []string      `yaml:"optional_paths"`
	AllowAnonymous bool          `yaml:"allow_anonymous"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
}

// SignatureConfig bounds signed request envelopes.
type SignatureConfig struct {
	TimestampSkew time.Duration `yaml:"timestamp_skew"`
	NonceTTL      time.Duration `yaml:"nonce_ttl"`
	NonceCapacity int           `yaml:"nonce_capacity"`
	// NonceStore is a LevelDB directory keeping used nonces across restarts.
	// Empty keeps them in memory only.
	NonceStore string `yaml:"nonce_store"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// IndexerConfig selects the SQL store for committed events.
type IndexerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Driver is "postgres" or "sqlite".
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	ExportDir string `yaml:"export_dir"`
}

type StreamConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TelemetryConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	Metrics  bool              `yaml:"metrics"`
	Traces   bool              `yaml:"traces"`
}

// LoadEnv reads KEY=VALUE files into the process environment. Missing files
// are skipped and variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the YAML configuration from disk, applies LENDINGD_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("LENDINGD_LISTEN", &cfg.ListenAddress)
	str("LENDINGD_ENV", &cfg.Environment)
	str("LENDINGD_DATA_DIR", &cfg.DataDir)
	str("LENDINGD_GENESIS", &cfg.GenesisPath)
	str("LENDINGD_JWT_SECRET", &cfg.Auth.HMACSecret)
	str("LENDINGD_INDEXER_DSN", &cfg.Indexer.DSN)
	str("LENDINGD_LOG_LEVEL", &cfg.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	if v, ok := lookup("LENDINGD_ALLOW_MIGRATE"); ok {
		allow, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LENDINGD_ALLOW_MIGRATE: %w", err)
		}
		cfg.AllowMigrate = allow
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = "prod"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if cfg.Auth.AdminScope == "" {
		cfg.Auth.AdminScope = "lending:admin"
	}
	cfg.Auth.OptionalPaths = trimAll(cfg.Auth.OptionalPaths)
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	if cfg.Signatures.NonceCapacity <= 0 {
		cfg.Signatures.NonceCapacity = defaultNonceCapacity
	}
	cfg.Signatures.NonceStore = strings.TrimSpace(cfg.Signatures.NonceStore)
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = "sqlite"
	}
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Indexer.ExportDir = strings.TrimSpace(cfg.Indexer.ExportDir)
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = defaultStreamBuffer
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required when auth is enabled")
	}
	for route, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must not be negative", route)
		}
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "postgres":
			if cfg.Indexer.DSN == "" {
				return fmt.Errorf("indexer: dsn is required for postgres")
			}
		case "sqlite":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
		}
	}
	return nil
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	return nil
}

// Enabled reports whether the server should terminate TLS.
func (cfg TLSConfig) Enabled() bool { return cfg.CertPath != "" }

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
