// Package config loads server configuration from environment variables with
// an optional TOML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the server.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Storage   StorageConfig
	Compiler  CompilerConfig
	Explorer  ExplorerConfig
	Metadata  MetadataConfig
	Chains    ChainsConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// SessionConfig holds verification session settings.
type SessionConfig struct {
	TTLMinutes     int
	SweepMinutes   int
	CookieName     string
	MaxBatchSize   int // max wrappers verified concurrently per request
	MaxSessionSize int // max accumulated file bytes per session
}

// StorageConfig holds result store configuration.
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string
}

// CompilerConfig holds the compiler service endpoint settings.
type CompilerConfig struct {
	URL            string
	TimeoutSeconds int
}

// ExplorerConfig holds block-explorer import settings.
type ExplorerConfig struct {
	APIKey         string
	TimeoutSeconds int
}

// MetadataConfig holds metadata resolver (IPFS gateway) settings.
type MetadataConfig struct {
	GatewayURL     string
	TimeoutSeconds int
}

// ChainsConfig points at the YAML chain catalog.
type ChainsConfig struct {
	File          string
	RPCTimeoutSec int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds security filter settings.
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling.
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// overlay is the shape of the optional attestry.toml file. Only fields that
// are present override the environment-derived values.
type overlay struct {
	Server struct {
		Port *int    `toml:"port"`
		Host *string `toml:"host"`
	} `toml:"server"`
	Storage struct {
		Type        *string `toml:"type"`
		SQLitePath  *string `toml:"sqlite_path"`
		PostgresURL *string `toml:"postgres_url"`
	} `toml:"storage"`
	Compiler struct {
		URL *string `toml:"url"`
	} `toml:"compiler"`
	Chains struct {
		File *string `toml:"file"`
	} `toml:"chains"`
	Logging struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"logging"`
}

// configFileCandidates are checked in order when ATTESTRY_CONFIG is unset.
var configFileCandidates = []string{"attestry.toml"}

// Load loads configuration from environment variables, then applies the TOML
// overlay file if one exists.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 5555),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 120),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Session: SessionConfig{
			TTLMinutes:     getEnvInt("SESSION_TTL_MINUTES", 30),
			SweepMinutes:   getEnvInt("SESSION_SWEEP_MINUTES", 10),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "attestry.sid"),
			MaxBatchSize:   getEnvInt("SESSION_MAX_BATCH", 10),
			MaxSessionSize: getEnvInt("SESSION_MAX_BYTES", 20*1024*1024),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/attestry.db"),
			},
		},
		Compiler: CompilerConfig{
			URL:            getEnv("COMPILER_URL", "http://localhost:5556"),
			TimeoutSeconds: getEnvInt("COMPILER_TIMEOUT", 60),
		},
		Explorer: ExplorerConfig{
			APIKey:         getEnv("EXPLORER_API_KEY", ""),
			TimeoutSeconds: getEnvInt("EXPLORER_TIMEOUT", 20),
		},
		Metadata: MetadataConfig{
			GatewayURL:     getEnv("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			TimeoutSeconds: getEnvInt("IPFS_TIMEOUT", 20),
		},
		Chains: ChainsConfig{
			File:          getEnv("CHAINS_FILE", ""),
			RPCTimeoutSec: getEnvInt("RPC_TIMEOUT", 15),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 120),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 30),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 30),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres.
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if err := applyOverlay(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOverlay merges the optional TOML config file into cfg.
func applyOverlay(cfg *Config) error {
	path := os.Getenv("ATTESTRY_CONFIG")
	if path == "" {
		for _, candidate := range configFileCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}

	var o overlay
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if o.Server.Port != nil {
		cfg.Server.Port = *o.Server.Port
	}
	if o.Server.Host != nil {
		cfg.Server.Host = *o.Server.Host
	}
	if o.Storage.Type != nil {
		cfg.Storage.Type = *o.Storage.Type
	}
	if o.Storage.SQLitePath != nil {
		cfg.Storage.SQLite.Path = *o.Storage.SQLitePath
	}
	if o.Storage.PostgresURL != nil {
		cfg.Storage.Postgres.URL = *o.Storage.PostgresURL
	}
	if o.Compiler.URL != nil {
		cfg.Compiler.URL = *o.Compiler.URL
	}
	if o.Chains.File != nil {
		cfg.Chains.File = *o.Chains.File
	}
	if o.Logging.Level != nil {
		cfg.Logging.Level = *o.Logging.Level
	}
	if o.Logging.Format != nil {
		cfg.Logging.Format = *o.Logging.Format
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
