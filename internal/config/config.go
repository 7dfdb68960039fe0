// Package config defines the top-level configuration for the prophecy
// resolution daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PROPHECY_* environment variables.
type Config struct {
	Generation GenerationConfig `toml:"generation"`
	Ledger     LedgerConfig     `toml:"ledger"`
	IPFS       IPFSConfig       `toml:"ipfs"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Resolver   ResolverConfig   `toml:"resolver"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// GenerationConfig holds text-generation service parameters and the retry
// discipline around it.
type GenerationConfig struct {
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key"`
	Model        string   `toml:"model"`
	MaxTokens    int      `toml:"max_tokens"`
	Temperature  float64  `toml:"temperature"`
	PacingDelay  duration `toml:"pacing_delay"`
	QuotaBackoff duration `toml:"quota_backoff"`
	RetryBackoff duration `toml:"retry_backoff"`
	MaxRetries   int      `toml:"max_retries"`
}

// LedgerConfig holds ledger RPC endpoint and executor authority parameters.
type LedgerConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ProgramID        string   `toml:"program_id"`
	AuthorityKey     string   `toml:"authority_key"` // hex seed, env-injected
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	RequestTimeout   duration `toml:"request_timeout"`
	DisburseDelay    duration `toml:"disburse_delay"`
}

// IPFSConfig holds the content-addressable store endpoint.
type IPFSConfig struct {
	APIURL     string   `toml:"api_url"`
	Gateway    string   `toml:"gateway"`
	PinTimeout duration `toml:"pin_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the transcript
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ResolverConfig holds resolution workflow parameters.
type ResolverConfig struct {
	MaxIterations int      `toml:"max_iterations"`
	LogWindow     int      `toml:"log_window"`
	LockTTL       duration `toml:"lock_ttl"`
	Workers       int      `toml:"workers"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Generation: GenerationConfig{
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:        "gemini-2.0-flash",
			MaxTokens:    2048,
			Temperature:  0.2,
			PacingDelay:  duration{4 * time.Second},
			QuotaBackoff: duration{30 * time.Second},
			RetryBackoff: duration{2 * time.Second},
			MaxRetries:   3,
		},
		Ledger: LedgerConfig{
			RPCURL:         "https://api.devnet.solana.com",
			ProgramID:      "UJW3ZdLcVxYuYDRpy6suu2DHCQhkUgCGKPUaDqdzSs4",
			RequestTimeout: duration{30 * time.Second},
			DisburseDelay:  duration{500 * time.Millisecond},
		},
		IPFS: IPFSConfig{
			APIURL:     "http://localhost:5001",
			Gateway:    "https://ipfs.io/ipfs",
			PinTimeout: duration{20 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "prophecy",
			User:          "prophecy",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "prophecy-transcripts",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Resolver: ResolverConfig{
			MaxIterations: 3,
			LogWindow:     200,
			LockTTL:       duration{10 * time.Minute},
			Workers:       4,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{
				"market_resolved", "market_unresolved", "distribution_partial",
				"market_disputed", "overturn_suggested", "pin_degraded",
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"resolver": true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: resolver, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Generation
	if c.Generation.BaseURL == "" {
		errs = append(errs, "generation: base_url must not be empty")
	}
	if c.Generation.Model == "" {
		errs = append(errs, "generation: model must not be empty")
	}
	if c.Generation.MaxRetries < 0 {
		errs = append(errs, "generation: max_retries must be >= 0")
	}

	// Ledger — every mode can reach the settlement path, so an authority key
	// source is always required.
	if c.Ledger.AuthorityKey == "" && c.Ledger.EncryptedKeyPath == "" {
		errs = append(errs, "ledger: either authority_key or encrypted_key_path must be set")
	}
	if c.Ledger.EncryptedKeyPath != "" && c.Ledger.KeyPassword == "" {
		errs = append(errs, "ledger: key_password is required when encrypted_key_path is set")
	}
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if c.Ledger.ProgramID == "" {
		errs = append(errs, "ledger: program_id must not be empty")
	}

	// IPFS
	if c.IPFS.APIURL == "" {
		errs = append(errs, "ipfs: api_url must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis — an empty addr selects in-process coordination, valid only for
	// single-instance deployments.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Resolver
	if c.Resolver.MaxIterations < 1 {
		errs = append(errs, "resolver: max_iterations must be >= 1")
	}
	if c.Resolver.LogWindow < 1 {
		errs = append(errs, "resolver: log_window must be >= 1")
	}
	if c.Resolver.Workers < 1 {
		errs = append(errs, "resolver: workers must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
