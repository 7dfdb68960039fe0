package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PROPHECY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PROPHECY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Generation ──
	setStr(&cfg.Generation.BaseURL, "PROPHECY_GENERATION_BASE_URL")
	setStr(&cfg.Generation.APIKey, "PROPHECY_GENERATION_API_KEY")
	setStr(&cfg.Generation.Model, "PROPHECY_GENERATION_MODEL")
	setInt(&cfg.Generation.MaxTokens, "PROPHECY_GENERATION_MAX_TOKENS")
	setFloat64(&cfg.Generation.Temperature, "PROPHECY_GENERATION_TEMPERATURE")
	setDuration(&cfg.Generation.PacingDelay, "PROPHECY_GENERATION_PACING_DELAY")
	setDuration(&cfg.Generation.QuotaBackoff, "PROPHECY_GENERATION_QUOTA_BACKOFF")
	setDuration(&cfg.Generation.RetryBackoff, "PROPHECY_GENERATION_RETRY_BACKOFF")
	setInt(&cfg.Generation.MaxRetries, "PROPHECY_GENERATION_MAX_RETRIES")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "PROPHECY_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.ProgramID, "PROPHECY_LEDGER_PROGRAM_ID")
	setStr(&cfg.Ledger.AuthorityKey, "PROPHECY_LEDGER_AUTHORITY_KEY")
	setStr(&cfg.Ledger.EncryptedKeyPath, "PROPHECY_LEDGER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Ledger.KeyPassword, "PROPHECY_LEDGER_KEY_PASSWORD")
	setDuration(&cfg.Ledger.RequestTimeout, "PROPHECY_LEDGER_REQUEST_TIMEOUT")
	setDuration(&cfg.Ledger.DisburseDelay, "PROPHECY_LEDGER_DISBURSE_DELAY")

	// ── IPFS ──
	setStr(&cfg.IPFS.APIURL, "PROPHECY_IPFS_API_URL")
	setStr(&cfg.IPFS.Gateway, "PROPHECY_IPFS_GATEWAY")
	setDuration(&cfg.IPFS.PinTimeout, "PROPHECY_IPFS_PIN_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PROPHECY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PROPHECY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PROPHECY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PROPHECY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PROPHECY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PROPHECY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PROPHECY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PROPHECY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PROPHECY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PROPHECY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PROPHECY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PROPHECY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PROPHECY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PROPHECY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PROPHECY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PROPHECY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PROPHECY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PROPHECY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PROPHECY_S3_REGION")
	setStr(&cfg.S3.Bucket, "PROPHECY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PROPHECY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PROPHECY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PROPHECY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PROPHECY_S3_FORCE_PATH_STYLE")

	// ── Resolver ──
	setInt(&cfg.Resolver.MaxIterations, "PROPHECY_RESOLVER_MAX_ITERATIONS")
	setInt(&cfg.Resolver.LogWindow, "PROPHECY_RESOLVER_LOG_WINDOW")
	setDuration(&cfg.Resolver.LockTTL, "PROPHECY_RESOLVER_LOCK_TTL")
	setInt(&cfg.Resolver.Workers, "PROPHECY_RESOLVER_WORKERS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PROPHECY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PROPHECY_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "PROPHECY_SERVER_AUTH_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "PROPHECY_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PROPHECY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PROPHECY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PROPHECY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PROPHECY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PROPHECY_MODE")
	setStr(&cfg.LogLevel, "PROPHECY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
