package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns Defaults with the fields filled in that have no sane
// default, so Validate passes.
func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.AuthorityKey = "aa"
	return cfg
}

func TestDefaultsValidateWithAuthorityKey(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"UnknownMode", func(c *Config) { c.Mode = "hybrid" }, "unknown mode"},
		{"UnknownLogLevel", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"MissingGenerationModel", func(c *Config) { c.Generation.Model = "" }, "generation: model"},
		{"MissingAuthorityKey", func(c *Config) { c.Ledger.AuthorityKey = "" }, "authority_key or encrypted_key_path"},
		{"EncryptedKeyWithoutPassword", func(c *Config) {
			c.Ledger.AuthorityKey = ""
			c.Ledger.EncryptedKeyPath = "/etc/prophecy/key.json"
		}, "key_password is required"},
		{"MissingLedgerRPC", func(c *Config) { c.Ledger.RPCURL = "" }, "ledger: rpc_url"},
		{"MissingIPFSAPI", func(c *Config) { c.IPFS.APIURL = "" }, "ipfs: api_url"},
		{"BadPostgresPort", func(c *Config) { c.Postgres.Port = 70000 }, "postgres: port"},
		{"PoolMinExceedsMax", func(c *Config) { c.Postgres.PoolMinConns = 50 }, "pool_min_conns"},
		{"RedisZeroPool", func(c *Config) { c.Redis.PoolSize = 0 }, "redis: pool_size"},
		{"S3EnabledWithoutBucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"ZeroIterations", func(c *Config) { c.Resolver.MaxIterations = 0 }, "max_iterations"},
		{"ZeroWorkers", func(c *Config) { c.Resolver.Workers = 0 }, "workers"},
		{"BadServerPort", func(c *Config) { c.Server.Port = 0 }, "server: port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidateAllowsInProcessCoordination(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.Redis.PoolSize = 0
	require.NoError(t, cfg.Validate(), "empty redis addr selects the in-process fallback")
}

func TestValidateSkipsHostChecksWithDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://prophecy@db/prophecy"
	cfg.Postgres.Host = ""
	cfg.Postgres.Port = 0
	cfg.Postgres.Database = ""
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.IPFS.APIURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "ipfs: api_url")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "resolver"
log_level = "debug"

[ledger]
authority_key = "aa"
request_timeout = "45s"

[resolver]
max_iterations = 2

[redis]
addr = ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "resolver", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Ledger.RequestTimeout.Duration)
	assert.Equal(t, 2, cfg.Resolver.MaxIterations)
	assert.Empty(t, cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, "gemini-2.0-flash", cfg.Generation.Model)
	assert.Equal(t, 200, cfg.Resolver.LogWindow)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ledger]
authority_key = "aa"
`), 0o600))

	t.Setenv("PROPHECY_MODE", "server")
	t.Setenv("PROPHECY_LEDGER_AUTHORITY_KEY", "bb")
	t.Setenv("PROPHECY_POSTGRES_PORT", "5433")
	t.Setenv("PROPHECY_S3_ENABLED", "true")
	t.Setenv("PROPHECY_IPFS_PIN_TIMEOUT", "5s")
	t.Setenv("PROPHECY_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "bb", cfg.Ledger.AuthorityKey, "env wins over file")
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 5*time.Second, cfg.IPFS.PinTimeout.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)

	var back duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d.Duration, back.Duration)

	require.Error(t, back.UnmarshalText([]byte("soon")))
}
