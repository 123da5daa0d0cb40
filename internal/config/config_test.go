package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// An explicit path that does not exist is an error, so point at an empty file
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.History.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.History.RetryDelay)
	assert.Equal(t, 50, cfg.API.DefaultPageSize)
	assert.Equal(t, "none", cfg.Idempotency.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, time.Minute, cfg.Idempotency.PurgeInterval)
	assert.False(t, cfg.RateLimiter.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: postgres
  host: db.internal
  name: sla
  user: sla
  password: secret
history:
  max_retries: 5
  retry_delay: 10ms
idempotency:
  backend: redis
  ttl: 1h
`)

	t.Setenv("AEGIS_SLA_SERVER_PORT", "9100")
	t.Setenv("AEGIS_SLA_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db.internal port=5432 user=sla password=secret dbname=sla sslmode=disable", cfg.Database.PostgresDSN())
	assert.Equal(t, 5, cfg.History.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.History.RetryDelay)
	assert.Equal(t, "redis", cfg.Idempotency.Backend)
	assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestLoad_ExplicitDSNWins(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://sla@localhost/sla?sslmode=disable
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://sla@localhost/sla?sslmode=disable", cfg.Database.PostgresDSN())
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres"; c.Database.Host = "" }},
		{"negative retries", func(c *Config) { c.History.MaxRetries = -1 }},
		{"max page below default", func(c *Config) { c.API.MaxPageSize = 10 }},
		{"unknown idempotency backend", func(c *Config) { c.Idempotency.Backend = "memcached" }},
		{"zero idempotency ttl", func(c *Config) { c.Idempotency.Backend = "memory"; c.Idempotency.TTL = 0 }},
		{"zero purge interval", func(c *Config) { c.Idempotency.Backend = "memory"; c.Idempotency.PurgeInterval = 0 }},
		{"rate limiter without rate", func(c *Config) { c.RateLimiter.Enabled = true; c.RateLimiter.RequestsPerSecond = 0 }},
		{"metrics on server port", func(c *Config) { c.Metrics.Port = c.Server.Port }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
