package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StoreMemory, cfg.Schemas.Store)
	assert.Equal(t, 256, cfg.Events.BufferSize)
	assert.Equal(t, 15*time.Second, cfg.Events.HeartbeatInterval)
	assert.Equal(t, 24*time.Hour, cfg.Executions.Retention)
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PIPEWRIGHT_HTTP_PORT", "9000")
	t.Setenv("SCHEMA_STORE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_MIRROR_EVENTS", "true")
	t.Setenv("EXECUTION_RETENTION", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.GetHTTPAddr())
	assert.Equal(t, StoreRedis, cfg.Schemas.Store)
	assert.True(t, cfg.Redis.MirrorEvents)
	assert.Equal(t, time.Hour, cfg.Executions.Retention)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "bad port", mutate: func(c *Config) { c.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "unknown store", mutate: func(c *Config) { c.Schemas.Store = "s3" }, wantErr: "unsupported schema store"},
		{name: "redis store without addr", mutate: func(c *Config) { c.Schemas.Store = StoreRedis }, wantErr: "redis address is required"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Schemas.Store = StorePostgres }, wantErr: "postgres DSN is required"},
		{name: "mirror without redis", mutate: func(c *Config) { c.Redis.MirrorEvents = true }, wantErr: "mirror events"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.APIKey = "k"; c.LLM.Provider = "other" }, wantErr: "unsupported LLM provider"},
		{name: "zero buffer", mutate: func(c *Config) { c.Events.BufferSize = 0 }, wantErr: "buffer size"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "negative llm rate", mutate: func(c *Config) { c.LLM.RequestsPerSecond = -1 }, wantErr: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
