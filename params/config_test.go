package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadPriority(t *testing.T) {
	yamlPath := writeFile(t, "node.yaml", `
api:
  addr: ":9000"
queue:
  workers: 4
  max_attempts: 5
  backoff_base: 250ms
engine:
  build_delay: 10ms
venues:
  failure_rate: 0.1
`)
	envPath := writeFile(t, ".env", "QUEUE_WORKERS=6\nLOG_LEVEL=debug\n")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("ENGINE_SUBMIT_DELAY_MS", "20")
	t.Setenv("API_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	// godotenv sets LOG_LEVEL for the whole process
	t.Cleanup(func() { _ = os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	// yaml over defaults
	assert.Equal(t, ":9000", cfg.API.Addr)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.BuildDelay)
	assert.Equal(t, 0.1, cfg.Venues.FailureRate)
	assert.Equal(t, 30*time.Second, cfg.Queue.BackoffMax)

	// .env over yaml, env over .env
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.SubmitDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.AllowedOrigins)
}

func TestLoadMissingYAML(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"no attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"backoff max below base", func(c *Config) { c.Queue.BackoffMax = time.Millisecond }},
		{"latency inverted", func(c *Config) { c.Venues.MinLatency = time.Second }},
		{"failure rate", func(c *Config) { c.Venues.FailureRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
