package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envFileVar, filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Concurrency)
	require.Equal(t, 64, cfg.Crawler.QueueDepth)
	require.Equal(t, 1, cfg.Retry.MaxAttempts)
	require.Equal(t, "markup", cfg.Extractor.Mode)
	require.Equal(t, 8000, cfg.Extractor.MaxChars)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "none", cfg.Storage.SnapshotBackend)
	require.Equal(t, "@every 6h", cfg.Scheduler.Spec)
	require.False(t, cfg.Scheduler.Enabled)
	require.Equal(t, 1024, cfg.Notify.BufferSize)
	require.Equal(t, int64(2000), cfg.EnqueueTimeout().Milliseconds())
	require.Equal(t, float64(15), cfg.HTTPTimeout().Seconds())
}

func TestLoadWithFileOverrides(t *testing.T) {
	isolateEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout_seconds: 5
auth:
  enabled: true
  api_key: secret
crawler:
  concurrency: 6
  queue_depth: 128
  user_agent: curator-test
retry:
  max_attempts: 3
  base_delay_ms: 100
ratelimit:
  enabled: true
  per_second: 0.5
  burst: 2
extractor:
  mode: readability
llm:
  provider: anthropic
  model: claude-test
  temperature: 0.2
storage:
  backend: postgres
  snapshot_backend: gcs
  gcs_bucket: bucket
db:
  dsn: postgres://localhost/curator
  max_conns: 4
pubsub:
  project_id: proj
  topic_name: crawls
scheduler:
  enabled: true
  spec: "0 */2 * * *"
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, float64(5), cfg.ShutdownTimeout().Seconds())
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 6, cfg.Crawler.Concurrency)
	require.Equal(t, 128, cfg.Crawler.QueueDepth)
	require.Equal(t, "curator-test", cfg.Crawler.UserAgent)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 100, cfg.Retry.BaseDelayMs)
	require.InDelta(t, 0.5, cfg.RateLimit.PerSecond, 1e-9)
	require.Equal(t, 2, cfg.RateLimit.Burst)
	require.Equal(t, "readability", cfg.Extractor.Mode)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, "claude-test", cfg.LLM.Model)
	require.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	require.Equal(t, "postgres", cfg.Storage.Backend)
	require.Equal(t, "gcs", cfg.Storage.SnapshotBackend)
	require.Equal(t, "bucket", cfg.Storage.GCSBucket)
	require.Equal(t, 4, cfg.DB.MaxConns)
	require.Equal(t, "proj", cfg.PubSub.ProjectID)
	require.Equal(t, "crawls", cfg.PubSub.TopicName)
	require.True(t, cfg.Scheduler.Enabled)
	require.Equal(t, "0 */2 * * *", cfg.Scheduler.Spec)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CURATOR_SERVER_PORT", "7070")
	t.Setenv("CURATOR_LLM_API_KEY", "from-env")
	t.Setenv("CURATOR_CRAWLER_CONCURRENCY", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.LLM.APIKey)
	require.Equal(t, 2, cfg.Crawler.Concurrency)
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CURATOR_LLM_MODEL=dotenv-model\n"), 0o600))
	t.Setenv(envFileVar, path)
	// Register restoration, then unset so godotenv is free to populate it.
	t.Setenv("CURATOR_LLM_MODEL", "placeholder")
	require.NoError(t, os.Unsetenv("CURATOR_LLM_MODEL"))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "dotenv-model", cfg.LLM.Model)
}

func TestLoadMissingConfigFile(t *testing.T) {
	isolateEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			Crawler:   CrawlerConfig{Concurrency: 1, QueueDepth: 1},
			HTTP:      HTTPConfig{TimeoutSeconds: 1},
			Retry:     RetryConfig{MaxAttempts: 1},
			Extractor: ExtractorConfig{Mode: "markup"},
			LLM:       LLMConfig{Provider: "openai"},
			Storage:   StorageConfig{Backend: "memory", SnapshotBackend: "none"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"queue depth", func(c *Config) { c.Crawler.QueueDepth = 0 }, "crawler.queue_depth"},
		{"http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"retry", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"rate", func(c *Config) { c.RateLimit.Enabled = true }, "ratelimit.per_second"},
		{"extractor", func(c *Config) { c.Extractor.Mode = "vision" }, "extractor.mode"},
		{"provider", func(c *Config) { c.LLM.Provider = "local" }, "llm.provider"},
		{"dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "db.dsn"},
		{"backend", func(c *Config) { c.Storage.Backend = "mysql" }, "storage.backend"},
		{"gcs bucket", func(c *Config) { c.Storage.SnapshotBackend = "gcs" }, "storage.gcs_bucket"},
		{"snapshot", func(c *Config) { c.Storage.SnapshotBackend = "s3" }, "storage.snapshot_backend"},
		{"scheduler", func(c *Config) { c.Scheduler.Enabled = true }, "scheduler.spec"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
