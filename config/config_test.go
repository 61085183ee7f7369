package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// parse runs args through an app carrying Flags and returns the result.
func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cfg *Config
	app := &cli.App{
		Name:  "voicevault",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg = FromContext(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"voicevault"}, args...)))
	require.NotNil(t, cfg)
	return cfg
}

func TestFromContext_Defaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorageBadger, cfg.StorageDriver)
	assert.Equal(t, BlobFS, cfg.BlobDriver)
	assert.Equal(t, DispatchLocal, cfg.Dispatch)
	assert.Equal(t, "media", cfg.QueueName)
	assert.Equal(t, 1024, cfg.MaxQueuedRuns)
	assert.Equal(t, 10*time.Minute, cfg.QueryCacheTTL)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AI.TranscriptionHost)
	assert.Equal(t, "whisper-1", cfg.AI.TranscriptionModel)
	require.NoError(t, cfg.ValidateService())
}

func TestFromContext_FlagsAndEnv(t *testing.T) {
	t.Setenv("VOICEVAULT_STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/voicevault")
	t.Setenv("VOICEVAULT_S3_BUCKET", "recordings")

	cfg := parse(t,
		"--blob", "s3",
		"--ai-host", "http://ai.internal:11434",
		"--transcription-host", "http://whisper.internal:8000",
		"--max-upload-bytes", "1048576",
	)

	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/voicevault", cfg.PostgresDSN)
	assert.Equal(t, "recordings", cfg.S3.Bucket)
	assert.Equal(t, int64(1<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "http://ai.internal:11434", cfg.AI.EmbeddingHost)
	assert.Equal(t, "http://whisper.internal:8000", cfg.AI.TranscriptionHost)
	require.NoError(t, cfg.ValidateService())
	assert.Equal(t, "http://ai.internal:11434/v1", cfg.AI.EmbeddingHost, "validation normalizes hosts")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.StorageDriver = "sqlite" }},
		{"badger without path", func(c *Config) { c.BadgerPath = "" }},
		{"postgres without dsn", func(c *Config) { c.StorageDriver = StoragePostgres }},
		{"unknown blob", func(c *Config) { c.BlobDriver = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.BlobDriver = BlobS3 }},
		{"unknown dispatch", func(c *Config) { c.Dispatch = "kafka" }},
		{"queue without redis", func(c *Config) { c.Dispatch = DispatchQueue; c.RedisAddr = "" }},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }},
		{"zero run queue", func(c *Config) { c.MaxQueuedRuns = 0 }},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"bad ai config", func(c *Config) { c.AI.TranscriptionModel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.ValidateService())
		})
	}
}

func TestValidateAuth(t *testing.T) {
	cfg := parse(t)
	assert.Error(t, cfg.ValidateAuth())

	cfg = parse(t, "--jwt-secret", "0123456789abcdef")
	assert.NoError(t, cfg.ValidateAuth())
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOICEVAULT_QUEUE=archive\n"), 0o600))
	t.Setenv("VOICEVAULT_QUEUE", "")
	os.Unsetenv("VOICEVAULT_QUEUE")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "archive", os.Getenv("VOICEVAULT_QUEUE"))
	assert.Equal(t, "archive", parse(t).QueueName)
}
