// Package config gathers service settings from command-line flags and the
// environment. An optional .env file is loaded first so its values act as
// environment defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/blob/s3"
	"github.com/poiesic/voicevault/media"
	"github.com/urfave/cli/v2"
)

// Storage drivers.
const (
	StorageBadger   = "badger"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobFS = "fs"
	BlobS3 = "s3"
)

// Dispatch modes.
const (
	DispatchLocal = "local"
	DispatchQueue = "queue"
)

// Config is the complete service configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	JWTSecret       string
	JWTIssuer       string

	StorageDriver string
	BadgerPath    string
	PostgresDSN   string

	BlobDriver string
	BlobRoot   string
	S3         s3.Config

	Dispatch         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	QueueName        string
	QueueConcurrency int

	PoolSize         int
	MaxQueuedRuns    int
	EmbedConcurrency int
	MaxUploadBytes   int64
	SkipTopics       bool

	QueryCacheSize int
	QueryCacheTTL  time.Duration

	AI *ai.Config
}

// LoadEnv loads path into the process environment. A missing file is not
// an error; variables already set win over the file.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Flags returns the service flags, each bound to an environment variable.
func Flags() []cli.Flag {
	defaults := ai.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{Name: "http-addr", Usage: "HTTP listen address", Value: ":8080", EnvVars: []string{"VOICEVAULT_HTTP_ADDR"}},
		&cli.DurationFlag{Name: "shutdown-timeout", Usage: "Graceful shutdown timeout", Value: 15 * time.Second, EnvVars: []string{"VOICEVAULT_SHUTDOWN_TIMEOUT"}},
		&cli.StringFlag{Name: "jwt-secret", Usage: "HS256 secret for bearer tokens", EnvVars: []string{"VOICEVAULT_JWT_SECRET"}},
		&cli.StringFlag{Name: "jwt-issuer", Usage: "Required token issuer (empty accepts any)", EnvVars: []string{"VOICEVAULT_JWT_ISSUER"}},

		&cli.StringFlag{Name: "storage", Usage: "Metadata store: badger or postgres", Value: StorageBadger, EnvVars: []string{"VOICEVAULT_STORAGE"}},
		&cli.StringFlag{Name: "db", Aliases: []string{"d"}, Usage: "Path to BadgerDB database directory", Value: "data/db", EnvVars: []string{"VOICEVAULT_DB"}},
		&cli.StringFlag{Name: "postgres-dsn", Usage: "PostgreSQL connection string", EnvVars: []string{"VOICEVAULT_POSTGRES_DSN", "DATABASE_URL"}},

		&cli.StringFlag{Name: "blob", Usage: "Blob store: fs or s3", Value: BlobFS, EnvVars: []string{"VOICEVAULT_BLOB"}},
		&cli.StringFlag{Name: "blob-root", Usage: "Root directory of the fs blob store", Value: "data/blobs", EnvVars: []string{"VOICEVAULT_BLOB_ROOT"}},
		&cli.StringFlag{Name: "s3-bucket", Usage: "S3 bucket", EnvVars: []string{"VOICEVAULT_S3_BUCKET"}},
		&cli.StringFlag{Name: "s3-region", Usage: "S3 region", EnvVars: []string{"VOICEVAULT_S3_REGION", "AWS_REGION"}},
		&cli.StringFlag{Name: "s3-endpoint", Usage: "S3-compatible endpoint URL", EnvVars: []string{"VOICEVAULT_S3_ENDPOINT"}},
		&cli.StringFlag{Name: "s3-access-key", Usage: "S3 access key", EnvVars: []string{"VOICEVAULT_S3_ACCESS_KEY"}},
		&cli.StringFlag{Name: "s3-secret-key", Usage: "S3 secret key", EnvVars: []string{"VOICEVAULT_S3_SECRET_KEY"}},
		&cli.BoolFlag{Name: "s3-path-style", Usage: "Use path-style S3 addressing", EnvVars: []string{"VOICEVAULT_S3_PATH_STYLE"}},

		&cli.StringFlag{Name: "dispatch", Usage: "Run dispatch: local or queue", Value: DispatchLocal, EnvVars: []string{"VOICEVAULT_DISPATCH"}},
		&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the task queue", Value: "localhost:6379", EnvVars: []string{"VOICEVAULT_REDIS_ADDR"}},
		&cli.StringFlag{Name: "redis-password", Usage: "Redis password", EnvVars: []string{"VOICEVAULT_REDIS_PASSWORD"}},
		&cli.IntFlag{Name: "redis-db", Usage: "Redis database number", EnvVars: []string{"VOICEVAULT_REDIS_DB"}},
		&cli.StringFlag{Name: "queue", Usage: "Task queue name", Value: "media", EnvVars: []string{"VOICEVAULT_QUEUE"}},
		&cli.IntFlag{Name: "queue-concurrency", Usage: "Tasks a worker runs at once", Value: 2, EnvVars: []string{"VOICEVAULT_QUEUE_CONCURRENCY"}},

		&cli.IntFlag{Name: "pool-size", Usage: "Concurrent local pipeline runs", Value: 4, EnvVars: []string{"VOICEVAULT_POOL_SIZE"}},
		&cli.IntFlag{Name: "max-queued-runs", Usage: "Local pipeline runs that may wait for a worker", Value: 1024, EnvVars: []string{"VOICEVAULT_MAX_QUEUED_RUNS"}},
		&cli.IntFlag{Name: "embed-concurrency", Usage: "Concurrent embedding calls per run", Value: 4, EnvVars: []string{"VOICEVAULT_EMBED_CONCURRENCY"}},
		&cli.Int64Flag{Name: "max-upload-bytes", Usage: "Largest accepted upload", Value: media.DefaultMaxBytes, EnvVars: []string{"VOICEVAULT_MAX_UPLOAD_BYTES"}},
		&cli.BoolFlag{Name: "skip-topics", Usage: "Do not extract topics", EnvVars: []string{"VOICEVAULT_SKIP_TOPICS"}},

		&cli.IntFlag{Name: "query-cache-size", Usage: "Cached query embeddings (0 disables)", Value: 256, EnvVars: []string{"VOICEVAULT_QUERY_CACHE_SIZE"}},
		&cli.DurationFlag{Name: "query-cache-ttl", Usage: "Lifetime of a cached query embedding", Value: 10 * time.Minute, EnvVars: []string{"VOICEVAULT_QUERY_CACHE_TTL"}},

		&cli.StringFlag{Name: "ai-host", Usage: "Default host for every AI service", Value: defaults.EmbeddingHost, EnvVars: []string{"VOICEVAULT_AI_HOST"}},
		&cli.StringFlag{Name: "ai-api-key", Usage: "API key sent to AI services", EnvVars: []string{"VOICEVAULT_AI_API_KEY", "OPENAI_API_KEY"}},
		&cli.StringFlag{Name: "embedding-host", Usage: "Embedding service host URL (defaults to ai-host)", EnvVars: []string{"VOICEVAULT_EMBEDDING_HOST"}},
		&cli.StringFlag{Name: "embedding-model", Usage: "Embedding model name", Value: defaults.EmbeddingModel, EnvVars: []string{"VOICEVAULT_EMBEDDING_MODEL"}},
		&cli.StringFlag{Name: "classifier-host", Usage: "Topic extraction host URL (defaults to ai-host)", EnvVars: []string{"VOICEVAULT_CLASSIFIER_HOST"}},
		&cli.StringFlag{Name: "classifier-model", Usage: "Topic extraction model name", Value: defaults.ClassifierModel, EnvVars: []string{"VOICEVAULT_CLASSIFIER_MODEL"}},
		&cli.StringFlag{Name: "transcription-host", Usage: "Speech-to-text host URL (defaults to ai-host)", EnvVars: []string{"VOICEVAULT_TRANSCRIPTION_HOST"}},
		&cli.StringFlag{Name: "transcription-model", Usage: "Speech-to-text model name", Value: defaults.TranscriptionModel, EnvVars: []string{"VOICEVAULT_TRANSCRIPTION_MODEL"}},
		&cli.IntFlag{Name: "max-topics", Usage: "Topics kept per recording", Value: defaults.MaxTopics, EnvVars: []string{"VOICEVAULT_MAX_TOPICS"}},
		&cli.DurationFlag{Name: "ai-timeout", Usage: "Timeout of embedding and topic calls", Value: defaults.RequestTimeout, EnvVars: []string{"VOICEVAULT_AI_TIMEOUT"}},
		&cli.DurationFlag{Name: "transcription-timeout", Usage: "Timeout of one transcription request", Value: defaults.TranscriptionTimeout, EnvVars: []string{"VOICEVAULT_TRANSCRIPTION_TIMEOUT"}},
	}
}

// FromContext reads the flags registered by Flags.
func FromContext(c *cli.Context) *Config {
	host := c.String("ai-host")
	orHost := func(name string) string {
		if v := c.String(name); v != "" {
			return v
		}
		return host
	}

	return &Config{
		HTTPAddr:        c.String("http-addr"),
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		JWTSecret:       c.String("jwt-secret"),
		JWTIssuer:       c.String("jwt-issuer"),

		StorageDriver: c.String("storage"),
		BadgerPath:    c.String("db"),
		PostgresDSN:   c.String("postgres-dsn"),

		BlobDriver: c.String("blob"),
		BlobRoot:   c.String("blob-root"),
		S3: s3.Config{
			Bucket:       c.String("s3-bucket"),
			Region:       c.String("s3-region"),
			Endpoint:     c.String("s3-endpoint"),
			AccessKey:    c.String("s3-access-key"),
			SecretKey:    c.String("s3-secret-key"),
			UsePathStyle: c.Bool("s3-path-style"),
		},

		Dispatch:         c.String("dispatch"),
		RedisAddr:        c.String("redis-addr"),
		RedisPassword:    c.String("redis-password"),
		RedisDB:          c.Int("redis-db"),
		QueueName:        c.String("queue"),
		QueueConcurrency: c.Int("queue-concurrency"),

		PoolSize:         c.Int("pool-size"),
		MaxQueuedRuns:    c.Int("max-queued-runs"),
		EmbedConcurrency: c.Int("embed-concurrency"),
		MaxUploadBytes:   c.Int64("max-upload-bytes"),
		SkipTopics:       c.Bool("skip-topics"),

		QueryCacheSize: c.Int("query-cache-size"),
		QueryCacheTTL:  c.Duration("query-cache-ttl"),

		AI: ai.NewConfig(
			ai.WithAPIKey(c.String("ai-api-key")),
			ai.WithEmbeddingHost(orHost("embedding-host")),
			ai.WithEmbeddingModel(c.String("embedding-model")),
			ai.WithClassifierHost(orHost("classifier-host")),
			ai.WithClassifierModel(c.String("classifier-model")),
			ai.WithTranscriptionHost(orHost("transcription-host")),
			ai.WithTranscriptionModel(c.String("transcription-model")),
			ai.WithMaxTopics(c.Int("max-topics")),
			ai.WithRequestTimeout(c.Duration("ai-timeout")),
			ai.WithTranscriptionTimeout(c.Duration("transcription-timeout")),
		),
	}
}

// ValidateStorage checks the store and blob settings every command needs.
func (c *Config) ValidateStorage() error {
	switch c.StorageDriver {
	case StorageBadger:
		if c.BadgerPath == "" {
			return errors.New("database path is required")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres-dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage %q: must be %s or %s", c.StorageDriver, StorageBadger, StoragePostgres)
	}

	switch c.BlobDriver {
	case BlobFS:
		if c.BlobRoot == "" {
			return errors.New("blob-root is required for fs blobs")
		}
	case BlobS3:
		if c.S3.Bucket == "" {
			return errors.New("s3-bucket is required for s3 blobs")
		}
	default:
		return fmt.Errorf("unknown blob store %q: must be %s or %s", c.BlobDriver, BlobFS, BlobS3)
	}
	return nil
}

// ValidateService checks everything the server and worker need.
func (c *Config) ValidateService() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	switch c.Dispatch {
	case DispatchLocal:
	case DispatchQueue:
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required for queue dispatch")
		}
	default:
		return fmt.Errorf("unknown dispatch %q: must be %s or %s", c.Dispatch, DispatchLocal, DispatchQueue)
	}
	if c.PoolSize <= 0 {
		return errors.New("pool-size must be greater than 0")
	}
	if c.MaxQueuedRuns <= 0 {
		return errors.New("max-queued-runs must be greater than 0")
	}
	if c.EmbedConcurrency <= 0 {
		return errors.New("embed-concurrency must be greater than 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max-upload-bytes must be greater than 0")
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}
	return nil
}

// ValidateAuth checks the token settings of the HTTP server.
func (c *Config) ValidateAuth() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("jwt-secret must be at least 16 bytes")
	}
	return nil
}
