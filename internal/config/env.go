package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	S3Endpoint   string // set for Supabase/MinIO; empty means AWS
	BucketName   string

	RedisURL         string
	QueueBackend     string // redis | memory
	QueueName        string
	Concurrency      int
	QueueMaxAttempts int
	QueueBackoff     time.Duration

	EmbedProvider  string // huggingface | gemini | openai
	EmbedModel     string
	EmbedDim       int
	EmbedBatchSize int
	EmbedRPS       float64
	HFAPIKey       string
	HFBaseURL      string
	GeminiAPIKey   string
	OpenAIAPIKey   string

	VectorBackend  string // pgvector | qdrant | memory
	CollectionName string
	QdrantHost     string
	QdrantPort     int
	QdrantAPIKey   string
	QdrantTLS      bool

	ChunkSize    int
	ChunkOverlap int

	BlobTimeout  time.Duration
	EmbedTimeout time.Duration
	IndexTimeout time.Duration
	StoreTimeout time.Duration

	Port        string
	JWTSecret   string
	CORSOrigins []string
	MaxUploadMB int
	LogLevel    string
}

// LoadConfig loads .env, an optional TOML file, then environment variables,
// with later sources taking precedence.
func LoadConfig(configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile == "" {
		configFile = os.Getenv("TALKTRACK_CONFIG")
	}
	file := fileConfig{}
	if configFile != "" {
		var err error
		file, err = loadFile(configFile)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", file.getString("database.url", "")),
		SslCertPath: getEnv("SSL_CERT_PATH", file.getString("database.ssl_cert_path", "")),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", file.getString("storage.access_key", "")),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", file.getString("storage.secret_key", "")),
		AwsRegion:    getEnv("AWS_REGION", file.getString("storage.region", "us-east-2")),
		S3Endpoint:   getEnv("S3_ENDPOINT", file.getString("storage.endpoint", "")),
		BucketName:   getEnv("BUCKET_NAME", file.getString("storage.bucket", "talktrack-uploads")),

		RedisURL:         getEnv("REDIS_URL", getEnv("UPSTASH_REDIS_URL", file.getString("queue.redis_url", ""))),
		QueueBackend:     getEnv("QUEUE_BACKEND", file.getString("queue.backend", "redis")),
		QueueName:        getEnv("QUEUE_NAME", file.getString("queue.name", "file-upload-queue")),
		Concurrency:      getEnvInt("WORKER_CONCURRENCY", file.getInt("queue.concurrency", 10)),
		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", file.getInt("queue.max_attempts", 3)),
		QueueBackoff:     getEnvDuration("QUEUE_BACKOFF", file.getDuration("queue.backoff", 5*time.Second)),

		EmbedProvider:  getEnv("EMBED_PROVIDER", file.getString("embedding.provider", "huggingface")),
		EmbedModel:     getEnv("EMBED_MODEL", file.getString("embedding.model", "")),
		EmbedDim:       getEnvInt("EMBED_DIM", file.getInt("embedding.dim", 384)),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", file.getInt("embedding.batch_size", 64)),
		EmbedRPS:       getEnvFloat("EMBED_RPS", file.getFloat("embedding.rps", 5)),
		HFAPIKey:       getEnv("HF_API_KEY", file.getString("embedding.hf_api_key", "")),
		HFBaseURL:      getEnv("HF_BASE_URL", file.getString("embedding.hf_base_url", "")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", file.getString("embedding.gemini_api_key", "")),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", file.getString("embedding.openai_api_key", "")),

		VectorBackend:  getEnv("VECTOR_BACKEND", file.getString("vector.backend", "pgvector")),
		CollectionName: getEnv("COLLECTION_NAME", file.getString("vector.collection", "document-embeddings-hf")),
		QdrantHost:     getEnv("QDRANT_HOST", file.getString("vector.qdrant_host", "localhost")),
		QdrantPort:     getEnvInt("QDRANT_PORT", file.getInt("vector.qdrant_port", 6334)),
		QdrantAPIKey:   getEnv("QDRANT_API_KEY", file.getString("vector.qdrant_api_key", "")),
		QdrantTLS:      getEnvBool("QDRANT_TLS", file.getBool("vector.qdrant_tls", false)),

		ChunkSize:    getEnvInt("CHUNK_SIZE", file.getInt("chunking.size", 1000)),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", file.getInt("chunking.overlap", 200)),

		BlobTimeout:  getEnvDuration("BLOB_TIMEOUT", file.getDuration("timeouts.blob", 30*time.Second)),
		EmbedTimeout: getEnvDuration("EMBED_TIMEOUT", file.getDuration("timeouts.embed", 60*time.Second)),
		IndexTimeout: getEnvDuration("INDEX_TIMEOUT", file.getDuration("timeouts.index", 30*time.Second)),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", file.getDuration("timeouts.store", 10*time.Second)),

		Port:        getEnv("PORT", file.getString("http.port", "8080")),
		JWTSecret:   getEnv("JWT_SECRET", file.getString("http.jwt_secret", "")),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", file.getString("http.cors_origins", "http://localhost:3000"))),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", file.getInt("http.max_upload_mb", 10)),
		LogLevel:    getEnv("LOG_LEVEL", file.getString("log.level", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that can never work.
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Concurrency))
	}
	switch c.EmbedProvider {
	case "huggingface", "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}
	switch c.VectorBackend {
	case "pgvector", "qdrant", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	switch c.QueueBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
