// Package config loads application configuration from environment
// variables, donor-style: typed helpers with fallbacks, required keys
// failing fast.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/biorag/engine/internal/service"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	DocAIProcessorID  string
	DocAILocation     string
	GCSBucketName     string
	PubSubJobTopic    string

	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string

	RedisAddr string

	InternalAuthSecret string
	FrontendURL        string

	ChunkSizeTokens     int
	ChunkOverlapPercent int

	VectorTopK   int
	LexicalTopK  int
	MaxResults   int
	VectorWeight float64
	RerankTopK   int
	MMRLambda    float64

	IngestionWorkerPoolSize int
	EmbeddingBatchSize      int
	JobPollInterval         time.Duration
	JobMaxRetries           int

	// ModelRegistry seeds service.EmbedderService's per-model dimensions,
	// default version, and batch size bounds. Only one model is wired by
	// default (text-embedding-004); additional entries can be added without
	// a code change once a second Vertex AI embedding model is approved.
	ModelRegistry service.ModelRegistry
}

// Load reads configuration from environment variables. DATABASE_URL and
// GOOGLE_CLOUD_PROJECT are required, and INTERNAL_AUTH_SECRET is required
// whenever ENVIRONMENT is not "development"; every other key has a default.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	embeddingModel := envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004")
	embeddingDimensions := envInt("EMBEDDING_DIMENSIONS", 768)

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		DocAIProcessorID:  envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:     envStr("DOCUMENT_AI_LOCATION", "us"),
		GCSBucketName:     envStr("GCS_BUCKET_NAME", ""),
		PubSubJobTopic:    envStr("PUBSUB_JOB_TOPIC", ""),

		Neo4jURI:      envStr("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUsername: envStr("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: envStr("NEO4J_PASSWORD", ""),

		RedisAddr: envStr("REDIS_ADDR", ""),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
		FrontendURL:        envStr("FRONTEND_URL", "http://localhost:3000"),

		ChunkSizeTokens:     envInt("CHUNK_SIZE_TOKENS", 768),
		ChunkOverlapPercent: envInt("CHUNK_OVERLAP_PERCENT", 20),

		VectorTopK:   envInt("VECTOR_TOP_K", 40),
		LexicalTopK:  envInt("LEXICAL_TOP_K", 40),
		MaxResults:   envInt("MAX_RESULTS", 20),
		VectorWeight: envFloat("VECTOR_WEIGHT", 0.5),
		RerankTopK:   envInt("RERANK_TOP_K", 10),
		MMRLambda:    envFloat("MMR_LAMBDA", 0.5),

		IngestionWorkerPoolSize: envInt("INGESTION_WORKER_POOL_SIZE", 4),
		EmbeddingBatchSize:      envInt("EMBEDDING_BATCH_SIZE", 32),
		JobPollInterval:         envDuration("JOB_POLL_INTERVAL", 2*time.Second),
		JobMaxRetries:           envInt("JOB_MAX_RETRIES", 3),

		ModelRegistry: service.ModelRegistry{
			embeddingModel: {
				Dimensions:       embeddingDimensions,
				DefaultVersion:   envStr("VERTEX_AI_EMBEDDING_MODEL_VERSION", "v1"),
				MaxBatchSize:     envInt("EMBEDDING_MAX_BATCH_SIZE", 250),
				DefaultBatchSize: envInt("EMBEDDING_BATCH_SIZE", 32),
			},
		},
	}

	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
