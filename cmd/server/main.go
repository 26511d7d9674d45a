// Command server wires every layer (gcpclient adapters, repositories,
// services, workers, handlers) into the HTTP router and serves it with the
// donor's graceful-shutdown shape.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/biorag/engine/internal/cache"
	"github.com/biorag/engine/internal/config"
	"github.com/biorag/engine/internal/gcpclient"
	"github.com/biorag/engine/internal/handler"
	"github.com/biorag/engine/internal/middleware"
	"github.com/biorag/engine/internal/repository"
	"github.com/biorag/engine/internal/router"
	"github.com/biorag/engine/internal/service"
	"github.com/biorag/engine/internal/worker"
)

const Version = "0.2.0"

// pdfParserAdapter narrows service.PDFParser's ParseResult (Text, Pages,
// Entities) down to worker.ParseResult (Text, Pages), since the two types
// differ and worker deliberately does not import service.
type pdfParserAdapter struct {
	inner *service.PDFParser
}

func (a *pdfParserAdapter) Extract(ctx context.Context, gcsURI, mimeType string) (*worker.ParseResult, error) {
	res, err := a.inner.Extract(ctx, gcsURI, mimeType)
	if err != nil {
		return nil, err
	}
	return &worker.ParseResult{Text: res.Text, Pages: res.Pages}, nil
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// cachedQueryEmbedder wraps a QueryEmbedder with the in-process embedding
// cache, avoiding a redundant Vertex AI call for a repeated query string.
type cachedQueryEmbedder struct {
	inner service.QueryEmbedder
	cache *cache.EmbeddingCache
}

func (c *cachedQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingQueryHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUsername, cfg.Neo4jPassword, ""))
	if err != nil {
		return fmt.Errorf("connect neo4j: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	storageAdapter, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return fmt.Errorf("build storage adapter: %w", err)
	}
	defer storageAdapter.Close()

	docAIAdapter, err := gcpclient.NewDocumentAIAdapter(ctx, cfg.GCPProject, cfg.DocAILocation)
	if err != nil {
		return fmt.Errorf("build document AI adapter: %w", err)
	}
	defer docAIAdapter.Close()

	embeddingModelName := ""
	for name := range cfg.ModelRegistry {
		embeddingModelName = name
		break
	}
	embeddingAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, embeddingModelName)
	if err != nil {
		return fmt.Errorf("build embedding adapter: %w", err)
	}

	genAIAdapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("build genai adapter: %w", err)
	}
	defer genAIAdapter.Close()

	var jobNotifier repository.JobNotifier
	if cfg.PubSubJobTopic != "" {
		notifier, err := gcpclient.NewPubSubNotifier(ctx, cfg.GCPProject, cfg.PubSubJobTopic)
		if err != nil {
			return fmt.Errorf("build pubsub notifier: %w", err)
		}
		defer notifier.Close()
		jobNotifier = notifier
	}

	var crossEncoder *gcpclient.CrossEncoderAdapter
	if endpoint := os.Getenv("RERANKER_ENDPOINT"); endpoint != "" {
		crossEncoder, err = gcpclient.NewCrossEncoderAdapter(ctx, cfg.VertexAILocation, endpoint, os.Getenv("RERANKER_MODEL_NAME"))
		if err != nil {
			return fmt.Errorf("build cross-encoder adapter: %w", err)
		}
		defer crossEncoder.Close()
	}

	chunkRepo := repository.NewChunkRepo(pool)
	bm25Repo := repository.NewBM25Repository(pool)
	ontologyRepo := repository.NewOntologyRepo(pool)
	ontologyGraphRepo := repository.NewOntologyGraphRepo(neo4jDriver)
	_ = ontologyGraphRepo // graph traversal is not yet exposed over HTTP; held for the upcoming related-terms endpoint
	ingestionRepo := repository.NewIngestionRepo(pool)
	jobRepo := repository.NewJobRepo(pool, jobNotifier)
	sessionRepo := repository.NewSessionRepo(pool)
	pdfRepo := repository.NewPDFRepo(pool)
	unifiedRepo := repository.NewUnifiedRepo(pool)
	vectorSearcher := repository.NewScopedVectorSearcher(chunkRepo, unifiedRepo)

	embedder := service.NewEmbedderService(cfg.ModelRegistry, embeddingAdapter, chunkRepo, chunkRepo, unifiedRepo, unifiedRepo)
	chunker := service.NewChunkerService(cfg.ChunkSizeTokens, float64(cfg.ChunkOverlapPercent)/100)
	textParser := gcpclient.NewTextParser(storageAdapter)
	pdfParser := service.NewPDFParser(docAIAdapter, cfg.DocAIProcessorID, textParser)
	vectorSearch := service.NewVectorSearchService(vectorSearcher)
	lexicalSearch := service.NewLexicalSearchService(bm25Repo)
	hybridSearch := service.NewHybridSearchService(vectorSearch, lexicalSearch, chunkRepo)
	mmr := service.NewMMRService()

	var rerankerSvc *service.RerankerService
	if crossEncoder != nil {
		rerankerSvc = service.NewRerankerService(crossEncoder, mmr)
	}
	generator := service.NewGeneratorService(genAIAdapter)

	pdfWorker := worker.NewPDFWorker(
		ingestionRepo, ingestionRepo, pdfRepo, storageAdapter,
		&pdfParserAdapter{inner: pdfParser}, chunker, chunkRepo, embedder,
	)

	ontologyType := envOr("ONTOLOGY_DEFAULT_TYPE", "disease")
	ontologyOboPath := os.Getenv("ONTOLOGY_DEFAULT_OBO_PATH")
	ontologyWorker := worker.NewOntologyWorker(ingestionRepo, ingestionRepo, ontologyRepo, embedder)

	pdfIngestAdapter := worker.NewPDFIngestAdapter(pdfWorker, embeddingModelName, true)
	ontologyIngestAdapter := worker.NewOntologyIngestAdapter(ontologyWorker, ontologyType, ontologyOboPath, embeddingModelName, true)

	adapters := service.NewAdapterRegistry()
	adapters.Register(service.NewPDFAdapter(pdfIngestAdapter))
	adapters.Register(service.NewOntologyAdapter(ontologyType, ontologyIngestAdapter))

	globalOptions := service.PipelineOptions{
		VectorTopK:   intPtr(cfg.VectorTopK),
		LexicalTopK:  intPtr(cfg.LexicalTopK),
		MaxResults:   intPtr(cfg.MaxResults),
		VectorWeight: floatPtr(cfg.VectorWeight),
		RerankTopK:   intPtr(cfg.RerankTopK),
		MMRLambda:    floatPtr(cfg.MMRLambda),
	}
	embeddingCache := cache.NewEmbeddingCache(cache.DefaultEmbeddingTTL())
	defer embeddingCache.Stop()
	cachedEmbedder := &cachedQueryEmbedder{inner: embeddingAdapter, cache: embeddingCache}

	pipeline := service.NewPipelineService(adapters, hybridSearch, rerankerSvc, cachedEmbedder, globalOptions, nil)

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisResultCache(cfg.RedisAddr, cache.DefaultEmbeddingTTL())
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisCache.Ping(pingCtx)
		pingCancel()
		if err != nil {
			return fmt.Errorf("run: connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		defer redisCache.Close()
		pipeline.SetResultCache(redisCache)
		log.Printf("run: search result cache backed by Redis at %s", cfg.RedisAddr)
	} else {
		queryCache := cache.New(cache.DefaultEmbeddingTTL())
		defer queryCache.Stop()
		pipeline.SetResultCache(queryCache)
		log.Printf("run: REDIS_ADDR not set, search result cache is in-process only")
	}

	orchestrator := service.NewOrchestratorService(sessionRepo, sessionRepo, sessionRepo, pipeline, generator)

	jobQueueWorker := worker.NewJobQueueWorker(jobRepo, embedder, cfg.JobPollInterval, cfg.JobMaxRetries)
	go jobQueueWorker.Run(ctx, cfg.IngestionWorkerPoolSize, "embedworker")

	var metricsReg *prometheus.Registry
	if reg, ok := prometheus.DefaultRegisterer.(*prometheus.Registry); ok {
		metricsReg = reg
	} else {
		metricsReg = prometheus.NewRegistry()
	}
	metrics := middleware.NewMetrics(metricsReg)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 120, Window: time.Minute})
	defer generalLimiter.Stop()
	questionLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 20, Window: time.Minute})
	defer questionLimiter.Stop()

	deps := &router.Dependencies{
		DB:                 pool,
		FrontendURL:        cfg.FrontendURL,
		Version:            Version,
		Metrics:            metrics,
		MetricsReg:         metricsReg,
		InternalAuthSecret: cfg.InternalAuthSecret,
		RAG: handler.RAGDeps{
			Sessions: sessionRepo,
			Asker:    orchestrator,
		},
		Ontology: handler.OntologyDeps{
			Worker:       ontologyWorker,
			Embedder:     embedder,
			Ingestions:   ingestionRepo,
			DefaultModel: embeddingModelName,
			DefaultBatch: cfg.EmbeddingBatchSize,
		},
		PDF: handler.PDFDeps{
			Worker:       pdfWorker,
			Embedder:     embedder,
			Ingestions:   ingestionRepo,
			DefaultModel: embeddingModelName,
			DefaultBatch: cfg.EmbeddingBatchSize,
		},
		GeneralRateLimiter:  generalLimiter,
		QuestionRateLimiter: questionLimiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router.New(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the question endpoint streams SSE; per-route timeouts apply elsewhere
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("biorag-engine v%s starting on port %d", Version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("received shutdown signal, shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
