// Command ingest-ontology parses an OBO file and replaces the corresponding
// ontology scope's terms, relations, and unified chunks, grounded on the
// donor's ingest_ontology.py standalone entrypoint.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/biorag/engine/internal/gcpclient"
	"github.com/biorag/engine/internal/repository"
	"github.com/biorag/engine/internal/service"
	"github.com/biorag/engine/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var ontologyType, sourceID, oboPath, embeddingModel string
	var autoEmbed bool

	cmd := &cobra.Command{
		Use:           "ingest-ontology",
		Short:         "Parse an OBO file and replace an ontology scope",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbURL := os.Getenv("DATABASE_URL")
			if dbURL == "" {
				return fmt.Errorf("ingest-ontology: DATABASE_URL is required")
			}
			pool, err := repository.NewPool(ctx, dbURL, 4)
			if err != nil {
				return fmt.Errorf("ingest-ontology: connect: %w", err)
			}
			defer pool.Close()

			ingestionRepo := repository.NewIngestionRepo(pool)
			ontologyRepo := repository.NewOntologyRepo(pool)
			unifiedRepo := repository.NewUnifiedRepo(pool)
			chunkRepo := repository.NewChunkRepo(pool)

			model := embeddingModel
			if model == "" {
				model = envOr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004")
			}

			var embedder worker.OntologyEmbedder
			if autoEmbed {
				project := os.Getenv("GOOGLE_CLOUD_PROJECT")
				if project == "" {
					return fmt.Errorf("ingest-ontology: GOOGLE_CLOUD_PROJECT is required when --auto-embed is set")
				}
				location := envOr("VERTEX_AI_EMBEDDING_LOCATION", envOr("GCP_REGION", "us-east4"))
				embedClient, err := gcpclient.NewEmbeddingAdapter(ctx, project, location, model)
				if err != nil {
					return fmt.Errorf("ingest-ontology: build embedding client: %w", err)
				}
				registry := service.ModelRegistry{
					model: {
						Dimensions:       envInt("EMBEDDING_DIMENSIONS", 768),
						DefaultVersion:   envOr("VERTEX_AI_EMBEDDING_MODEL_VERSION", "v1"),
						MaxBatchSize:     envInt("EMBEDDING_MAX_BATCH_SIZE", 250),
						DefaultBatchSize: envInt("EMBEDDING_BATCH_SIZE", 32),
					},
				}
				embedder = service.NewEmbedderService(registry, embedClient, chunkRepo, chunkRepo, unifiedRepo, unifiedRepo)
			}

			w := worker.NewOntologyWorker(ingestionRepo, ingestionRepo, ontologyRepo, embedder)

			if err := w.Ingest(ctx, ontologyType, sourceID, oboPath, model, autoEmbed); err != nil {
				return fmt.Errorf("ingest-ontology: %w", err)
			}

			status, err := w.Status(ctx, ontologyType, sourceID)
			if err != nil {
				return fmt.Errorf("ingest-ontology: read status: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"type":     ontologyType,
				"sourceId": sourceID,
				"state":    status,
			})
		},
	}

	cmd.Flags().StringVar(&ontologyType, "type", "", "ontology type, e.g. \"go\", \"mondo\" (required)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "ontology source identifier (required)")
	cmd.Flags().StringVar(&oboPath, "obo-path", "", "path to the OBO file to ingest (required)")
	cmd.Flags().StringVar(&embeddingModel, "embedding-model", "", "embedding model name, defaults to VERTEX_AI_EMBEDDING_MODEL")
	cmd.Flags().BoolVar(&autoEmbed, "auto-embed", false, "embed the ingested chunks immediately after commit")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("source-id")
	cmd.MarkFlagRequired("obo-path")

	return cmd
}

func envOr(key, fallback string) string {
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
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
