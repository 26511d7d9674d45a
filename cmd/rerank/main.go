// Command rerank scores a candidate set against a query with the C5
// cross-encoder and optional MMR diversification, reading candidates from a
// JSON file and writing ranked results to stdout. Grounded on the donor's
// reranker.py invoked as a standalone scoring step.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/biorag/engine/internal/gcpclient"
	"github.com/biorag/engine/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rerank",
		Short:         "Cross-encoder rerank a candidate set",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRerankCmd())
	return cmd
}

type candidatesFile struct {
	Query      string          `json:"query"`
	Candidates []fileCandidate `json:"candidates"`
}

type fileCandidate struct {
	ChunkID        string         `json:"chunk_id"`
	Text           string         `json:"text"`
	RetrieverScore float64        `json:"retriever_score"`
	Embedding      []float32      `json:"embedding,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type rerankOutputRow struct {
	ChunkID       string         `json:"chunk_id"`
	RerankScore   float64        `json:"rerank_score"`
	CombinedScore float64        `json:"combined_score"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Rank          int            `json:"rank"`
}

func newRerankCmd() *cobra.Command {
	var candidatesPath string
	var query string
	var topK int
	var applyMMR bool
	var lambda float64

	cmd := &cobra.Command{
		Use:   "rerank",
		Short: "Score and rank candidates read from --candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(candidatesPath)
			if err != nil {
				return fmt.Errorf("rerank: read candidates file: %w", err)
			}
			var input candidatesFile
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("rerank: parse candidates file: %w", err)
			}

			effectiveQuery := query
			if effectiveQuery == "" {
				effectiveQuery = input.Query
			}
			if effectiveQuery == "" {
				return fmt.Errorf("rerank: query is required, either --query or the candidates file's \"query\" field")
			}

			metaByID := make(map[string]map[string]any, len(input.Candidates))
			candidates := make([]service.RerankCandidate, len(input.Candidates))
			for i, c := range input.Candidates {
				candidates[i] = service.RerankCandidate{
					ChunkID:        c.ChunkID,
					Text:           c.Text,
					RetrieverScore: c.RetrieverScore,
					Embedding:      c.Embedding,
				}
				metaByID[c.ChunkID] = c.Metadata
			}

			ctx := cmd.Context()
			encoder, err := buildCrossEncoder(ctx)
			if err != nil {
				return err
			}
			defer encoder.Close()

			reranker := service.NewRerankerService(encoder, service.NewMMRService())
			results, err := reranker.Rerank(ctx, effectiveQuery, candidates, topK, applyMMR, lambda)
			if err != nil {
				return fmt.Errorf("rerank: %w", err)
			}

			out := make([]rerankOutputRow, len(results))
			for i, r := range results {
				out[i] = rerankOutputRow{
					ChunkID:       r.ChunkID,
					RerankScore:   r.RerankScore,
					CombinedScore: r.CombinedScore,
					Metadata:      metaByID[r.ChunkID],
					Rank:          r.Rank,
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&candidatesPath, "candidates", "", "path to a candidates JSON file (required)")
	cmd.Flags().StringVar(&query, "query", "", "query text, overrides the candidates file's \"query\" field")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results to keep")
	cmd.Flags().BoolVar(&applyMMR, "mmr", false, "diversify the top results with maximal-marginal-relevance")
	cmd.Flags().Float64Var(&lambda, "lambda", 0.5, "MMR relevance/diversity tradeoff in [0,1]")
	cmd.MarkFlagRequired("candidates")

	return cmd
}

func buildCrossEncoder(ctx context.Context) (*gcpclient.CrossEncoderAdapter, error) {
	location := envOr("VERTEX_AI_LOCATION", "us-east4")
	endpoint := os.Getenv("RERANKER_ENDPOINT")
	modelName := envOr("RERANKER_MODEL_NAME", "cross-encoder")
	if endpoint == "" {
		return nil, fmt.Errorf("rerank: RERANKER_ENDPOINT is required")
	}
	encoder, err := gcpclient.NewCrossEncoderAdapter(ctx, location, endpoint, modelName)
	if err != nil {
		return nil, fmt.Errorf("rerank: build cross-encoder: %w", err)
	}
	return encoder, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
