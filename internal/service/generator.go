package service

import (
	"context"
	"fmt"
)

// LLMClient streams an answer for a (systemPrompt, userPrompt) pair. Text
// chunks arrive on textCh in arrival order; errCh carries at most one error.
// Both channels close when generation finishes.
type LLMClient interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateContentStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// GeneratorService is the thin LLM wrapper the orchestrator (C10) drives
// during the streaming phase. Grounded on the kept gcpclient.GenAIAdapter's
// channel-based streaming contract.
type GeneratorService struct {
	client LLMClient
}

// NewGeneratorService creates a GeneratorService.
func NewGeneratorService(client LLMClient) *GeneratorService {
	return &GeneratorService{client: client}
}

// Generate produces a complete answer without streaming.
func (g *GeneratorService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	answer, err := g.client.GenerateContent(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("service.Generator.Generate: %w", err)
	}
	return answer, nil
}

// Stream produces an answer token-by-token. Returns the same channel shape
// as the underlying LLMClient so the orchestrator can forward deltas
// directly into SSE events.
func (g *GeneratorService) Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	return g.client.GenerateContentStream(ctx, systemPrompt, userPrompt)
}
