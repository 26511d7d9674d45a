package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/biorag/engine/internal/model"
)

// SessionStore loads and creates ChatSessions.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	CreateSession(ctx context.Context, pdfID string) (*model.ChatSession, error)
}

// RunStore persists LangGraphRun lifecycle transitions.
type RunStore interface {
	StartRun(ctx context.Context, sessionID, pdfID, workflowName, question string, metadata json.RawMessage) (*model.LangGraphRun, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMessage string, latencyMs int64, specialistsInvoked []string) error
}

// MessageStore appends session messages and keeps the session's message count current.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg model.Message) error
}

// SSEEvent is one event in the §6 SSE grammar:
// start, delta*, final?, end  |  start, (delta|error)*, end.
type SSEEvent struct {
	Type               string           `json:"type"`
	Content            string           `json:"content,omitempty"`
	Answer             string           `json:"answer,omitempty"`
	Citations          []model.Citation `json:"citations,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	SpecialistResults  map[string]any   `json:"specialistResults,omitempty"`
	SpecialistsInvoked []string         `json:"specialistsInvoked,omitempty"`
	Message            string           `json:"message,omitempty"`
}

// QuestionResult is the non-streaming JSON response shape, identical in
// content to the "final" SSE event.
type QuestionResult struct {
	Answer             string
	Citations          []model.Citation
	Metadata           map[string]any
	SpecialistResults  map[string]any
	SpecialistsInvoked []string
}

// OrchestratorService is C10: the streaming Q&A orchestrator. Grounded on
// the donor's former chat.go SSE setup and the original rag_endpoints.py
// prepare-then-stream protocol.
type OrchestratorService struct {
	sessions  SessionStore
	runs      RunStore
	messages  MessageStore
	pipeline  *PipelineService
	generator *GeneratorService
}

// NewOrchestratorService creates an OrchestratorService.
func NewOrchestratorService(sessions SessionStore, runs RunStore, messages MessageStore, pipeline *PipelineService, generator *GeneratorService) *OrchestratorService {
	return &OrchestratorService{sessions: sessions, runs: runs, messages: messages, pipeline: pipeline, generator: generator}
}

// prepared holds everything the "prepare" phase (§4.10 step 3) produces.
type prepared struct {
	prompt             string
	context            string
	citations          []model.Citation
	specialistResults  map[string]any
	metadata           map[string]any
	specialistsInvoked []string
}

func (o *OrchestratorService) prepare(ctx context.Context, pdfID, question string) (prepared, error) {
	result, _, err := o.pipeline.Search(ctx, "pdf", pdfID, question, "", PipelineOptions{})
	if err != nil {
		return prepared{}, fmt.Errorf("service.Orchestrator.prepare: %w", err)
	}

	var contextParts []string
	citations := make([]model.Citation, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		contextParts = append(contextParts, c.Text)
		citations = append(citations, model.Citation{
			ChunkID:    c.ChunkID,
			SourceType: "pdf",
			SourceID:   pdfID,
			Excerpt:    excerpt(c.Text, 240),
			Relevance:  c.CombinedScore,
		})
	}
	retrievedContext := strings.Join(contextParts, "\n\n")

	prompt := fmt.Sprintf("Answer the question using only the context below.\n\nContext:\n%s\n\nQuestion: %s", retrievedContext, question)

	metadata := map[string]any{
		"vectorCandidates":  result.Metadata.VectorCandidates,
		"lexicalCandidates": result.Metadata.LexicalCandidates,
		"overlapCount":      result.Metadata.OverlapCount,
		"finalCount":        result.Metadata.FinalCount,
	}

	return prepared{
		prompt:             prompt,
		context:            retrievedContext,
		citations:          citations,
		specialistResults:  map[string]any{},
		metadata:           metadata,
		specialistsInvoked: []string{},
	}, nil
}

func excerpt(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// AskQuestionJSON implements §4.10's non-streaming path: a single
// synchronous response with the same fields as the "final" SSE event.
func (o *OrchestratorService) AskQuestionJSON(ctx context.Context, sessionID, question string) (QuestionResult, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("service.Orchestrator.AskQuestionJSON: %w", err)
	}

	started := time.Now()
	run, err := o.runs.StartRun(ctx, session.ID, session.PDFID, "general_supervisor", question, nil)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("service.Orchestrator.AskQuestionJSON: start run: %w", err)
	}

	p, err := o.prepare(ctx, session.PDFID, question)
	if err != nil {
		o.finishFailed(ctx, run.ID, started, err)
		return QuestionResult{}, err
	}

	answer, err := o.generator.Generate(ctx, "", p.prompt)
	if err != nil {
		o.finishFailed(ctx, run.ID, started, err)
		return QuestionResult{}, fmt.Errorf("service.Orchestrator.AskQuestionJSON: generate: %w", err)
	}

	o.persistExchange(ctx, session.ID, question, answer, p)
	o.finishSucceeded(ctx, run.ID, started, p.specialistsInvoked)

	return QuestionResult{
		Answer:             answer,
		Citations:          p.citations,
		Metadata:           p.metadata,
		SpecialistResults:  p.specialistResults,
		SpecialistsInvoked: p.specialistsInvoked,
	}, nil
}

// AskQuestionStream implements §4.10's SSE path. emit is called once per
// event in strict grammar order; a non-nil return from emit (e.g. the
// client disconnected) stops the stream early but the run is still
// persisted with whatever state was reached, per the finally-semantics of
// §4.10 step 4.
func (o *OrchestratorService) AskQuestionStream(ctx context.Context, sessionID, question string, emit func(SSEEvent) error) error {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("service.Orchestrator.AskQuestionStream: %w", err)
	}

	started := time.Now()
	run, err := o.runs.StartRun(ctx, session.ID, session.PDFID, "general_supervisor", question, nil)
	if err != nil {
		return fmt.Errorf("service.Orchestrator.AskQuestionStream: start run: %w", err)
	}

	var accumulated strings.Builder
	var finalSent bool
	var p prepared

	streamErr := func() error {
		if err := emit(SSEEvent{Type: "start"}); err != nil {
			return err
		}

		p, err = o.prepare(ctx, session.PDFID, question)
		if err != nil {
			return err
		}

		textCh, errCh := o.generator.Stream(ctx, "", p.prompt)
		for textCh != nil || errCh != nil {
			select {
			case chunk, ok := <-textCh:
				if !ok {
					textCh = nil
					continue
				}
				accumulated.WriteString(chunk)
				if err := emit(SSEEvent{Type: "delta", Content: chunk}); err != nil {
					return err
				}
			case genErr, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if genErr != nil {
					return genErr
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := emit(SSEEvent{
			Type:               "final",
			Answer:             accumulated.String(),
			Citations:          p.citations,
			Metadata:           p.metadata,
			SpecialistResults:  p.specialistResults,
			SpecialistsInvoked: p.specialistsInvoked,
		}); err != nil {
			return err
		}
		finalSent = true
		return nil
	}()

	if streamErr != nil {
		_ = emit(SSEEvent{Type: "error", Message: streamErr.Error()})
	}
	_ = emit(SSEEvent{Type: "end"})

	answer := accumulated.String()
	if finalSent {
		o.persistExchange(ctx, session.ID, question, answer, p)
		o.finishSucceeded(ctx, run.ID, started, p.specialistsInvoked)
		return nil
	}

	// No final event was produced: persist only the question and mark the
	// run failed, per the exact wording of §4.10's scenario for pre-final
	// failure (the accumulated delta buffer is not promoted to an AI message).
	_ = o.messages.AppendMessage(ctx, model.Message{
		SessionID: session.ID,
		Type:      model.MessageUserQuestion,
		Content:   question,
	})
	o.finishFailed(ctx, run.ID, started, streamErr)
	return streamErr
}

func (o *OrchestratorService) persistExchange(ctx context.Context, sessionID, question, answer string, p prepared) {
	_ = o.messages.AppendMessage(ctx, model.Message{
		SessionID: sessionID,
		Type:      model.MessageUserQuestion,
		Content:   question,
	})
	_ = o.messages.AppendMessage(ctx, model.Message{
		SessionID: sessionID,
		Type:      model.MessageAIResponse,
		Content:   answer,
		Citations: p.citations,
		RetrievalStats: &model.RetrievalStats{
			VectorCandidates:  toInt(p.metadata["vectorCandidates"]),
			LexicalCandidates: toInt(p.metadata["lexicalCandidates"]),
			OverlapCount:      toInt(p.metadata["overlapCount"]),
			FinalCount:        toInt(p.metadata["finalCount"]),
		},
	})
}

func (o *OrchestratorService) finishSucceeded(ctx context.Context, runID string, started time.Time, specialistsInvoked []string) {
	_ = o.runs.FinishRun(ctx, runID, model.RunSucceeded, "", time.Since(started).Milliseconds(), specialistsInvoked)
}

func (o *OrchestratorService) finishFailed(ctx context.Context, runID string, started time.Time, err error) {
	_ = o.runs.FinishRun(ctx, runID, model.RunFailed, err.Error(), time.Since(started).Milliseconds(), nil)
}

func toInt(v any) int {
	i, _ := v.(int)
	return i
}
