package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/service"
)

// SessionRepo implements service.SessionStore, service.RunStore, and
// service.MessageStore: ChatSession/Message/LangGraphRun persistence for
// C10, grounded on the donor's repository package's pgx transaction idiom.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

var (
	_ service.SessionStore = (*SessionRepo)(nil)
	_ service.RunStore     = (*SessionRepo)(nil)
	_ service.MessageStore = (*SessionRepo)(nil)
)

// GetSession loads a ChatSession by ID.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var s model.ChatSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, pdf_id, total_messages, created_at, updated_at
		FROM chat_sessions WHERE id = $1`, sessionID,
	).Scan(&s.ID, &s.PDFID, &s.TotalMessages, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository.SessionRepo.GetSession: %w", err)
	}
	return &s, nil
}

// CreateSession opens a new session bound to pdfID.
func (r *SessionRepo) CreateSession(ctx context.Context, pdfID string) (*model.ChatSession, error) {
	now := time.Now().UTC()
	s := &model.ChatSession{ID: uuid.New().String(), PDFID: pdfID, CreatedAt: now, UpdatedAt: now}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, pdf_id, total_messages, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)`, s.ID, s.PDFID, now)
	if err != nil {
		return nil, fmt.Errorf("repository.SessionRepo.CreateSession: %w", err)
	}
	return s, nil
}

// StartRun inserts a RUNNING LangGraphRun row.
func (r *SessionRepo) StartRun(ctx context.Context, sessionID, pdfID, workflowName, question string, metadata json.RawMessage) (*model.LangGraphRun, error) {
	run := &model.LangGraphRun{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		WorkflowName: workflowName,
		Question:     question,
		RunMetadata:  metadata,
		Status:       model.RunRunning,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO langgraph_runs (id, session_id, workflow_name, question, run_metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.SessionID, run.WorkflowName, run.Question, run.RunMetadata, run.Status, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository.SessionRepo.StartRun: %w", err)
	}
	return run, nil
}

// FinishRun transitions a run to its terminal state.
func (r *SessionRepo) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMessage string, latencyMs int64, specialistsInvoked []string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE langgraph_runs
		SET status = $1, error_message = $2, latency_ms = $3, specialists_invoked = $4
		WHERE id = $5`, status, errMessage, latencyMs, specialistsInvoked, runID)
	if err != nil {
		return fmt.Errorf("repository.SessionRepo.FinishRun: %w", err)
	}
	return nil
}

// AppendMessage inserts a Message row and bumps the parent session's
// TotalMessages counter, both inside one transaction.
func (r *SessionRepo) AppendMessage(ctx context.Context, msg model.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.SessionRepo.AppendMessage: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	citationsJSON, err := json.Marshal(msg.Citations)
	if err != nil {
		return fmt.Errorf("repository.SessionRepo.AppendMessage: marshal citations: %w", err)
	}
	var statsJSON []byte
	if msg.RetrievalStats != nil {
		statsJSON, err = json.Marshal(msg.RetrievalStats)
		if err != nil {
			return fmt.Errorf("repository.SessionRepo.AppendMessage: marshal retrieval stats: %w", err)
		}
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, session_id, type, content, citations, retrieval_stats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, msg.SessionID, msg.Type, msg.Content, citationsJSON, nullableJSON(statsJSON), now)
	if err != nil {
		return fmt.Errorf("repository.SessionRepo.AppendMessage: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chat_sessions SET total_messages = total_messages + 1, updated_at = $2 WHERE id = $1`,
		msg.SessionID, now); err != nil {
		return fmt.Errorf("repository.SessionRepo.AppendMessage: bump count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.SessionRepo.AppendMessage: commit: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
