package model

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes the two message roles persisted in a session.
type MessageType string

const (
	MessageUserQuestion MessageType = "USER_QUESTION"
	MessageAIResponse   MessageType = "AI_RESPONSE"
)

// ChatSession binds a conversation to a PDF. Sessions own messages;
// TotalMessages increments by exactly 2 per answered question.
type ChatSession struct {
	ID            string    `json:"id"`
	PDFID         string    `json:"pdfId"`
	TotalMessages int       `json:"totalMessages"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Citation is one reference attached to an AI_RESPONSE message.
type Citation struct {
	ChunkID    string  `json:"chunkId"`
	SourceType string  `json:"sourceType"`
	SourceID   string  `json:"sourceId"`
	Label      string  `json:"label"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Relevance  float64 `json:"relevance,omitempty"`
}

// RetrievalStats summarizes the retrieval that produced an AI_RESPONSE,
// carried for observability, not re-derived from the run record.
type RetrievalStats struct {
	VectorCandidates  int `json:"vectorCandidates"`
	LexicalCandidates int `json:"lexicalCandidates"`
	OverlapCount      int `json:"overlapCount"`
	FinalCount        int `json:"finalCount"`
}

// Message is one append-only row in a ChatSession.
type Message struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"sessionId"`
	Type           MessageType     `json:"type"`
	Content        string          `json:"content"`
	Citations      []Citation      `json:"citations,omitempty"`
	RetrievalStats *RetrievalStats `json:"retrievalStats,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// RunStatus is a LangGraphRun's terminal or in-flight state.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// LangGraphRun captures per-question telemetry: what specialists ran, how
// long it took, and a snapshot of the orchestration state for replay/audit.
type LangGraphRun struct {
	ID                 string          `json:"id"`
	SessionID          string          `json:"sessionId"`
	WorkflowName        string         `json:"workflowName"`
	Question           string          `json:"question"`
	RunMetadata        json.RawMessage `json:"runMetadata,omitempty"`
	StateSnapshot      json.RawMessage `json:"stateSnapshot,omitempty"`
	SpecialistsInvoked []string        `json:"specialistsInvoked,omitempty"`
	LatencyMs          int64           `json:"latencyMs"`
	Status             RunStatus       `json:"status"`
	ErrorMessage       string          `json:"errorMessage,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}
