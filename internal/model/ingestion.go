package model

import (
	"encoding/json"
	"time"
)

// IngestionState is the ingestion status FSM's current state.
type IngestionState string

const (
	IngestionNotIndexed IngestionState = "NOT_INDEXED"
	IngestionIndexing   IngestionState = "INDEXING"
	IngestionReady      IngestionState = "READY"
	IngestionError      IngestionState = "ERROR"
)

// FileInfo fingerprints the source artifact a worker last ingested, so a
// re-ingest can be diagnosed after the fact.
type FileInfo struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Mtime  int64  `json:"mtime"`
	SHA256 string `json:"sha256"`
}

// IngestionStatus is the single row per (source_type, source_id) that
// workers own exclusively. Message is always a serialized JSON object;
// readers must tolerate missing keys.
type IngestionStatus struct {
	SourceType string          `json:"sourceType"`
	SourceID   string          `json:"sourceId"`
	State      IngestionState  `json:"state"`
	Message    json.RawMessage `json:"message"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// StatusMessage is the typed shape workers write into IngestionStatus.Message.
type StatusMessage struct {
	Stage     string            `json:"stage"`
	FileInfo  *FileInfo         `json:"fileInfo,omitempty"`
	Deleted   map[string]int    `json:"deleted,omitempty"`
	Inserted  map[string]int    `json:"inserted,omitempty"`
	Embedding *EmbeddingSummary `json:"embedding,omitempty"`
}

// EmbeddingSummary is the embedding outcome recorded after an auto-embed
// triggered by ingestion.
type EmbeddingSummary struct {
	Embedded int    `json:"embedded,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}
