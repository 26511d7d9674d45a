// Package model defines the persisted entities of the retrieval engine.
package model

import "time"

// UnifiedChunk is the universal retrieval unit spanning every source type
// (PDF derivatives, ontology terms). Readers never mutate it; it is
// replaced wholesale by re-ingestion of its (source_type, source_id) scope.
type UnifiedChunk struct {
	ChunkID       string         `json:"chunkId"`
	SourceType    string         `json:"sourceType"`
	SourceID      string         `json:"sourceId"`
	ChunkText     string         `json:"chunkText"`
	ChunkMetadata map[string]any `json:"chunkMetadata"`
	Embedding     []float32      `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Scope identifies a corpus: one PDF document or one ontology ingestion.
type Scope struct {
	SourceType string
	SourceID   string
}

// PdfChunkMeta is the chunk_metadata shape for source_type="pdf".
type PdfChunkMeta struct {
	PageStart   int    `json:"pageStart"`
	PageEnd     int    `json:"pageEnd"`
	SectionPath string `json:"sectionPath,omitempty"`
	IsTable     bool   `json:"isTable,omitempty"`
	IsFigure    bool   `json:"isFigure,omitempty"`
}

// OntologyTermMeta is the chunk_metadata shape for source_type="ontology_<kind>".
type OntologyTermMeta struct {
	TermID       string   `json:"termId"`
	OntologyType string   `json:"ontologyType"`
	Synonyms     []string `json:"synonyms,omitempty"`
}
