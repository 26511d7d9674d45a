package model

import "time"

// EmbeddingModelEntry records one model's embedding coverage for a PDF,
// keyed by model name in PDFDocument.EmbeddingModels.
type EmbeddingModelEntry struct {
	ModelName  string    `json:"modelName"`
	Version    string    `json:"version"`
	Dimensions int       `json:"dimensions"`
	EmbeddedAt time.Time `json:"embeddedAt"`
}

// PDFDocument is the PDF-specific parent row. EmbeddingModels is upserted by
// model key each time the embedding service replaces a (pdf_id, model_name) set.
type PDFDocument struct {
	ID              string                `json:"id"`
	Filename        string                `json:"filename"`
	StoragePath     string                `json:"storagePath"`
	MimeType        string                `json:"mimeType"`
	ChunkCount      int                   `json:"chunkCount"`
	EmbeddingModels []EmbeddingModelEntry `json:"embeddingModels"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// PDFChunk is an ordered chunk of a PDFDocument's extracted text.
type PDFChunk struct {
	ID          string `json:"id"`
	PDFID       string `json:"pdfId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Text        string `json:"text"`
	ContentHash string `json:"contentHash"`
	PageStart   int    `json:"pageStart"`
	PageEnd     int    `json:"pageEnd"`
	SectionPath string `json:"sectionPath,omitempty"`
	IsTable     bool   `json:"isTable"`
	IsFigure    bool   `json:"isFigure"`
}

// PDFEmbedding is one embedding row for (pdf_id, chunk_id, model_name).
// Invariant: for a given (pdf_id, model_name), every row shares ModelVersion
// and Dimensions, or the set is empty — the embedding service never leaves
// a partial set on disk.
type PDFEmbedding struct {
	PDFID        string    `json:"pdfId"`
	ChunkID      string    `json:"chunkId"`
	ModelName    string    `json:"modelName"`
	ModelVersion string    `json:"modelVersion"`
	Dimensions   int       `json:"dimensions"`
	Vector       []float32 `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
