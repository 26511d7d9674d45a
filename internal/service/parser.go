package service

import (
	"context"
	"fmt"
)

// ParseResult is an artifact's extracted text plus basic structural stats.
type ParseResult struct {
	Text     string
	Pages    int
	Entities []Entity
}

// Entity is an optional structured extraction (e.g. Document AI entity)
// riding alongside the plain text of a ParseResult.
type Entity struct {
	Type       string
	Content    string
	Confidence float64
}

// Parser extracts text from a single artifact addressed by a GCS URI.
type Parser interface {
	Extract(ctx context.Context, gcsURI string) (*ParseResult, error)
}

// DocumentAIResponse is the Document AI OCR result for one document.
type DocumentAIResponse struct {
	Text     string
	Pages    int
	Entities []Entity
}

// DocumentAIClient sends a GCS-hosted document to Document AI for OCR.
type DocumentAIClient interface {
	ProcessDocument(ctx context.Context, processor, gcsURI, mimeType string) (*DocumentAIResponse, error)
}

// PDFParser routes PDF artifacts through Document AI and falls back to a
// plain-text Parser for non-PDF ontology source files (.txt, .md, .csv,
// .obo). Grounded on the donor's former ParserService routing shape, with
// the dropped .docx path removed (out of scope).
type PDFParser struct {
	docai     DocumentAIClient
	processor string
	fallback  Parser
}

// NewPDFParser creates a PDFParser.
func NewPDFParser(docai DocumentAIClient, processor string, fallback Parser) *PDFParser {
	return &PDFParser{docai: docai, processor: processor, fallback: fallback}
}

// Extract routes by mimeType: application/pdf goes through Document AI,
// everything else falls back to the plain-text parser.
func (p *PDFParser) Extract(ctx context.Context, gcsURI, mimeType string) (*ParseResult, error) {
	if mimeType != "application/pdf" {
		if p.fallback == nil {
			return nil, fmt.Errorf("service.PDFParser.Extract: no fallback parser for mime type %q", mimeType)
		}
		return p.fallback.Extract(ctx, gcsURI)
	}

	resp, err := p.docai.ProcessDocument(ctx, p.processor, gcsURI, mimeType)
	if err != nil {
		return nil, fmt.Errorf("service.PDFParser.Extract: %w", err)
	}
	return &ParseResult{Text: resp.Text, Pages: resp.Pages, Entities: resp.Entities}, nil
}
