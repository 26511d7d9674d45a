// Package worker implements the ingestion workers of C9: parsing source
// artifacts, upserting chunk/term rows transactionally, and driving the
// ingestion status FSM. Grounded on the donor's ProcessDocument concurrency
// guard and the original ingest_ontology.py job.
package worker

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biorag/engine/internal/model"
)

// OboTerm is one [Term] stanza parsed from a minimal OBO subset.
type OboTerm struct {
	ID         string
	Name       string
	Definition string
	Synonyms   []string
	Parents    []string
	Xrefs      []string
}

// ParseOboFile parses the [Term] stanzas of path, tolerating the minimal
// OBO subset the original ontology ingester used: id, name, def, synonym,
// is_a, xref lines within a [Term] section.
func ParseOboFile(path string) ([]OboTerm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worker.ParseOboFile: %w", err)
	}
	defer f.Close()

	var terms []OboTerm
	var current *OboTerm
	inTerm := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if line == "[Term]" {
				if current != nil {
					terms = append(terms, *current)
				}
				current = &OboTerm{}
				inTerm = true
			} else {
				if current != nil {
					terms = append(terms, *current)
					current = nil
				}
				inTerm = false
			}
			continue
		}

		if !inTerm || current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "id:"):
			current.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "name:"):
			current.Name = strings.TrimSpace(strings.TrimPrefix(line, "name:"))
		case strings.HasPrefix(line, "def:"):
			def := strings.TrimSpace(strings.TrimPrefix(line, "def:"))
			current.Definition = extractQuoted(def)
		case strings.HasPrefix(line, "synonym:"):
			body := strings.TrimSpace(strings.TrimPrefix(line, "synonym:"))
			if syn := extractQuoted(body); syn != "" {
				current.Synonyms = append(current.Synonyms, syn)
			}
		case strings.HasPrefix(line, "is_a:"):
			body := strings.TrimSpace(strings.TrimPrefix(line, "is_a:"))
			if parent := strings.Fields(body); len(parent) > 0 {
				current.Parents = append(current.Parents, parent[0])
			}
		case strings.HasPrefix(line, "xref:"):
			current.Xrefs = append(current.Xrefs, strings.TrimSpace(strings.TrimPrefix(line, "xref:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("worker.ParseOboFile: scan: %w", err)
	}
	if current != nil {
		terms = append(terms, *current)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("worker.ParseOboFile: no terms parsed from %s", path)
	}
	return terms, nil
}

func extractQuoted(s string) string {
	if !strings.HasPrefix(s, `"`) {
		return s
	}
	rest := s[1:]
	if idx := strings.Index(rest, `"`); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// FormatChunkText renders a term into the unified chunk's chunk_text, in
// the same field order the original ingester used.
func FormatChunkText(t OboTerm) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Term: %s", t.Name))
	if t.Definition != "" {
		lines = append(lines, fmt.Sprintf("Definition: %s", t.Definition))
	}
	if len(t.Synonyms) > 0 {
		lines = append(lines, "Synonyms: "+strings.Join(t.Synonyms, ", "))
	}
	if len(t.Parents) > 0 {
		lines = append(lines, "Parents: "+strings.Join(t.Parents, ", "))
	}
	return strings.Join(lines, "\n")
}

// Fingerprint computes the (size, mtime, sha-256) fingerprint of path, per §4.9.
func Fingerprint(path string) (model.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("worker.Fingerprint: stat: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("worker.Fingerprint: open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return model.FileInfo{}, fmt.Errorf("worker.Fingerprint: hash: %w", err)
	}

	return model.FileInfo{
		Path:   path,
		Size:   info.Size(),
		Mtime:  info.ModTime().Unix(),
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
