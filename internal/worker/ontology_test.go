package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/biorag/engine/internal/model"
)

type fakeOntologyWriter struct {
	deleted   map[string]int
	err       error
	gotTerms  []model.OntologyTerm
	gotRels   []model.OntologyTermRelation
	gotChunks []model.UnifiedChunk
}

func (w *fakeOntologyWriter) ReplaceScope(ctx context.Context, ontologyType, sourceID string, terms []model.OntologyTerm, relations []model.OntologyTermRelation, chunks []model.UnifiedChunk) (map[string]int, error) {
	w.gotTerms, w.gotRels, w.gotChunks = terms, relations, chunks
	if w.err != nil {
		return nil, w.err
	}
	if w.deleted == nil {
		return map[string]int{}, nil
	}
	return w.deleted, nil
}

type fakeOntologyEmbedder struct {
	summary model.EmbeddingSummary
	err     error
}

func (e *fakeOntologyEmbedder) EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	return e.summary, e.err
}

func writeTempOBOFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scope.obo")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp obo: %v", err)
	}
	return path
}

func TestOntologyWorker_Ingest_BuildsTermsRelationsAndChunks(t *testing.T) {
	lock := &fakeScopeLock{}
	status := &fakeStatusStore{}
	writer := &fakeOntologyWriter{}
	embedder := &fakeOntologyEmbedder{}

	w := NewOntologyWorker(lock, status, writer, embedder)
	path := writeTempOBOFile(t, sampleOBO)

	if err := w.Ingest(context.Background(), "go", "scope-1", path, "", false); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if len(writer.gotTerms) != 2 {
		t.Fatalf("len(terms) = %d, want 2", len(writer.gotTerms))
	}
	if len(writer.gotRels) != 1 {
		t.Fatalf("len(relations) = %d, want 1", len(writer.gotRels))
	}
	if writer.gotRels[0].ChildTermID != "GO:0001" || writer.gotRels[0].ParentTermID != "GO:0002" {
		t.Errorf("relation = %+v, want child GO:0001 -> parent GO:0002", writer.gotRels[0])
	}
	if len(writer.gotChunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(writer.gotChunks))
	}
	for _, c := range writer.gotChunks {
		if c.SourceType != "ontology_go" || c.SourceID != "scope-1" {
			t.Errorf("chunk scope = (%s, %s), want (ontology_go, scope-1)", c.SourceType, c.SourceID)
		}
	}

	if !lock.locked || !lock.unlocked {
		t.Error("expected scope lock acquired and released")
	}
	if len(status.states) != 2 || status.states[1] != model.IngestionReady {
		t.Errorf("states = %v, want [INDEXING, READY]", status.states)
	}
}

func TestOntologyWorker_Ingest_SelfEdgeRejected(t *testing.T) {
	lock := &fakeScopeLock{}
	status := &fakeStatusStore{}
	writer := &fakeOntologyWriter{}
	embedder := &fakeOntologyEmbedder{}

	w := NewOntologyWorker(lock, status, writer, embedder)
	path := writeTempOBOFile(t, `[Term]
id: GO:0001
name: self-referential
is_a: GO:0001 ! self-referential
`)

	if err := w.Ingest(context.Background(), "go", "scope-2", path, "", false); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if len(writer.gotRels) != 0 {
		t.Errorf("gotRels = %v, want no self-edges", writer.gotRels)
	}
}

func TestOntologyWorker_Ingest_AutoEmbed(t *testing.T) {
	lock := &fakeScopeLock{}
	status := &fakeStatusStore{}
	writer := &fakeOntologyWriter{}
	embedder := &fakeOntologyEmbedder{summary: model.EmbeddingSummary{Embedded: 2}}

	w := NewOntologyWorker(lock, status, writer, embedder)
	path := writeTempOBOFile(t, sampleOBO)

	if err := w.Ingest(context.Background(), "go", "scope-3", path, "test-model", true); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	last := status.sets[len(status.sets)-1]
	if last.Embedding == nil || last.Embedding.Embedded != 2 {
		t.Errorf("expected final embedding summary Embedded=2, got %+v", last.Embedding)
	}
}

func TestOntologyWorker_Ingest_WriterFailureMarksError(t *testing.T) {
	lock := &fakeScopeLock{}
	status := &fakeStatusStore{}
	writer := &fakeOntologyWriter{err: errors.New("constraint violation")}
	embedder := &fakeOntologyEmbedder{}

	w := NewOntologyWorker(lock, status, writer, embedder)
	path := writeTempOBOFile(t, sampleOBO)

	if err := w.Ingest(context.Background(), "go", "scope-4", path, "", false); err == nil {
		t.Fatal("expected error when ReplaceScope fails")
	}
	if len(status.states) != 1 || status.states[0] != model.IngestionError {
		t.Errorf("states = %v, want a single ERROR transition", status.states)
	}
}

func TestOntologyWorker_Status_NotIndexed(t *testing.T) {
	lock := &fakeScopeLock{}
	status := &fakeStatusStore{}
	w := NewOntologyWorker(lock, status, &fakeOntologyWriter{}, &fakeOntologyEmbedder{})

	state, err := w.Status(context.Background(), "go", "never-ingested")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if state != model.IngestionNotIndexed {
		t.Errorf("state = %q, want %q", state, model.IngestionNotIndexed)
	}
}
