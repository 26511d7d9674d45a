package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/worker"
)

// OntologyRepo implements worker.OntologyWriter: term/relation rows in
// Postgres plus the unified_chunks rows they project into, all inside one
// transaction per §4.9's two-phase ingest. Grounded on the donor's
// repository package's pgx.Batch bulk-insert style, generalized from a
// single chunks table to the term/relation/chunk triple.
type OntologyRepo struct {
	pool *pgxpool.Pool
}

// NewOntologyRepo creates an OntologyRepo.
func NewOntologyRepo(pool *pgxpool.Pool) *OntologyRepo {
	return &OntologyRepo{pool: pool}
}

var _ worker.OntologyWriter = (*OntologyRepo)(nil)

// ReplaceScope atomically replaces an ontology scope's term, relation, and
// unified chunk rows, returning deleted counts for the status payload.
func (r *OntologyRepo) ReplaceScope(ctx context.Context, ontologyType, sourceID string, terms []model.OntologyTerm, relations []model.OntologyTermRelation, chunks []model.UnifiedChunk) (map[string]int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	deleted := make(map[string]int, 3)
	sourceType := "ontology_" + ontologyType

	tag, err := tx.Exec(ctx, `DELETE FROM ontology_term_relations WHERE ontology_type = $1 AND source_id = $2`, ontologyType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: delete relations: %w", err)
	}
	deleted["relations"] = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM ontology_terms WHERE ontology_type = $1 AND source_id = $2`, ontologyType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: delete terms: %w", err)
	}
	deleted["terms"] = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM unified_chunks WHERE source_type = $1 AND source_id = $2`, sourceType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: delete chunks: %w", err)
	}
	deleted["chunks"] = int(tag.RowsAffected())

	termBatch := &pgx.Batch{}
	for _, t := range terms {
		metaJSON, err := json.Marshal(t.TermMetadata)
		if err != nil {
			return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: marshal term metadata: %w", err)
		}
		termBatch.Queue(`
			INSERT INTO ontology_terms (term_id, ontology_type, source_id, name, definition, synonyms, xrefs, term_metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.TermID, t.OntologyType, t.SourceID, t.Name, t.Definition, pq.Array(t.Synonyms), pq.Array(t.Xrefs), metaJSON,
		)
	}
	br := tx.SendBatch(ctx, termBatch)
	for i := 0; i < len(terms); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: insert term %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: close term batch: %w", err)
	}

	relBatch := &pgx.Batch{}
	for _, rel := range relations {
		relBatch.Queue(`
			INSERT INTO ontology_term_relations (source_id, ontology_type, child_term_id, parent_term_id, relation_type)
			VALUES ($1, $2, $3, $4, $5)`,
			rel.SourceID, rel.OntologyType, rel.ChildTermID, rel.ParentTermID, rel.RelationType,
		)
	}
	br = tx.SendBatch(ctx, relBatch)
	for i := 0; i < len(relations); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: insert relation %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: close relation batch: %w", err)
	}

	chunkBatch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.ChunkMetadata)
		if err != nil {
			return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: marshal chunk metadata: %w", err)
		}
		chunkBatch.Queue(`
			INSERT INTO unified_chunks (chunk_id, source_type, source_id, chunk_text, chunk_metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ChunkID, c.SourceType, c.SourceID, c.ChunkText, metaJSON, now,
		)
	}
	br = tx.SendBatch(ctx, chunkBatch)
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: insert chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: close chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.OntologyRepo.ReplaceScope: commit: %w", err)
	}

	return deleted, nil
}

// OntologyGraphRepo mirrors the term/parent adjacency list into Neo4j for
// bounded-hop ancestor/descendant traversal, per §9's design note that
// relational storage alone cannot answer "all ancestors within N hops"
// efficiently at ontology scale.
type OntologyGraphRepo struct {
	driver neo4j.DriverWithContext
}

// NewOntologyGraphRepo creates an OntologyGraphRepo.
func NewOntologyGraphRepo(driver neo4j.DriverWithContext) *OntologyGraphRepo {
	return &OntologyGraphRepo{driver: driver}
}

// SyncScope replaces the (:Term)-[:IS_A]->(:Term) subgraph for one ontology
// scope, mirroring ReplaceScope's relational delete-then-insert.
func (g *OntologyGraphRepo) SyncScope(ctx context.Context, ontologyType, sourceID string, terms []model.OntologyTerm, relations []model.OntologyTermRelation) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (t:Term {ontologyType: $ontologyType, sourceId: $sourceId})
			DETACH DELETE t`, map[string]any{"ontologyType": ontologyType, "sourceId": sourceID}); err != nil {
			return nil, err
		}

		for _, t := range terms {
			if _, err := tx.Run(ctx, `
				MERGE (t:Term {termId: $termId, ontologyType: $ontologyType, sourceId: $sourceId})
				SET t.name = $name`, map[string]any{
				"termId": t.TermID, "ontologyType": ontologyType, "sourceId": sourceID, "name": t.Name,
			}); err != nil {
				return nil, err
			}
		}

		for _, rel := range relations {
			if _, err := tx.Run(ctx, `
				MATCH (child:Term {termId: $child, ontologyType: $ontologyType, sourceId: $sourceId})
				MATCH (parent:Term {termId: $parent, ontologyType: $ontologyType, sourceId: $sourceId})
				MERGE (child)-[:IS_A]->(parent)`, map[string]any{
				"child": rel.ChildTermID, "parent": rel.ParentTermID,
				"ontologyType": ontologyType, "sourceId": sourceID,
			}); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("repository.OntologyGraphRepo.SyncScope: %w", err)
	}
	return nil
}

// Ancestors returns the term IDs reachable from termID within maxHops IS_A
// edges, inclusive of termID itself.
func (g *OntologyGraphRepo) Ancestors(ctx context.Context, ontologyType, sourceID, termID string, maxHops int) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (t:Term {termId: $termId, ontologyType: $ontologyType, sourceId: $sourceId})-[:IS_A*0..%d]->(a:Term)
			RETURN DISTINCT a.termId AS termId`, maxHops), map[string]any{
			"termId": termID, "ontologyType": ontologyType, "sourceId": sourceID,
		})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			rec := res.Record()
			v, _ := rec.Get("termId")
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("repository.OntologyGraphRepo.Ancestors: %w", err)
	}
	ids, _ := result.([]string)
	return ids, nil
}
