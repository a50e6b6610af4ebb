// Package vectorindex stores and queries knowledge-entry embeddings in
// PostgreSQL + pgvector. The index mirrors the relational knowledge store:
// each record carries denormalized metadata (title, section, category,
// source, active) so retrieval can filter without joining back to the
// entries table.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

const (
	// DefaultMinScore is the similarity floor applied when a query does
	// not set its own. Matches below it are discarded client-side.
	DefaultMinScore = 0.55

	// DefaultTopK is the result cap applied when a query does not set
	// its own.
	DefaultTopK = 5

	// UpsertBatchSize is the number of records written per round trip.
	UpsertBatchSize = 100

	// queryTimeout bounds similarity searches so a slow index scan
	// cannot hang the retrieval path.
	queryTimeout = 10 * time.Second
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Record is one vector plus the metadata projected alongside it.
type Record struct {
	ID         string
	Vector     []float32
	Title      string
	Section    string
	CategoryID string
	Source     string
	Active     bool
}

// Filter narrows a similarity query. Zero-value fields are not applied;
// inactive records are always excluded regardless of the filter.
type Filter struct {
	CategoryID string
	Source     string
}

// QueryOptions tunes a similarity query. Zero values fall back to
// DefaultTopK and DefaultMinScore.
type QueryOptions struct {
	TopK     int
	MinScore float32
	Filter   Filter
}

// Match is a single similarity hit.
type Match struct {
	ID         string
	Score      float32
	Title      string
	Section    string
	CategoryID string
	Source     string
}

// Index is a pgvector-backed vector index.
//
// Index is safe for concurrent use by multiple goroutines.
type Index struct {
	db     querier
	logger *slog.Logger
}

// New creates an Index over the given connection pool or transaction.
// logger may be nil (defaults to slog.Default()).
func New(db querier, logger *slog.Logger) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{db: db, logger: logger}, nil
}

const upsertSQL = `INSERT INTO knowledge_vectors (id, embedding, title, section, category_id, source, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		embedding = EXCLUDED.embedding,
		title = EXCLUDED.title,
		section = EXCLUDED.section,
		category_id = EXCLUDED.category_id,
		source = EXCLUDED.source,
		active = EXCLUDED.active`

// Upsert writes a single record, replacing any existing vector with the
// same ID.
func (ix *Index) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("record %q has no vector", rec.ID)
	}

	vec := pgvector.NewVector(rec.Vector)
	if _, err := ix.db.Exec(ctx, upsertSQL,
		rec.ID, vec, rec.Title, rec.Section, rec.CategoryID, rec.Source, rec.Active); err != nil {
		return fmt.Errorf("upserting vector %q: %w", rec.ID, err)
	}
	return nil
}

// UpsertBatch writes records in chunks of UpsertBatchSize, each chunk as a
// single pipelined round trip. An error aborts the remaining chunks.
func (ix *Index) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	for start := 0; start < len(recs); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(recs))

		batch := &pgx.Batch{}
		for _, rec := range recs[start:end] {
			if rec.ID == "" {
				return fmt.Errorf("record without ID in batch")
			}
			if len(rec.Vector) == 0 {
				return fmt.Errorf("record %q has no vector", rec.ID)
			}
			batch.Queue(upsertSQL,
				rec.ID, pgvector.NewVector(rec.Vector),
				rec.Title, rec.Section, rec.CategoryID, rec.Source, rec.Active)
		}

		if err := ix.db.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting vector chunk [%d:%d]: %w", start, end, err)
		}
	}

	ix.logger.Debug("upserted vectors", "count", len(recs))
	return nil
}

// DeleteMany removes the given vector IDs. An empty ID list is a no-op
// rather than an error so reconciliation passes with nothing to delete
// stay trivial.
func (ix *Index) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := ix.db.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("deleting %d vectors: %w", len(ids), err)
	}

	ix.logger.Debug("deleted vectors", "count", len(ids))
	return nil
}

// DeleteBySource removes every vector tagged with the given source.
// Returns the number of vectors removed.
func (ix *Index) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}

	tag, err := ix.db.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting vectors for source %q: %w", source, err)
	}

	ix.logger.Debug("deleted vectors by source", "source", source, "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// SetActive flips the active flag on a single vector without re-embedding.
func (ix *Index) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := ix.db.Exec(ctx,
		`UPDATE knowledge_vectors SET active = $2 WHERE id = $1`, id, active); err != nil {
		return fmt.Errorf("setting active=%t on vector %q: %w", active, id, err)
	}
	return nil
}

// QuerySimilar returns the records most similar to the query vector,
// ordered by descending cosine similarity. Inactive records never match.
// The score floor is applied client-side after the ANN scan: pgvector's
// index ordering operates on distance, and filtering inside the query
// would defeat the HNSW index.
func (ix *Index) QuerySimilar(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vec := pgvector.NewVector(vector)
	rows, err := ix.db.Query(ctx, `
		SELECT id, title, section, category_id, source,
			1 - (embedding <=> $1) AS score
		FROM knowledge_vectors
		WHERE active = true
			AND ($2 = '' OR category_id = $2)
			AND ($3 = '' OR source = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		vec, opts.Filter.CategoryID, opts.Filter.Source, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("querying similar vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, opts.TopK)
	for rows.Next() {
		var m Match
		var score float64
		if err := rows.Scan(&m.ID, &m.Title, &m.Section, &m.CategoryID, &m.Source, &score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Score = float32(score)
		if m.Score < opts.MinScore {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}

	return matches, nil
}
