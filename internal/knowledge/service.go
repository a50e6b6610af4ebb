package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dreamland/sherlock/internal/vectorindex"
)

// EntryStore is the relational persistence the service depends on.
// Interfaces are defined by the consumer, not the provider, so tests can
// substitute in-memory fakes.
type EntryStore interface {
	Create(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
	GetByID(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
	ListBySource(ctx context.Context, source string) ([]Entry, error)
	ExistingHashes(ctx context.Context) (map[string]struct{}, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// VectorIndex is the similarity index the service projects entries into.
type VectorIndex interface {
	Upsert(ctx context.Context, rec vectorindex.Record) error
	UpsertBatch(ctx context.Context, recs []vectorindex.Record) error
	DeleteMany(ctx context.Context, ids []string) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	QuerySimilar(ctx context.Context, vector []float32, opts vectorindex.QueryOptions) ([]vectorindex.Match, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryExpander rewrites a search query before embedding.
// Optional; a nil expander disables expansion.
type QueryExpander interface {
	Expand(ctx context.Context, question string) (string, error)
}

// Service orchestrates the knowledge pipeline: relational entries, their
// vector projections, bulk import, feed sync and retrieval.
//
// The relational store is the source of truth. Vector writes happen after
// the relational write; when only the vector write fails the entry stays
// persisted and the error wraps ErrVectorWrite so callers can schedule a
// re-embed instead of retrying the whole operation.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	store    EntryStore
	index    VectorIndex
	embedder Embedder
	expander QueryExpander
	logger   *slog.Logger
}

// NewService wires the pipeline together. expander may be nil; logger may
// be nil (defaults to slog.Default()).
func NewService(store EntryStore, index VectorIndex, embedder Embedder,
	expander QueryExpander, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		index:    index,
		embedder: embedder,
		expander: expander,
		logger:   logger,
	}, nil
}

// record builds the vector projection for an entry.
func record(e Entry, vec []float32) vectorindex.Record {
	return vectorindex.Record{
		ID:         e.ID,
		Vector:     vec,
		Title:      e.Title,
		Section:    e.Section,
		CategoryID: e.CategoryID,
		Source:     e.Source,
		Active:     e.Active,
	}
}

// CreateEntry persists a new entry and projects it into the vector index.
// The embedding is generated before the relational write so a provider
// failure leaves no orphan row.
func (s *Service) CreateEntry(ctx context.Context, e *Entry) error {
	if err := validateEntry(e.Title, e.Content); err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, BuildEmbedText(e.Title, e.Content, e.Section))
	if err != nil {
		return fmt.Errorf("embedding entry: %w", err)
	}

	if err := s.store.Create(ctx, e); err != nil {
		return err
	}

	if err := s.index.Upsert(ctx, record(*e, vec)); err != nil {
		s.logger.Error("vector write failed after create", "id", e.ID, "error", err)
		return fmt.Errorf("entry %q: %w: %w", e.ID, ErrVectorWrite, err)
	}

	return nil
}

// UpdateEntry rewrites an entry and re-embeds its vector projection.
func (s *Service) UpdateEntry(ctx context.Context, e *Entry) error {
	if err := validateEntry(e.Title, e.Content); err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, BuildEmbedText(e.Title, e.Content, e.Section))
	if err != nil {
		return fmt.Errorf("embedding entry: %w", err)
	}

	if err := s.store.Update(ctx, e); err != nil {
		return err
	}

	if err := s.index.Upsert(ctx, record(*e, vec)); err != nil {
		s.logger.Error("vector write failed after update", "id", e.ID, "error", err)
		return fmt.Errorf("entry %q: %w: %w", e.ID, ErrVectorWrite, err)
	}

	return nil
}

// ToggleEntry flips visibility on both sides without re-embedding.
func (s *Service) ToggleEntry(ctx context.Context, id string, active bool) error {
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	if err := s.index.SetActive(ctx, id, active); err != nil {
		s.logger.Error("vector toggle failed", "id", id, "error", err)
		return fmt.Errorf("entry %q: %w: %w", id, ErrVectorWrite, err)
	}
	return nil
}

// DeleteEntry removes an entry and its vector projection.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteMany(ctx, []string{id}); err != nil {
		s.logger.Error("vector delete failed", "id", id, "error", err)
		return fmt.Errorf("entry %q: %w: %w", id, ErrVectorWrite, err)
	}
	return nil
}

// PurgeSource removes every entry for a source together with its vectors.
// Returns the number of entries removed.
func (s *Service) PurgeSource(ctx context.Context, source string) (int64, error) {
	deleted, err := s.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if _, err := s.index.DeleteBySource(ctx, source); err != nil {
		s.logger.Error("vector purge failed", "source", source, "error", err)
		return deleted, fmt.Errorf("source %q: %w: %w", source, ErrVectorWrite, err)
	}
	return deleted, nil
}

// GetEntry fetches a single entry by ID.
func (s *Service) GetEntry(ctx context.Context, id string) (Entry, error) {
	return s.store.GetByID(ctx, id)
}

// ListEntries returns entries matching the options.
func (s *Service) ListEntries(ctx context.Context, opts ListOptions) ([]Entry, error) {
	return s.store.List(ctx, opts)
}

// Categories returns the query-classification taxonomy.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// Reembed rebuilds the vector projection for every entry of a source
// (all sources when source is empty). It is the repair path for entries
// left behind by ErrVectorWrite failures. Returns the number of vectors
// rewritten.
func (s *Service) Reembed(ctx context.Context, source string) (int, error) {
	var entries []Entry
	var err error
	if source == "" {
		entries, err = s.store.List(ctx, ListOptions{})
	} else {
		entries, err = s.store.ListBySource(ctx, source)
	}
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = BuildEmbedText(e.Title, e.Content, e.Section)
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d entries: %w", len(entries), err)
	}

	recs := make([]vectorindex.Record, len(entries))
	for i, e := range entries {
		recs[i] = record(e, vecs[i])
	}
	if err := s.index.UpsertBatch(ctx, recs); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrVectorWrite, err)
	}

	s.logger.Info("reembedded entries", "source", source, "count", len(recs))
	return len(recs), nil
}
