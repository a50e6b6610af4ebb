package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// entryCols is the standard SELECT column list for scanEntries.
const entryCols = `id, title, content, content_hash, section, category_id,
	source, external_key, language, active, created_at, updated_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// Store persists knowledge entries in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     querier
	logger *slog.Logger
}

// NewStore creates a Store over the given connection pool or transaction.
// logger may be nil (defaults to slog.Default()).
func NewStore(db querier, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// ListOptions narrows List. Zero-value fields are not applied.
type ListOptions struct {
	Source     string
	CategoryID string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// maxListLimit caps List result sets.
const maxListLimit = 1000

func validateEntry(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidEntry)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidEntry)
	}
	return nil
}

// Create inserts a new entry. Missing ID, Language and ContentHash are
// filled in; CreatedAt/UpdatedAt come back from the database. A unique
// violation (content collision on (source, external_key)) maps to
// ErrDuplicate.
func (s *Store) Create(ctx context.Context, e *Entry) error {
	if err := validateEntry(e.Title, e.Content); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Language == "" {
		e.Language = DefaultLanguage
	}
	if e.Source == "" {
		e.Source = SourceManual
	}
	if e.ContentHash == "" {
		e.ContentHash = ComputeContentHash(e.Title, e.Content)
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO knowledge_entries
			(id, title, content, content_hash, section, category_id, source, external_key, language, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		e.ID, e.Title, e.Content, e.ContentHash, e.Section, e.CategoryID,
		e.Source, e.ExternalKey, e.Language, e.Active,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
		return fmt.Errorf("creating entry %q: %w", e.ID, err)
	}

	s.logger.Debug("created entry", "id", e.ID, "source", e.Source)
	return nil
}

// Update rewrites an existing entry's mutable fields and refreshes its
// content hash. Returns ErrNotFound if the ID does not exist.
func (s *Store) Update(ctx context.Context, e *Entry) error {
	if err := validateEntry(e.Title, e.Content); err != nil {
		return err
	}
	e.ContentHash = ComputeContentHash(e.Title, e.Content)

	err := s.db.QueryRow(ctx, `
		UPDATE knowledge_entries SET
			title = $2, content = $3, content_hash = $4, section = $5,
			category_id = $6, language = $7, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		e.ID, e.Title, e.Content, e.ContentHash, e.Section,
		e.CategoryID, e.Language, e.Active,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("entry %q: %w", e.ID, ErrNotFound)
		}
		return fmt.Errorf("updating entry %q: %w", e.ID, err)
	}

	s.logger.Debug("updated entry", "id", e.ID)
	return nil
}

// SetActive flips the visibility flag without touching content or hash.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE knowledge_entries SET active = $2, updated_at = now()
		WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("setting active=%t on entry %q: %w", active, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes an entry. Returns ErrNotFound if the ID does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting entry %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted entry", "id", id)
	return nil
}

// DeleteBySource removes every entry tagged with the given source and
// returns how many were removed.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_entries WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting entries for source %q: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// GetByID fetches a single entry. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+entryCols+` FROM knowledge_entries WHERE id = $1`, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("entry %q: %w", id, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("fetching entry %q: %w", id, err)
	}
	return e, nil
}

// List returns entries matching the options, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	if opts.Limit <= 0 || opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+entryCols+` FROM knowledge_entries
		WHERE ($1 = '' OR source = $1)
			AND ($2 = '' OR category_id = $2)
			AND (NOT $3 OR active = true)
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5`,
		opts.Source, opts.CategoryID, opts.ActiveOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListBySource returns every entry for a source, oldest first, so sync
// reconciliation sees a stable order.
func (s *Store) ListBySource(ctx context.Context, source string) ([]Entry, error) {
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+entryCols+` FROM knowledge_entries
		WHERE source = $1
		ORDER BY created_at, id`, source)
	if err != nil {
		return nil, fmt.Errorf("listing entries for source %q: %w", source, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ExistingHashes returns the content hashes of all stored entries.
// The bulk importer uses this set for global dedup before embedding.
func (s *Store) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT content_hash FROM knowledge_entries`)
	if err != nil {
		return nil, fmt.Errorf("listing content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning content hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading content hashes: %w", err)
	}
	return hashes, nil
}

// ListCategories returns the query-classification taxonomy ordered by code.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, code FROM query_categories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	return cats, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Title, &e.Content, &e.ContentHash, &e.Section,
		&e.CategoryID, &e.Source, &e.ExternalKey, &e.Language, &e.Active,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	return entries, nil
}
