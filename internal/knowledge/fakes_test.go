package knowledge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamland/sherlock/internal/vectorindex"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory EntryStore mirroring the PostgreSQL store's
// semantics: defaults on create, unique (source, external_key), hash
// refresh on update.
type fakeStore struct {
	mu         sync.Mutex
	entries    map[string]Entry
	categories []Category

	createErr error
	updateErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]Entry{}}
}

func (f *fakeStore) Create(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
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
	if e.ExternalKey != "" {
		for _, other := range f.entries {
			if other.Source == e.Source && other.ExternalKey == e.ExternalKey {
				return fmt.Errorf("%w: source_external_key", ErrDuplicate)
			}
		}
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeStore) Update(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.entries[e.ID]
	if !ok {
		return fmt.Errorf("entry %q: %w", e.ID, ErrNotFound)
	}
	e.ContentHash = ComputeContentHash(e.Title, e.Content)
	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = time.Now()
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeStore) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	e.Active = active
	f.entries[id] = e
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.entries[id]; !ok {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.entries {
		if e.Source == source {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	return e, nil
}

func (f *fakeStore) List(_ context.Context, opts ListOptions) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for _, e := range f.entries {
		if opts.Source != "" && e.Source != opts.Source {
			continue
		}
		if opts.CategoryID != "" && e.CategoryID != opts.CategoryID {
			continue
		}
		if opts.ActiveOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListBySource(_ context.Context, source string) ([]Entry, error) {
	return f.List(context.Background(), ListOptions{Source: source})
}

func (f *fakeStore) ExistingHashes(_ context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashes := make(map[string]struct{}, len(f.entries))
	for _, e := range f.entries {
		hashes[e.ContentHash] = struct{}{}
	}
	return hashes, nil
}

func (f *fakeStore) ListCategories(_ context.Context) ([]Category, error) {
	return f.categories, nil
}

func (f *fakeStore) bySourceKey(source, key string) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Source == source && e.ExternalKey == key {
			return e, true
		}
	}
	return Entry{}, false
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// fakeIndex is an in-memory VectorIndex computing real cosine similarity,
// so search tests control scores through the vectors they register.
type fakeIndex struct {
	mu      sync.Mutex
	records map[string]vectorindex.Record

	upsertErr  error
	deleteErr  error
	failOnID   string
	setActives []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]vectorindex.Record{}}
}

func (f *fakeIndex) Upsert(_ context.Context, rec vectorindex.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.failOnID != "" && rec.ID == f.failOnID {
		return fmt.Errorf("injected vector failure for %s", rec.ID)
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeIndex) UpsertBatch(ctx context.Context, recs []vectorindex.Record) error {
	for _, rec := range recs {
		if err := f.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeIndex) DeleteMany(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeIndex) DeleteBySource(_ context.Context, source string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, rec := range f.records {
		if rec.Source == source {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeIndex) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("vector %q not found", id)
	}
	rec.Active = active
	f.records[id] = rec
	f.setActives = append(f.setActives, fmt.Sprintf("%s=%t", id, active))
	return nil
}

func (f *fakeIndex) QuerySimilar(_ context.Context, vector []float32, opts vectorindex.QueryOptions) ([]vectorindex.Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = vectorindex.DefaultTopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = vectorindex.DefaultMinScore
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []vectorindex.Match
	for _, rec := range f.records {
		if !rec.Active {
			continue
		}
		if opts.Filter.CategoryID != "" && rec.CategoryID != opts.Filter.CategoryID {
			continue
		}
		if opts.Filter.Source != "" && rec.Source != opts.Filter.Source {
			continue
		}
		score := cosine(vector, rec.Vector)
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, vectorindex.Match{
			ID:         rec.ID,
			Score:      score,
			Title:      rec.Title,
			Section:    rec.Section,
			CategoryID: rec.CategoryID,
			Source:     rec.Source,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (f *fakeIndex) get(id string) (vectorindex.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// fakeEmbedder maps texts to registered vectors, falling back to a fixed
// unit vector. Per-text failures and call recording support error-path
// and call-count assertions.
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	failSubs []string
	calls    []string
	batchErr error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{}}
}

func (f *fakeEmbedder) setVector(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = vec
}

func (f *fakeEmbedder) failOn(sub string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubs = append(f.failSubs, sub)
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	for _, sub := range f.failSubs {
		if strings.Contains(text, sub) {
			return nil, fmt.Errorf("injected embed failure: %s", sub)
		}
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	batchErr := f.batchErr
	f.mu.Unlock()
	if batchErr != nil {
		return nil, batchErr
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// fakeExpander mimics the hyde expander contract.
type fakeExpander struct {
	answer string
	err    error
	calls  int
}

func (f *fakeExpander) Expand(_ context.Context, question string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return question, nil
	}
	return f.answer + "\n\n" + question, nil
}

func newTestService(t interface{ Fatalf(string, ...any) }) (*Service, *fakeStore, *fakeIndex, *fakeEmbedder, *fakeExpander) {
	store := newFakeStore()
	index := newFakeIndex()
	embedder := newFakeEmbedder()
	expander := &fakeExpander{}
	svc, err := NewService(store, index, embedder, expander, slogDiscard())
	if err != nil {
		t.Fatalf("NewService() unexpected error: %v", err)
	}
	return svc, store, index, embedder, expander
}
