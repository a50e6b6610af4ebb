package knowledge

import (
	"context"
	"errors"
	"testing"
)

func TestNewService_Validation(t *testing.T) {
	store := newFakeStore()
	index := newFakeIndex()
	embedder := newFakeEmbedder()

	tests := []struct {
		name     string
		store    EntryStore
		index    VectorIndex
		embedder Embedder
	}{
		{name: "nil store", index: index, embedder: embedder},
		{name: "nil index", store: store, embedder: embedder},
		{name: "nil embedder", store: store, index: index},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.store, tt.index, tt.embedder, nil, nil); err == nil {
				t.Error("NewService() expected error, got nil")
			}
		})
	}

	// nil expander is allowed: expansion is optional.
	if _, err := NewService(store, index, embedder, nil, slogDiscard()); err != nil {
		t.Errorf("NewService() with nil expander: %v", err)
	}
}

func TestCreateEntry(t *testing.T) {
	ctx := context.Background()
	svc, store, index, _, _ := newTestService(t)

	e := Entry{
		Title:    "Horario de apertura",
		Content:  "Abrimos de martes a domingo de 13:00 a 23:30.",
		Section:  "General",
		Source:   SourceManual,
		Active:   true,
		Language: "es",
	}
	if err := svc.CreateEntry(ctx, &e); err != nil {
		t.Fatalf("CreateEntry() unexpected error: %v", err)
	}

	if e.ID == "" {
		t.Fatal("CreateEntry() did not assign an ID")
	}
	if e.ContentHash != ComputeContentHash(e.Title, e.Content) {
		t.Error("CreateEntry() did not compute the content hash")
	}

	stored, err := store.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("entry not persisted: %v", err)
	}
	if stored.Title != e.Title {
		t.Errorf("stored title = %q, want %q", stored.Title, e.Title)
	}

	rec, ok := index.get(e.ID)
	if !ok {
		t.Fatal("vector projection not written")
	}
	if rec.Title != e.Title || rec.Section != e.Section || rec.Source != e.Source || !rec.Active {
		t.Errorf("vector metadata mismatch: %+v", rec)
	}
}

func TestCreateEntry_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, store, index, embedder, _ := newTestService(t)

	tests := []struct {
		name    string
		title   string
		content string
	}{
		{name: "empty title", title: "", content: "contenido"},
		{name: "blank title", title: "   ", content: "contenido"},
		{name: "empty content", title: "título", content: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{Title: tt.title, Content: tt.content}
			err := svc.CreateEntry(ctx, &e)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Fatalf("CreateEntry() error = %v, want ErrInvalidEntry", err)
			}
		})
	}

	if embedder.callCount() != 0 {
		t.Error("invalid entries reached the embedder")
	}
	if store.count() != 0 || index.count() != 0 {
		t.Error("invalid entries were persisted")
	}
}

func TestCreateEntry_EmbedFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	svc, store, index, embedder, _ := newTestService(t)
	embedder.failOn("veneno")

	e := Entry{Title: "Plato veneno", Content: "contenido", Active: true}
	if err := svc.CreateEntry(ctx, &e); err == nil {
		t.Fatal("CreateEntry() expected error, got nil")
	}
	if store.count() != 0 || index.count() != 0 {
		t.Error("failed create left state behind")
	}
}

func TestCreateEntry_VectorFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	svc, store, index, _, _ := newTestService(t)
	index.upsertErr = errors.New("index down")

	e := Entry{Title: "Terraza", Content: "Disponemos de terraza exterior.", Active: true}
	err := svc.CreateEntry(ctx, &e)
	if !errors.Is(err, ErrVectorWrite) {
		t.Fatalf("CreateEntry() error = %v, want ErrVectorWrite", err)
	}

	// The relational write is the source of truth and must survive.
	if _, err := store.GetByID(ctx, e.ID); err != nil {
		t.Errorf("entry lost after vector failure: %v", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	ctx := context.Background()
	svc, store, index, _, _ := newTestService(t)

	e := Entry{Title: "Menú del día", Content: "Tres platos por 15 euros.", Active: true}
	if err := svc.CreateEntry(ctx, &e); err != nil {
		t.Fatalf("CreateEntry() unexpected error: %v", err)
	}
	oldHash := e.ContentHash

	e.Content = "Tres platos por 17 euros."
	if err := svc.UpdateEntry(ctx, &e); err != nil {
		t.Fatalf("UpdateEntry() unexpected error: %v", err)
	}

	stored, _ := store.GetByID(ctx, e.ID)
	if stored.Content != "Tres platos por 17 euros." {
		t.Errorf("stored content = %q", stored.Content)
	}
	if stored.ContentHash == oldHash {
		t.Error("content hash not refreshed on update")
	}
	if _, ok := index.get(e.ID); !ok {
		t.Error("vector projection missing after update")
	}
}

func TestUpdateEntry_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	e := Entry{ID: "missing", Title: "t", Content: "c"}
	if err := svc.UpdateEntry(context.Background(), &e); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateEntry() error = %v, want ErrNotFound", err)
	}
}

func TestToggleEntry(t *testing.T) {
	ctx := context.Background()
	svc, store, index, embedder, _ := newTestService(t)

	e := Entry{Title: "Parking", Content: "Parking gratuito para clientes.", Active: true}
	if err := svc.CreateEntry(ctx, &e); err != nil {
		t.Fatalf("CreateEntry() unexpected error: %v", err)
	}
	embedsBefore := embedder.callCount()

	if err := svc.ToggleEntry(ctx, e.ID, false); err != nil {
		t.Fatalf("ToggleEntry() unexpected error: %v", err)
	}

	stored, _ := store.GetByID(ctx, e.ID)
	if stored.Active {
		t.Error("entry still active after toggle")
	}
	rec, _ := index.get(e.ID)
	if rec.Active {
		t.Error("vector still active after toggle")
	}
	if embedder.callCount() != embedsBefore {
		t.Error("toggle triggered an embedding call")
	}
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	svc, store, index, _, _ := newTestService(t)

	e := Entry{Title: "Wifi", Content: "Red para clientes.", Active: true}
	if err := svc.CreateEntry(ctx, &e); err != nil {
		t.Fatalf("CreateEntry() unexpected error: %v", err)
	}

	if err := svc.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry() unexpected error: %v", err)
	}
	if store.count() != 0 {
		t.Error("entry not removed from store")
	}
	if index.count() != 0 {
		t.Error("vector not removed from index")
	}

	if err := svc.DeleteEntry(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestPurgeSource(t *testing.T) {
	ctx := context.Background()
	svc, store, index, _, _ := newTestService(t)

	for _, e := range []Entry{
		{Title: "Receta A", Content: "a", Source: SourceGstock, Active: true},
		{Title: "Receta B", Content: "b", Source: SourceGstock, Active: true},
		{Title: "Manual", Content: "m", Source: SourceManual, Active: true},
	} {
		entry := e
		if err := svc.CreateEntry(ctx, &entry); err != nil {
			t.Fatalf("CreateEntry() unexpected error: %v", err)
		}
	}

	deleted, err := svc.PurgeSource(ctx, SourceGstock)
	if err != nil {
		t.Fatalf("PurgeSource() unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("PurgeSource() = %d, want 2", deleted)
	}
	if store.count() != 1 || index.count() != 1 {
		t.Errorf("other sources touched: store=%d index=%d", store.count(), index.count())
	}
}

func TestReembed(t *testing.T) {
	ctx := context.Background()
	svc, _, index, _, _ := newTestService(t)

	entries := []Entry{
		{Title: "Receta A", Content: "a", Source: SourceGstock, Active: true},
		{Title: "Receta B", Content: "b", Source: SourceGstock, Active: true},
		{Title: "Manual", Content: "m", Source: SourceManual, Active: true},
	}
	for i := range entries {
		if err := svc.CreateEntry(ctx, &entries[i]); err != nil {
			t.Fatalf("CreateEntry() unexpected error: %v", err)
		}
	}
	// Simulate lost projections.
	if err := index.DeleteMany(ctx, []string{entries[0].ID, entries[2].ID}); err != nil {
		t.Fatalf("DeleteMany() unexpected error: %v", err)
	}

	n, err := svc.Reembed(ctx, SourceGstock)
	if err != nil {
		t.Fatalf("Reembed() unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Reembed() = %d, want 2", n)
	}
	if _, ok := index.get(entries[0].ID); !ok {
		t.Error("gstock projection not repaired")
	}
	if _, ok := index.get(entries[2].ID); ok {
		t.Error("manual projection repaired by source-scoped reembed")
	}

	// Empty source reembeds everything.
	if _, err := svc.Reembed(ctx, ""); err != nil {
		t.Fatalf("Reembed(\"\") unexpected error: %v", err)
	}
	if _, ok := index.get(entries[2].ID); !ok {
		t.Error("full reembed skipped an entry")
	}
}
