package embedding_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/dreamland/sherlock/internal/embedding"
	"github.com/dreamland/sherlock/internal/testutil"
)

const testDim = 8

func newTestClient(t *testing.T, cfg embedding.Config) (*embedding.Client, *testutil.MockEmbedder) {
	t.Helper()
	g := genkit.Init(context.Background())
	mock := testutil.NewMockEmbedder(testDim)
	client := embedding.New(mock.RegisterEmbedder(g), cfg, testutil.NewLogger())
	return client, mock
}

func TestEmbed_ReturnsVector(t *testing.T) {
	client, _ := newTestClient(t, embedding.Config{})

	vec, err := client.Embed(context.Background(), "¿Tienen terraza?")
	if err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}
	if len(vec) != testDim {
		t.Errorf("Embed() vector dim = %d, want %d", len(vec), testDim)
	}
}

func TestEmbed_TruncatesInput(t *testing.T) {
	client, mock := newTestClient(t, embedding.Config{MaxInputChars: 10})

	if _, err := client.Embed(context.Background(), strings.Repeat("a", 50)); err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || len(reqs[0]) != 1 {
		t.Fatalf("expected 1 request with 1 input, got %v", reqs)
	}
	if got := len(reqs[0][0]); got != 10 {
		t.Errorf("embedded input length = %d, want 10", got)
	}
}

func TestEmbed_TruncationPreservesRuneBoundary(t *testing.T) {
	client, mock := newTestClient(t, embedding.Config{MaxInputChars: 5})

	if _, err := client.Embed(context.Background(), "áéíóúñcard"); err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}

	got := mock.Requests()[0][0]
	if got != "áéíóú" {
		t.Errorf("truncated input = %q, want %q", got, "áéíóú")
	}
}

func TestEmbedBatch_OrderAndChunking(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		inputs    int
		wantCalls int
	}{
		{name: "single chunk", batchSize: 100, inputs: 7, wantCalls: 1},
		{name: "exact multiple", batchSize: 5, inputs: 10, wantCalls: 2},
		{name: "remainder chunk", batchSize: 4, inputs: 10, wantCalls: 3},
		{name: "one per chunk", batchSize: 1, inputs: 3, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newTestClient(t, embedding.Config{
				BatchSize:  tt.batchSize,
				BatchDelay: time.Millisecond, // keep tests fast
			})

			texts := make([]string, tt.inputs)
			for i := range texts {
				texts[i] = fmt.Sprintf("texto %d", i)
			}

			vecs, err := client.EmbedBatch(context.Background(), texts)
			if err != nil {
				t.Fatalf("EmbedBatch() unexpected error: %v", err)
			}
			if len(vecs) != tt.inputs {
				t.Fatalf("EmbedBatch() returned %d vectors, want %d", len(vecs), tt.inputs)
			}
			if calls := len(mock.Requests()); calls != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", calls, tt.wantCalls)
			}

			// Output order must match input order within and across chunks.
			var flattened []string
			for _, req := range mock.Requests() {
				flattened = append(flattened, req...)
			}
			for i, text := range texts {
				if flattened[i] != text {
					t.Fatalf("input %d embedded out of order: got %q, want %q", i, flattened[i], text)
				}
			}
		})
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	client, mock := newTestClient(t, embedding.Config{})

	vecs, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) unexpected error: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
	if calls := len(mock.Requests()); calls != 0 {
		t.Errorf("provider calls = %d, want 0", calls)
	}
}

func TestEmbedBatch_ChunkFailureAbortsBatch(t *testing.T) {
	client, mock := newTestClient(t, embedding.Config{
		BatchSize:  2,
		BatchDelay: time.Millisecond,
	})
	mock.FailOn("texto 3")

	texts := []string{"texto 0", "texto 1", "texto 2", "texto 3", "texto 4"}
	vecs, err := client.EmbedBatch(context.Background(), texts)
	if err == nil {
		t.Fatal("EmbedBatch() expected error when a chunk fails, got nil")
	}
	if vecs != nil {
		t.Errorf("EmbedBatch() returned partial results %v, want nil on failure", vecs)
	}
}

func TestEmbedBatch_ContextCancellation(t *testing.T) {
	client, _ := newTestClient(t, embedding.Config{
		BatchSize:  1,
		BatchDelay: time.Hour, // pacing would block the second chunk
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.EmbedBatch(ctx, []string{"a", "b"}); err == nil {
		t.Fatal("EmbedBatch() expected error with cancelled context, got nil")
	}
}
