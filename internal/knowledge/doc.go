// Package knowledge implements the knowledge-base pipeline: entry
// persistence, vector projection, bulk import, feed synchronization and
// progressive semantic retrieval.
//
// # Overview
//
// A knowledge Entry lives in PostgreSQL as the source of truth. Every
// entry is projected into a pgvector similarity index as a derived view:
// create and update rewrite the projection, delete removes it, and a
// failed projection write surfaces as ErrVectorWrite while the entry
// itself stays persisted (the Reembed repair path rebuilds projections).
//
//	Entry (title + content + metadata)
//	     |
//	     v
//	Content hash (dedup identity)        Embed text (title — section \n\n content)
//	     |                                    |
//	     v                                    v
//	knowledge_entries (PostgreSQL)       knowledge_vectors (pgvector)
//
// # Write Paths
//
// Three distinct write paths feed the store:
//
//   - CreateEntry/UpdateEntry/DeleteEntry: single-entry back-office CRUD.
//   - Import: bulk draft ingestion with global dedup by content hash;
//     duplicates are skipped, failures are accumulated per draft.
//   - Sync: snapshot reconciliation for one source tag keyed by external
//     key. Unchanged entries (same content hash) are skipped without an
//     embedding call; stale entries are deleted; other sources are never
//     touched. An empty snapshot over a non-empty source is refused with
//     ErrEmptyFeed unless explicitly allowed.
//
// # Retrieval
//
// Search embeds the raw question and queries the index with a strict
// similarity floor. When the best hit is not confident enough, the
// question is expanded through a QueryExpander (a hypothetical answer is
// prepended), embedded again with a looser floor, and both result sets
// are merged by best score per entry. Inactive entries never surface.
//
// # Dependencies
//
// Service consumes four interfaces defined in this package (EntryStore,
// VectorIndex, Embedder and QueryExpander) so tests substitute in-memory
// fakes while production wires Store, vectorindex.Index, the embedding
// client and the hyde expander.
package knowledge
