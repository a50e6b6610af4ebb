package knowledge

import (
	"context"
	"errors"
	"fmt"
)

// Import bulk-creates entries from drafts with global dedup by content
// hash. Duplicates (against stored entries and within the batch) are
// skipped, invalid drafts are recorded as errors, and one failing draft
// never aborts the run. Embeddings are generated in batches; if a batch
// fails the affected drafts are retried one by one so a single poisoned
// input costs one error, not the whole chunk.
func (s *Service) Import(ctx context.Context, drafts []Draft) (ImportReport, error) {
	report := ImportReport{Errors: []string{}}
	if len(drafts) == 0 {
		return report, nil
	}

	seen, err := s.store.ExistingHashes(ctx)
	if err != nil {
		return report, fmt.Errorf("loading existing hashes: %w", err)
	}

	// Dedup pass: decide per draft before any provider call.
	type pending struct {
		draft Draft
		hash  string
	}
	var queue []pending
	for i, d := range drafts {
		if err := validateEntry(d.Title, d.Content); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("draft %d (%q): %v", i, d.Title, err))
			continue
		}
		hash := ComputeContentHash(d.Title, d.Content)
		if _, dup := seen[hash]; dup {
			report.Skipped++
			continue
		}
		seen[hash] = struct{}{} // intra-batch dedup
		queue = append(queue, pending{draft: d, hash: hash})
	}
	if len(queue) == 0 {
		return report, nil
	}

	texts := make([]string, len(queue))
	for i, p := range queue {
		texts[i] = BuildEmbedText(p.draft.Title, p.draft.Content, p.draft.Section)
	}

	vecs, embedErr := s.embedder.EmbedBatch(ctx, texts)
	if embedErr != nil {
		s.logger.Warn("batch embedding failed, retrying per draft", "error", embedErr)
		vecs = make([][]float32, len(queue))
		for i, text := range texts {
			vecs[i], err = s.embedder.Embed(ctx, text)
			if err != nil {
				vecs[i] = nil
				report.Errors = append(report.Errors,
					fmt.Sprintf("draft %q: embedding failed: %v", queue[i].draft.Title, err))
			}
		}
	}

	for i, p := range queue {
		if vecs[i] == nil {
			continue // embedding error already recorded
		}

		e := Entry{
			Title:       p.draft.Title,
			Content:     p.draft.Content,
			Section:     p.draft.Section,
			CategoryID:  p.draft.CategoryID,
			Source:      p.draft.Source,
			Language:    p.draft.Language,
			Active:      true,
			ContentHash: p.hash,
		}
		if e.Source == "" {
			e.Source = SourceStaged
		}

		if err := s.store.Create(ctx, &e); err != nil {
			if errors.Is(err, ErrDuplicate) {
				report.Skipped++
				continue
			}
			report.Errors = append(report.Errors,
				fmt.Sprintf("draft %q: %v", p.draft.Title, err))
			continue
		}

		if err := s.index.Upsert(ctx, record(e, vecs[i])); err != nil {
			// Entry is persisted; a later Reembed repairs the projection.
			report.Errors = append(report.Errors,
				fmt.Sprintf("entry %q: vector write failed: %v", e.ID, err))
		}
		report.Created++
	}

	s.logger.Info("bulk import finished",
		"drafts", len(drafts),
		"created", report.Created,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}
