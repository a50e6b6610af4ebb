package knowledge

import (
	"context"
	"fmt"
)

// SyncOptions tunes a reconciliation run.
type SyncOptions struct {
	// AllowEmpty permits a run with zero feed entries to delete everything
	// stored for the source. Without it such a run fails with ErrEmptyFeed,
	// since an empty snapshot is indistinguishable from a feed outage.
	AllowEmpty bool
}

// Sync reconciles the stored entries of one source against a feed
// snapshot, keyed by external key:
//
//   - feed key not stored            -> create entry + vector
//   - stored key in feed, hash same  -> skip (no embedding call)
//   - stored key in feed, hash diff  -> update entry, re-embed
//   - stored key not in feed         -> delete entry + vector
//
// Entries of other sources are never touched. Failures are accumulated
// per entry; one bad feed row never aborts the run. The returned report
// is meaningful even when err is non-nil only for the ErrEmptyFeed guard,
// which refuses the run before any write.
func (s *Service) Sync(ctx context.Context, source string, feed []SyncEntry, opts SyncOptions) (SyncReport, error) {
	report := SyncReport{Source: source, Errors: []string{}}
	if source == "" {
		return report, fmt.Errorf("source is required")
	}

	existing, err := s.store.ListBySource(ctx, source)
	if err != nil {
		return report, fmt.Errorf("listing entries for source %q: %w", source, err)
	}

	if len(feed) == 0 && len(existing) > 0 && !opts.AllowEmpty {
		return report, fmt.Errorf("source %q has %d stored entries: %w",
			source, len(existing), ErrEmptyFeed)
	}

	byKey := make(map[string]Entry, len(existing))
	for _, e := range existing {
		if e.ExternalKey != "" {
			byKey[e.ExternalKey] = e
		}
	}

	// First occurrence of a key wins; later duplicates are feed defects.
	seen := make(map[string]struct{}, len(feed))

	for i, fe := range feed {
		if fe.ExternalKey == "" {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %d (%q): missing external key", i, fe.Title))
			continue
		}
		if _, dup := seen[fe.ExternalKey]; dup {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %d: duplicate external key %q", i, fe.ExternalKey))
			continue
		}
		seen[fe.ExternalKey] = struct{}{}

		if err := validateEntry(fe.Title, fe.Content); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %q: %v", fe.ExternalKey, err))
			continue
		}

		stored, exists := byKey[fe.ExternalKey]
		if exists && stored.ContentHash == ComputeContentHash(fe.Title, fe.Content) {
			report.Skipped++
			continue
		}

		vec, err := s.embedder.Embed(ctx, BuildEmbedText(fe.Title, fe.Content, fe.Section))
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %q: embedding failed: %v", fe.ExternalKey, err))
			continue
		}

		if exists {
			stored.Title = fe.Title
			stored.Content = fe.Content
			stored.Section = fe.Section
			stored.CategoryID = fe.CategoryID
			if fe.Language != "" {
				stored.Language = fe.Language
			}
			if err := s.store.Update(ctx, &stored); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("feed entry %q: %v", fe.ExternalKey, err))
				continue
			}
			if err := s.index.Upsert(ctx, record(stored, vec)); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("feed entry %q: vector write failed: %v", fe.ExternalKey, err))
			}
			report.Updated++
			continue
		}

		e := Entry{
			Title:       fe.Title,
			Content:     fe.Content,
			Section:     fe.Section,
			CategoryID:  fe.CategoryID,
			Source:      source,
			ExternalKey: fe.ExternalKey,
			Language:    fe.Language,
			Active:      true,
		}
		if err := s.store.Create(ctx, &e); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %q: %v", fe.ExternalKey, err))
			continue
		}
		if err := s.index.Upsert(ctx, record(e, vec)); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("feed entry %q: vector write failed: %v", fe.ExternalKey, err))
		}
		report.Created++
	}

	// Delete pass: everything stored for the source that the feed no
	// longer names, including keyless rows the feed can never match.
	var staleIDs []string
	for _, e := range existing {
		if _, keep := seen[e.ExternalKey]; keep && e.ExternalKey != "" {
			continue
		}
		if err := s.store.Delete(ctx, e.ID); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("stale entry %q: %v", e.ID, err))
			continue
		}
		staleIDs = append(staleIDs, e.ID)
		report.Deleted++
	}
	if err := s.index.DeleteMany(ctx, staleIDs); err != nil {
		report.Errors = append(report.Errors,
			fmt.Sprintf("deleting %d stale vectors: %v", len(staleIDs), err))
	}

	s.logger.Info("sync finished",
		"source", source,
		"feed", len(feed),
		"created", report.Created,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}
