package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dreamland/sherlock/internal/vectorindex"
)

// Progressive retrieval thresholds. A direct search runs first with a
// strict floor; query expansion only kicks in when the best direct hit is
// not confident enough, trading one extra LLM round trip for recall on
// short or vague questions.
const (
	// DirectMinScore is the similarity floor for the direct pass.
	DirectMinScore = 0.65

	// ExpandTrigger is the best-score bar below which the expansion pass
	// runs. Between ExpandTrigger and DirectMinScore the direct hits are
	// usable but worth augmenting.
	ExpandTrigger = 0.70

	// ExpandedMinScore is the looser floor for the expansion pass; the
	// expanded query vector sits closer to document space, so weaker raw
	// scores are still meaningful.
	ExpandedMinScore = 0.55

	// DefaultSearchLimit caps merged results.
	DefaultSearchLimit = 5
)

// SearchOptions narrows and tunes retrieval. Zero values fall back to the
// package defaults.
type SearchOptions struct {
	Limit      int
	CategoryID string
	Source     string

	// NoExpand disables the query-expansion pass.
	NoExpand bool
}

// Search retrieves the entries most relevant to a question.
//
// The direct pass embeds the raw question. If its best hit clears
// ExpandTrigger the direct results are returned as-is. Otherwise the
// question is expanded (hypothetical answer prepended), embedded again,
// and the two result sets are merged: deduplicated by entry ID keeping
// the best score, ordered by score descending, capped at the limit.
// Expansion failures degrade to the direct results rather than failing
// the search.
func (s *Service) Search(ctx context.Context, question string, opts SearchOptions) ([]SearchResult, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	filter := vectorindex.Filter{CategoryID: opts.CategoryID, Source: opts.Source}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	direct, err := s.index.QuerySimilar(ctx, vec, vectorindex.QueryOptions{
		TopK:     opts.Limit,
		MinScore: DirectMinScore,
		Filter:   filter,
	})
	if err != nil {
		return nil, fmt.Errorf("direct search: %w", err)
	}

	if len(direct) > 0 && direct[0].Score >= ExpandTrigger {
		return s.hydrate(ctx, direct, opts.Limit)
	}
	if opts.NoExpand || s.expander == nil {
		return s.hydrate(ctx, direct, opts.Limit)
	}

	expanded, err := s.expander.Expand(ctx, question)
	if err != nil {
		s.logger.Warn("query expansion failed, using direct results", "error", err)
		return s.hydrate(ctx, direct, opts.Limit)
	}

	evec, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		s.logger.Warn("embedding expanded query failed, using direct results", "error", err)
		return s.hydrate(ctx, direct, opts.Limit)
	}

	augmented, err := s.index.QuerySimilar(ctx, evec, vectorindex.QueryOptions{
		TopK:     opts.Limit,
		MinScore: ExpandedMinScore,
		Filter:   filter,
	})
	if err != nil {
		s.logger.Warn("expanded search failed, using direct results", "error", err)
		return s.hydrate(ctx, direct, opts.Limit)
	}

	return s.hydrate(ctx, mergeMatches(direct, augmented), opts.Limit)
}

// mergeMatches deduplicates by ID keeping the best score, ordered by
// score descending. Ties keep the earlier (direct) match first.
func mergeMatches(a, b []vectorindex.Match) []vectorindex.Match {
	best := make(map[string]vectorindex.Match, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, m := range append(append([]vectorindex.Match{}, a...), b...) {
		cur, ok := best[m.ID]
		if !ok {
			best[m.ID] = m
			order = append(order, m.ID)
			continue
		}
		if m.Score > cur.Score {
			best[m.ID] = m
		}
	}

	merged := make([]vectorindex.Match, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

// hydrate joins matches with their stored entries. A match whose entry
// vanished between index read and store read is dropped, not an error.
func (s *Service) hydrate(ctx context.Context, matches []vectorindex.Match, limit int) ([]SearchResult, error) {
	results := make([]SearchResult, 0, min(len(matches), limit))
	for _, m := range matches {
		if len(results) == limit {
			break
		}
		e, err := s.store.GetByID(ctx, m.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Warn("vector match without stored entry", "id", m.ID)
				continue
			}
			return nil, fmt.Errorf("hydrating match %q: %w", m.ID, err)
		}
		results = append(results, SearchResult{Entry: e, Score: m.Score})
	}
	return results, nil
}
