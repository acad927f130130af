// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"strings"
)

// searchTopK bounds each search arm: up to this many vector matches
// and this many prefix matches before merging.
const searchTopK = 5

// Search runs the hybrid query: a vector arm (embed the query, rank
// stored embeddings by cosine similarity) and a classical arm (prefix
// match on the lower-cased search field), merged by crate id with the
// classical result winning on overlap. The vector arm is best-effort;
// if embedding is unavailable the classical arm alone answers.
func (s *Store) Search(ctx context.Context, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Validation("search query must not be empty")
	}

	ordered := make([]string, 0, 2*searchTopK)
	byID := make(map[string]*Crate, 2*searchTopK)
	add := func(records []*Crate) {
		for _, record := range records {
			if _, seen := byID[record.ID]; !seen {
				ordered = append(ordered, record.ID)
			}
			byID[record.ID] = record
		}
	}

	add(s.vectorMatches(ctx, query))

	classical, err := s.metadata.SearchPrefix(ctx, strings.ToLower(query), searchTopK)
	if err != nil {
		return nil, Internal("prefix search: %v", err)
	}
	add(classical)

	summaries := make([]Summary, 0, len(ordered))
	for _, id := range ordered {
		summaries = append(summaries, Summarize(byID[id]))
	}
	return summaries, nil
}

// vectorMatches runs the similarity arm of a search. Any failure,
// from embedding the query to ranking, degrades to no vector matches.
func (s *Store) vectorMatches(ctx context.Context, query string) []*Crate {
	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed, prefix search only", "error", err)
		return nil
	}
	matches, err := s.metadata.NearestByEmbedding(ctx, vector, searchTopK)
	if err != nil {
		s.log.Warn("similarity ranking failed, prefix search only", "error", err)
		return nil
	}
	return matches
}
