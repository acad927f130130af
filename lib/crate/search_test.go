// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func uploadTitled(t *testing.T, env *testEnv, title string, tags ...string) string {
	t.Helper()
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "doc.txt",
		ContentType: "text/plain",
		Data:        []byte("content"),
		Title:       title,
		Tags:        tags,
	})
	if err != nil {
		t.Fatalf("Upload(%s): %v", title, err)
	}
	return result.Crate.ID
}

func TestSearchPrefixMatch(t *testing.T) {
	env := newTestEnv(t)
	env.store.embedder = nil

	deployID := uploadTitled(t, env, "Deployment runbook")
	uploadTitled(t, env, "Incident timeline")

	summaries, err := env.store.Search(context.Background(), "Deploy")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d results, want 1", len(summaries))
	}
	if summaries[0].ID != deployID {
		t.Errorf("matched %s, want %s", summaries[0].ID, deployID)
	}
}

func TestSearchCombinesVectorAndPrefix(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.vectors = map[string][]float32{
		"deployment runbook": {1, 0, 0},
		"incident timeline":  {0, 1, 0},
		"deploy":             {0.9, 0.1, 0},
	}
	deployID := uploadTitled(t, env, "Deployment runbook")
	incidentID := uploadTitled(t, env, "Incident timeline")

	summaries, err := env.store.Search(context.Background(), "deploy")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	ids := make(map[string]bool, len(summaries))
	for _, summary := range summaries {
		if ids[summary.ID] {
			t.Errorf("crate %s appears twice in merged results", summary.ID)
		}
		ids[summary.ID] = true
	}
	// The vector arm surfaces both crates; the prefix arm re-finds the
	// deployment one. The merge must deduplicate.
	if !ids[deployID] || !ids[incidentID] {
		t.Errorf("results %v missing expected crates", ids)
	}
}

func TestSearchSurvivesEmbedderFailure(t *testing.T) {
	env := newTestEnv(t)
	uploadTitled(t, env, "Deployment runbook")
	env.embedder.err = errors.New("model offline")

	summaries, err := env.store.Search(context.Background(), "deployment")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("got %d results from prefix fallback, want 1", len(summaries))
	}
}

func TestSearchNoMatchesIsEmptyNotError(t *testing.T) {
	env := newTestEnv(t)
	env.store.embedder = nil
	uploadTitled(t, env, "Deployment runbook")

	summaries, err := env.store.Search(context.Background(), "zzz-nothing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("got %d results, want none", len(summaries))
	}
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Search(context.Background(), "   ")
	if CategoryOf(err) != CategoryValidation {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestSearchFieldSynthesis(t *testing.T) {
	got := SynthesizeSearchField("Q3 Report", "Quarterly numbers", []string{"Finance", ""}, map[string]string{"team": "Revenue"})
	for _, want := range []string{"q3 report", "quarterly numbers", "finance", "revenue"} {
		if !strings.Contains(got, want) {
			t.Errorf("search field %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "team") {
		t.Errorf("search field %q contains metadata key, want values only", got)
	}
	if SynthesizeSearchField("", "", nil, nil) != "" {
		t.Error("empty inputs should synthesize an empty search field")
	}
}
