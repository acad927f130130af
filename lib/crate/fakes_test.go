// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeMetadata is an in-memory MetadataStore for exercising the
// orchestrator without a database.
type fakeMetadata struct {
	mu      sync.Mutex
	records map[string]*Crate

	// failPut, when set, makes Put return this error.
	failPut error

	// failSearch, when set, makes SearchPrefix return this error.
	failSearch error
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{records: make(map[string]*Crate)}
}

func (f *fakeMetadata) Put(_ context.Context, crate *Crate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return f.failPut
	}
	copied := *crate
	f.records[crate.ID] = &copied
	return nil
}

func (f *fakeMetadata) Get(_ context.Context, id string) (*Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

func (f *fakeMetadata) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeMetadata) List(_ context.Context, since time.Time, limit int) ([]*Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Crate
	for _, record := range f.records {
		if !since.IsZero() && record.CreatedAt.Before(since) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMetadata) SearchPrefix(_ context.Context, prefix string, limit int) ([]*Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSearch != nil {
		return nil, f.failSearch
	}
	var out []*Crate
	for _, record := range f.records {
		if strings.HasPrefix(record.SearchField, prefix) {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMetadata) NearestByEmbedding(_ context.Context, vector []float32, limit int) ([]*Crate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type scored struct {
		record *Crate
		score  float64
	}
	var candidates []scored
	for _, record := range f.records {
		if len(record.Embedding) == 0 {
			continue
		}
		copied := *record
		candidates = append(candidates, scored{&copied, cosine(vector, record.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*Crate, len(candidates))
	for i, c := range candidates {
		out[i] = c.record
	}
	return out, nil
}

func (f *fakeMetadata) IncrementDownloads(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return fmt.Errorf("fake: %w", ErrNotFound)
	}
	record.DownloadCount++
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// fakeBlobs is an in-memory BlobStore. Pre-signed URLs are synthetic
// but distinguishable by path and verb.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte

	// failRead, when set, makes Read return this error.
	failRead error

	// failPresign, when set, makes both presign calls return this error.
	failPresign error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Write(_ context.Context, path string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) Read(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead != nil {
		return nil, f.failRead
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: %w", ErrBlobNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeBlobs) Stat(_ context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return 0, fmt.Errorf("fake: %w", ErrBlobNotFound)
	}
	return int64(len(data)), nil
}

func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[path]; !ok {
		return fmt.Errorf("fake: %w", ErrBlobNotFound)
	}
	delete(f.objects, path)
	return nil
}

func (f *fakeBlobs) PresignedPut(_ context.Context, path string, _ time.Duration) (string, error) {
	if f.failPresign != nil {
		return "", f.failPresign
	}
	return "https://blobs.test/put/" + path, nil
}

func (f *fakeBlobs) PresignedGet(_ context.Context, path string, _ time.Duration) (string, error) {
	if f.failPresign != nil {
		return "", f.failPresign
	}
	return "https://blobs.test/get/" + path, nil
}

// fakeEmbedder deterministically maps text onto a small vector so
// similarity ordering is controllable from tests.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return []float32{1, 0, 0}, nil
}
