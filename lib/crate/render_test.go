// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

// pngHeader is enough of a PNG to exercise the image path; rendering
// never inspects the pixel data.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestRenderTextInline(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "notes.md",
		ContentType: "text/markdown",
		Data:        []byte("# hello"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rendered, err := env.store.Render(context.Background(), result.Crate.ID, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered.Kind != RenderText {
		t.Fatalf("kind = %q, want text", rendered.Kind)
	}
	if rendered.Text != "# hello" {
		t.Errorf("text = %q", rendered.Text)
	}
}

func TestRenderImageBase64(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "chart.png",
		ContentType: "image/png",
		Data:        pngHeader,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rendered, err := env.store.Render(context.Background(), result.Crate.ID, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered.Kind != RenderImage {
		t.Fatalf("kind = %q, want image", rendered.Kind)
	}
	if rendered.MimeType != "image/png" {
		t.Errorf("mime type = %q", rendered.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(rendered.Data)
	if err != nil {
		t.Fatalf("decoding image payload: %v", err)
	}
	if string(decoded) != string(pngHeader) {
		t.Error("image payload does not round-trip through base64")
	}
}

func TestRenderCorruptCompressedFallsBackToStoredBytes(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "log.txt",
		ContentType: "text/plain",
		Data:        []byte(strings.Repeat("repetitive line\n", 64)),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	record := result.Crate
	if !record.Compressed {
		t.Fatal("upload did not compress a repetitive payload")
	}

	// Overwrite the stored object with bytes that are not valid gzip.
	corrupted := []byte("definitely not gzip")
	env.blobs.objects[record.StoragePath] = corrupted

	rendered, err := env.store.Render(context.Background(), record.ID, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered.Kind != RenderText {
		t.Fatalf("kind = %q, want text", rendered.Kind)
	}
	if rendered.Text != string(corrupted) {
		t.Errorf("text = %q, want the stored bytes verbatim", rendered.Text)
	}
}

func TestRenderBulkAlwaysLinks(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "dataset.csv",
		ContentType: "text/csv",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	record := result.Crate
	// Simulate the direct upload so content exists.
	if err := env.blobs.Write(context.Background(), record.StoragePath, []byte("a,b\n1,2\n"), ""); err != nil {
		t.Fatalf("writing content: %v", err)
	}
	rendered, err := env.store.Render(context.Background(), record.ID, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered.Kind != RenderLink {
		t.Fatalf("kind = %q, want link for bulk category", rendered.Kind)
	}
	if rendered.URL == "" || rendered.Message == "" {
		t.Errorf("link result incomplete: url=%q message=%q", rendered.URL, rendered.Message)
	}
}

func TestRenderDegradesToLinkOnFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	env.blobs.failRead = errors.New("backend unavailable")
	rendered, err := env.store.Render(context.Background(), result.Crate.ID, 0)
	if err != nil {
		t.Fatalf("Render should degrade, got error: %v", err)
	}
	if rendered.Kind != RenderLink {
		t.Fatalf("kind = %q, want link fallback", rendered.Kind)
	}
}

func TestRenderCountsDownloads(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	id := result.Crate.ID
	for i := 0; i < 3; i++ {
		if _, err := env.store.Render(context.Background(), id, 0); err != nil {
			t.Fatalf("Render #%d: %v", i, err)
		}
	}
	record, err := env.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.DownloadCount != 3 {
		t.Errorf("download count = %d, want 3", record.DownloadCount)
	}
}

func TestPresignedURLDoesNotCountDownloads(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.store.Upload(context.Background(), "alice", UploadParams{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	url, record, err := env.store.PresignedURL(context.Background(), result.Crate.ID, time.Hour)
	if err != nil {
		t.Fatalf("PresignedURL: %v", err)
	}
	if url == "" {
		t.Fatal("empty presigned URL")
	}
	if record.DownloadCount != 0 {
		t.Errorf("download count = %d after link generation, want 0", record.DownloadCount)
	}
}

func TestClampLinkExpiry(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, defaultLinkExpiry},
		{time.Millisecond, time.Second},
		{time.Hour, time.Hour},
		{48 * time.Hour, 24 * time.Hour},
	}
	for _, tc := range tests {
		if got := clampLinkExpiry(tc.in); got != tc.want {
			t.Errorf("clampLinkExpiry(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
