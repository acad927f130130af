// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/cratebox/cratebox/lib/classify"
	"github.com/cratebox/cratebox/lib/compress"
)

const (
	// defaultLinkExpiry applies when a caller requests a download link
	// without an explicit validity window.
	defaultLinkExpiry = 5 * time.Minute

	// minLinkExpiry and maxLinkExpiry clamp caller-supplied validity
	// windows for pre-signed download links.
	minLinkExpiry = time.Second
	maxLinkExpiry = 24 * time.Hour
)

// RenderKind distinguishes the three shapes a retrieved crate can
// take.
type RenderKind string

const (
	// RenderText carries the crate content inline as a string.
	RenderText RenderKind = "text"

	// RenderImage carries the crate content inline as base64 with a
	// media type suitable for display.
	RenderImage RenderKind = "image"

	// RenderLink carries a pre-signed download URL instead of
	// content, either because the crate is bulk or because fetching
	// the content failed.
	RenderLink RenderKind = "link"
)

// Rendered is the retrieval result for a crate: inline text, an
// inline image, or a download link.
type Rendered struct {
	Kind RenderKind

	// Text is the inline content for RenderText.
	Text string

	// Data is the base64-encoded content for RenderImage.
	Data string

	// MimeType accompanies Data for RenderImage.
	MimeType string

	// URL is the download link for RenderLink.
	URL string

	// Message describes link results for display alongside the URL.
	Message string

	// Crate is the metadata record the result was rendered from.
	Crate *Crate
}

// Render retrieves a crate's content in display form. Images come
// back base64-encoded, textual categories come back as strings, and
// bulk categories always come back as a download link. When content
// cannot be fetched the result degrades to a link rather than
// failing. Successful content fetches count as downloads.
func (s *Store) Render(ctx context.Context, id string, expiresIn time.Duration) (*Rendered, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expiry := clampLinkExpiry(expiresIn)

	if classify.Bulk(record.Category) {
		return s.renderLink(ctx, record, expiry,
			"bulk content is served by download link, not inline")
	}

	content, err := s.fetchContent(ctx, record)
	if err != nil {
		s.log.Warn("content fetch failed, degrading to link",
			"crate", record.ID, "error", err)
		return s.renderLink(ctx, record, expiry,
			"content could not be fetched inline, use the download link")
	}
	s.countDownload(ctx, record)

	if record.Category == classify.Image {
		mimeType := record.MimeType
		if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
			mimeType = "image/png"
		}
		return &Rendered{
			Kind:     RenderImage,
			Data:     base64.StdEncoding.EncodeToString(content),
			MimeType: mimeType,
			Crate:    record,
		}, nil
	}
	return &Rendered{
		Kind:  RenderText,
		Text:  string(content),
		Crate: record,
	}, nil
}

// PresignedURL returns a download link for a crate without fetching
// its content. Link generation does not count as a download.
func (s *Store) PresignedURL(ctx context.Context, id string, expiresIn time.Duration) (string, *Crate, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	url, err := s.blobs.PresignedGet(ctx, record.StoragePath, clampLinkExpiry(expiresIn))
	if err != nil {
		return "", nil, Transient("generating download URL for crate %s: %v", id, err)
	}
	return url, record, nil
}

// fetchContent reads a crate's stored bytes and transparently
// decompresses them. A decompression failure falls back to the raw
// stored bytes so a corrupted header never blocks retrieval entirely.
func (s *Store) fetchContent(ctx context.Context, record *Crate) ([]byte, error) {
	stored, err := s.blobs.Read(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if !record.Compressed {
		return stored, nil
	}
	content, err := compress.Decompress(stored)
	if err != nil {
		s.log.Warn("decompression failed, returning stored bytes",
			"crate", record.ID, "method", record.CompressionMethod, "error", err)
		return stored, nil
	}
	return content, nil
}

// countDownload bumps the crate's download counter, tolerating
// counter failures: retrieval already succeeded.
func (s *Store) countDownload(ctx context.Context, record *Crate) {
	if err := s.metadata.IncrementDownloads(ctx, record.ID); err != nil {
		s.log.Warn("download counter update failed",
			"crate", record.ID, "error", err)
		return
	}
	record.DownloadCount++
	s.log.Info("crate downloaded", "crate", record.ID, "downloads", record.DownloadCount)
}

func (s *Store) renderLink(ctx context.Context, record *Crate, expiry time.Duration, message string) (*Rendered, error) {
	url, err := s.blobs.PresignedGet(ctx, record.StoragePath, expiry)
	if err != nil {
		return nil, Transient("generating download URL for crate %s: %v", record.ID, err)
	}
	return &Rendered{
		Kind:    RenderLink,
		URL:     url,
		Message: message,
		Crate:   record,
	}, nil
}

// clampLinkExpiry normalizes a requested link validity window: zero
// means the default, and out-of-range values clamp to the supported
// bounds.
func clampLinkExpiry(expiresIn time.Duration) time.Duration {
	switch {
	case expiresIn == 0:
		return defaultLinkExpiry
	case expiresIn < minLinkExpiry:
		return minLinkExpiry
	case expiresIn > maxLinkExpiry:
		return maxLinkExpiry
	}
	return expiresIn
}
