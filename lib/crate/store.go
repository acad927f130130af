// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cratebox/cratebox/lib/classify"
	"github.com/cratebox/cratebox/lib/clock"
	"github.com/cratebox/cratebox/lib/compress"
	"github.com/cratebox/cratebox/lib/ttl"
)

const (
	// presignedUploadWindow is the validity of pre-signed PUT URLs
	// handed to callers on the indirect upload path.
	presignedUploadWindow = 15 * time.Minute

	// listWindow bounds listing to recently created crates.
	listWindow = 30 * 24 * time.Hour

	// listLimit caps the number of records a listing returns.
	listLimit = 100

	// pendingGracePeriod is how long a pending crate may wait for its
	// pre-signed upload before the sweeper reclaims the record.
	pendingGracePeriod = time.Hour
)

// Store orchestrates crate operations over a metadata store, a blob
// store, and an optional embedder. All policy lives here; the
// backends only persist and query.
type Store struct {
	metadata MetadataStore
	blobs    BlobStore
	embedder Embedder
	clock    clock.Clock
	baseURL  string
	log      *slog.Logger
}

// Config carries the dependencies for a Store. Metadata and Blobs are
// required; Embedder may be nil to disable vector search; a nil Clock
// defaults to the real clock; a nil Logger defaults to slog.Default.
type Config struct {
	Metadata MetadataStore
	Blobs    BlobStore
	Embedder Embedder
	Clock    clock.Clock

	// BaseURL is the externally reachable service URL used to build
	// share links, without a trailing slash.
	BaseURL string

	Logger *slog.Logger
}

// New creates a Store from the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("crate store: metadata store is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("crate store: blob store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		metadata: cfg.Metadata,
		blobs:    cfg.Blobs,
		embedder: cfg.Embedder,
		clock:    cfg.Clock,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		log:      cfg.Logger,
	}, nil
}

// UploadParams carries the caller-supplied fields of an upload
// request. Data is the decoded inline payload, nil when the caller
// supplied none.
type UploadParams struct {
	FileName    string
	ContentType string
	Data        []byte
	Title       string
	Description string
	Tags        []string
	Metadata    map[string]string

	// Category overrides classification when it names a valid
	// category; invalid values are ignored.
	Category string

	// TTLDays requests a retention period. Zero means no expiry;
	// other values are normalized to the allowed set.
	TTLDays int

	Public   bool
	Password string
}

// UploadResult is the outcome of an upload. Exactly one mode applies:
// an inline upload fills Crate with the stored record, a pre-signed
// upload additionally fills UploadURL with the PUT target and leaves
// the record pending.
type UploadResult struct {
	Crate     *Crate
	UploadURL string
}

// Upload stores a crate for the caller. Bulk content (binary and
// data categories, or generic byte-stream content types) takes the
// pre-signed path: a pending record is written and the caller
// receives a short-lived PUT URL. Everything else requires an inline
// payload, which is validated, optionally re-serialized (JSON),
// optionally compressed, and written through.
func (s *Store) Upload(ctx context.Context, caller string, params UploadParams) (*UploadResult, error) {
	if caller == "" {
		caller = AnonymousOwner
	}
	contentType := normalizeContentType(params.ContentType)

	title := strings.TrimSpace(params.Title)
	category := classify.Classify(params.FileName, contentType, classify.Category(params.Category))
	fileName := effectiveFileName(params.FileName, title, category, contentType)
	if title == "" {
		title = fileName
	}

	now := s.clock.Now().UTC()
	record := &Crate{
		ID:          uuid.NewString(),
		Title:       title,
		Description: params.Description,
		FileName:    fileName,
		OwnerID:     caller,
		Tags:        params.Tags,
		Metadata:    params.Metadata,
		Category:    category,
		MimeType:    contentType,
		CreatedAt:   now,
		Shared: Sharing{
			Public: params.Public,
		},
	}
	record.StoragePath = storagePath(record.ID, fileName)
	if params.TTLDays != 0 {
		record.TTLDays = ttl.Normalize(params.TTLDays)
	}
	if params.Password != "" {
		record.Shared.PasswordProtected = true
		hash, err := hashPassword(params.Password)
		if err != nil {
			return nil, Internal("hashing sharing password: %v", err)
		}
		record.Shared.PasswordHash = hash
	}
	record.SearchField = SynthesizeSearchField(title, params.Description, params.Tags, params.Metadata)
	s.embedSearchField(ctx, record)

	if usePresignedUpload(category, contentType) {
		return s.uploadPresigned(ctx, record)
	}
	return s.uploadInline(ctx, record, params.Data)
}

// uploadPresigned writes a pending placeholder record and returns a
// PUT URL for the caller to upload content directly.
func (s *Store) uploadPresigned(ctx context.Context, record *Crate) (*UploadResult, error) {
	url, err := s.blobs.PresignedPut(ctx, record.StoragePath, presignedUploadWindow)
	if err != nil {
		return nil, Transient("generating upload URL: %v", err)
	}
	record.Status = StatusPending
	if err := s.metadata.Put(ctx, record); err != nil {
		return nil, Internal("storing crate metadata: %v", err)
	}
	s.log.Info("crate pending upload",
		"crate", record.ID,
		"owner", record.OwnerID,
		"category", record.Category,
		"file", record.FileName)
	return &UploadResult{Crate: record, UploadURL: url}, nil
}

// uploadInline validates and stores an inline payload, then writes
// the metadata record.
func (s *Store) uploadInline(ctx context.Context, record *Crate, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, Validation("inline upload requires data for content type %q", record.MimeType)
	}
	if isJSONContentType(record.MimeType) {
		reformatted, err := reserializeJSON(data)
		if err != nil {
			return nil, Validation("payload declared as JSON is not valid JSON: %v", err)
		}
		data = reformatted
	}

	stored := data
	if compress.ShouldCompress(record.MimeType, record.FileName) {
		compressed, result, err := compress.Compress(data)
		switch {
		case err != nil:
			s.log.Warn("compression failed, storing original",
				"crate", record.ID, "error", err)
		case result.Method != "":
			stored = compressed
			record.Compressed = true
			record.OriginalSize = result.OriginalSize
			record.CompressionMethod = result.Method
			record.CompressionRatio = result.Ratio
		}
	}

	if err := s.blobs.Write(ctx, record.StoragePath, stored, record.MimeType); err != nil {
		return nil, Transient("writing crate content: %v", err)
	}
	record.Size = int64(len(stored))
	record.Status = StatusComplete
	if err := s.metadata.Put(ctx, record); err != nil {
		return nil, Internal("storing crate metadata: %v", err)
	}
	s.log.Info("crate stored",
		"crate", record.ID,
		"owner", record.OwnerID,
		"category", record.Category,
		"size", record.Size,
		"compressed", record.Compressed)
	return &UploadResult{Crate: record}, nil
}

// embedSearchField attempts to attach an embedding for the crate's
// search field. Failures are logged and swallowed: search degrades to
// classical matching for this crate.
func (s *Store) embedSearchField(ctx context.Context, record *Crate) {
	if s.embedder == nil || record.SearchField == "" {
		return
	}
	vector, err := s.embedder.Embed(ctx, record.SearchField)
	if err != nil {
		s.log.Warn("embedding unavailable, crate will rely on prefix search",
			"crate", record.ID, "error", err)
		return
	}
	record.Embedding = vector
}

// Get loads a crate record. Pending crates whose content has since
// appeared in blob storage transition to complete here, picking up
// the observed size.
func (s *Store) Get(ctx context.Context, id string) (*Crate, error) {
	record, err := s.metadata.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFound("crate %s not found", id)
	}
	if err != nil {
		return nil, Internal("loading crate %s: %v", id, err)
	}
	if record.Status == StatusPending {
		s.completePending(ctx, record)
	}
	return record, nil
}

// completePending checks blob storage for a pending crate's content
// and, if present, promotes the record to complete. Failures leave
// the record pending; the next observation retries.
func (s *Store) completePending(ctx context.Context, record *Crate) {
	size, err := s.blobs.Stat(ctx, record.StoragePath)
	if err != nil {
		return
	}
	record.Status = StatusComplete
	record.Size = size
	if err := s.metadata.Put(ctx, record); err != nil {
		s.log.Warn("recording upload completion failed",
			"crate", record.ID, "error", err)
		return
	}
	s.log.Info("crate upload completed", "crate", record.ID, "size", size)
}

// List returns summaries of crates created within the listing window,
// newest first, capped.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	cutoff := s.clock.Now().UTC().Add(-listWindow)
	records, err := s.metadata.List(ctx, cutoff, listLimit)
	if err != nil {
		return nil, Internal("listing crates: %v", err)
	}
	summaries := make([]Summary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, Summarize(record))
	}
	return summaries, nil
}

// ShareUpdate is a partial sharing update. Nil pointer fields leave
// the current value untouched; SharedWith replaces the list wholesale
// when non-nil.
type ShareUpdate struct {
	Public            *bool
	SharedWith        []string
	PasswordProtected *bool

	// Password sets a new sharing password. Ignored unless
	// PasswordProtected is being enabled.
	Password string
}

// Share applies a partial sharing update to a crate the caller owns
// and returns the updated record plus its share link.
func (s *Store) Share(ctx context.Context, caller, id string, update ShareUpdate) (*Crate, string, error) {
	record, err := s.ownedCrate(ctx, caller, id, "share")
	if err != nil {
		return nil, "", err
	}
	if update.Public != nil {
		record.Shared.Public = *update.Public
	}
	if update.SharedWith != nil {
		record.Shared.SharedWith = update.SharedWith
	}
	if update.PasswordProtected != nil {
		record.Shared.PasswordProtected = *update.PasswordProtected
		if *update.PasswordProtected {
			if update.Password != "" {
				hash, err := hashPassword(update.Password)
				if err != nil {
					return nil, "", Internal("hashing sharing password: %v", err)
				}
				record.Shared.PasswordHash = hash
			}
		} else {
			record.Shared.PasswordHash = ""
		}
	}
	if err := s.metadata.Put(ctx, record); err != nil {
		return nil, "", Internal("updating crate sharing: %v", err)
	}
	s.log.Info("crate sharing updated",
		"crate", record.ID,
		"public", record.Shared.Public,
		"recipients", len(record.Shared.SharedWith))
	return record, s.ShareURL(record.ID), nil
}

// Unshare resets a crate's sharing state to fully private and
// returns the updated record plus its share link.
func (s *Store) Unshare(ctx context.Context, caller, id string) (*Crate, string, error) {
	record, err := s.ownedCrate(ctx, caller, id, "unshare")
	if err != nil {
		return nil, "", err
	}
	record.Shared = Sharing{}
	if err := s.metadata.Put(ctx, record); err != nil {
		return nil, "", Internal("updating crate sharing: %v", err)
	}
	s.log.Info("crate sharing revoked", "crate", record.ID)
	return record, s.ShareURL(record.ID), nil
}

// Delete removes a crate the caller owns: content first, then
// metadata. A missing blob is tolerated so a crate whose content was
// lost or never uploaded can still be cleaned up.
func (s *Store) Delete(ctx context.Context, caller, id string) error {
	record, err := s.ownedCrate(ctx, caller, id, "delete")
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, record.StoragePath); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return Transient("deleting crate content: %v", err)
	}
	if err := s.metadata.Delete(ctx, id); err != nil {
		return Internal("deleting crate metadata: %v", err)
	}
	s.log.Info("crate deleted", "crate", id, "owner", record.OwnerID)
	return nil
}

// SweepResult reports what a retention sweep reclaimed.
type SweepResult struct {
	// Expired counts crates removed because their TTL elapsed.
	Expired int `json:"expired"`

	// AbandonedPending counts pending records reclaimed because no
	// content appeared within the grace period.
	AbandonedPending int `json:"abandonedPending"`

	// BytesFreed sums the stored sizes of removed crates.
	BytesFreed int64 `json:"bytesFreed"`
}

// Sweep removes crates whose retention period has elapsed and pending
// records whose pre-signed upload never arrived. Individual removal
// failures are logged and skipped so one bad record cannot stall the
// sweep.
func (s *Store) Sweep(ctx context.Context) (*SweepResult, error) {
	records, err := s.metadata.List(ctx, time.Time{}, 0)
	if err != nil {
		return nil, Internal("listing crates for sweep: %v", err)
	}
	now := s.clock.Now().UTC()
	result := &SweepResult{}
	for _, record := range records {
		switch {
		case record.Expired(now):
			if s.sweepRemove(ctx, record) {
				result.Expired++
				result.BytesFreed += record.Size
			}
		case record.Status == StatusPending && now.Sub(record.CreatedAt) > pendingGracePeriod:
			if _, err := s.blobs.Stat(ctx, record.StoragePath); err == nil {
				// Content arrived after all; let the next Get promote it.
				continue
			}
			if err := s.metadata.Delete(ctx, record.ID); err != nil {
				s.log.Warn("sweep: reclaiming pending record failed",
					"crate", record.ID, "error", err)
				continue
			}
			result.AbandonedPending++
		}
	}
	s.log.Info("sweep finished",
		"expired", result.Expired,
		"abandoned", result.AbandonedPending,
		"bytes_freed", result.BytesFreed)
	return result, nil
}

func (s *Store) sweepRemove(ctx context.Context, record *Crate) bool {
	if err := s.blobs.Delete(ctx, record.StoragePath); err != nil && !errors.Is(err, ErrBlobNotFound) {
		s.log.Warn("sweep: deleting content failed", "crate", record.ID, "error", err)
		return false
	}
	if err := s.metadata.Delete(ctx, record.ID); err != nil {
		s.log.Warn("sweep: deleting metadata failed", "crate", record.ID, "error", err)
		return false
	}
	return true
}

// ShareURL builds the externally shareable link for a crate.
func (s *Store) ShareURL(id string) string {
	return s.baseURL + "/crates/" + id
}

// ownedCrate loads a crate and enforces the ownership rule for a
// mutating operation.
func (s *Store) ownedCrate(ctx context.Context, caller, id, op string) (*Crate, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.OwnedBy(caller) {
		return nil, Forbidden("caller does not own crate %s, cannot %s it", id, op)
	}
	return record, nil
}

// usePresignedUpload decides the storage path for an upload. Bulk
// categories and generic byte-stream content types go through a
// pre-signed URL so large payloads never transit the service.
func usePresignedUpload(category classify.Category, contentType string) bool {
	if classify.Bulk(category) {
		return true
	}
	switch contentType {
	case "application/octet-stream", "binary/octet-stream":
		return true
	}
	return false
}

// effectiveFileName returns the caller's file name when supplied,
// otherwise synthesizes one from the title plus a category-derived
// extension.
func effectiveFileName(fileName, title string, category classify.Category, contentType string) string {
	if trimmed := strings.TrimSpace(fileName); trimmed != "" {
		return trimmed
	}
	return sanitizeFileName(title) + classify.ExtensionFor(category, contentType)
}

// storagePath builds the object key for a crate's content.
func storagePath(id, fileName string) string {
	return "crates/" + id + "/" + fileName
}

// normalizeContentType lowers a media type and strips parameters such
// as charset. Empty input stays empty.
func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}

// isJSONContentType reports whether a normalized content type
// declares a JSON payload, including structured-syntax suffixes like
// application/geo+json.
func isJSONContentType(contentType string) bool {
	return contentType == "application/json" ||
		contentType == "text/json" ||
		strings.HasSuffix(contentType, "+json")
}

// reserializeJSON parses and reformats a JSON payload with two-space
// indentation, rejecting malformed input.
func reserializeJSON(data []byte) ([]byte, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return json.MarshalIndent(value, "", "  ")
}

// hashPassword derives the stored form of a sharing password.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
