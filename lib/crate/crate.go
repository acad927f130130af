// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package crate defines the crate data model and the Store
// orchestrator that implements upload, retrieval, sharing, search,
// listing, and expiry over pluggable metadata and blob backends.
//
// A crate is a stored artifact: the raw bytes live in a BlobStore
// (object storage), while the descriptive record lives in a
// MetadataStore (document database). The orchestrator owns all policy
// decisions: inline versus pre-signed upload, compression,
// classification, TTL normalization, ownership checks, and the
// degraded fallbacks used when optional dependencies fail.
package crate

import (
	"context"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/cratebox/cratebox/lib/classify"
)

// AnonymousOwner is the owner id recorded when a caller presents no
// resolvable identity. Crates owned by it are modifiable by anyone.
const AnonymousOwner = "anonymous"

// Status tracks whether a crate's content is present in blob storage.
type Status string

const (
	// StatusPending marks a crate created through the pre-signed
	// upload path whose content has not yet been observed in blob
	// storage. Size is zero until the transition to complete.
	StatusPending Status = "pending"

	// StatusComplete marks a crate whose content is in blob storage.
	StatusComplete Status = "complete"
)

// Sharing holds a crate's access-control state. The zero value is
// fully private.
type Sharing struct {
	// Public marks the crate reachable by anyone holding its share
	// link, without authentication.
	Public bool `json:"public" cbor:"public"`

	// SharedWith lists identities granted access. Replaced wholesale
	// on update, never merged.
	SharedWith []string `json:"sharedWith,omitempty" cbor:"shared_with,omitempty"`

	// PasswordProtected marks the crate as requiring a password on
	// shared access.
	PasswordProtected bool `json:"passwordProtected" cbor:"password_protected"`

	// PasswordHash is the bcrypt hash of the sharing password. Never
	// exposed through the API.
	PasswordHash string `json:"-" cbor:"password_hash,omitempty"`
}

// VerifyPassword reports whether password matches the stored sharing
// password. Always false when no password hash is set.
func (s Sharing) VerifyPassword(password string) bool {
	if s.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)) == nil
}

// Crate is the persisted metadata record for one stored artifact.
// The document form (CBOR) is what the metadata store persists; the
// JSON form is what tool results expose, minus internal fields.
type Crate struct {
	ID          string            `json:"id" cbor:"id"`
	Title       string            `json:"title" cbor:"title"`
	Description string            `json:"description,omitempty" cbor:"description,omitempty"`
	FileName    string            `json:"fileName" cbor:"file_name"`
	OwnerID     string            `json:"ownerId" cbor:"owner_id"`
	Tags        []string          `json:"tags,omitempty" cbor:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" cbor:"metadata,omitempty"`

	// Category is the classification assigned at upload. It drives
	// rendering (inline versus link) and the synthesized extension.
	Category classify.Category `json:"category" cbor:"category"`

	// MimeType is the declared content type, normalized to its bare
	// media type without parameters.
	MimeType string `json:"mimeType" cbor:"mime_type"`

	// StoragePath is the object key in blob storage.
	StoragePath string `json:"-" cbor:"storage_path"`

	// Size is the stored (post-compression) byte count. Zero while
	// the crate is pending.
	Size int64 `json:"size" cbor:"size"`

	// Status records whether content has been observed in blob
	// storage. Pre-signed uploads start pending.
	Status Status `json:"status" cbor:"status"`

	CreatedAt time.Time `json:"createdAt" cbor:"created_at"`

	// TTLDays is the retention period in days. Zero means no expiry.
	// Non-zero values are always members of the allowed TTL set.
	TTLDays int `json:"ttlDays,omitempty" cbor:"ttl_days,omitempty"`

	Shared Sharing `json:"shared" cbor:"shared"`

	// Compressed marks the stored bytes as compressed. Rendering
	// decompresses transparently.
	Compressed bool `json:"compressed,omitempty" cbor:"compressed,omitempty"`

	// OriginalSize is the pre-compression byte count, set only when
	// Compressed is true.
	OriginalSize int64 `json:"originalSize,omitempty" cbor:"original_size,omitempty"`

	// CompressionMethod names the algorithm used, currently always
	// "gzip" when set.
	CompressionMethod string `json:"compressionMethod,omitempty" cbor:"compression_method,omitempty"`

	// CompressionRatio is compressed size over original size.
	CompressionRatio float64 `json:"compressionRatio,omitempty" cbor:"compression_ratio,omitempty"`

	DownloadCount int64 `json:"downloadCount" cbor:"download_count"`

	// SearchField is the lower-cased concatenation of the textual
	// fields, maintained for prefix matching. Internal.
	SearchField string `json:"-" cbor:"search_field,omitempty"`

	// Embedding is the vector for the search field, when an embedder
	// was available at upload. Internal.
	Embedding []float32 `json:"-" cbor:"embedding,omitempty"`
}

// ExpiresAt returns the advisory expiry instant, or the zero time for
// crates without a TTL.
func (c *Crate) ExpiresAt() time.Time {
	if c.TTLDays <= 0 {
		return time.Time{}
	}
	return c.CreatedAt.Add(time.Duration(c.TTLDays) * 24 * time.Hour)
}

// Expired reports whether the crate's retention period has elapsed at
// the given instant. Crates without a TTL never expire.
func (c *Crate) Expired(now time.Time) bool {
	expiry := c.ExpiresAt()
	return !expiry.IsZero() && now.After(expiry)
}

// OwnedBy reports whether the caller may perform ownership-gated
// operations (share, unshare, delete) on the crate. Crates owned by
// the anonymous sentinel are modifiable by anyone; otherwise the
// caller identity must match exactly.
func (c *Crate) OwnedBy(caller string) bool {
	if c.OwnerID == "" || c.OwnerID == AnonymousOwner {
		return true
	}
	return caller == c.OwnerID
}

// Summary is the listing and search projection of a crate: the public
// metadata plus a computed expiry, with internal fields stripped.
type Summary struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	FileName      string            `json:"fileName"`
	OwnerID       string            `json:"ownerId"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Category      classify.Category `json:"category"`
	MimeType      string            `json:"mimeType"`
	Size          int64             `json:"size"`
	Status        Status            `json:"status"`
	CreatedAt     string            `json:"createdAt"`
	ExpiresAt     string            `json:"expiresAt,omitempty"`
	Shared        Sharing           `json:"shared"`
	DownloadCount int64             `json:"downloadCount"`
}

// Summarize builds the external projection of a crate.
func Summarize(c *Crate) Summary {
	s := Summary{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		FileName:      c.FileName,
		OwnerID:       c.OwnerID,
		Tags:          c.Tags,
		Metadata:      c.Metadata,
		Category:      c.Category,
		MimeType:      c.MimeType,
		Size:          c.Size,
		Status:        c.Status,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
		Shared:        c.Shared,
		DownloadCount: c.DownloadCount,
	}
	if expiry := c.ExpiresAt(); !expiry.IsZero() {
		s.ExpiresAt = expiry.UTC().Format(time.RFC3339)
	}
	return s
}

// SynthesizeSearchField builds the lower-cased concatenation of
// title, description, tags, and metadata values used for prefix
// matching and embedding. Empty components are skipped; an empty
// result means the crate has no textual identity to index.
func SynthesizeSearchField(title, description string, tags []string, metadata map[string]string) string {
	parts := make([]string, 0, 2+len(tags)+len(metadata))
	if title != "" {
		parts = append(parts, title)
	}
	if description != "" {
		parts = append(parts, description)
	}
	for _, tag := range tags {
		if tag != "" {
			parts = append(parts, tag)
		}
	}
	for _, value := range metadata {
		if value != "" {
			parts = append(parts, value)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// sanitizeFileName strips path separators, wildcard characters, and
// control characters from a title so it can serve as a storage file
// name. An empty result falls back to "crate".
func sanitizeFileName(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "crate"
	}
	return cleaned
}

// MetadataStore persists crate records as documents and answers the
// query shapes the orchestrator needs. Implementations return
// ErrNotFound (possibly wrapped) when a record is absent.
type MetadataStore interface {
	// Put inserts or replaces the record for crate.ID.
	Put(ctx context.Context, crate *Crate) error

	// Get loads the record for id.
	Get(ctx context.Context, id string) (*Crate, error)

	// Delete removes the record for id. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, id string) error

	// List returns records created at or after the cutoff instant,
	// newest first, up to limit. A zero cutoff means no lower bound;
	// a non-positive limit means no cap.
	List(ctx context.Context, since time.Time, limit int) ([]*Crate, error)

	// SearchPrefix returns records whose search field starts with the
	// given lower-cased prefix, up to limit.
	SearchPrefix(ctx context.Context, prefix string, limit int) ([]*Crate, error)

	// NearestByEmbedding returns the records whose stored embeddings
	// are most similar to the query vector by cosine similarity, up
	// to limit. Records without embeddings are skipped.
	NearestByEmbedding(ctx context.Context, vector []float32, limit int) ([]*Crate, error)

	// IncrementDownloads atomically bumps the download counter for id.
	IncrementDownloads(ctx context.Context, id string) error
}

// BlobStore persists crate content in object storage. Implementations
// return ErrBlobNotFound (possibly wrapped) when an object is absent.
type BlobStore interface {
	// Write stores data at path with the given content type,
	// replacing any existing object.
	Write(ctx context.Context, path string, data []byte, contentType string) error

	// Read returns the full object at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Stat returns the size of the object at path.
	Stat(ctx context.Context, path string) (int64, error)

	// Delete removes the object at path. Deleting an absent object is
	// not an error.
	Delete(ctx context.Context, path string) error

	// PresignedPut returns a URL authorizing a direct upload to path
	// for the given validity window.
	PresignedPut(ctx context.Context, path string, expiry time.Duration) (string, error)

	// PresignedGet returns a URL authorizing a direct download of
	// path for the given validity window.
	PresignedGet(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// Embedder turns text into a vector for similarity search. The
// orchestrator treats it as optional: a nil Embedder or a failing
// call degrades to classical search only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
