// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package cratedb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cratebox/cratebox/lib/codec"
	"github.com/cratebox/cratebox/lib/crate"
)

// searchFieldSentinel is the upper bound used for prefix range
// queries: every string with the queried prefix sorts at or below
// prefix + sentinel.
const searchFieldSentinel = ""

// Put inserts or replaces the record for record.ID. The full document
// is re-encoded; the indexed columns are extracted from it. The
// download counter column is preserved across replaces so concurrent
// increments are never lost to a metadata rewrite.
func (db *DB) Put(ctx context.Context, record *crate.Crate) error {
	doc, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("cratedb: encoding crate %s: %w", record.ID, err)
	}
	conn, err := db.take(ctx, "put")
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO crates (id, owner_id, created_at, status, search_field, download_count, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			created_at = excluded.created_at,
			status = excluded.status,
			search_field = excluded.search_field,
			doc = excluded.doc`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.ID,
				record.OwnerID,
				record.CreatedAt.UnixNano(),
				string(record.Status),
				record.SearchField,
				record.DownloadCount,
				doc,
			},
		})
	if err != nil {
		return fmt.Errorf("cratedb: storing crate %s: %w", record.ID, err)
	}
	return nil
}

// Get loads the record for id, or crate.ErrNotFound.
func (db *DB) Get(ctx context.Context, id string) (*crate.Crate, error) {
	conn, err := db.take(ctx, "get")
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	var record *crate.Crate
	err = sqlitex.Execute(conn, `
		SELECT doc, download_count FROM crates WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				decoded, err := decodeDoc(stmt, 0)
				if err != nil {
					return err
				}
				decoded.DownloadCount = stmt.ColumnInt64(1)
				record = decoded
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("cratedb: loading crate %s: %w", id, err)
	}
	if record == nil {
		return nil, fmt.Errorf("cratedb: crate %s: %w", id, crate.ErrNotFound)
	}
	return record, nil
}

// Delete removes the record for id. Absent records are not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	conn, err := db.take(ctx, "delete")
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM crates WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("cratedb: deleting crate %s: %w", id, err)
	}
	return nil
}

// List returns records created at or after the cutoff, newest first.
// A zero cutoff means no lower bound; a non-positive limit means no
// cap.
func (db *DB) List(ctx context.Context, since time.Time, limit int) ([]*crate.Crate, error) {
	conn, err := db.take(ctx, "list")
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	cutoff := int64(math.MinInt64)
	if !since.IsZero() {
		cutoff = since.UnixNano()
	}
	if limit <= 0 {
		limit = -1
	}

	var records []*crate.Crate
	err = sqlitex.Execute(conn, `
		SELECT doc, download_count FROM crates
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{cutoff, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				decoded, err := decodeDoc(stmt, 0)
				if err != nil {
					return err
				}
				decoded.DownloadCount = stmt.ColumnInt64(1)
				records = append(records, decoded)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("cratedb: listing crates: %w", err)
	}
	return records, nil
}

// SearchPrefix returns records whose search field starts with the
// given prefix, as a closed range scan on the search index.
func (db *DB) SearchPrefix(ctx context.Context, prefix string, limit int) ([]*crate.Crate, error) {
	conn, err := db.take(ctx, "search")
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	if limit <= 0 {
		limit = -1
	}
	var records []*crate.Crate
	err = sqlitex.Execute(conn, `
		SELECT doc, download_count FROM crates
		WHERE search_field >= ? AND search_field <= ?
		ORDER BY search_field
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{prefix, prefix + searchFieldSentinel, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				decoded, err := decodeDoc(stmt, 0)
				if err != nil {
					return err
				}
				decoded.DownloadCount = stmt.ColumnInt64(1)
				records = append(records, decoded)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("cratedb: prefix search: %w", err)
	}
	return records, nil
}

// NearestByEmbedding ranks every stored embedding against the query
// vector by cosine similarity and returns the best matches. This is a
// full scan; the store is sized for thousands of crates, not millions.
func (db *DB) NearestByEmbedding(ctx context.Context, vector []float32, limit int) ([]*crate.Crate, error) {
	conn, err := db.take(ctx, "nearest")
	if err != nil {
		return nil, err
	}
	defer db.pool.Put(conn)

	type scored struct {
		record *crate.Crate
		score  float64
	}
	var candidates []scored
	err = sqlitex.Execute(conn, `SELECT doc, download_count FROM crates`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				decoded, err := decodeDoc(stmt, 0)
				if err != nil {
					return err
				}
				if len(decoded.Embedding) == 0 {
					return nil
				}
				score, ok := cosineSimilarity(vector, decoded.Embedding)
				if !ok {
					return nil
				}
				decoded.DownloadCount = stmt.ColumnInt64(1)
				candidates = append(candidates, scored{decoded, score})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("cratedb: similarity scan: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	records := make([]*crate.Crate, len(candidates))
	for i, candidate := range candidates {
		records[i] = candidate.record
	}
	return records, nil
}

// IncrementDownloads atomically bumps the download counter column.
// The document is untouched; Get overlays the column on load.
func (db *DB) IncrementDownloads(ctx context.Context, id string) error {
	conn, err := db.take(ctx, "increment downloads")
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE crates SET download_count = download_count + 1 WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("cratedb: incrementing downloads for %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("cratedb: crate %s: %w", id, crate.ErrNotFound)
	}
	return nil
}

// decodeDoc decodes the CBOR document in the given column.
func decodeDoc(stmt *sqlite.Stmt, col int) (*crate.Crate, error) {
	doc := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, doc)
	var record crate.Crate
	if err := codec.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("cratedb: decoding crate document: %w", err)
	}
	return &record, nil
}

// cosineSimilarity returns the cosine of the angle between two
// vectors, or ok=false when the vectors are incomparable (different
// dimensions or zero magnitude).
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
