// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package cratedb

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// UsageRecord holds one caller's accumulated usage for one calendar
// month.
type UsageRecord struct {
	CallerID    string `json:"callerId"`
	Month       string `json:"month"`
	Calls       int64  `json:"calls"`
	BytesStored int64  `json:"bytesStored"`
}

// MonthKey formats an instant as the usage bucketing key, UTC
// year-month.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// RecordUsage adds one call and the given stored byte count to the
// caller's bucket for the month. The upsert is a single statement, so
// concurrent calls never lose increments.
func (db *DB) RecordUsage(ctx context.Context, callerID, month string, bytesStored int64) error {
	conn, err := db.take(ctx, "record usage")
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO usage (caller_id, month, calls, bytes_stored)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(caller_id, month) DO UPDATE SET
			calls = calls + 1,
			bytes_stored = bytes_stored + excluded.bytes_stored`,
		&sqlitex.ExecOptions{Args: []any{callerID, month, bytesStored}})
	if err != nil {
		return fmt.Errorf("cratedb: recording usage for %s/%s: %w", callerID, month, err)
	}
	return nil
}

// Usage returns the caller's bucket for the month. Absent buckets
// come back zeroed, not as an error.
func (db *DB) Usage(ctx context.Context, callerID, month string) (UsageRecord, error) {
	record := UsageRecord{CallerID: callerID, Month: month}
	conn, err := db.take(ctx, "usage")
	if err != nil {
		return record, err
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		SELECT calls, bytes_stored FROM usage WHERE caller_id = ? AND month = ?`,
		&sqlitex.ExecOptions{
			Args: []any{callerID, month},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record.Calls = stmt.ColumnInt64(0)
				record.BytesStored = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return record, fmt.Errorf("cratedb: loading usage for %s/%s: %w", callerID, month, err)
	}
	return record, nil
}
