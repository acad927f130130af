// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package ttl implements the crate time-to-live policy. TTL is
// advisory metadata exposed to clients as an expiration timestamp; the
// expiry sweep (an explicit operator action, not a background daemon)
// is the only enforcement.
package ttl

import "time"

// Allowed is the fixed ordered set of accepted TTL values, in days.
var Allowed = []int{1, 7, 30}

const (
	// Default is substituted when a requested TTL is absent or not a
	// member of Allowed.
	Default = 7

	// Max caps requested TTLs. Anything above it normalizes to Default.
	Max = 30
)

// Normalize maps a caller-supplied TTL to a member of Allowed. Zero,
// negative, over-Max, and non-member values all silently become
// Default — the policy never errors, because TTL is advisory and a
// bad value should not fail an upload. Normalize is idempotent.
func Normalize(requestedDays int) int {
	if requestedDays <= 0 || requestedDays > Max {
		return Default
	}
	for _, allowed := range Allowed {
		if requestedDays == allowed {
			return requestedDays
		}
	}
	return Default
}

// ExpiresAt computes the absolute expiration instant for a crate
// created at the given time with the given (already normalized) TTL.
func ExpiresAt(createdAt time.Time, days int) time.Time {
	return createdAt.Add(time.Duration(days) * 24 * time.Hour)
}
