// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package ttl

import (
	"testing"
	"time"
)

func TestNormalizeMembers(t *testing.T) {
	for _, days := range Allowed {
		if got := Normalize(days); got != days {
			t.Errorf("Normalize(%d) = %d, want %d", days, got, days)
		}
	}
}

func TestNormalizeSubstitutesDefault(t *testing.T) {
	for _, days := range []int{-5, 0, 2, 3, 14, 29, 31, 365, 1 << 30} {
		if got := Normalize(days); got != Default {
			t.Errorf("Normalize(%d) = %d, want default %d", days, got, Default)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for days := -10; days <= 400; days++ {
		once := Normalize(days)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent at %d: %d then %d", days, once, twice)
		}

		member := false
		for _, allowed := range Allowed {
			if once == allowed {
				member = true
			}
		}
		if !member {
			t.Fatalf("Normalize(%d) = %d, not a member of Allowed", days, once)
		}
	}
}

func TestExpiresAt(t *testing.T) {
	createdAt := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	got := ExpiresAt(createdAt, 7)
	want := time.Date(2026, 1, 22, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}

	if got := ExpiresAt(createdAt, 1); !got.Equal(createdAt.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt(1 day) = %v", got)
	}
}
