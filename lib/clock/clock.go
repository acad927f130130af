// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now
// directly, so that TTL normalization, expiration computation, and the
// expiry sweep can be tested against a deterministic clock. In
// production, Real() provides standard library behavior. In tests,
// Fake() provides a clock that advances only when Advance is called.
package clock

import "time"

// Clock abstracts the current time. Every production function that
// needs time.Now should accept a Clock (or be a method on a struct
// with a Clock field) instead of calling the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
