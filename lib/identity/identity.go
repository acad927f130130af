// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves API keys to caller identities. The key
// table comes from configuration; there is no user database. Unknown
// or absent keys resolve to the anonymous identity rather than
// failing, so every operation has a caller for ownership and usage
// accounting.
package identity

import (
	"crypto/subtle"
	"fmt"

	"github.com/cratebox/cratebox/lib/crate"
)

// Config maps API keys to user identifiers.
type Config struct {
	// Keys maps an API key string to the user id it authenticates.
	Keys map[string]string `yaml:"keys"`
}

// Validate rejects entries that would silently break resolution.
func (c *Config) Validate() error {
	for key, user := range c.Keys {
		if key == "" {
			return fmt.Errorf("identity: empty API key configured")
		}
		if user == "" || user == crate.AnonymousOwner {
			return fmt.Errorf("identity: API key maps to reserved identity %q", user)
		}
	}
	return nil
}

// Resolver answers "who is calling" from a presented API key.
type Resolver struct {
	keys map[string]string
}

// NewResolver builds a resolver from the configured key table.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(cfg.Keys))
	for key, user := range cfg.Keys {
		keys[key] = user
	}
	return &Resolver{keys: keys}, nil
}

// Resolve returns the user id for an API key, or the anonymous
// identity when the key is absent or unknown. Comparison is constant
// time per configured key.
func (r *Resolver) Resolve(apiKey string) string {
	if apiKey == "" {
		return crate.AnonymousOwner
	}
	for configured, user := range r.keys {
		if len(configured) == len(apiKey) &&
			subtle.ConstantTimeCompare([]byte(configured), []byte(apiKey)) == 1 {
			return user
		}
	}
	return crate.AnonymousOwner
}
