// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cratebox.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
base_url: https://crates.example.com
database:
  path: /var/lib/cratebox/crates.db
blob:
  endpoint: localhost:9000
  access_key: minio
  secret_key: miniosecret
  bucket: crates
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Listen != ":8750" {
		t.Errorf("listen default = %q", cfg.Listen)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level default = %q", cfg.Log.Level)
	}
	if cfg.EmbeddingsEnabled() {
		t.Error("embeddings enabled without backend configured")
	}
}

func TestLoadExpandsVariables(t *testing.T) {
	t.Setenv("CRATEBOX_TEST_SECRET", "s3cr3t")
	cfg, err := LoadFile(writeConfig(t, `
base_url: https://crates.example.com
database:
  path: /var/lib/cratebox/crates.db
blob:
  endpoint: localhost:9000
  access_key: minio
  secret_key: ${CRATEBOX_TEST_SECRET}
  bucket: crates
identity:
  keys:
    ${CRATEBOX_TEST_API_KEY:-sk-fallback}: alice
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Blob.SecretKey != "s3cr3t" {
		t.Errorf("secret key = %q, want expanded env value", cfg.Blob.SecretKey)
	}
	if cfg.Identity.Keys["sk-fallback"] != "alice" {
		t.Errorf("identity keys = %v, want default-expanded key", cfg.Identity.Keys)
	}
}

func TestLoadEmbeddings(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, minimalConfig+`
embeddings:
  base_url: http://localhost:11434/v1
  model: nomic-embed-text
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.EmbeddingsEnabled() {
		t.Error("embeddings not enabled with backend configured")
	}
}

func TestValidateRejectsPartialEmbeddings(t *testing.T) {
	_, err := LoadFile(writeConfig(t, minimalConfig+`
embeddings:
  base_url: http://localhost:11434/v1
`))
	if err == nil {
		t.Error("embeddings section without model accepted")
	}
}

func TestValidateRejectsMissingDatabase(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
base_url: https://crates.example.com
blob:
  endpoint: localhost:9000
  access_key: minio
  secret_key: s
  bucket: crates
`))
	if err == nil {
		t.Error("missing database.path accepted")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	_, err := LoadFile(writeConfig(t, minimalConfig+`
log:
  level: loud
`))
	if err == nil {
		t.Error("invalid log level accepted")
	}
}
