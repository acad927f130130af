// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestShouldCompress(t *testing.T) {
	tests := []struct {
		contentType string
		fileName    string
		want        bool
	}{
		{"text/plain", "", true},
		{"application/json", "", true},
		{"application/json; charset=utf-8", "", true},
		{"application/xml", "", true},
		{"image/svg+xml", "", true},
		{"application/pdf", "", true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", true},
		{"application/zip", "", true},
		// Type alone does not match, filename does.
		{"application/octet-stream", "report.csv", true},
		{"application/octet-stream", "notes.MD", true},
		// Neither matches.
		{"image/png", "photo.png", false},
		{"application/octet-stream", "firmware.img2", false},
		{"application/octet-stream", "", false},
		{"", "noextension", false},
	}

	for _, test := range tests {
		got := ShouldCompress(test.contentType, test.fileName)
		if got != test.want {
			t.Errorf("ShouldCompress(%q, %q) = %v, want %v",
				test.contentType, test.fileName, got, test.want)
		}
	}
}

func TestCompressRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))

	compressed, result, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if result.Method != MethodGzip {
		t.Errorf("Method = %q, want %q", result.Method, MethodGzip)
	}
	if result.OriginalSize != int64(len(original)) {
		t.Errorf("OriginalSize = %d, want %d", result.OriginalSize, len(original))
	}
	if result.CompressedSize >= result.OriginalSize {
		t.Errorf("CompressedSize = %d, expected smaller than %d",
			result.CompressedSize, result.OriginalSize)
	}
	if result.Ratio <= 0 || result.Ratio >= 100 {
		t.Errorf("Ratio = %.2f, expected in (0, 100)", result.Ratio)
	}

	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Error("round trip did not restore original bytes")
	}
}

func TestCompressIncompressibleInput(t *testing.T) {
	// Random bytes do not compress; Compress must return the original
	// data unchanged with no method tag, never a larger payload.
	original := make([]byte, 4096)
	if _, err := rand.Read(original); err != nil {
		t.Fatal(err)
	}

	output, result, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if result.Method != "" {
		t.Errorf("Method = %q, want empty for incompressible input", result.Method)
	}
	if !bytes.Equal(output, original) {
		t.Error("incompressible input was modified")
	}
	if result.CompressedSize != result.OriginalSize {
		t.Errorf("CompressedSize = %d, want %d", result.CompressedSize, result.OriginalSize)
	}
}

func TestCompressEmptyInput(t *testing.T) {
	output, result, err := Compress(nil)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	// gzip framing always exceeds zero bytes, so empty input is
	// incompressible by definition.
	if result.Method != "" {
		t.Errorf("Method = %q, want empty", result.Method)
	}
	if len(output) != 0 {
		t.Errorf("output length = %d, want 0", len(output))
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not a gzip stream")); err == nil {
		t.Error("Decompress accepted garbage input")
	}
}
