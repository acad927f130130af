// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the storage compression policy for crate
// payloads. A single deflate-family algorithm (gzip) is used; the
// method name is persisted as a string tag alongside the crate record
// so the algorithm can change in the future without breaking stored
// data.
//
// Compression is best-effort by contract: a compression failure must
// never abort an upload (the crate store falls back to the original
// bytes), and a decompression failure on read degrades to returning
// the raw stored bytes.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MethodGzip is the persisted tag for the gzip algorithm. Protocol
// constant — stored records reference it by name.
const MethodGzip = "gzip"

// compressibleTypes are content-type fragments that mark a payload as
// worth compressing. Matching is by substring so parameterized and
// vendor-suffixed types ("application/json; charset=utf-8",
// "application/vnd...+xml") match without a full table.
var compressibleTypes = []string{
	"text/",
	"json",
	"xml",
	"javascript",
	"svg",
	"pdf",
	"msword",
	"officedocument",
	"zip",
}

// compressibleExtensions are filename extensions (without the dot)
// that mark a payload as worth compressing even when the declared
// content type is generic.
var compressibleExtensions = map[string]bool{
	"txt": true, "md": true, "markdown": true, "json": true,
	"csv": true, "xml": true, "html": true, "css": true,
	"js": true, "ts": true, "py": true, "java": true, "log": true,
	"svg": true, "pdf": true, "doc": true, "docx": true,
	"xls": true, "xlsx": true, "ppt": true, "pptx": true,
}

// Result describes one compression outcome. Ratio is the percentage
// of the original size saved: (1 - compressed/original) * 100.
type Result struct {
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Method         string
}

// ShouldCompress decides whether payload bytes should be compressed
// before storage, from the declared content type and the filename.
// Either signal is sufficient — the decision is OR'd across both.
func ShouldCompress(contentType, fileName string) bool {
	lowered := strings.ToLower(contentType)
	for _, fragment := range compressibleTypes {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}

	name := strings.ToLower(fileName)
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 && dot < len(name)-1 {
		return compressibleExtensions[name[dot+1:]]
	}
	return false
}

// Compress gzips data and reports the size accounting. Incompressible
// input (compressed output not smaller than the input) returns the
// original bytes with a zero-method Result rather than growing the
// payload; callers treat that as "store uncompressed".
func Compress(data []byte) ([]byte, Result, error) {
	var buffer bytes.Buffer

	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, Result{}, fmt.Errorf("gzip compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, Result{}, fmt.Errorf("gzip compress: %w", err)
	}

	compressed := buffer.Bytes()
	if len(compressed) >= len(data) {
		return data, Result{
			OriginalSize:   int64(len(data)),
			CompressedSize: int64(len(data)),
		}, nil
	}

	return compressed, Result{
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Ratio:          (1 - float64(len(compressed))/float64(len(data))) * 100,
		Method:         MethodGzip,
	}, nil
}

// Decompress reverses Compress. The caller is responsible for the
// degraded-read fallback: on error, serve the raw stored bytes.
func Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	defer reader.Close()

	original, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	return original, nil
}
