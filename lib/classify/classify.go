// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package classify maps filenames and MIME types to a semantic content
// category. The category drives presentation decisions only — how a
// crate is rendered back to a caller and whether its bytes are eligible
// for inline delivery — never validity, so classification always
// succeeds by defaulting rather than erroring.
package classify

import "strings"

// Category is a semantic content classification.
type Category string

const (
	Image    Category = "image"
	Code     Category = "code"
	Markdown Category = "markdown"
	JSON     Category = "json"
	Data     Category = "data"
	Binary   Category = "binary"
	Todolist Category = "todolist"
	Diagram  Category = "diagram"
)

// Valid reports whether c is one of the fixed category values.
func Valid(c Category) bool {
	switch c {
	case Image, Code, Markdown, JSON, Data, Binary, Todolist, Diagram:
		return true
	}
	return false
}

// Bulk reports whether c is a bulk category. Bulk crates take the
// pre-signed upload path (bytes never transit the application tier)
// and are never inlined on retrieval.
func Bulk(c Category) bool {
	return c == Binary || c == Data
}

// mimeCategories maps declared MIME types to categories. Checked
// before the extension table because the declared type is a stronger
// signal than the filename.
var mimeCategories = map[string]Category{
	"image/png":              Image,
	"image/jpeg":             Image,
	"image/gif":              Image,
	"image/webp":             Image,
	"image/svg+xml":          Image,
	"text/markdown":          Markdown,
	"application/json":       JSON,
	"text/csv":               Data,
	"text/html":              Code,
	"text/css":               Code,
	"text/javascript":        Code,
	"application/javascript": Code,
	"application/xml":        Code,
	"text/plain":             Code,
}

// extensionCategories maps lower-cased filename extensions (without the
// dot) to categories.
var extensionCategories = map[string]Category{
	"png":      Image,
	"jpg":      Image,
	"jpeg":     Image,
	"gif":      Image,
	"webp":     Image,
	"svg":      Image,
	"md":       Markdown,
	"markdown": Markdown,
	"json":     JSON,
	"csv":      Data,
	"js":       Code,
	"ts":       Code,
	"html":     Code,
	"css":      Code,
	"py":       Code,
	"java":     Code,
	"xml":      Code,
	"txt":      Code,
	"log":      Code,
	"todolist": Todolist,
	"mmd":      Diagram,
	"diagram":  Diagram,
}

// categoryExtensions picks a default filename extension for a category
// when the caller supplied none. Inverse of extensionCategories for the
// most common representative of each category.
var categoryExtensions = map[Category]string{
	Image:    ".png",
	Code:     ".txt",
	Markdown: ".md",
	JSON:     ".json",
	Data:     ".csv",
	Binary:   ".bin",
	Todolist: ".todolist",
	Diagram:  ".mmd",
}

// contentTypeExtensions picks a default extension from a declared
// content type when neither a filename nor a category is available.
var contentTypeExtensions = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/svg+xml":    ".svg",
	"text/markdown":    ".md",
	"application/json": ".json",
	"text/csv":         ".csv",
	"text/html":        ".html",
	"text/css":         ".css",
	"text/javascript":  ".js",
	"application/xml":  ".xml",
	"text/plain":       ".txt",
	"application/pdf":  ".pdf",
}

// Classify determines the category for a crate. An explicit caller
// override wins unconditionally (even a nonsensical pairing like a
// .png classified as code — the caller asked for it). Otherwise the
// declared MIME type is consulted, then the filename extension, and
// finally everything unmatched is Binary.
func Classify(fileName, mimeType string, override Category) Category {
	if override != "" && Valid(override) {
		return override
	}

	if category, ok := mimeCategories[normalizeMIME(mimeType)]; ok {
		return category
	}

	if category, ok := extensionCategories[Extension(fileName)]; ok {
		return category
	}

	return Binary
}

// Extension returns the lower-cased filename extension without the
// leading dot, or "" when the name has none.
func Extension(fileName string) string {
	dot := strings.LastIndexByte(fileName, '.')
	if dot < 0 || dot == len(fileName)-1 {
		return ""
	}
	return strings.ToLower(fileName[dot+1:])
}

// ExtensionFor chooses a filename extension for a synthesized name:
// from the category when one is known, else from the declared content
// type, else ".dat".
func ExtensionFor(category Category, contentType string) string {
	if ext, ok := categoryExtensions[category]; ok {
		return ext
	}
	if ext, ok := contentTypeExtensions[normalizeMIME(contentType)]; ok {
		return ext
	}
	return ".dat"
}

// normalizeMIME lower-cases a MIME type and strips any parameters
// ("text/plain; charset=utf-8" → "text/plain").
func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if semicolon := strings.IndexByte(mimeType, ';'); semicolon >= 0 {
		mimeType = strings.TrimSpace(mimeType[:semicolon])
	}
	return mimeType
}
