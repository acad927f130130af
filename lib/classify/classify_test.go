// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package classify

import "testing"

func TestClassifyByMIMEType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     Category
	}{
		{"image/png", Image},
		{"image/jpeg", Image},
		{"image/svg+xml", Image},
		{"text/markdown", Markdown},
		{"application/json", JSON},
		{"text/csv", Data},
		{"text/plain", Code},
		{"text/html", Code},
		{"application/json; charset=utf-8", JSON},
		{"APPLICATION/JSON", JSON},
	}

	for _, test := range tests {
		got := Classify("", test.mimeType, "")
		if got != test.want {
			t.Errorf("Classify(%q) = %s, want %s", test.mimeType, got, test.want)
		}
	}
}

func TestClassifyByExtension(t *testing.T) {
	tests := []struct {
		fileName string
		want     Category
	}{
		{"photo.PNG", Image},
		{"banner.webp", Image},
		{"notes.md", Markdown},
		{"notes.markdown", Markdown},
		{"payload.json", JSON},
		{"export.csv", Data},
		{"script.py", Code},
		{"page.html", Code},
		{"server.log", Code},
		{"sprint.todolist", Todolist},
		{"flow.mmd", Diagram},
		{"arch.diagram", Diagram},
	}

	for _, test := range tests {
		// Unknown MIME type forces the extension path.
		got := Classify(test.fileName, "application/x-unknown", "")
		if got != test.want {
			t.Errorf("Classify(%q) = %s, want %s", test.fileName, got, test.want)
		}
	}
}

func TestClassifyDefaultsToBinary(t *testing.T) {
	cases := []struct {
		fileName string
		mimeType string
	}{
		{"firmware.img2", "application/x-unknown"},
		{"noextension", ""},
		{"trailingdot.", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Classify(c.fileName, c.mimeType, ""); got != Binary {
			t.Errorf("Classify(%q, %q) = %s, want binary", c.fileName, c.mimeType, got)
		}
	}
}

func TestClassifyOverrideWins(t *testing.T) {
	// The override applies even when both tables disagree with it.
	if got := Classify("photo.png", "image/png", Code); got != Code {
		t.Errorf("Classify with override = %s, want code", got)
	}
	// An invalid override is ignored.
	if got := Classify("photo.png", "image/png", Category("junk")); got != Image {
		t.Errorf("Classify with invalid override = %s, want image", got)
	}
}

func TestBulk(t *testing.T) {
	if !Bulk(Binary) || !Bulk(Data) {
		t.Error("binary and data must be bulk categories")
	}
	for _, c := range []Category{Image, Code, Markdown, JSON, Todolist, Diagram} {
		if Bulk(c) {
			t.Errorf("%s must not be a bulk category", c)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		category    Category
		contentType string
		want        string
	}{
		{JSON, "", ".json"},
		{Image, "", ".png"},
		{Markdown, "", ".md"},
		{"", "text/csv", ".csv"},
		{"", "application/pdf", ".pdf"},
		{"", "application/x-unknown", ".dat"},
		{"", "", ".dat"},
	}

	for _, test := range tests {
		got := ExtensionFor(test.category, test.contentType)
		if got != test.want {
			t.Errorf("ExtensionFor(%q, %q) = %q, want %q",
				test.category, test.contentType, got, test.want)
		}
	}
}
