// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/cratebox/cratebox/lib/crate"
)

// toolOutcome is a successful tool invocation: the structured result,
// optional explicit content blocks (rendered content, images), and
// the byte count to charge against the caller's storage usage.
type toolOutcome struct {
	structured  any
	blocks      []contentBlock
	storedBytes int64
}

// toolDef binds a tool name to its schema and handler.
type toolDef struct {
	name        string
	description string
	readOnly    bool
	idempotent  bool
	inputSchema map[string]any
	handle      func(ctx context.Context, caller string, args json.RawMessage) (*toolOutcome, error)
}

// decodeArgs parses tool arguments into a typed struct, mapping
// malformed JSON onto the validation category.
func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return crate.Validation("invalid tool arguments: %v", err)
	}
	return nil
}

// crateIDSchema is the shared schema fragment for tools addressed by
// crate id.
func crateIDSchema(extra map[string]any) map[string]any {
	properties := map[string]any{
		"id": map[string]any{
			"type":        "string",
			"description": "Crate identifier.",
		},
	}
	for name, schema := range extra {
		properties[name] = schema
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{"id"},
	}
}

var expiresInSchema = map[string]any{
	"type":        "integer",
	"description": "Validity of the download link in seconds (1 to 86400, default 300).",
}

// tools returns the tool registry. Order is the order tools/list
// presents them in.
func (s *CrateService) tools() []toolDef {
	return []toolDef{
		{
			name:        "crate_list",
			description: "List crates created in the last 30 days, newest first (at most 100).",
			readOnly:    true,
			idempotent:  true,
			inputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			handle:      s.handleList,
		},
		{
			name:        "crate_get",
			description: "Retrieve a crate's content: text and images come back inline, bulk content as a download link.",
			readOnly:    true,
			idempotent:  true,
			inputSchema: crateIDSchema(map[string]any{"expiresInSeconds": expiresInSchema}),
			handle:      s.handleGet,
		},
		{
			name:        "crate_get_link",
			description: "Generate a pre-signed download link for a crate without fetching its content.",
			readOnly:    true,
			idempotent:  true,
			inputSchema: crateIDSchema(map[string]any{"expiresInSeconds": expiresInSchema}),
			handle:      s.handleGetLink,
		},
		{
			name:        "crate_search",
			description: "Search crates by meaning and by title/description/tag prefix; returns deduplicated summaries.",
			readOnly:    true,
			idempotent:  true,
			inputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query."},
				},
				"required": []string{"query"},
			},
			handle: s.handleSearch,
		},
		{
			name:        "crate_upload",
			description: "Store a crate. Textual content is uploaded inline (base64 data); binary and data-set content receives a pre-signed upload URL instead.",
			inputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fileName":    map[string]any{"type": "string", "description": "File name; synthesized from the title when omitted."},
					"contentType": map[string]any{"type": "string", "description": "MIME type of the content."},
					"data":        map[string]any{"type": "string", "description": "Base64-encoded content for inline uploads."},
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"category": map[string]any{
						"type":        "string",
						"description": "Optional category override.",
						"enum": []string{
							"image", "code", "markdown", "json", "data", "binary", "todolist", "diagram",
						},
					},
					"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"metadata": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
					"ttlDays":  map[string]any{"type": "integer", "description": "Retention in days: 1, 7, or 30. Other values become 7; omit for no expiry."},
					"isPublic": map[string]any{"type": "boolean"},
					"password": map[string]any{"type": "string", "description": "Optional sharing password."},
				},
				"required": []string{"contentType"},
			},
			handle: s.handleUpload,
		},
		{
			name:        "crate_share",
			description: "Update a crate's sharing settings; omitted fields keep their current value.",
			idempotent:  true,
			inputSchema: crateIDSchema(map[string]any{
				"public":            map[string]any{"type": "boolean"},
				"sharedWith":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Recipient identities; replaces the current list."},
				"passwordProtected": map[string]any{"type": "boolean"},
				"password":          map[string]any{"type": "string"},
			}),
			handle: s.handleShare,
		},
		{
			name:        "crate_unshare",
			description: "Reset a crate's sharing settings to fully private.",
			idempotent:  true,
			inputSchema: crateIDSchema(nil),
			handle:      s.handleUnshare,
		},
		{
			name:        "crate_delete",
			description: "Delete a crate: content and metadata.",
			idempotent:  true,
			inputSchema: crateIDSchema(nil),
			handle:      s.handleDelete,
		},
		{
			name:        "crate_sweep",
			description: "Remove expired crates and abandoned pending uploads. Operator tool.",
			inputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			handle:      s.handleSweep,
		},
	}
}

type crateIDArgs struct {
	ID               string `json:"id"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

func (a *crateIDArgs) expiry() time.Duration {
	return time.Duration(a.ExpiresInSeconds) * time.Second
}

func (s *CrateService) handleList(ctx context.Context, _ string, _ json.RawMessage) (*toolOutcome, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"crates": summaries,
		"count":  len(summaries),
	}}, nil
}

func (s *CrateService) handleGet(ctx context.Context, _ string, args json.RawMessage) (*toolOutcome, error) {
	var params crateIDArgs
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, crate.Validation("id is required")
	}
	rendered, err := s.store.Render(ctx, params.ID, params.expiry())
	if err != nil {
		return nil, err
	}

	outcome := &toolOutcome{structured: map[string]any{
		"crate": crate.Summarize(rendered.Crate),
	}}
	switch rendered.Kind {
	case crate.RenderText:
		outcome.blocks = []contentBlock{{Type: "text", Text: rendered.Text}}
	case crate.RenderImage:
		outcome.blocks = []contentBlock{{Type: "image", Data: rendered.Data, MimeType: rendered.MimeType}}
	case crate.RenderLink:
		outcome.structured.(map[string]any)["url"] = rendered.URL
		outcome.blocks = []contentBlock{{Type: "text", Text: rendered.Message + "\n" + rendered.URL}}
	}
	return outcome, nil
}

func (s *CrateService) handleGetLink(ctx context.Context, _ string, args json.RawMessage) (*toolOutcome, error) {
	var params crateIDArgs
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, crate.Validation("id is required")
	}
	url, record, err := s.store.PresignedURL(ctx, params.ID, params.expiry())
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"url":   url,
		"crate": crate.Summarize(record),
	}}, nil
}

func (s *CrateService) handleSearch(ctx context.Context, _ string, args json.RawMessage) (*toolOutcome, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, params.Query)
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"results": results,
		"count":   len(results),
	}}, nil
}

func (s *CrateService) handleUpload(ctx context.Context, caller string, args json.RawMessage) (*toolOutcome, error) {
	var params struct {
		FileName    string            `json:"fileName"`
		ContentType string            `json:"contentType"`
		Data        string            `json:"data"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Category    string            `json:"category"`
		Tags        []string          `json:"tags"`
		Metadata    map[string]string `json:"metadata"`
		TTLDays     int               `json:"ttlDays"`
		IsPublic    bool              `json:"isPublic"`
		Password    string            `json:"password"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ContentType == "" {
		return nil, crate.Validation("contentType is required")
	}
	var data []byte
	if params.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(params.Data)
		if err != nil {
			return nil, crate.Validation("data is not valid base64: %v", err)
		}
		data = decoded
	}

	result, err := s.store.Upload(ctx, caller, crate.UploadParams{
		FileName:    params.FileName,
		ContentType: params.ContentType,
		Data:        data,
		Title:       params.Title,
		Description: params.Description,
		Category:    params.Category,
		Tags:        params.Tags,
		Metadata:    params.Metadata,
		TTLDays:     params.TTLDays,
		Public:      params.IsPublic,
		Password:    params.Password,
	})
	if err != nil {
		return nil, err
	}

	if result.UploadURL != "" {
		return &toolOutcome{structured: map[string]any{
			"crateId":                result.Crate.ID,
			"uploadUrl":              result.UploadURL,
			"storagePath":            result.Crate.StoragePath,
			"uploadExpiresInSeconds": 900,
			"crate":                  crate.Summarize(result.Crate),
		}}, nil
	}
	return &toolOutcome{
		structured:  map[string]any{"crate": crate.Summarize(result.Crate)},
		storedBytes: result.Crate.Size,
	}, nil
}

func (s *CrateService) handleShare(ctx context.Context, caller string, args json.RawMessage) (*toolOutcome, error) {
	var params struct {
		ID                string   `json:"id"`
		Public            *bool    `json:"public"`
		SharedWith        []string `json:"sharedWith"`
		PasswordProtected *bool    `json:"passwordProtected"`
		Password          string   `json:"password"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, crate.Validation("id is required")
	}
	record, shareURL, err := s.store.Share(ctx, caller, params.ID, crate.ShareUpdate{
		Public:            params.Public,
		SharedWith:        params.SharedWith,
		PasswordProtected: params.PasswordProtected,
		Password:          params.Password,
	})
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"crate":    crate.Summarize(record),
		"shareUrl": shareURL,
	}}, nil
}

func (s *CrateService) handleUnshare(ctx context.Context, caller string, args json.RawMessage) (*toolOutcome, error) {
	var params crateIDArgs
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, crate.Validation("id is required")
	}
	record, shareURL, err := s.store.Unshare(ctx, caller, params.ID)
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"crate":    crate.Summarize(record),
		"shareUrl": shareURL,
	}}, nil
}

func (s *CrateService) handleDelete(ctx context.Context, caller string, args json.RawMessage) (*toolOutcome, error) {
	var params crateIDArgs
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, crate.Validation("id is required")
	}
	if err := s.store.Delete(ctx, caller, params.ID); err != nil {
		return nil, err
	}
	return &toolOutcome{structured: map[string]any{
		"deleted": true,
		"id":      params.ID,
	}}, nil
}

func (s *CrateService) handleSweep(ctx context.Context, _ string, _ json.RawMessage) (*toolOutcome, error) {
	result, err := s.store.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &toolOutcome{structured: result}, nil
}
