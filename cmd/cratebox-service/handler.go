// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cratebox/cratebox/lib/clock"
	"github.com/cratebox/cratebox/lib/config"
	"github.com/cratebox/cratebox/lib/crate"
	"github.com/cratebox/cratebox/lib/cratedb"
	"github.com/cratebox/cratebox/lib/identity"
)

// maxRequestBytes bounds a tool-call request body. Inline uploads are
// base64 JSON; anything larger belongs on the pre-signed path.
const maxRequestBytes = 64 << 20

// UsageStore records and reports per-caller monthly usage. Satisfied
// by *cratedb.DB.
type UsageStore interface {
	RecordUsage(ctx context.Context, callerID, month string, bytesStored int64) error
	Usage(ctx context.Context, callerID, month string) (cratedb.UsageRecord, error)
}

// CrateService is the HTTP handler for the tool-call endpoint. Each
// POST carries one JSON-RPC 2.0 request; the bearer token resolves to
// the caller identity for ownership checks and usage accounting.
type CrateService struct {
	store    *crate.Store
	identity *identity.Resolver
	usage    UsageStore
	quotas   config.UsageConfig
	clock    clock.Clock
	log      *slog.Logger
	version  string

	toolList    []toolDef
	toolsByName map[string]*toolDef
}

// CrateServiceConfig carries the dependencies for a CrateService.
type CrateServiceConfig struct {
	Store    *crate.Store
	Identity *identity.Resolver
	Usage    UsageStore
	Quotas   config.UsageConfig
	Clock    clock.Clock
	Logger   *slog.Logger
	Version  string
}

// NewCrateService builds the handler and its tool registry.
func NewCrateService(cfg CrateServiceConfig) *CrateService {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &CrateService{
		store:    cfg.Store,
		identity: cfg.Identity,
		usage:    cfg.Usage,
		quotas:   cfg.Quotas,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		version:  cfg.Version,
	}
	s.toolList = s.tools()
	s.toolsByName = make(map[string]*toolDef, len(s.toolList))
	for i := range s.toolList {
		s.toolsByName[s.toolList[i].name] = &s.toolList[i]
	}
	return s
}

// ServeHTTP handles one JSON-RPC request per POST. GET /healthz
// answers liveness probes.
func (s *CrateService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "reading request", http.StatusBadRequest)
		return
	}

	caller := s.identity.Resolve(bearerToken(r))

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, s.log, errorResponse(json.RawMessage("null"), codeParseError, "parse error: "+err.Error()))
		return
	}

	resp := s.handle(r.Context(), caller, &req)
	if resp == nil {
		// Notification: acknowledged, no response body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, s.log, resp)
}

// handle routes a JSON-RPC request. Returns nil for notifications.
// The HTTP transport is stateless, so unlike a stdio session there is
// no initialized gate: every request is self-contained and tools/*
// work without a prior initialize.
func (s *CrateService) handle(ctx context.Context, caller string, req *request) *response {
	if req.JSONRPC != "2.0" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
	}
	if req.isNotification() {
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, caller, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *CrateService) handleInitialize(req *request) *response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
		}
	}
	// Always answer with our own protocol version; the client decides
	// whether it can proceed.
	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    "cratebox",
			Version: s.version,
		},
	})
}

func (s *CrateService) handleToolsList(req *request) *response {
	descriptions := make([]toolDescription, 0, len(s.toolList))
	for _, tool := range s.toolList {
		annotations := &toolAnnotations{}
		if tool.readOnly {
			annotations.ReadOnlyHint = boolPtr(true)
			annotations.DestructiveHint = boolPtr(false)
		}
		if tool.idempotent {
			annotations.IdempotentHint = boolPtr(true)
		}
		descriptions = append(descriptions, toolDescription{
			Name:        tool.name,
			Description: tool.description,
			InputSchema: tool.inputSchema,
			Annotations: annotations,
		})
	}
	return resultResponse(req.ID, toolsListResult{Tools: descriptions})
}

func (s *CrateService) handleToolsCall(ctx context.Context, caller string, req *request) *response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	tool, ok := s.toolsByName[params.Name]
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	outcome, runErr := tool.handle(ctx, caller, params.Arguments)

	// Every call counts against the caller's monthly usage; stored
	// bytes only accrue on successful inline uploads.
	var storedBytes int64
	if runErr == nil && outcome != nil {
		storedBytes = outcome.storedBytes
	}
	warning := s.recordUsage(ctx, caller, storedBytes)

	result := s.buildToolResult(outcome, runErr)
	result.UsageWarning = warning

	if runErr != nil {
		s.log.Warn("tool call failed",
			"tool", params.Name,
			"caller", caller,
			"category", crate.CategoryOf(runErr),
			"error", runErr)
	} else {
		s.log.Info("tool call", "tool", params.Name, "caller", caller)
	}
	return resultResponse(req.ID, result)
}

// buildToolResult assembles a toolsCallResult. Successful outcomes
// carry structuredContent plus content blocks: the handler's explicit
// blocks when it produced any (rendered text, images, links), else
// the serialized structured JSON as a text block.
func (s *CrateService) buildToolResult(outcome *toolOutcome, runErr error) toolsCallResult {
	if runErr != nil {
		return toolsCallResult{
			IsError:   true,
			Content:   []contentBlock{{Type: "text", Text: runErr.Error()}},
			ErrorInfo: classifyError(runErr),
		}
	}

	result := toolsCallResult{StructuredContent: outcome.structured}
	if len(outcome.blocks) > 0 {
		result.Content = outcome.blocks
		return result
	}
	serialized, err := json.Marshal(outcome.structured)
	if err != nil {
		// Structured results are built from plain maps and structs;
		// a marshal failure is a bug in the tool handler.
		return toolsCallResult{
			IsError:   true,
			Content:   []contentBlock{{Type: "text", Text: "encoding tool result: " + err.Error()}},
			ErrorInfo: &errorInfo{Category: string(crate.CategoryInternal)},
		}
	}
	result.Content = []contentBlock{{Type: "text", Text: string(serialized)}}
	return result
}

// classifyError extracts structured error metadata from an error
// chain. Context cancellation classifies as transient so callers know
// a retry may succeed.
func classifyError(err error) *errorInfo {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &errorInfo{Category: string(crate.CategoryTransient), Retryable: true}
	}
	category := crate.CategoryOf(err)
	return &errorInfo{
		Category:  string(category),
		Retryable: category == crate.CategoryTransient,
	}
}

// recordUsage bumps the caller's monthly counters and returns an
// advisory warning when a configured quota is exceeded. Accounting
// failures are logged, never surfaced: usage tracking must not break
// a working call.
func (s *CrateService) recordUsage(ctx context.Context, caller string, storedBytes int64) string {
	if s.usage == nil {
		return ""
	}
	month := cratedb.MonthKey(s.clock.Now())
	if err := s.usage.RecordUsage(ctx, caller, month, storedBytes); err != nil {
		s.log.Warn("usage accounting failed", "caller", caller, "error", err)
		return ""
	}
	if s.quotas.MonthlyCallQuota == 0 && s.quotas.MonthlyByteQuota == 0 {
		return ""
	}
	record, err := s.usage.Usage(ctx, caller, month)
	if err != nil {
		s.log.Warn("usage lookup failed", "caller", caller, "error", err)
		return ""
	}
	switch {
	case s.quotas.MonthlyCallQuota > 0 && record.Calls > s.quotas.MonthlyCallQuota:
		s.log.Warn("caller over monthly call quota",
			"caller", caller, "calls", record.Calls, "quota", s.quotas.MonthlyCallQuota)
		return fmt.Sprintf("monthly call quota exceeded: %d of %d calls used", record.Calls, s.quotas.MonthlyCallQuota)
	case s.quotas.MonthlyByteQuota > 0 && record.BytesStored > s.quotas.MonthlyByteQuota:
		s.log.Warn("caller over monthly storage quota",
			"caller", caller, "bytes", record.BytesStored, "quota", s.quotas.MonthlyByteQuota)
		return fmt.Sprintf("monthly storage quota exceeded: %d of %d bytes stored", record.BytesStored, s.quotas.MonthlyByteQuota)
	}
	return ""
}

// bearerToken extracts the bearer token from the Authorization
// header, or returns the empty string.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func errorResponse(id json.RawMessage, code int, message string) *response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func resultResponse(id json.RawMessage, result any) *response {
	return &response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func writeResponse(w http.ResponseWriter, logger *slog.Logger, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("writing response failed", "error", err)
	}
}

func boolPtr(v bool) *bool { return &v }
