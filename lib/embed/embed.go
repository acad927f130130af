// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package embed turns text into vectors through an OpenAI-compatible
// embeddings endpoint. Any server implementing the /v1/embeddings
// wire format works: OpenAI, Azure OpenAI, vLLM, Ollama, llama.cpp.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the connection parameters for the embeddings endpoint.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1". The
	// client appends "/embeddings".
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token. Optional for local servers.
	APIKey string `yaml:"api_key"`

	// Model names the embedding model to request.
	Model string `yaml:"model"`

	// Timeout bounds each request. Defaults to 30 seconds.
	Timeout time.Duration `yaml:"timeout"`
}

// Client calls an OpenAI-compatible embeddings endpoint. It satisfies
// the crate.Embedder interface.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// New creates an embeddings client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embed: base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embed: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/embeddings",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

// wire types for the /v1/embeddings format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embed: encoding request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("embed: reading response: %w", err)
	}

	var decoded embedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("embed: HTTP %d, unparseable response: %w", response.StatusCode, err)
	}
	if response.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return nil, fmt.Errorf("embed: HTTP %d: %s (%s)", response.StatusCode, decoded.Error.Message, decoded.Error.Type)
		}
		return nil, fmt.Errorf("embed: HTTP %d", response.StatusCode)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: response contained no embedding")
	}
	return decoded.Data[0].Embedding, nil
}
