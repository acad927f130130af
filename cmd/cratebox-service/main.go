// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Command cratebox-service runs the crate storage service: a JSON-RPC
// tool-call endpoint over HTTP backed by SQLite metadata and
// S3-compatible object storage, with optional vector search.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cratebox/cratebox/lib/blob"
	"github.com/cratebox/cratebox/lib/clock"
	"github.com/cratebox/cratebox/lib/config"
	"github.com/cratebox/cratebox/lib/crate"
	"github.com/cratebox/cratebox/lib/cratedb"
	"github.com/cratebox/cratebox/lib/embed"
	"github.com/cratebox/cratebox/lib/httpserver"
	"github.com/cratebox/cratebox/lib/identity"
)

const serviceVersion = "0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to cratebox.yaml (defaults to $CRATEBOX_CONFIG)")
	pflag.StringVar(&listen, "listen", "", "override the configured listen address")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("cratebox-service %s\n", serviceVersion)
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	logger := httpserver.NewLogger(cfg.Log.Level)
	logger.Info("cratebox starting", "version", serviceVersion, "listen", cfg.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := cratedb.Open(cratedb.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := blob.Open(ctx, cfg.Blob, logger)
	if err != nil {
		return err
	}

	var embedder crate.Embedder
	if cfg.EmbeddingsEnabled() {
		client, err := embed.New(*cfg.Embeddings)
		if err != nil {
			return err
		}
		embedder = client
		logger.Info("vector search enabled", "model", cfg.Embeddings.Model)
	} else {
		logger.Info("vector search disabled, prefix search only")
	}

	store, err := crate.New(crate.Config{
		Metadata: db,
		Blobs:    blobs,
		Embedder: embedder,
		Clock:    clock.Real(),
		BaseURL:  cfg.BaseURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	resolver, err := identity.NewResolver(cfg.Identity)
	if err != nil {
		return err
	}

	handler := NewCrateService(CrateServiceConfig{
		Store:    store,
		Identity: resolver,
		Usage:    db,
		Quotas:   cfg.Usage,
		Clock:    clock.Real(),
		Logger:   logger,
		Version:  serviceVersion,
	})

	server := httpserver.New(httpserver.Config{
		Address: cfg.Listen,
		Handler: handler,
		Logger:  logger,
	})
	return server.Serve(ctx)
}
