// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob stores crate content in S3-compatible object storage
// through the MinIO client. It satisfies the crate.BlobStore
// interface, including the pre-signed URL generation used for direct
// uploads and downloads.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cratebox/cratebox/lib/crate"
)

// Config holds the connection parameters for the object store.
type Config struct {
	// Endpoint is the S3 host and port, without a scheme.
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey authenticate with static v4 credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Bucket is created at startup if it does not exist.
	Bucket string `yaml:"bucket"`

	// Region is passed through on bucket creation; optional.
	Region string `yaml:"region"`

	// UseSSL selects https endpoints.
	UseSSL bool `yaml:"use_ssl"`
}

// Validate checks that the required connection parameters are set.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("blob: endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("blob: access_key and secret_key are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("blob: bucket is required")
	}
	return nil
}

// Store is a crate.BlobStore backed by one bucket in an S3-compatible
// object store.
type Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// Open connects to the object store and ensures the configured bucket
// exists. A missing bucket is created; any other failure is fatal, the
// service cannot run without its content backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connecting to %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob: checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("blob: creating bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("blob bucket created", "bucket", cfg.Bucket)
	}

	logger.Info("blob store ready", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return &Store{client: client, bucket: cfg.Bucket, log: logger}, nil
}

// Write stores data at path, replacing any existing object.
func (s *Store) Write(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("blob: writing %s: %w", path, err)
	}
	return nil
}

// Read returns the full object at path.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blob: opening %s: %w", path, translateError(err))
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("blob: reading %s: %w", path, translateError(err))
	}
	return data, nil
}

// Stat returns the size of the object at path.
func (s *Store) Stat(ctx context.Context, path string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("blob: stat %s: %w", path, translateError(err))
	}
	return info.Size, nil
}

// Delete removes the object at path. Removing an absent object is not
// an error, matching S3 semantics.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("blob: deleting %s: %w", path, translateError(err))
	}
	return nil
}

// PresignedPut returns a URL authorizing a direct PUT of path.
func (s *Store) PresignedPut(ctx context.Context, path string, expiry time.Duration) (string, error) {
	presigned, err := s.client.PresignedPutObject(ctx, s.bucket, path, expiry)
	if err != nil {
		return "", fmt.Errorf("blob: presigning upload of %s: %w", path, err)
	}
	return presigned.String(), nil
}

// PresignedGet returns a URL authorizing a direct GET of path.
func (s *Store) PresignedGet(ctx context.Context, path string, expiry time.Duration) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, path, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("blob: presigning download of %s: %w", path, err)
	}
	return presigned.String(), nil
}

// translateError maps missing-object responses onto the sentinel the
// orchestrator checks for; everything else passes through.
func translateError(err error) error {
	response := minio.ToErrorResponse(err)
	if response.Code == "NoSuchKey" || response.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", crate.ErrBlobNotFound, response.Code)
	}
	return err
}
