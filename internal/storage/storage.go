/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/config"
	"github.com/friendsincode/grimnir_player/internal/models"
)

// URLResolver turns storage-relative paths into absolute, playable URLs.
// Absolute input is returned unchanged.
type URLResolver interface {
	URL(ctx context.Context, path string) (string, error)
	CheckAccess(ctx context.Context) error
}

// New selects a resolver from configuration: S3 when a bucket is configured,
// a public base URL when one is set, and the local media root otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (URLResolver, error) {
	switch {
	case cfg.S3Bucket != "":
		s3cfg := S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
			PresignTTL:      cfg.S3PresignTTL,
		}
		if s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, falling back to the default AWS credential chain")
		}
		store, err := NewS3Storage(ctx, s3cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		return store, nil
	case cfg.StorageBaseURL != "":
		return NewPublicStorage(cfg.StorageBaseURL)
	default:
		return NewFilesystemStorage(cfg.MediaRoot, logger), nil
	}
}

// joinURL appends a relative path to base with exactly one separating slash.
// Each path segment is escaped; base is taken as already encoded.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + escapePath(strings.TrimLeft(path, "/"))
}

// escapePath percent-encodes every segment of a storage key.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func passthrough(path string) (string, bool) {
	path = strings.TrimSpace(path)
	return path, models.IsAbsoluteURL(path)
}
