/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// PublicStorage joins relative paths onto a public base URL (CDN, bucket
// website, or reverse proxy).
type PublicStorage struct {
	baseURL string
}

// NewPublicStorage validates baseURL and returns a resolver for it.
func NewPublicStorage(baseURL string) (*PublicStorage, error) {
	baseURL = strings.TrimSpace(baseURL)
	if !models.IsAbsoluteURL(baseURL) {
		return nil, fmt.Errorf("storage base URL %q is not absolute", baseURL)
	}
	return &PublicStorage{baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// URL implements URLResolver.
func (p *PublicStorage) URL(_ context.Context, path string) (string, error) {
	path, absolute := passthrough(path)
	if absolute {
		return path, nil
	}
	if path == "" {
		return "", fmt.Errorf("empty storage path")
	}
	return joinURL(p.baseURL, path), nil
}

// CheckAccess implements URLResolver. A public base URL has nothing to probe.
func (p *PublicStorage) CheckAccess(context.Context) error {
	return nil
}
