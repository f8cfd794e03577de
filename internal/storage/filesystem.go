/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FilesystemStorage maps relative paths under a local media root to file:// URLs.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-backed resolver.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	if abs, err := filepath.Abs(rootDir); err == nil {
		rootDir = abs
	}
	return &FilesystemStorage{rootDir: rootDir, logger: logger}
}

// URL implements URLResolver.
func (fs *FilesystemStorage) URL(_ context.Context, path string) (string, error) {
	path, absolute := passthrough(path)
	if absolute {
		return path, nil
	}
	if path == "" {
		return "", fmt.Errorf("empty storage path")
	}

	full := filepath.Join(fs.rootDir, filepath.FromSlash(strings.TrimLeft(path, "/")))
	if !strings.HasPrefix(full, fs.rootDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes media root", path)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(full)}
	return u.String(), nil
}

// CheckAccess verifies the media root exists and is a directory.
func (fs *FilesystemStorage) CheckAccess(context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		return fmt.Errorf("media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root %s is not a directory", fs.rootDir)
	}
	return nil
}
