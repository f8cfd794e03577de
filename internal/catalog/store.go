/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// narrowColumns is the projection the resolver's primary lookups read.
var narrowColumns = []string{
	"id", "slug", "title", "artist_name",
	"audio_path", "alt_audio_path", "cover_path",
	"duration_seconds", "approved", "visibility", "owner_id",
}

// Store reads tracks from the catalog database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a catalog store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByID looks up an approved track by canonical identifier.
func (s *Store) FindByID(ctx context.Context, id string) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).
		Select(narrowColumns).
		Where("id = ? AND approved = ?", id, true).
		First(&track).Error
	if err != nil {
		return nil, wrapErr("find track by id", err)
	}
	return &track, nil
}

// FindBySlug looks up an approved track by slug.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).
		Select(narrowColumns).
		Where("slug = ? AND approved = ?", slug, true).
		First(&track).Error
	if err != nil {
		return nil, wrapErr("find track by slug", err)
	}
	return &track, nil
}

// FindBroad matches value against every identifying column with the full
// projection. It recovers records referenced by a legacy identifier or a slug
// that differs only in case.
func (s *Store) FindBroad(ctx context.Context, value string) (*models.Track, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, models.ErrNotFound
	}

	q := s.db.WithContext(ctx).Where("approved = ?", true)

	// Postgres rejects non-UUID literals against a uuid column.
	match := s.db.Where("slug = ?", value).
		Or("legacy_id = ?", value).
		Or("LOWER(slug) = ?", strings.ToLower(value))
	if _, err := uuid.Parse(value); err == nil {
		match = match.Or("id = ?", strings.ToLower(value))
	}

	var track models.Track
	if err := q.Where(match).Order("created_at ASC").First(&track).Error; err != nil {
		return nil, wrapErr("find track", err)
	}
	return &track, nil
}

// ListApproved returns approved tracks newest first. limit <= 0 means no limit.
func (s *Store) ListApproved(ctx context.Context, limit int) ([]models.Track, error) {
	q := s.db.WithContext(ctx).Where("approved = ?", true).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tracks []models.Track
	if err := q.Find(&tracks).Error; err != nil {
		return nil, wrapErr("list tracks", err)
	}
	return tracks, nil
}

// FindMany loads approved tracks by id, preserving the order of ids. Missing
// ids are skipped.
func (s *Store) FindMany(ctx context.Context, ids []string) ([]models.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Track
	if err := s.db.WithContext(ctx).Where("id IN ? AND approved = ?", ids, true).Find(&rows).Error; err != nil {
		return nil, wrapErr("find tracks", err)
	}

	byID := make(map[string]models.Track, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	out := make([]models.Track, 0, len(rows))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Save inserts or updates a track.
func (s *Store) Save(ctx context.Context, track *models.Track) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.Visibility == "" {
		track.Visibility = models.VisibilityPublic
	}
	if err := s.db.WithContext(ctx).Save(track).Error; err != nil {
		return wrapErr("save track", err)
	}
	return nil
}

// wrapErr maps gorm errors onto the player's error taxonomy: a missing row is
// ErrNotFound, anything else is a transient ErrNetwork.
func wrapErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrNetwork, err)
}
