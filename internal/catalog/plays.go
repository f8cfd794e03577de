/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// TrackCount pairs a track id with a play count.
type TrackCount struct {
	TrackID string
	Plays   int64
}

// PlayStore reads and writes play events.
type PlayStore struct {
	db *gorm.DB
}

// NewPlayStore creates a play store.
func NewPlayStore(db *gorm.DB) *PlayStore {
	return &PlayStore{db: db}
}

// Record persists a play event.
func (s *PlayStore) Record(ctx context.Context, ev *models.PlayEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return wrapErr("record play", err)
	}
	return nil
}

// RecentTrackIDs returns distinct track ids viewerID played, most recent first.
func (s *PlayStore) RecentTrackIDs(ctx context.Context, viewerID string, limit int) ([]string, error) {
	var rows []struct {
		TrackID string
	}
	err := s.db.WithContext(ctx).
		Model(&models.PlayEvent{}).
		Select("track_id").
		Where("viewer_id = ?", viewerID).
		Group("track_id").
		Order("MAX(played_at) DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr("recent plays", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.TrackID
	}
	return ids, nil
}

// TopTracks returns the most played tracks since the given time.
func (s *PlayStore) TopTracks(ctx context.Context, since time.Time, limit int) ([]TrackCount, error) {
	var rows []TrackCount
	err := s.db.WithContext(ctx).
		Model(&models.PlayEvent{}).
		Select("track_id, COUNT(*) AS plays").
		Where("played_at >= ?", since).
		Group("track_id").
		Order("plays DESC, track_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr("top tracks", err)
	}
	return rows, nil
}

// PlayedTrackIDs returns the set of track ids viewerID has ever played.
func (s *PlayStore) PlayedTrackIDs(ctx context.Context, viewerID string) (map[string]struct{}, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.PlayEvent{}).
		Where("viewer_id = ?", viewerID).
		Distinct("track_id").
		Pluck("track_id", &ids).Error
	if err != nil {
		return nil, wrapErr("played tracks", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
