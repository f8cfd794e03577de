/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// PlaylistStore persists playlists and their ordered items.
type PlaylistStore struct {
	db *gorm.DB
}

// NewPlaylistStore creates a playlist store.
func NewPlaylistStore(db *gorm.DB) *PlaylistStore {
	return &PlaylistStore{db: db}
}

// ListSmartForOwner returns the auto-generated playlists owned by ownerID.
func (s *PlaylistStore) ListSmartForOwner(ctx context.Context, ownerID string) ([]models.Playlist, error) {
	if ownerID == "" {
		return nil, nil
	}
	var out []models.Playlist
	err := s.db.WithContext(ctx).
		Where("is_auto_generated = ? AND owner_id = ?", true, ownerID).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr("list owned smart playlists", err)
	}
	return out, nil
}

// ListSmartGlobal returns auto-generated playlists with no owner.
func (s *PlaylistStore) ListSmartGlobal(ctx context.Context) ([]models.Playlist, error) {
	var out []models.Playlist
	err := s.db.WithContext(ctx).
		Where("is_auto_generated = ? AND owner_id IS NULL", true).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr("list global smart playlists", err)
	}
	return out, nil
}

// FindSmart returns the smart playlist called name for ownerID, or the global
// one when ownerID is empty.
func (s *PlaylistStore) FindSmart(ctx context.Context, name, ownerID string) (*models.Playlist, error) {
	q := s.db.WithContext(ctx).Where("is_auto_generated = ? AND name = ?", true, name)
	if ownerID == "" {
		q = q.Where("owner_id IS NULL")
	} else {
		q = q.Where("owner_id = ?", ownerID)
	}
	var pl models.Playlist
	if err := q.First(&pl).Error; err != nil {
		return nil, wrapErr("find smart playlist", err)
	}
	return &pl, nil
}

// TrackIDs returns the ordered track ids of a playlist.
func (s *PlaylistStore) TrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.PlaylistItem{}).
		Where("playlist_id = ?", playlistID).
		Order("position ASC").
		Pluck("track_id", &ids).Error
	if err != nil {
		return nil, wrapErr("list playlist items", err)
	}
	return ids, nil
}

// ReplaceSmart upserts the smart playlist (name, ownerID) and replaces its
// items atomically. On error nothing is changed.
func (s *PlaylistStore) ReplaceSmart(ctx context.Context, name, ownerID string, trackIDs []string) (*models.Playlist, error) {
	var result models.Playlist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("is_auto_generated = ? AND name = ?", true, name)
		if ownerID == "" {
			q = q.Where("owner_id IS NULL")
		} else {
			q = q.Where("owner_id = ?", ownerID)
		}

		var pl models.Playlist
		err := q.First(&pl).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pl = models.Playlist{ID: uuid.NewString(), Name: name, IsAutoGenerated: true}
			if ownerID != "" {
				owner := ownerID
				pl.OwnerID = &owner
			}
		case err != nil:
			return err
		}

		if err := tx.Where("playlist_id = ?", pl.ID).Delete(&models.PlaylistItem{}).Error; err != nil {
			return err
		}
		if len(trackIDs) > 0 {
			items := make([]models.PlaylistItem, len(trackIDs))
			for i, id := range trackIDs {
				items[i] = models.PlaylistItem{PlaylistID: pl.ID, Position: i, TrackID: id}
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		pl.ItemCount = len(trackIDs)
		pl.LastUpdated = time.Now().UTC()
		if err := tx.Save(&pl).Error; err != nil {
			return err
		}
		result = pl
		return nil
	})
	if err != nil {
		return nil, wrapErr("replace smart playlist", err)
	}
	return &result, nil
}
