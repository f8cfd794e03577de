/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// Visibility controls who may stream a track.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilitySubscribers Visibility = "subscribers"
	VisibilityPrivate     Visibility = "private"
)

// Track is the catalog record a PlayableItem is resolved from.
type Track struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	LegacyID        string     `gorm:"type:varchar(64);index" json:"legacy_id,omitempty"`
	Slug            string     `gorm:"type:varchar(191);index" json:"slug,omitempty"`
	Title           string     `gorm:"index" json:"title"`
	ArtistName      string     `gorm:"index" json:"artist_name"`
	Album           string     `json:"album,omitempty"`
	Genre           string     `json:"genre,omitempty"`
	AudioPath       string     `json:"audio_path"`
	AltAudioPath    string     `json:"alt_audio_path,omitempty"`
	CoverPath       string     `json:"cover_path,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Approved        bool       `gorm:"index" json:"approved"`
	Visibility      Visibility `gorm:"type:varchar(16)" json:"visibility"`
	OwnerID         string     `gorm:"type:varchar(64);index" json:"owner_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Playlist groups tracks. Algorithmic playlists have IsAutoGenerated set.
type Playlist struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string    `gorm:"index" json:"name"`
	OwnerID         *string   `gorm:"type:varchar(64);index" json:"owner_id"`
	IsAutoGenerated bool      `gorm:"index" json:"is_auto_generated"`
	ItemCount       int       `json:"item_count"`
	LastUpdated     time.Time `json:"last_updated"`
	CreatedAt       time.Time `json:"-"`
}

// IsSmart reports whether the playlist is regenerated by rule.
func (p Playlist) IsSmart() bool {
	return p.IsAutoGenerated
}

// PlaylistItem is one ordered entry of a playlist.
type PlaylistItem struct {
	PlaylistID string `gorm:"type:uuid;primaryKey"`
	Position   int    `gorm:"primaryKey"`
	TrackID    string `gorm:"type:uuid;index"`
}

// PlayEvent records a playback start.
type PlayEvent struct {
	ID       string    `gorm:"type:uuid;primaryKey"`
	TrackID  string    `gorm:"type:uuid;index"`
	ViewerID string    `gorm:"type:varchar(64);index"`
	PlayedAt time.Time `gorm:"index"`
}

// Viewer is the identity a request acts on behalf of. The zero value is anonymous.
type Viewer struct {
	ID         string `json:"id"`
	Subscriber bool   `json:"subscriber"`
	Admin      bool   `json:"admin"`
}

// Anonymous reports whether the viewer carries no identity.
func (v Viewer) Anonymous() bool {
	return v.ID == ""
}

// AllModels lists every table owned by the player, in migration order.
func AllModels() []any {
	return []any{
		&Track{},
		&Playlist{},
		&PlaylistItem{},
		&PlayEvent{},
	}
}
