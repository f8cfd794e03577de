/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
)

// ItemKind distinguishes catalog tracks from external references.
type ItemKind string

const (
	KindTrack    ItemKind = "track"
	KindExternal ItemKind = "external"
)

// PlayableItem is an immutable, fully resolved media descriptor.
type PlayableItem struct {
	ID              string   `json:"id"`
	Kind            ItemKind `json:"kind"`
	Title           string   `json:"title"`
	ArtistName      string   `json:"artist_name"`
	AudioURL        string   `json:"audio_url"`
	ArtworkURL      string   `json:"artwork_url"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Slug            string   `json:"slug,omitempty"`

	// Access attributes copied from the catalog track.
	Visibility Visibility `json:"visibility,omitempty"`
	OwnerID    string     `json:"-"`
}

// Resolved reports whether the item carries an absolute audio URL and can be
// handed to the transport without another resolver round trip.
func (p PlayableItem) Resolved() bool {
	return IsAbsoluteURL(p.AudioURL)
}

// Duration returns the known duration in seconds, or 0 when unknown.
func (p PlayableItem) Duration() float64 {
	if p.DurationSeconds == nil {
		return 0
	}
	return *p.DurationSeconds
}

// Ref builds the reference used to re-resolve an unresolved item.
func (p PlayableItem) Ref() TrackRef {
	switch {
	case p.ID != "" && p.AudioURL == "":
		return TrackRef{Kind: RefID, Value: p.ID}
	case p.ID == "" && p.AudioURL == "" && p.Slug != "":
		return TrackRef{Kind: RefSlug, Value: p.Slug}
	}
	return TrackRef{Kind: RefInline, Inline: &InlineDescriptor{
		ID:              p.ID,
		Kind:            p.Kind,
		Title:           p.Title,
		ArtistName:      p.ArtistName,
		AudioPath:       p.AudioURL,
		CoverPath:       p.ArtworkURL,
		DurationSeconds: p.DurationSeconds,
		Slug:            p.Slug,
	}}
}

// RefKind tags a TrackRef.
type RefKind string

const (
	RefID     RefKind = "id"
	RefSlug   RefKind = "slug"
	RefInline RefKind = "inline"
)

// TrackRef is the transient resolver input produced by UI intents.
type TrackRef struct {
	Kind   RefKind           `json:"kind"`
	Value  string            `json:"value,omitempty"`
	Inline *InlineDescriptor `json:"inline,omitempty"`
}

// String renders the reference for logs.
func (r TrackRef) String() string {
	if r.Kind == RefInline {
		if r.Inline == nil {
			return "inline:<nil>"
		}
		if r.Inline.ID != "" {
			return "inline:" + r.Inline.ID
		}
		return "inline:" + r.Inline.AudioPath
	}
	return string(r.Kind) + ":" + r.Value
}

// InlineDescriptor is a partially populated item supplied by a caller that
// already holds metadata and only needs URL resolution.
type InlineDescriptor struct {
	ID              string   `json:"id,omitempty"`
	Kind            ItemKind `json:"kind,omitempty"`
	Title           string   `json:"title,omitempty"`
	ArtistName      string   `json:"artist_name,omitempty"`
	AudioPath       string   `json:"audio_path,omitempty"`
	AltAudioPath    string   `json:"alt_audio_path,omitempty"`
	CoverPath       string   `json:"cover_path,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Slug            string   `json:"slug,omitempty"`
}

// RepeatMode is the queue repeat policy.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// Next cycles none → all → one → none.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// IsAbsoluteURL reports whether s already carries a scheme and is safe to
// hand to a media element verbatim.
func IsAbsoluteURL(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for _, c := range s[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
