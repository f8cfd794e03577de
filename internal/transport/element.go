/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transport

import "context"

// Source is what the controller asks a media element to load.
type Source struct {
	URL          string
	DurationHint float64 // seconds, 0 when unknown
}

// ElementEvents is implemented by the Controller. Elements must not hold
// their own locks while invoking these callbacks.
type ElementEvents interface {
	TimeUpdate(position float64)
	DurationChange(duration float64)
	Ended()
}

// MediaElement is the platform playback primitive. Decoding and output are
// entirely its concern.
type MediaElement interface {
	Attach(events ElementEvents)
	// Load prepares src and returns its duration in seconds (0 or NaN if unknown).
	Load(ctx context.Context, src Source) (float64, error)
	Play(ctx context.Context) error
	Pause() error
	Seek(position float64) error
	SetVolume(volume float64, muted bool) error
	Position() float64
}
