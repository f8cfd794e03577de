/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transport

import (
	"fmt"
	"math"
)

// State is the transport state machine position.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText produces.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateEnded; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transport state %q", text)
}

// seekable reports whether seek applies immediately in this state.
func (s State) seekable() bool {
	return s == StateReady || s == StatePlaying || s == StatePaused
}

// Session is a read projection of the controller's media session.
type Session struct {
	State       State   `json:"state"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"` // 0 while unknown
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
	Playing     bool    `json:"playing"`
	LoadedURL   string  `json:"loaded_url"` // "" while transitioning
}

// knownDuration maps NaN, infinities, and non-positive values to 0 (unknown).
func knownDuration(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0
	}
	return d
}

// clampTime bounds t to [0, duration]; an unknown duration only bounds below.
func clampTime(t, duration float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}

// clampVolume bounds v to [0, 1].
func clampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FormatTime renders seconds as m:ss, or h:mm:ss past an hour. Unknown or
// invalid values render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
