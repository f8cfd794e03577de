/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// ErrSuperseded is returned when a newer load replaced the one in progress.
var ErrSuperseded = errors.New("superseded by a newer load")

// Controller owns the single active media session.
type Controller struct {
	el     MediaElement
	bus    *events.Bus
	logger zerolog.Logger

	mu          sync.Mutex
	session     Session
	loadSeq     uint64
	lastGoodURL string
	pendingSeek *float64
	onEnded     func()

	playing atomic.Bool // play() request in flight
}

// NewController attaches to el and starts in Idle with the given volume.
func NewController(el MediaElement, bus *events.Bus, defaultVolume float64, logger zerolog.Logger) *Controller {
	c := &Controller{
		el:      el,
		bus:     bus,
		logger:  logger.With().Str("component", "transport").Logger(),
		session: Session{State: StateIdle, Volume: clampVolume(defaultVolume)},
	}
	el.Attach(c)
	telemetry.TransportState.Set(float64(StateIdle))
	return c
}

// SetEndedHandler registers the callback run when media reaches its natural end.
func (c *Controller) SetEndedHandler(fn func()) {
	c.mu.Lock()
	c.onEnded = fn
	c.mu.Unlock()
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Load replaces the current media. Any state may transition to Loading. On
// failure the controller returns to Idle and LoadedURL reverts to the last
// successfully loaded URL.
func (c *Controller) Load(ctx context.Context, src Source) error {
	if src.URL == "" {
		return models.NewOpError("load", "", fmt.Errorf("%w: empty url", models.ErrPlayback))
	}

	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.pendingSeek = nil
	c.session.State = StateLoading
	c.session.Playing = false
	c.session.LoadedURL = ""
	c.session.CurrentTime = 0
	c.session.Duration = knownDuration(src.DurationHint)
	c.mu.Unlock()
	c.changed()

	duration, err := c.el.Load(ctx, src)

	c.mu.Lock()
	if seq != c.loadSeq {
		c.mu.Unlock()
		telemetry.TransportLoadsTotal.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}

	if err != nil {
		c.session.State = StateIdle
		c.session.LoadedURL = c.lastGoodURL
		c.session.Duration = 0
		c.mu.Unlock()
		c.changed()

		telemetry.TransportLoadsTotal.WithLabelValues("error").Inc()
		telemetry.PlaybackErrorsTotal.Inc()
		c.logger.Warn().Err(err).Str("url", src.URL).Msg("media load failed")
		return models.NewOpError("load", src.URL, fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}

	if d := knownDuration(duration); d > 0 {
		c.session.Duration = d
	}
	c.session.State = StateReady
	c.session.LoadedURL = src.URL
	c.lastGoodURL = src.URL
	volume, muted := c.session.Volume, c.session.Muted

	var seekTo *float64
	if c.pendingSeek != nil {
		t := clampTime(*c.pendingSeek, c.session.Duration)
		c.session.CurrentTime = t
		seekTo = &t
		c.pendingSeek = nil
	}
	c.mu.Unlock()

	if err := c.el.SetVolume(volume, muted); err != nil {
		c.logger.Debug().Err(err).Msg("apply volume after load failed")
	}
	if seekTo != nil {
		if err := c.el.Seek(*seekTo); err != nil {
			c.logger.Debug().Err(err).Float64("position", *seekTo).Msg("deferred seek failed")
		}
	}

	telemetry.TransportLoadsTotal.WithLabelValues("ok").Inc()
	c.changed()
	return nil
}

// Play starts or resumes playback. A Play issued while another is still in
// flight is a no-op.
func (c *Controller) Play(ctx context.Context) error {
	if !c.playing.CompareAndSwap(false, true) {
		return nil
	}
	defer c.playing.Store(false)

	c.mu.Lock()
	state := c.session.State
	switch state {
	case StatePlaying:
		c.mu.Unlock()
		return nil
	case StateIdle, StateLoading:
		c.mu.Unlock()
		return models.NewOpError("play", "", fmt.Errorf("%w: nothing ready to play (%s)", models.ErrPlayback, state))
	}
	seq := c.loadSeq
	url := c.session.LoadedURL
	restart := state == StateEnded
	if restart {
		c.session.CurrentTime = 0
	}
	c.mu.Unlock()

	if restart {
		if err := c.el.Seek(0); err != nil {
			c.logger.Debug().Err(err).Msg("rewind before replay failed")
		}
	}

	err := c.el.Play(ctx)

	c.mu.Lock()
	if seq != c.loadSeq {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.session.Playing = false
		if restart {
			c.session.State = StateReady
		}
		c.mu.Unlock()
		c.changed()

		telemetry.PlaybackErrorsTotal.Inc()
		c.logger.Warn().Err(err).Str("url", url).Msg("media play failed")
		return models.NewOpError("play", url, fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}
	c.session.State = StatePlaying
	c.session.Playing = true
	c.mu.Unlock()

	c.changed()
	return nil
}

// Pause pauses playback. Outside Playing it is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.session.State != StatePlaying {
		c.mu.Unlock()
		return nil
	}
	seq := c.loadSeq
	c.mu.Unlock()

	if err := c.el.Pause(); err != nil {
		return models.NewOpError("pause", "", fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}

	c.mu.Lock()
	if seq == c.loadSeq && c.session.State == StatePlaying {
		c.session.State = StatePaused
		c.session.Playing = false
		c.session.CurrentTime = clampTime(c.el.Position(), c.session.Duration)
	}
	c.mu.Unlock()

	c.changed()
	return nil
}

// Seek moves the playhead. While Loading the seek is applied once the media is
// ready; in Idle and Ended it is ignored.
func (c *Controller) Seek(position float64) error {
	c.mu.Lock()
	switch {
	case c.session.State == StateLoading:
		p := position
		c.pendingSeek = &p
		c.mu.Unlock()
		return nil
	case !c.session.State.seekable():
		c.mu.Unlock()
		return nil
	}
	t := clampTime(position, c.session.Duration)
	c.session.CurrentTime = t
	c.mu.Unlock()

	if err := c.el.Seek(t); err != nil {
		return models.NewOpError("seek", "", fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}
	c.changed()
	return nil
}

// SetVolume clamps v to [0,1] and applies it. It returns the applied value.
func (c *Controller) SetVolume(v float64) (float64, error) {
	c.mu.Lock()
	c.session.Volume = clampVolume(v)
	volume, muted := c.session.Volume, c.session.Muted
	c.mu.Unlock()

	if err := c.el.SetVolume(volume, muted); err != nil {
		return volume, models.NewOpError("volume", "", fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}
	c.changed()
	return volume, nil
}

// ToggleMute flips mute and returns the new value. Volume is preserved.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	c.session.Muted = !c.session.Muted
	volume, muted := c.session.Volume, c.session.Muted
	c.mu.Unlock()

	if err := c.el.SetVolume(volume, muted); err != nil {
		return muted, models.NewOpError("mute", "", fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}
	c.changed()
	return muted, nil
}

// Restart replays the loaded media from the beginning without reloading it.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	switch c.session.State {
	case StateIdle, StateLoading:
		c.mu.Unlock()
		return models.NewOpError("restart", "", fmt.Errorf("%w: nothing loaded", models.ErrPlayback))
	}
	c.session.CurrentTime = 0
	if c.session.State == StateEnded {
		c.session.State = StateReady
	}
	c.mu.Unlock()

	if err := c.el.Seek(0); err != nil {
		return models.NewOpError("restart", "", fmt.Errorf("%w: %v", models.ErrPlayback, err))
	}
	return c.Play(ctx)
}

// TimeUpdate implements ElementEvents.
func (c *Controller) TimeUpdate(position float64) {
	c.mu.Lock()
	if c.session.State == StateIdle || c.session.State == StateLoading {
		c.mu.Unlock()
		return
	}
	c.session.CurrentTime = clampTime(position, c.session.Duration)
	c.mu.Unlock()
	c.changed()
}

// DurationChange implements ElementEvents.
func (c *Controller) DurationChange(duration float64) {
	d := knownDuration(duration)
	c.mu.Lock()
	if d > 0 {
		c.session.Duration = d
		c.session.CurrentTime = clampTime(c.session.CurrentTime, d)
	}
	c.mu.Unlock()
	c.changed()
}

// Ended implements ElementEvents. Stale end signals outside Playing are ignored.
func (c *Controller) Ended() {
	c.mu.Lock()
	if c.session.State != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.session.State = StateEnded
	c.session.Playing = false
	if c.session.Duration > 0 {
		c.session.CurrentTime = c.session.Duration
	}
	url := c.session.LoadedURL
	handler := c.onEnded
	c.mu.Unlock()

	c.changed()
	if c.bus != nil {
		c.bus.Publish(events.EventTrackEnded, events.Payload{"url": url})
	}
	if handler != nil {
		handler()
	}
}

func (c *Controller) changed() {
	s := c.Snapshot()
	telemetry.TransportState.Set(float64(s.State))
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.EventSessionChanged, events.Payload{
		"state":        s.State.String(),
		"current_time": s.CurrentTime,
		"duration":     s.Duration,
		"volume":       s.Volume,
		"muted":        s.Muted,
		"playing":      s.Playing,
		"loaded_url":   s.LoadedURL,
	})
}
