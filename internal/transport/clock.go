/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ClockElement is a headless MediaElement. It verifies a source is reachable
// and then advances a wall-clock playhead, emitting time updates and a natural
// end. It backs server-side sessions where no audio device exists.
type ClockElement struct {
	client *http.Client
	tick   time.Duration
	now    func() time.Time

	mu        sync.Mutex
	events    ElementEvents
	src       Source
	duration  float64
	playing   bool
	offset    float64
	startedAt time.Time
	gen       uint64
	stop      chan struct{}
	volume    float64
	muted     bool
}

// NewClockElement creates a clock element with the given update interval.
func NewClockElement(tick time.Duration) *ClockElement {
	if tick <= 0 {
		tick = time.Second
	}
	return &ClockElement{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		tick: tick,
		now:  time.Now,
	}
}

// Attach implements MediaElement.
func (e *ClockElement) Attach(events ElementEvents) {
	e.mu.Lock()
	e.events = events
	e.mu.Unlock()
}

// Load implements MediaElement. http(s) sources are probed with HEAD and file
// sources with stat. Other schemes are accepted as-is. A load overtaken by a
// newer one while probing returns ErrSuperseded and leaves the newer source.
func (e *ClockElement) Load(ctx context.Context, src Source) (float64, error) {
	e.mu.Lock()
	e.halt()
	e.gen++
	gen := e.gen
	e.playing = false
	e.src = Source{}
	e.offset = 0
	e.duration = 0
	e.mu.Unlock()

	if err := e.probe(ctx, src.URL); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return 0, ErrSuperseded
	}
	e.src = src
	e.duration = knownDuration(src.DurationHint)
	return e.duration, nil
}

func (e *ClockElement) probe(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse media url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
		if err != nil {
			return err
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("probe media: %w", err)
		}
		_ = resp.Body.Close()
		// Some origins refuse HEAD but serve GET fine.
		if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
			return nil
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("probe media: status %d", resp.StatusCode)
		}
		return nil
	case "file":
		info, err := os.Stat(u.Path)
		if err != nil {
			return fmt.Errorf("probe media: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("probe media: %s is a directory", u.Path)
		}
		return nil
	default:
		return nil
	}
}

// Play implements MediaElement.
func (e *ClockElement) Play(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src.URL == "" {
		return fmt.Errorf("no media loaded")
	}
	if e.playing {
		return nil
	}
	if e.duration > 0 && e.offset >= e.duration {
		e.offset = 0
	}
	e.playing = true
	e.startedAt = e.now()
	e.run()
	return nil
}

// Pause implements MediaElement.
func (e *ClockElement) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return nil
	}
	e.offset = e.positionLocked()
	e.playing = false
	e.halt()
	return nil
}

// Seek implements MediaElement.
func (e *ClockElement) Seek(position float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offset = clampTime(position, e.duration)
	if e.playing {
		e.startedAt = e.now()
		e.halt()
		e.run()
	}
	return nil
}

// SetVolume implements MediaElement. The clock has no output, so the values
// are only recorded.
func (e *ClockElement) SetVolume(volume float64, muted bool) error {
	e.mu.Lock()
	e.volume, e.muted = volume, muted
	e.mu.Unlock()
	return nil
}

// Position implements MediaElement.
func (e *ClockElement) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *ClockElement) positionLocked() float64 {
	if !e.playing {
		return e.offset
	}
	return clampTime(e.offset+e.now().Sub(e.startedAt).Seconds(), e.duration)
}

// run starts the tick loop for the current generation. Caller holds mu.
func (e *ClockElement) run() {
	e.gen++
	gen := e.gen
	stop := make(chan struct{})
	e.stop = stop

	go func() {
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if done := e.advance(gen); done {
					return
				}
			}
		}
	}()
}

// advance emits a time update and, at the end of known-duration media, the
// end signal. It reports whether the loop should exit.
func (e *ClockElement) advance(gen uint64) bool {
	e.mu.Lock()
	if gen != e.gen || !e.playing {
		e.mu.Unlock()
		return true
	}
	pos := e.positionLocked()
	ended := e.duration > 0 && pos >= e.duration
	if ended {
		e.playing = false
		e.offset = e.duration
		e.stop = nil
	}
	events := e.events
	e.mu.Unlock()

	if events == nil {
		return ended
	}
	events.TimeUpdate(pos)
	if ended {
		events.Ended()
	}
	return ended
}

// halt stops the tick loop. Caller holds mu.
func (e *ClockElement) halt() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}
