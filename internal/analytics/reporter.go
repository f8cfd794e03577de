/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// PlayRecorder persists play events.
type PlayRecorder interface {
	Record(ctx context.Context, ev *models.PlayEvent) error
}

// Reporter records playback starts. Every method is fire-and-forget: failures
// are logged and counted, never returned.
type Reporter struct {
	recorder PlayRecorder
	logger   zerolog.Logger
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

// NewReporter creates a reporter writing through recorder.
func NewReporter(recorder PlayRecorder, logger zerolog.Logger) *Reporter {
	return &Reporter{
		recorder: recorder,
		logger:   logger.With().Str("component", "analytics").Logger(),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
}

// RecordPlay stores a play of trackID by viewerID in the background.
func (r *Reporter) RecordPlay(trackID, viewerID string) {
	if trackID == "" {
		return
	}
	ev := &models.PlayEvent{
		ID:       uuid.NewString(),
		TrackID:  trackID,
		ViewerID: viewerID,
		PlayedAt: r.now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				telemetry.PlayRecordErrorsTotal.Inc()
				r.logger.Error().Interface("panic", p).Str("track_id", trackID).Msg("play recorder panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.recorder.Record(ctx, ev); err != nil {
			telemetry.PlayRecordErrorsTotal.Inc()
			r.logger.Warn().Err(err).Str("track_id", trackID).Msg("failed to record play")
			return
		}
		telemetry.PlaysRecordedTotal.Inc()
	}()
}

// TrackFetched counts a catalog track materialized by the resolver.
func (r *Reporter) TrackFetched(_ context.Context, item models.PlayableItem) {
	telemetry.TracksFetchedTotal.Inc()
	r.logger.Debug().Str("track_id", item.ID).Msg("track fetched")
}

// Start records a play for every track.started event until ctx is done.
func (r *Reporter) Start(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	r.logger.Info().Msg("play reporter started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("play reporter stopped")
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if kind, _ := payload["kind"].(string); kind != "" && kind != string(models.KindTrack) {
				continue
			}
			trackID, _ := payload["track_id"].(string)
			viewerID, _ := payload["viewer_id"].(string)
			r.RecordPlay(trackID, viewerID)
		}
	}
}

// Wait blocks until in-flight writes finish.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
