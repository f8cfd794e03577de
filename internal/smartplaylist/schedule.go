/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package smartplaylist

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// Leader reports whether this instance should run shared background work.
type Leader interface {
	IsLeader() bool
}

// Scheduler periodically regenerates the global smart playlists. With a
// Leader set, only the leader instance refreshes.
type Scheduler struct {
	refresher Refresher
	names     []string
	interval  time.Duration
	leader    Leader
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler for names. leader may be nil.
func NewScheduler(refresher Refresher, names []string, interval time.Duration, leader Leader, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		names:     names,
		interval:  interval,
		leader:    leader,
		logger:    logger.With().Str("component", "playlist_scheduler").Logger(),
	}
}

// Run refreshes once immediately and then every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 || len(s.names) == 0 {
		return
	}
	s.logger.Info().Dur("interval", s.interval).Strs("playlists", s.names).Msg("playlist scheduler started")

	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("playlist scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.leader != nil && !s.leader.IsLeader() {
		telemetry.PlaylistScheduledRefreshesTotal.WithLabelValues("skipped").Inc()
		return
	}
	for _, name := range s.names {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.refresher.Refresh(ctx, models.Viewer{}, name); err != nil {
			telemetry.PlaylistScheduledRefreshesTotal.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("playlist", name).Msg("scheduled refresh failed")
			continue
		}
		telemetry.PlaylistScheduledRefreshesTotal.WithLabelValues("ok").Inc()
	}
}
