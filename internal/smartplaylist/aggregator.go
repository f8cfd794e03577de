/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package smartplaylist

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// Source is one collection of algorithmic playlists.
type Source interface {
	Name() string
	Playlists(ctx context.Context, viewer models.Viewer) ([]models.Playlist, error)
}

// PlaylistLister is the playlist store view the built-in sources read.
type PlaylistLister interface {
	ListSmartForOwner(ctx context.Context, ownerID string) ([]models.Playlist, error)
	ListSmartGlobal(ctx context.Context) ([]models.Playlist, error)
}

// OwnedSource lists the viewer's own smart playlists.
type OwnedSource struct{ Store PlaylistLister }

func (OwnedSource) Name() string { return "owned" }

func (s OwnedSource) Playlists(ctx context.Context, viewer models.Viewer) ([]models.Playlist, error) {
	if viewer.Anonymous() {
		return nil, nil
	}
	return s.Store.ListSmartForOwner(ctx, viewer.ID)
}

// GlobalSource lists smart playlists shared by every viewer.
type GlobalSource struct{ Store PlaylistLister }

func (GlobalSource) Name() string { return "global" }

func (s GlobalSource) Playlists(ctx context.Context, _ models.Viewer) ([]models.Playlist, error) {
	return s.Store.ListSmartGlobal(ctx)
}

// Refresher regenerates one named playlist.
type Refresher interface {
	Refresh(ctx context.Context, viewer models.Viewer, name string) (*models.Playlist, error)
	InFlight(viewer models.Viewer, name string) bool
}

// Aggregator merges two playlist sources and routes refreshes.
type Aggregator struct {
	primary   Source
	secondary Source
	refresher Refresher
	logger    zerolog.Logger
}

// NewAggregator creates an aggregator. On duplicate IDs primary wins.
func NewAggregator(primary, secondary Source, refresher Refresher, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		primary:   primary,
		secondary: secondary,
		refresher: refresher,
		logger:    logger.With().Str("component", "smartplaylist").Logger(),
	}
}

// List fetches both sources concurrently and merges them. A failing source is
// logged and skipped; List fails only when both do.
func (a *Aggregator) List(ctx context.Context, viewer models.Viewer) ([]models.Playlist, error) {
	sources := []Source{a.primary, a.secondary}
	results := make([][]models.Playlist, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = src.Playlists(ctx, viewer)
		}()
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		telemetry.PlaylistSourceErrorsTotal.WithLabelValues(sources[i].Name()).Inc()
		a.logger.Warn().Err(err).Str("source", sources[i].Name()).Msg("smart playlist source failed")
	}
	if failed == len(sources) {
		return nil, errors.Join(errs...)
	}

	return Merge(results...), nil
}

// Refresh regenerates name for viewer.
func (a *Aggregator) Refresh(ctx context.Context, viewer models.Viewer, name string) (*models.Playlist, error) {
	return a.refresher.Refresh(ctx, viewer, name)
}

// Refreshing reports whether a refresh of name is running for viewer.
func (a *Aggregator) Refreshing(viewer models.Viewer, name string) bool {
	return a.refresher.InFlight(viewer, name)
}
