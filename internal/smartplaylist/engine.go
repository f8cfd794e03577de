/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package smartplaylist

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/catalog"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// ErrUnknownPlaylist is returned when refreshing a name no generator handles.
var ErrUnknownPlaylist = errors.New("unknown smart playlist")

// Playlist names.
const (
	RecentlyPlayed = "Recently Played"
	DiscoverWeekly = "Discover Weekly"
	TopTracks      = "Top Tracks"
)

// TrackStore is the catalog view generators read.
type TrackStore interface {
	ListApproved(ctx context.Context, limit int) ([]models.Track, error)
	FindMany(ctx context.Context, ids []string) ([]models.Track, error)
}

// PlayHistory is the play-event view generators read.
type PlayHistory interface {
	RecentTrackIDs(ctx context.Context, viewerID string, limit int) ([]string, error)
	TopTracks(ctx context.Context, since time.Time, limit int) ([]catalog.TrackCount, error)
	PlayedTrackIDs(ctx context.Context, viewerID string) (map[string]struct{}, error)
}

// PlaylistWriter stores regenerated playlists.
type PlaylistWriter interface {
	ReplaceSmart(ctx context.Context, name, ownerID string, trackIDs []string) (*models.Playlist, error)
}

// generator computes a playlist's track ids. perViewer playlists are owned by
// the requesting viewer; the rest are global.
type generator struct {
	perViewer bool
	run       func(ctx context.Context, viewer models.Viewer) ([]string, error)
}

// Config tunes generation.
type Config struct {
	Size          int           // tracks per playlist
	CandidatePool int           // catalog rows considered for discovery
	TopWindow     time.Duration // look-back for Top Tracks
}

// DefaultConfig returns the default generation settings.
func DefaultConfig() Config {
	return Config{
		Size:          30,
		CandidatePool: 500,
		TopWindow:     30 * 24 * time.Hour,
	}
}

// Engine regenerates named smart playlists. Refreshes of the same playlist
// collapse into one; different playlists refresh independently.
type Engine struct {
	tracks TrackStore
	plays  PlayHistory
	writer PlaylistWriter
	policy access.Checker
	bus    *events.Bus
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	generators map[string]generator

	group    singleflight.Group
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(tracks TrackStore, plays PlayHistory, writer PlaylistWriter, policy access.Checker, bus *events.Bus, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = DefaultConfig().CandidatePool
	}
	if cfg.TopWindow <= 0 {
		cfg.TopWindow = DefaultConfig().TopWindow
	}

	e := &Engine{
		tracks:   tracks,
		plays:    plays,
		writer:   writer,
		policy:   policy,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With().Str("component", "smartplaylist").Logger(),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
	e.generators = map[string]generator{
		RecentlyPlayed: {perViewer: true, run: e.recentlyPlayed},
		DiscoverWeekly: {perViewer: true, run: e.discoverWeekly},
		TopTracks:      {perViewer: false, run: e.topTracks},
	}
	return e
}

// Names lists the playlists the engine can regenerate.
func (e *Engine) Names() []string {
	return []string{RecentlyPlayed, DiscoverWeekly, TopTracks}
}

func (e *Engine) key(name string, g generator, viewer models.Viewer) (key, owner string) {
	if g.perViewer {
		owner = viewer.ID
	}
	return name + "|" + owner, owner
}

// InFlight reports whether name is being regenerated for viewer.
func (e *Engine) InFlight(viewer models.Viewer, name string) bool {
	g, ok := e.generators[name]
	if !ok {
		return false
	}
	key, _ := e.key(name, g, viewer)
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[key]
	return busy
}

// Refresh regenerates name for viewer. On failure the stored playlist is left
// as it was and the error is returned.
func (e *Engine) Refresh(ctx context.Context, viewer models.Viewer, name string) (*models.Playlist, error) {
	g, ok := e.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlaylist, name)
	}
	if g.perViewer && viewer.Anonymous() {
		return nil, fmt.Errorf("refresh %s: %w", name, models.ErrAccessDenied)
	}
	key, owner := e.key(name, g, viewer)

	v, err, _ := e.group.Do(key, func() (any, error) {
		e.mu.Lock()
		e.inFlight[key] = struct{}{}
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.inFlight, key)
			e.mu.Unlock()
		}()

		ids, err := g.run(ctx, viewer)
		if err != nil {
			return nil, err
		}
		return e.writer.ReplaceSmart(ctx, name, owner, ids)
	})
	if err != nil {
		telemetry.PlaylistRefreshesTotal.WithLabelValues(name, "error").Inc()
		e.logger.Warn().Err(err).Str("playlist", name).Str("viewer_id", viewer.ID).Msg("smart playlist refresh failed")
		return nil, err
	}

	pl := v.(*models.Playlist)
	telemetry.PlaylistRefreshesTotal.WithLabelValues(name, "ok").Inc()
	if e.bus != nil {
		e.bus.Publish(events.EventPlaylistRefreshed, events.Payload{
			"playlist_id": pl.ID,
			"name":        pl.Name,
			"item_count":  pl.ItemCount,
			"owner_id":    owner,
		})
	}
	return pl, nil
}

// recentlyPlayed lists the viewer's latest distinct plays still accessible to them.
func (e *Engine) recentlyPlayed(ctx context.Context, viewer models.Viewer) ([]string, error) {
	ids, err := e.plays.RecentTrackIDs(ctx, viewer.ID, e.cfg.Size)
	if err != nil {
		return nil, err
	}
	return e.accessible(ctx, ids, viewer)
}

// discoverWeekly picks unplayed accessible tracks in an order fixed for the
// viewer and ISO week.
func (e *Engine) discoverWeekly(ctx context.Context, viewer models.Viewer) ([]string, error) {
	candidates, err := e.tracks.ListApproved(ctx, e.cfg.CandidatePool)
	if err != nil {
		return nil, err
	}
	played, err := e.plays.PlayedTrackIDs(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}

	pool := make([]string, 0, len(candidates))
	for _, t := range access.Filter(e.policy, candidates, viewer) {
		if _, seen := played[t.ID]; !seen {
			pool = append(pool, t.ID)
		}
	}

	rng := rand.New(rand.NewSource(weeklySeed(viewer.ID, e.now())))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > e.cfg.Size {
		pool = pool[:e.cfg.Size]
	}
	return pool, nil
}

// topTracks lists the most played publicly accessible tracks.
func (e *Engine) topTracks(ctx context.Context, _ models.Viewer) ([]string, error) {
	counts, err := e.plays.TopTracks(ctx, e.now().Add(-e.cfg.TopWindow), e.cfg.Size)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(counts))
	for i, c := range counts {
		ids[i] = c.TrackID
	}
	return e.accessible(ctx, ids, models.Viewer{})
}

func (e *Engine) accessible(ctx context.Context, ids []string, viewer models.Viewer) ([]string, error) {
	tracks, err := e.tracks.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tracks))
	for _, t := range access.Filter(e.policy, tracks, viewer) {
		out = append(out, t.ID)
	}
	return out, nil
}

func weeklySeed(viewerID string, now time.Time) int64 {
	year, week := now.ISOWeek()
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d-W%02d", viewerID, year, week)
	return int64(h.Sum64())
}
