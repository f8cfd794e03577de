/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/storage"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// Catalog is the subset of the catalog store the resolver reads.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*models.Track, error)
	FindBySlug(ctx context.Context, slug string) (*models.Track, error)
	FindBroad(ctx context.Context, value string) (*models.Track, error)
}

// TrackCache caches catalog records between resolutions.
type TrackCache interface {
	GetTrack(ctx context.Context, id string) (*models.Track, bool)
	GetTrackBySlug(ctx context.Context, slug string) (*models.Track, bool)
	SetTrack(ctx context.Context, track *models.Track) error
	InvalidateTrack(ctx context.Context, id string) error
}

// FetchObserver receives a best-effort signal for each catalog track resolved.
type FetchObserver interface {
	TrackFetched(ctx context.Context, item models.PlayableItem)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables record caching.
func WithCache(c TrackCache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithObserver registers the track-fetched observer.
func WithObserver(o FetchObserver) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithPolicy replaces the default access policy.
func WithPolicy(p access.Checker) Option {
	return func(r *Resolver) { r.policy = p }
}

// Resolver turns track references into fully qualified PlayableItems.
type Resolver struct {
	catalog     Catalog
	urls        storage.URLResolver
	placeholder string
	policy      access.Checker
	cache       TrackCache
	observer    FetchObserver
	group       singleflight.Group
	logger      zerolog.Logger
}

// New creates a resolver. placeholderArtwork is used when a record has no cover.
func New(catalog Catalog, urls storage.URLResolver, placeholderArtwork string, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     catalog,
		urls:        urls,
		placeholder: placeholderArtwork,
		policy:      access.Policy{},
		logger:      logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsCanonicalID reports whether s has the catalog's canonical identifier format:
// a 36 character hyphenated UUID.
func IsCanonicalID(s string) bool {
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ParseRef classifies a raw reference string.
func ParseRef(raw string) models.TrackRef {
	raw = strings.TrimSpace(raw)
	if IsCanonicalID(raw) {
		return models.TrackRef{Kind: models.RefID, Value: strings.ToLower(raw)}
	}
	return models.TrackRef{Kind: models.RefSlug, Value: raw}
}

// Resolve resolves ref for the viewer carried by ctx.
func (r *Resolver) Resolve(ctx context.Context, ref models.TrackRef) (item models.PlayableItem, err error) {
	ctx, span := telemetry.StartSpan(ctx, "resolver", "resolver.Resolve",
		attribute.String("ref.kind", string(ref.Kind)),
	)
	start := time.Now()
	path := "inline"
	defer func() {
		telemetry.ResolverDuration.Observe(time.Since(start).Seconds())
		outcome := models.ErrorCode(err)
		if outcome == "" {
			outcome = "ok"
		}
		telemetry.ResolverLookupsTotal.WithLabelValues(path, outcome).Inc()
		telemetry.EndSpan(span, err)
	}()

	if ref.Kind == models.RefInline {
		if ref.Inline == nil {
			return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), models.ErrAmbiguousReference)
		}
		d := *ref.Inline
		if strings.TrimSpace(d.AudioPath) != "" || strings.TrimSpace(d.AltAudioPath) != "" {
			item, err = r.build(ctx, d)
			if err != nil {
				return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), err)
			}
			return item, nil
		}
		// No path to normalize: the descriptor is only a pointer into the catalog.
		switch {
		case d.ID != "":
			ref = ParseRef(d.ID)
		case d.Slug != "":
			ref = ParseRef(d.Slug)
		default:
			return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), models.ErrAmbiguousReference)
		}
	}

	switch ref.Kind {
	case models.RefID, models.RefSlug, "":
	default:
		return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), models.ErrAmbiguousReference)
	}

	value := strings.TrimSpace(ref.Value)
	if value == "" {
		return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), models.ErrAmbiguousReference)
	}

	track, via, err := r.lookup(ctx, value)
	path = via
	if err != nil {
		return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), err)
	}

	if !r.policy.CanAccess(*track, access.ViewerFromContext(ctx)) {
		return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), models.ErrAccessDenied)
	}

	item, err = r.build(ctx, sourceFromTrack(track))
	if err != nil {
		return models.PlayableItem{}, models.NewOpError("resolve", ref.String(), err)
	}
	item.Visibility = track.Visibility
	item.OwnerID = track.OwnerID

	r.notifyFetched(ctx, item)
	return item, nil
}

// ResolveString classifies raw and resolves it.
func (r *Resolver) ResolveString(ctx context.Context, raw string) (models.PlayableItem, error) {
	return r.Resolve(ctx, ParseRef(raw))
}

// Ensure returns item unchanged when it already carries an absolute audio URL,
// and resolves it otherwise.
func (r *Resolver) Ensure(ctx context.Context, item models.PlayableItem) (models.PlayableItem, error) {
	if item.Resolved() {
		return item, nil
	}
	return r.Resolve(ctx, item.Ref())
}

// Invalidate drops any cached record for id.
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateTrack(ctx, id); err != nil {
		r.logger.Debug().Err(err).Str("track_id", id).Msg("cache invalidation failed")
	}
}

// lookup runs the classified primary query and, on a miss, the broad fallback.
// Concurrent lookups of the same value share one round trip.
func (r *Resolver) lookup(ctx context.Context, value string) (*models.Track, string, error) {
	byID := IsCanonicalID(value)
	if byID {
		value = strings.ToLower(value)
	}

	if r.cache != nil {
		var (
			track *models.Track
			ok    bool
		)
		if byID {
			track, ok = r.cache.GetTrack(ctx, value)
		} else {
			track, ok = r.cache.GetTrackBySlug(ctx, value)
		}
		if ok {
			return track, "cache", nil
		}
	}

	type result struct {
		track *models.Track
		path  string
	}

	key := "slug:" + value
	if byID {
		key = "id:" + value
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		var (
			track *models.Track
			err   error
		)
		if byID {
			track, err = r.catalog.FindByID(ctx, value)
		} else {
			track, err = r.catalog.FindBySlug(ctx, value)
		}
		if err == nil {
			return result{track, "narrow"}, nil
		}

		primaryErr := err
		track, err = r.catalog.FindBroad(ctx, value)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) && !errors.Is(primaryErr, models.ErrNotFound) {
				return nil, primaryErr
			}
			return nil, err
		}
		return result{track, "broad"}, nil
	})
	if err != nil {
		return nil, "narrow", err
	}

	res := v.(result)
	if r.cache != nil {
		if err := r.cache.SetTrack(ctx, res.track); err != nil {
			r.logger.Debug().Err(err).Str("track_id", res.track.ID).Msg("cache write failed")
		}
	}

	// Callers sharing a flight must not alias one record.
	track := *res.track
	return &track, res.path, nil
}

func (r *Resolver) notifyFetched(ctx context.Context, item models.PlayableItem) {
	if r.observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn().Interface("panic", rec).Str("track_id", item.ID).Msg("track fetched observer panicked")
		}
	}()
	r.observer.TrackFetched(ctx, item)
}

// build normalizes a descriptor's paths into a PlayableItem.
func (r *Resolver) build(ctx context.Context, d models.InlineDescriptor) (models.PlayableItem, error) {
	audioURL, err := r.firstURL(ctx, audioChain(d))
	if err != nil {
		return models.PlayableItem{}, err
	}
	if audioURL == "" {
		return models.PlayableItem{}, fmt.Errorf("no audio path: %w", models.ErrNotFound)
	}

	artworkURL, err := r.firstURL(ctx, r.artworkChain(d))
	if err != nil {
		r.logger.Debug().Err(err).Str("track_id", d.ID).Msg("artwork unresolvable, leaving empty")
		artworkURL = ""
	}

	kind := d.Kind
	if kind == "" {
		kind = models.KindTrack
		if d.ID == "" {
			kind = models.KindExternal
		}
	}

	return models.PlayableItem{
		ID:              d.ID,
		Kind:            kind,
		Title:           d.Title,
		ArtistName:      d.ArtistName,
		AudioURL:        audioURL,
		ArtworkURL:      artworkURL,
		DurationSeconds: validDuration(d.DurationSeconds),
		Slug:            d.Slug,
	}, nil
}

// audioChain lists audio candidates in priority order.
func audioChain(d models.InlineDescriptor) []string {
	return []string{d.AltAudioPath, d.AudioPath}
}

// artworkChain lists artwork candidates in priority order.
func (r *Resolver) artworkChain(d models.InlineDescriptor) []string {
	return []string{d.CoverPath, r.placeholder}
}

// firstURL returns the URL of the first non-empty candidate. A candidate that
// fails to resolve is skipped; the last failure is returned if none resolves.
// No candidates at all yields "" and no error.
func (r *Resolver) firstURL(ctx context.Context, chain []string) (string, error) {
	var lastErr error
	for _, candidate := range chain {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		u, err := r.urls.URL(ctx, candidate)
		if err != nil {
			lastErr = fmt.Errorf("resolve url %q: %w: %v", candidate, models.ErrNetwork, err)
			continue
		}
		return u, nil
	}
	return "", lastErr
}

func sourceFromTrack(t *models.Track) models.InlineDescriptor {
	return models.InlineDescriptor{
		ID:              t.ID,
		Kind:            models.KindTrack,
		Title:           t.Title,
		ArtistName:      t.ArtistName,
		AudioPath:       t.AudioPath,
		AltAudioPath:    t.AltAudioPath,
		CoverPath:       t.CoverPath,
		DurationSeconds: t.DurationSeconds,
		Slug:            t.Slug,
	}
}

func validDuration(d *float64) *float64 {
	if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) || *d <= 0 {
		return nil
	}
	v := *d
	return &v
}
