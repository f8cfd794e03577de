/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalogsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// DefaultDebounce is the coalescing window for change bursts.
const DefaultDebounce = 2 * time.Second

// Sink receives decoded events from a Source.
type Sink interface {
	Ingest(ev ChangeEvent)
	Reject(source string, err error)
}

// Source delivers catalog change notifications until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// Invalidator drops cached resolutions for a track.
type Invalidator interface {
	Invalidate(ctx context.Context, id string)
}

// Adapter coalesces change events per track over a fixed window and applies
// them to registered list caches. It never holds a reference to the queue or
// the playback session.
type Adapter struct {
	window      time.Duration
	invalidator Invalidator
	bus         *events.Bus
	logger      zerolog.Logger

	mu      sync.Mutex
	lists   []Reconciler
	pending map[string]ChangeEvent
	order   []string
	timer   *time.Timer
}

// NewAdapter creates an adapter. invalidator and bus may be nil.
func NewAdapter(window time.Duration, invalidator Invalidator, bus *events.Bus, logger zerolog.Logger) *Adapter {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Adapter{
		window:      window,
		invalidator: invalidator,
		bus:         bus,
		logger:      logger.With().Str("component", "catalogsync").Logger(),
		pending:     make(map[string]ChangeEvent),
	}
}

// Register adds a list cache to reconcile.
func (a *Adapter) Register(r Reconciler) {
	a.mu.Lock()
	a.lists = append(a.lists, r)
	a.mu.Unlock()
}

// Ingest queues ev. The first event of a burst arms the flush timer; later
// events in the window fold into it.
func (a *Adapter) Ingest(ev ChangeEvent) {
	id := ev.TrackID()
	if id == "" {
		a.Reject("ingest", ErrMalformedEvent)
		return
	}
	telemetry.CatalogEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.pending[id]; ok {
		a.pending[id] = coalesce(prev, ev)
	} else {
		a.pending[id] = ev
		a.order = append(a.order, id)
	}

	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, func() {
			a.Flush(context.Background())
		})
	}
}

// Reject logs and drops an event that could not be decoded.
func (a *Adapter) Reject(source string, err error) {
	telemetry.CatalogEventsDroppedTotal.Inc()
	a.logger.Warn().Err(err).Str("source", source).Msg("dropping catalog event")
}

// Pending returns the number of records waiting for the next flush.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Flush applies everything pending now and returns how many records changed.
func (a *Adapter) Flush(ctx context.Context) int {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	batch := make([]ChangeEvent, 0, len(a.order))
	for _, id := range a.order {
		batch = append(batch, a.pending[id])
	}
	a.pending = make(map[string]ChangeEvent)
	a.order = nil
	lists := append([]Reconciler(nil), a.lists...)
	a.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	ids := make([]string, 0, len(batch))
	for _, ev := range batch {
		id := ev.TrackID()
		ids = append(ids, id)
		if a.invalidator != nil && ev.Type != ChangeInsert {
			a.invalidator.Invalidate(ctx, id)
		}
		for _, l := range lists {
			l.Apply(ev)
		}
	}
	telemetry.CatalogReconcileDuration.Observe(time.Since(start).Seconds())

	a.logger.Debug().Int("records", len(batch)).Msg("catalog changes reconciled")
	if a.bus != nil {
		a.bus.Publish(events.EventCatalogReconciled, events.Payload{
			"records":   len(batch),
			"track_ids": ids,
		})
	}
	return len(batch)
}

// Run drives every source until ctx is cancelled, then flushes what is left.
// A source that fails is logged; the others keep running.
func (a *Adapter) Run(ctx context.Context, sources ...Source) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			a.logger.Info().Str("source", src.Name()).Msg("catalog event source started")
			if err := src.Run(gctx, a); err != nil && gctx.Err() == nil {
				a.logger.Error().Err(err).Str("source", src.Name()).Msg("catalog event source stopped")
			}
			return nil
		})
	}
	err := g.Wait()
	a.Flush(context.Background())
	return err
}
