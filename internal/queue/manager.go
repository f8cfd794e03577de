/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

var (
	// ErrSuperseded is returned when a newer index change replaced this one.
	ErrSuperseded = errors.New("queue transition superseded")
	// ErrIndexOutOfRange is returned for jumps or removals past the queue bounds.
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrRemoveCurrent is returned when removing the item that is playing or
	// being loaded.
	ErrRemoveCurrent = errors.New("cannot remove the current item")
)

// Resolver turns queue entries into playable items.
type Resolver interface {
	Resolve(ctx context.Context, ref models.TrackRef) (models.PlayableItem, error)
	Ensure(ctx context.Context, item models.PlayableItem) (models.PlayableItem, error)
}

// Transport is the subset of the transport controller the queue drives.
type Transport interface {
	Load(ctx context.Context, src transport.Source) error
	Play(ctx context.Context) error
	Restart(ctx context.Context) error
	Snapshot() transport.Session
}

// Config tunes queue policy.
type Config struct {
	// SkipOnPlaybackError advances past unplayable items during natural
	// playback. Explicit navigation always surfaces the error instead.
	SkipOnPlaybackError bool
	// Seed fixes the shuffle sequence. Zero seeds from the clock.
	Seed int64
	// Policy gates explicit moves onto an item. Nil uses access.Policy.
	Policy access.Checker
}

// Snapshot is a read projection of the queue.
type Snapshot struct {
	Items   []models.PlayableItem `json:"items"`
	Index   int                   `json:"index"` // -1 when nothing is current
	Shuffle bool                  `json:"shuffle"`
	Repeat  models.RepeatMode     `json:"repeat"`
}

// Current returns the current item, if any.
func (s Snapshot) Current() (models.PlayableItem, bool) {
	if s.Index < 0 || s.Index >= len(s.Items) {
		return models.PlayableItem{}, false
	}
	return s.Items[s.Index], true
}

// Manager owns the ordered item list and the current index.
type Manager struct {
	resolver  Resolver
	transport Transport
	bus       *events.Bus
	cfg       Config
	logger    zerolog.Logger

	mu      sync.Mutex
	items   []models.PlayableItem
	index   int
	shuffle bool
	repeat  models.RepeatMode
	bag     map[int]struct{} // shuffle candidates not yet visited this cycle
	rng     *rand.Rand
	gen     uint64
	pending int // target of the in-flight transition, -1 when idle
}

// NewManager creates an empty queue.
func NewManager(resolver Resolver, tr Transport, bus *events.Bus, cfg Config, logger zerolog.Logger) *Manager {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Policy == nil {
		cfg.Policy = access.Policy{}
	}
	return &Manager{
		resolver:  resolver,
		transport: tr,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With().Str("component", "queue").Logger(),
		index:     -1,
		pending:   -1,
		repeat:    models.RepeatNone,
		bag:       map[int]struct{}{},
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Snapshot returns a copy of the queue state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Items:   append([]models.PlayableItem(nil), m.items...),
		Index:   m.index,
		Shuffle: m.shuffle,
		Repeat:  m.repeat,
	}
}

// SetQueue replaces the queue and starts playing at startIndex (clamped). An
// empty list clears the queue without touching the transport. The start index
// is current even when its load fails; the session keeps the last good URL.
func (m *Manager) SetQueue(ctx context.Context, items []models.PlayableItem, startIndex int) error {
	m.mu.Lock()
	m.items = append([]models.PlayableItem(nil), items...)
	m.index = -1
	m.pending = -1
	m.gen++
	if len(m.items) == 0 {
		m.bag = map[int]struct{}{}
		m.mu.Unlock()
		m.changed()
		return nil
	}
	start := clampIndex(startIndex, len(m.items))
	m.index = start
	m.refillBagLocked(start)
	m.mu.Unlock()
	m.changed()

	return m.transition(ctx, start, "set")
}

// Enqueue appends item. With playImmediately the new item becomes current.
func (m *Manager) Enqueue(ctx context.Context, item models.PlayableItem, playImmediately bool) error {
	m.mu.Lock()
	m.items = append(m.items, item)
	target := len(m.items) - 1
	if m.index < 0 {
		m.index = target
	} else if m.shuffle {
		m.bag[target] = struct{}{}
	}
	m.mu.Unlock()
	m.changed()

	if !playImmediately {
		return nil
	}
	return m.transition(ctx, target, "enqueue")
}

// PlayNow replaces the queue with item and plays it.
func (m *Manager) PlayNow(ctx context.Context, item models.PlayableItem) error {
	return m.SetQueue(ctx, []models.PlayableItem{item}, 0)
}

// Play starts the current item. When the session already holds it the
// transport resumes; otherwise the item is resolved and loaded first. With
// nothing current the transport reports what it can.
func (m *Manager) Play(ctx context.Context) error {
	m.mu.Lock()
	index := m.index
	var current models.PlayableItem
	if index >= 0 && index < len(m.items) {
		current = m.items[index]
	} else {
		index = -1
	}
	m.mu.Unlock()

	if index >= 0 && (!current.Resolved() || m.transport.Snapshot().LoadedURL != current.AudioURL) {
		return m.transition(ctx, index, "play")
	}
	if err := m.transport.Play(ctx); err != nil {
		if errors.Is(err, transport.ErrSuperseded) {
			return ErrSuperseded
		}
		return err
	}
	return nil
}

// PlayRef resolves ref first, so an unresolvable reference never touches the
// queue, then either replaces the queue or appends and plays.
func (m *Manager) PlayRef(ctx context.Context, ref models.TrackRef, replace bool) error {
	item, err := m.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if replace {
		return m.PlayNow(ctx, item)
	}
	return m.Enqueue(ctx, item, true)
}

// Next advances. Past the end it wraps under repeat all or one and is a no-op
// under repeat none. With shuffle on it picks an unvisited index other than
// the current one.
func (m *Manager) Next(ctx context.Context) error {
	m.mu.Lock()
	target, ok := m.nextTargetLocked(m.index, true)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.transition(ctx, target, "next")
}

// Previous steps back in natural order, wrapping to the last item under
// repeat all.
func (m *Manager) Previous(ctx context.Context) error {
	m.mu.Lock()
	n := len(m.items)
	if n == 0 {
		m.mu.Unlock()
		return nil
	}
	target := m.index - 1
	if m.index < 0 {
		target = 0
	} else if target < 0 {
		if m.repeat != models.RepeatAll {
			m.mu.Unlock()
			return nil
		}
		target = n - 1
	}
	m.mu.Unlock()
	return m.transition(ctx, target, "previous")
}

// JumpTo makes index current.
func (m *Manager) JumpTo(ctx context.Context, index int) error {
	m.mu.Lock()
	n := len(m.items)
	m.mu.Unlock()
	if index < 0 || index >= n {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, n)
	}
	return m.transition(ctx, index, "jump")
}

// Remove deletes the item at index. The current item and the target of an
// in-flight transition cannot be removed; a pending target past index shifts
// with the items so the transition still commits the item it loaded.
func (m *Manager) Remove(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.items) {
		n := len(m.items)
		m.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, n)
	}
	if index == m.index || index == m.pending {
		m.mu.Unlock()
		return ErrRemoveCurrent
	}

	m.items = append(m.items[:index:index], m.items[index+1:]...)
	if index < m.index {
		m.index--
	}
	if index < m.pending {
		m.pending--
	}

	bag := make(map[int]struct{}, len(m.bag))
	for i := range m.bag {
		switch {
		case i < index:
			bag[i] = struct{}{}
		case i > index:
			bag[i-1] = struct{}{}
		}
	}
	m.bag = bag
	m.mu.Unlock()

	m.changed()
	return nil
}

// ToggleShuffle flips shuffle and returns the new value. The underlying order
// is never changed, so turning shuffle off resumes natural order.
func (m *Manager) ToggleShuffle() bool {
	m.mu.Lock()
	m.shuffle = !m.shuffle
	if m.shuffle {
		m.refillBagLocked(m.index)
	}
	on := m.shuffle
	m.mu.Unlock()

	m.changed()
	return on
}

// CycleRepeat advances none → all → one → none and returns the new mode.
func (m *Manager) CycleRepeat() models.RepeatMode {
	m.mu.Lock()
	m.repeat = m.repeat.Next()
	mode := m.repeat
	m.mu.Unlock()

	m.changed()
	return mode
}

// SetRepeat sets the repeat mode directly.
func (m *Manager) SetRepeat(mode models.RepeatMode) {
	m.mu.Lock()
	m.repeat = mode
	m.mu.Unlock()
	m.changed()
}

// OnTrackEnded is called by the transport at natural end of media. Repeat one
// replays the current index; otherwise the queue advances like Next, skipping
// unplayable items when configured to.
func (m *Manager) OnTrackEnded(ctx context.Context) error {
	m.mu.Lock()
	if len(m.items) == 0 || m.index < 0 {
		m.mu.Unlock()
		return nil
	}
	if m.repeat == models.RepeatOne {
		index, item := m.index, m.items[m.index]
		m.mu.Unlock()
		if err := m.transport.Restart(ctx); err != nil {
			return err
		}
		telemetry.QueueTransitionsTotal.WithLabelValues("ended").Inc()
		m.started(ctx, item, index)
		return nil
	}
	from := m.index
	attempts := len(m.items)
	m.mu.Unlock()

	var lastErr error
	for i := 0; i < attempts; i++ {
		m.mu.Lock()
		target, ok := m.nextTargetLocked(from, false)
		m.mu.Unlock()
		if !ok {
			return lastErr
		}

		err := m.transition(ctx, target, "ended")
		if err == nil || !m.cfg.SkipOnPlaybackError || !skippable(err) {
			return err
		}

		m.logger.Warn().Err(err).Int("index", target).Msg("skipping unplayable item")
		m.mu.Lock()
		delete(m.bag, target)
		m.mu.Unlock()
		from = target
		lastErr = err
	}
	return lastErr
}

// skippable reports whether err means the item itself cannot be played.
func skippable(err error) bool {
	return errors.Is(err, models.ErrPlayback) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrAccessDenied)
}

// nextTargetLocked computes the index after from. explicit distinguishes a
// user Next (which wraps under repeat one) from natural advance.
func (m *Manager) nextTargetLocked(from int, explicit bool) (int, bool) {
	n := len(m.items)
	if n == 0 {
		return 0, false
	}
	if from < 0 {
		return 0, true
	}

	wraps := m.repeat == models.RepeatAll || (explicit && m.repeat == models.RepeatOne)

	if m.shuffle {
		if n == 1 {
			return 0, wraps
		}
		if len(m.bag) == 0 || onlyContains(m.bag, from) {
			if !wraps {
				return 0, false
			}
			m.refillBagLocked(from)
		}
		return m.pickLocked(from), true
	}

	if from+1 < n {
		return from + 1, true
	}
	return 0, wraps
}

// pickLocked draws a bag index other than from. The bag is iterated in sorted
// order so a fixed seed gives a fixed sequence.
func (m *Manager) pickLocked(from int) int {
	candidates := make([]int, 0, len(m.bag))
	for i := 0; i < len(m.items); i++ {
		if _, ok := m.bag[i]; ok && i != from {
			candidates = append(candidates, i)
		}
	}
	return candidates[m.rng.Intn(len(candidates))]
}

// refillBagLocked marks every index except current as unvisited.
func (m *Manager) refillBagLocked(current int) {
	m.bag = make(map[int]struct{}, len(m.items))
	for i := range m.items {
		if i != current {
			m.bag[i] = struct{}{}
		}
	}
}

func onlyContains(bag map[int]struct{}, i int) bool {
	_, ok := bag[i]
	return ok && len(bag) == 1
}

// transition resolves, loads and plays items[target]. The index is committed
// only once the load succeeds; a transition overtaken by a newer index change
// is discarded with ErrSuperseded. Queue edits that keep the target (Remove)
// shift m.pending instead of cancelling. Explicit moves check the acting
// viewer's access; natural advance continues the shared session.
func (m *Manager) transition(ctx context.Context, target int, trigger string) error {
	m.mu.Lock()
	if target < 0 || target >= len(m.items) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, target)
	}
	m.gen++
	gen := m.gen
	m.pending = target
	item := m.items[target]
	m.mu.Unlock()

	if trigger != "ended" && !access.CanPlay(m.cfg.Policy, item, access.ViewerFromContext(ctx)) {
		m.abandon(gen)
		return models.NewOpError("queue "+trigger, item.Ref().String(), models.ErrAccessDenied)
	}

	resolved, err := m.resolver.Ensure(ctx, item)
	if err != nil {
		m.logger.Debug().Err(err).Int("index", target).Str("trigger", trigger).Msg("resolve failed")
		m.abandon(gen)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.items[m.pending] = resolved
	m.mu.Unlock()

	err = m.transport.Load(ctx, transport.Source{URL: resolved.AudioURL, DurationHint: resolved.Duration()})
	if errors.Is(err, transport.ErrSuperseded) {
		return ErrSuperseded
	}
	if err != nil {
		m.abandon(gen)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrSuperseded
	}
	target = m.pending
	m.index = target
	m.pending = -1
	delete(m.bag, target)
	m.mu.Unlock()

	telemetry.QueueTransitionsTotal.WithLabelValues(trigger).Inc()
	m.changed()

	if err := m.transport.Play(ctx); err != nil {
		if errors.Is(err, transport.ErrSuperseded) {
			return ErrSuperseded
		}
		return err
	}

	m.started(ctx, resolved, target)
	return nil
}

// abandon clears the pending target of a failed transition that is still the
// newest one.
func (m *Manager) abandon(gen uint64) {
	m.mu.Lock()
	if gen == m.gen {
		m.pending = -1
	}
	m.mu.Unlock()
}

func (m *Manager) started(ctx context.Context, item models.PlayableItem, index int) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.EventTrackStarted, events.Payload{
		"track_id":  item.ID,
		"kind":      string(item.Kind),
		"viewer_id": access.ViewerFromContext(ctx).ID,
		"index":     index,
	})
}

func (m *Manager) changed() {
	if m.bus == nil {
		return
	}
	s := m.Snapshot()
	m.bus.Publish(events.EventQueueChanged, events.Payload{
		"index":   s.Index,
		"length":  len(s.Items),
		"shuffle": s.Shuffle,
		"repeat":  string(s.Repeat),
	})
}

func clampIndex(i, n int) int {
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	default:
		return i
	}
}
