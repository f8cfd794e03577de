/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalogsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/models"
)

// Reconciler applies a coalesced change to a cached view of the catalog.
type Reconciler interface {
	Apply(ev ChangeEvent)
}

// TrackList is a cached "all tracks" list as seen by one viewer.
type TrackList struct {
	viewer models.Viewer
	policy access.Checker

	mu     sync.RWMutex
	tracks []models.Track
}

// NewTrackList builds a list from tracks, keeping only those viewer may access.
func NewTrackList(viewer models.Viewer, policy access.Checker, tracks []models.Track) *TrackList {
	return &TrackList{
		viewer: viewer,
		policy: policy,
		tracks: access.Filter(policy, tracks, viewer),
	}
}

// Tracks returns a copy of the list.
func (l *TrackList) Tracks() []models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Track(nil), l.tracks...)
}

// Len returns the number of cached tracks.
func (l *TrackList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// Contains reports whether the list holds id.
func (l *TrackList) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexOf(id) >= 0
}

// Apply reconciles one change:
//   - delete removes the record;
//   - an update that leaves approval, visibility and owner alone patches the
//     cached entry in place;
//   - otherwise the record is appended when it newly passes the access policy,
//     removed when it no longer does, and patched when it still does.
func (l *TrackList) Apply(ev ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := ev.TrackID()
	i := l.indexOf(id)

	if ev.Type == ChangeDelete {
		if i >= 0 {
			l.removeAt(i)
		}
		return
	}
	if ev.New == nil {
		return
	}

	if ev.Type == ChangeUpdate && ev.Old != nil && !access.RelevantChange(*ev.Old, *ev.New) {
		if i >= 0 {
			l.tracks[i] = *ev.New
		}
		return
	}

	passes := l.policy.CanAccess(*ev.New, l.viewer)
	switch {
	case i >= 0 && !passes:
		l.removeAt(i)
	case i >= 0:
		l.tracks[i] = *ev.New
	case passes:
		l.tracks = append(l.tracks, *ev.New)
	}
}

func (l *TrackList) indexOf(id string) int {
	for i := range l.tracks {
		if l.tracks[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *TrackList) removeAt(i int) {
	l.tracks = append(l.tracks[:i:i], l.tracks[i+1:]...)
}

// Loader fetches the approved catalog.
type Loader interface {
	ListApproved(ctx context.Context, limit int) ([]models.Track, error)
}

// ListCache keeps one TrackList per distinct viewer identity, loaded lazily
// and kept current by the adapter. The oldest list is evicted past capacity.
type ListCache struct {
	loader   Loader
	policy   access.Checker
	limit    int
	capacity int

	mu    sync.Mutex
	lists map[string]*TrackList
	order []string
}

// NewListCache creates a cache. limit bounds each catalog fetch.
func NewListCache(loader Loader, policy access.Checker, limit, capacity int) *ListCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ListCache{
		loader:   loader,
		policy:   policy,
		limit:    limit,
		capacity: capacity,
		lists:    make(map[string]*TrackList),
	}
}

func viewerKey(v models.Viewer) string {
	return fmt.Sprintf("%s|%t|%t", v.ID, v.Subscriber, v.Admin)
}

// Get returns the list for viewer, loading it on first use.
func (c *ListCache) Get(ctx context.Context, viewer models.Viewer) (*TrackList, error) {
	key := viewerKey(viewer)

	c.mu.Lock()
	if l, ok := c.lists[key]; ok {
		c.mu.Unlock()
		return l, nil
	}
	c.mu.Unlock()

	tracks, err := c.loader.ListApproved(ctx, c.limit)
	if err != nil {
		return nil, err
	}
	list := NewTrackList(viewer, c.policy, tracks)

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lists[key]; ok {
		return l, nil
	}
	c.lists[key] = list
	c.order = append(c.order, key)
	if len(c.order) > c.capacity {
		delete(c.lists, c.order[0])
		c.order = c.order[1:]
	}
	return list, nil
}

// Apply implements Reconciler for every cached list.
func (c *ListCache) Apply(ev ChangeEvent) {
	c.mu.Lock()
	lists := make([]*TrackList, 0, len(c.lists))
	for _, l := range c.lists {
		lists = append(lists, l)
	}
	c.mu.Unlock()

	for _, l := range lists {
		l.Apply(ev)
	}
}
