/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/queue"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

// resolveConcurrency bounds parallel resolutions for a bulk queue replace.
const resolveConcurrency = 8

type playerView struct {
	Session  transport.Session    `json:"session"`
	Queue    queue.Snapshot       `json:"queue"`
	Current  *models.PlayableItem `json:"current"`
	Elapsed  string               `json:"elapsed"`
	Duration string               `json:"duration"`
}

// playerView is the session and queue as viewer may see them.
func (a *API) playerView(viewer models.Viewer) playerView {
	view := playerView{
		Session: a.sessionFor(viewer),
		Queue:   a.queueFor(viewer),
	}
	view.Elapsed = transport.FormatTime(view.Session.CurrentTime)
	view.Duration = transport.FormatTime(view.Session.Duration)
	if item, ok := view.Queue.Current(); ok {
		view.Current = &item
	}
	return view
}

func (a *API) handlePlayerGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.queueFor(viewerOf(r)))
}

// handlePlay starts the current item, loading it if the session does not hold
// it yet, or plays the referenced track.
func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		refRequest
		Replace bool `json:"replace"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var err error
	if ref, ok := req.trackRef(); ok {
		err = a.queue.PlayRef(r.Context(), ref, req.Replace)
	} else {
		err = a.queue.Play(r.Context())
	}
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := a.transport.Pause(); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Next(r.Context()); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Previous(r.Context()); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position *float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Position == nil {
		writeError(w, http.StatusBadRequest, "position_required")
		return
	}
	if err := a.transport.Seek(*req.Position); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.sessionFor(viewerOf(r)))
}

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume_required")
		return
	}
	volume, err := a.transport.SetVolume(*req.Volume)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"volume": volume})
}

func (a *API) handleMute(w http.ResponseWriter, r *http.Request) {
	muted, err := a.transport.ToggleMute()
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

func (a *API) handleShuffle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"shuffle": a.queue.ToggleShuffle()})
}

// handleRepeat sets the repeat mode, or cycles it when no mode is given.
func (a *API) handleRepeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode models.RepeatMode `json:"mode"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	switch req.Mode {
	case "":
		writeJSON(w, http.StatusOK, map[string]models.RepeatMode{"repeat": a.queue.CycleRepeat()})
	case models.RepeatNone, models.RepeatOne, models.RepeatAll:
		a.queue.SetRepeat(req.Mode)
		writeJSON(w, http.StatusOK, map[string]models.RepeatMode{"repeat": req.Mode})
	default:
		writeError(w, http.StatusBadRequest, "invalid_repeat_mode")
	}
}

// handleQueueSet replaces the queue. References the viewer cannot play or
// that no longer exist are dropped and reported; any other resolution
// failure rejects the whole request.
func (a *API) handleQueueSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []refRequest `json:"items"`
		Start int          `json:"start"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	refs := make([]models.TrackRef, len(req.Items))
	for i, item := range req.Items {
		ref, ok := item.trackRef()
		if !ok {
			writeError(w, http.StatusBadRequest, "ref_required")
			return
		}
		refs[i] = ref
	}

	resolved := make([]models.PlayableItem, len(refs))
	dropped := make([]bool, len(refs))
	var skipped []string
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(resolveConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			item, err := a.resolver.Resolve(ctx, ref)
			switch {
			case err == nil:
				resolved[i] = item
			case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrAccessDenied):
				mu.Lock()
				dropped[i] = true
				skipped = append(skipped, ref.String())
				mu.Unlock()
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.writeFailure(w, r, err)
		return
	}

	items := make([]models.PlayableItem, 0, len(refs))
	start := 0
	for i, item := range resolved {
		if dropped[i] {
			continue
		}
		if i < req.Start {
			start++
		}
		items = append(items, item)
	}
	if start >= len(items) {
		start = len(items) - 1
	}

	if err := a.queue.SetQueue(r.Context(), items, start); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"player":  a.playerView(viewerOf(r)),
		"skipped": skipped,
	})
}

func (a *API) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		refRequest
		Play bool `json:"play"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ref, ok := req.trackRef()
	if !ok {
		writeError(w, http.StatusBadRequest, "ref_required")
		return
	}

	item, err := a.resolver.Resolve(r.Context(), ref)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	if err := a.queue.Enqueue(r.Context(), item, req.Play); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.queueFor(viewerOf(r)))
}

func (a *API) handleQueueJump(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	if err := a.queue.JumpTo(r.Context(), index); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.playerView(viewerOf(r)))
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	if err := a.queue.Remove(index); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.queueFor(viewerOf(r)))
}
