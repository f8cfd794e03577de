/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/resolver"
)

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ref"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ref_required")
		return
	}
	item, err := a.resolver.Resolve(r.Context(), resolver.ParseRef(raw))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleTracks(w http.ResponseWriter, r *http.Request) {
	list, err := a.lists.Get(r.Context(), viewerOf(r))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": list.Tracks(),
		"count":  list.Len(),
	})
}

type playlistView struct {
	models.Playlist
	Refreshing bool `json:"refreshing"`
}

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	viewer := viewerOf(r)
	playlists, err := a.playlists.List(r.Context(), viewer)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}

	views := make([]playlistView, 0, len(playlists))
	for _, pl := range playlists {
		views = append(views, playlistView{
			Playlist:   pl,
			Refreshing: pl.IsSmart() && a.playlists.Refreshing(viewer, pl.Name),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handlePlaylistRefresh(w http.ResponseWriter, r *http.Request) {
	pl, err := a.playlists.Refresh(r.Context(), viewerOf(r), chi.URLParam(r, "name"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}
