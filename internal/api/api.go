/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/auth"
	"github.com/friendsincode/grimnir_player/internal/catalogsync"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/queue"
	"github.com/friendsincode/grimnir_player/internal/resolver"
	"github.com/friendsincode/grimnir_player/internal/smartplaylist"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

// TrackResolver resolves references for the resolve and queue endpoints.
type TrackResolver interface {
	Resolve(ctx context.Context, ref models.TrackRef) (models.PlayableItem, error)
}

// TrackLists serves the viewer-filtered approved track list.
type TrackLists interface {
	Get(ctx context.Context, viewer models.Viewer) (*catalogsync.TrackList, error)
}

// Playlists lists and refreshes smart playlists.
type Playlists interface {
	List(ctx context.Context, viewer models.Viewer) ([]models.Playlist, error)
	Refresh(ctx context.Context, viewer models.Viewer, name string) (*models.Playlist, error)
	Refreshing(viewer models.Viewer, name string) bool
}

// API exposes HTTP handlers for the shared playback session.
type API struct {
	queue     *queue.Manager
	transport *transport.Controller
	resolver  TrackResolver
	lists     TrackLists
	playlists Playlists
	policy    access.Checker
	logs      LogSource
	bus       *events.Bus
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(q *queue.Manager, tr *transport.Controller, res TrackResolver, lists TrackLists, playlists Playlists, bus *events.Bus, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		queue:     q,
		transport: tr,
		resolver:  res,
		lists:     lists,
		playlists: playlists,
		policy:    access.Policy{},
		bus:       bus,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all API routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/player", func(r chi.Router) {
				r.Get("/", a.handlePlayerGet)
				r.Get("/ws", a.handleSessionStream)
				r.Post("/play", a.handlePlay)
				r.Post("/pause", a.handlePause)
				r.Post("/next", a.handleNext)
				r.Post("/previous", a.handlePrevious)
				r.Post("/seek", a.handleSeek)
				r.Post("/volume", a.handleVolume)
				r.Post("/mute", a.handleMute)
				r.Post("/shuffle", a.handleShuffle)
				r.Post("/repeat", a.handleRepeat)

				r.Route("/queue", func(r chi.Router) {
					r.Get("/", a.handleQueueGet)
					r.Put("/", a.handleQueueSet)
					r.Post("/", a.handleQueueAdd)
					r.Post("/{index}/play", a.handleQueueJump)
					r.Delete("/{index}", a.handleQueueRemove)
				})
			})

			pr.Get("/resolve", a.handleResolve)
			pr.Get("/tracks", a.handleTracks)

			pr.Route("/playlists/smart", func(r chi.Router) {
				r.Get("/", a.handlePlaylistsList)
				r.Post("/{name}/refresh", a.handlePlaylistRefresh)
			})

			pr.With(a.requireAdmin).Get("/logs", a.handleLogs)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refRequest names a track either as a bare string (id or slug) or as a
// structured reference.
type refRequest struct {
	Ref   string           `json:"ref"`
	Track *models.TrackRef `json:"track"`
}

func (q refRequest) trackRef() (models.TrackRef, bool) {
	if q.Track != nil {
		return *q.Track, true
	}
	if q.Ref != "" {
		return resolver.ParseRef(q.Ref), true
	}
	return models.TrackRef{}, false
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeFailure maps err onto a status and stable error code.
func (a *API) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return http.StatusBadRequest, "index_out_of_range"
	case errors.Is(err, queue.ErrRemoveCurrent):
		return http.StatusConflict, "remove_current"
	case errors.Is(err, queue.ErrSuperseded), errors.Is(err, transport.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, smartplaylist.ErrUnknownPlaylist):
		return http.StatusNotFound, "unknown_playlist"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrorCode(err)
	case errors.Is(err, models.ErrAmbiguousReference):
		return http.StatusBadRequest, models.ErrorCode(err)
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden, models.ErrorCode(err)
	case errors.Is(err, models.ErrPlayback):
		return http.StatusBadGateway, models.ErrorCode(err)
	case errors.Is(err, models.ErrNetwork):
		return http.StatusServiceUnavailable, models.ErrorCode(err)
	default:
		return http.StatusInternalServerError, models.ErrorCode(err)
	}
}

func indexParam(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, false
	}
	return i, true
}

func viewerOf(r *http.Request) models.Viewer {
	return access.ViewerFromContext(r.Context())
}
