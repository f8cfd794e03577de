/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_player/internal/logbuffer"
)

// LogSource serves recently captured log lines.
type LogSource interface {
	Query(params logbuffer.QueryParams) []logbuffer.LogEntry
	Components() []string
	Stats() logbuffer.Stats
}

// SetLogSource enables the admin log endpoint.
func (a *API) SetLogSource(logs LogSource) {
	a.logs = logs
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer := viewerOf(r)
		if viewer.Anonymous() {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !viewer.Admin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusNotFound, "logs_disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		TrackID:    q.Get("track_id"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: true,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    a.logs.Query(params),
		"components": a.logs.Components(),
		"stats":      a.logs.Stats(),
	})
}
