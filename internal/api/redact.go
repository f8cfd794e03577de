/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"maps"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/queue"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

// The queue and session are shared, but audio URLs may be presigned. Every
// view leaving the API blanks the URLs of items the viewer may not play.

// hiddenURLs returns the audio URLs in items that viewer may not play and
// that no playable item shares.
func (a *API) hiddenURLs(items []models.PlayableItem, viewer models.Viewer) map[string]bool {
	hidden := map[string]bool{}
	allowed := map[string]bool{}
	for _, item := range items {
		if item.AudioURL == "" {
			continue
		}
		if access.CanPlay(a.policy, item, viewer) {
			allowed[item.AudioURL] = true
		} else {
			hidden[item.AudioURL] = true
		}
	}
	for url := range allowed {
		delete(hidden, url)
	}
	return hidden
}

// queueFor returns the queue snapshot as viewer may see it.
func (a *API) queueFor(viewer models.Viewer) queue.Snapshot {
	snap := a.queue.Snapshot()
	hidden := a.hiddenURLs(snap.Items, viewer)
	for i := range snap.Items {
		if hidden[snap.Items[i].AudioURL] {
			snap.Items[i].AudioURL = ""
		}
	}
	return snap
}

// sessionFor returns the transport snapshot as viewer may see it.
func (a *API) sessionFor(viewer models.Viewer) transport.Session {
	session := a.transport.Snapshot()
	if a.hiddenURLs(a.queue.Snapshot().Items, viewer)[session.LoadedURL] {
		session.LoadedURL = ""
	}
	return session
}

// redactEvent blanks URL fields of session events that point at hidden
// items. Payloads are shared between subscribers, so a redacted one is a copy.
func (a *API) redactEvent(msg streamMessage, viewer models.Viewer) streamMessage {
	var key string
	switch msg.Type {
	case events.EventSessionChanged:
		key = "loaded_url"
	case events.EventTrackEnded:
		key = "url"
	default:
		return msg
	}
	payload, ok := msg.Payload.(events.Payload)
	if !ok {
		return msg
	}
	url, _ := payload[key].(string)
	if url == "" || !a.hiddenURLs(a.queue.Snapshot().Items, viewer)[url] {
		return msg
	}
	redacted := maps.Clone(payload)
	redacted[key] = ""
	msg.Payload = redacted
	return msg
}
