/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// streamPingInterval keeps idle session streams alive through proxies.
const streamPingInterval = 15 * time.Second

var streamEventTypes = []events.EventType{
	events.EventSessionChanged,
	events.EventQueueChanged,
	events.EventTrackStarted,
	events.EventTrackEnded,
	events.EventCatalogReconciled,
	events.EventPlaylistRefreshed,
}

type streamMessage struct {
	Type    events.EventType `json:"type"`
	Payload any              `json:"payload"`
}

// handleSessionStream pushes a player snapshot followed by every session,
// queue and catalog event to the connected surface.
func (a *API) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.SessionStreamClients.Inc()
	defer telemetry.SessionStreamClients.Dec()

	viewer := viewerOf(r)
	ctx := conn.CloseRead(r.Context())

	subscribers := make([]events.Subscriber, len(streamEventTypes))
	for i, eventType := range streamEventTypes {
		subscribers[i] = a.bus.Subscribe(eventType)
	}
	defer func() {
		for i, eventType := range streamEventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	out := make(chan streamMessage, events.DefaultBuffer)
	for i, sub := range subscribers {
		go forward(ctx, streamEventTypes[i], sub, out)
	}

	if err := writeStream(ctx, conn, streamMessage{Type: "snapshot", Payload: a.playerView(viewer)}); err != nil {
		a.logger.Debug().Err(err).Msg("websocket snapshot write failed")
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case msg := <-out:
			if !visibleTo(msg, viewer) {
				continue
			}
			if err := writeStream(ctx, conn, a.redactEvent(msg, viewer)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// forward copies sub into out until ctx ends or sub is closed.
func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- streamMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- streamMessage{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// visibleTo hides per-viewer playlist refreshes from other viewers.
func visibleTo(msg streamMessage, viewer models.Viewer) bool {
	if msg.Type != events.EventPlaylistRefreshed {
		return true
	}
	payload, ok := msg.Payload.(events.Payload)
	if !ok {
		return true
	}
	owner, _ := payload["owner_id"].(string)
	return owner == "" || owner == viewer.ID
}

func writeStream(ctx context.Context, conn *ws.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
