/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus adapts external change feeds (Redis pub/sub, NATS, Postgres
// LISTEN/NOTIFY) into catalog sync sources.
package eventbus

import (
	"github.com/friendsincode/grimnir_player/internal/catalogsync"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

// deliver decodes one notification and hands it to sink.
func deliver(sink catalogsync.Sink, source string, payload []byte) {
	ev, err := catalogsync.Decode(payload)
	if err != nil {
		sink.Reject(source, err)
		return
	}
	sink.Ingest(ev)
}

func setConnected(source string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	telemetry.EventSourceConnected.WithLabelValues(source).Set(v)
}
