/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/catalogsync"
)

// pingInterval keeps an idle LISTEN connection from being silently dropped.
const pingInterval = 90 * time.Second

// PostgresSource listens for NOTIFY payloads emitted by the tracks trigger.
type PostgresSource struct {
	dsn     string
	channel string
	logger  zerolog.Logger
}

// NewPostgresSource creates a source listening on channel.
func NewPostgresSource(dsn, channel string, logger zerolog.Logger) *PostgresSource {
	return &PostgresSource{
		dsn:     dsn,
		channel: channel,
		logger:  logger.With().Str("source", "postgres").Str("channel", channel).Logger(),
	}
}

// Name implements catalogsync.Source.
func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		setConnected(s.Name(), true)
	case pq.ListenerEventReconnected:
		setConnected(s.Name(), true)
		s.logger.Info().Msg("listener reconnected")
	case pq.ListenerEventDisconnected:
		setConnected(s.Name(), false)
		s.logger.Warn().Err(err).Msg("listener disconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn().Err(err).Msg("listener connection attempt failed")
	}
}

// Run implements catalogsync.Source.
func (s *PostgresSource) Run(ctx context.Context, sink catalogsync.Sink) error {
	listener := pq.NewListener(s.dsn, time.Second, time.Minute, s.onListenerEvent)
	defer func() {
		_ = listener.Close()
		setConnected(s.Name(), false)
	}()

	if err := listener.Listen(s.channel); err != nil {
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}
	s.logger.Info().Msg("listening for catalog changes")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-listener.Notify:
			if !ok {
				return fmt.Errorf("listener closed")
			}
			// nil follows a reconnect; notifications sent while down are lost.
			if n == nil {
				s.logger.Warn().Msg("listener reconnected, changes may have been missed")
				continue
			}
			deliver(sink, s.Name(), []byte(n.Extra))
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				s.logger.Warn().Err(err).Msg("listener ping failed")
			}
		}
	}
}
