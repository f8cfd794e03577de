/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/catalogsync"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Token   string
	Subject string
	// Queue group; instances sharing a group split deliveries. Empty means
	// every instance receives every event.
	Group string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "catalog.tracks",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSSource subscribes to a NATS subject carrying catalog change notifications.
type NATSSource struct {
	cfg    NATSConfig
	name   string
	logger zerolog.Logger
}

// NewNATSSource creates a source. clientName identifies this instance to the server.
func NewNATSSource(cfg NATSConfig, clientName string, logger zerolog.Logger) *NATSSource {
	return &NATSSource{
		cfg:    cfg,
		name:   clientName,
		logger: logger.With().Str("source", "nats").Str("subject", cfg.Subject).Logger(),
	}
}

// Name implements catalogsync.Source.
func (s *NATSSource) Name() string { return "nats" }

func (s *NATSSource) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(s.name),
		nats.MaxReconnects(s.cfg.MaxReconnects),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.Timeout(s.cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(s.Name(), false)
			s.logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			setConnected(s.Name(), true)
			s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	}
	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}
	return opts
}

// Run implements catalogsync.Source.
func (s *NATSSource) Run(ctx context.Context, sink catalogsync.Sink) error {
	nc, err := nats.Connect(s.cfg.URL, s.options()...)
	if err != nil {
		setConnected(s.Name(), false)
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	handler := func(m *nats.Msg) {
		deliver(sink, s.Name(), m.Data)
	}

	var sub *nats.Subscription
	if s.cfg.Group != "" {
		sub, err = nc.QueueSubscribe(s.cfg.Subject, s.cfg.Group, handler)
	} else {
		sub, err = nc.Subscribe(s.cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}

	setConnected(s.Name(), true)
	defer setConnected(s.Name(), false)
	s.logger.Info().Msg("subscribed to catalog changes")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.Debug().Err(err).Msg("unsubscribe")
	}
	return nc.Drain()
}
