/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays janitor events to NATS so other systems can react
// to deletions and leaving-soon changes.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
	// SubjectPrefix is prepended to the event type, e.g. "janitor.events".
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "janitor.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// publisher is the part of *nats.Conn the bus uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSBus delivers events to local subscribers and publishes them to NATS.
type NATSBus struct {
	local  *events.Bus
	conn   publisher
	prefix string
	nodeID string
	logger zerolog.Logger
}

// NewNATSBus connects to NATS. A connection failure is returned so callers
// can fall back to the local bus.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	opts := []nats.Option{
		nats.Name("janitor"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return newNATSBus(conn, cfg.SubjectPrefix, local, logger), nil
}

func newNATSBus(conn publisher, prefix string, local *events.Bus, logger zerolog.Logger) *NATSBus {
	if prefix == "" {
		prefix = "janitor.events"
	}
	if local == nil {
		local = events.NewBus()
	}
	return &NATSBus{local: local, conn: conn, prefix: prefix, nodeID: nodeID(), logger: logger}
}

// Local returns the in-process bus local subscribers attach to.
func (nb *NATSBus) Local() *events.Bus { return nb.local }

// Publish delivers payload locally and to the NATS subject for eventType.
// NATS failures are logged; local delivery always happens.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Str("event", string(eventType)).Msg("encode event")
		return
	}
	if err := nb.conn.Publish(nb.Subject(eventType), data); err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("publish to nats failed")
	}
}

// Subject is the NATS subject an event type is published on.
func (nb *NATSBus) Subject(eventType events.EventType) string {
	return nb.prefix + "." + string(eventType)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	return nb.conn.Drain()
}

// message is the wire format published to NATS.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, node string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    node,
		MessageID: uuid.NewString(),
	})
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "janitor"
	}
	return host + "-" + uuid.NewString()[:8]
}
