/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks relays janitor events to HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/telemetry"
)

// DefaultEvents are relayed when no event list is configured.
var DefaultEvents = []events.EventType{
	events.EventNotify,
	events.EventCleanupFailed,
	events.EventTickCompleted,
	events.EventTickFailed,
}

// Payload is the body posted to webhook endpoints.
type Payload struct {
	Event     events.EventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Data      events.Payload   `json:"data"`
}

// Config selects the endpoints and events.
type Config struct {
	URLs []string
	// Secret, when set, signs each body with HMAC-SHA256.
	Secret  string
	Events  []events.EventType
	Timeout time.Duration
}

// Service handles webhook delivery.
type Service struct {
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
	now    func() time.Time

	wg sync.WaitGroup
}

// NewService creates a new webhook service.
func NewService(cfg Config, bus *events.Bus, logger zerolog.Logger) *Service {
	if len(cfg.Events) == 0 {
		cfg.Events = DefaultEvents
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// ParseEvents splits a comma separated event list.
func ParseEvents(list string) []events.EventType {
	var out []events.EventType
	for _, e := range strings.Split(list, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, events.EventType(e))
		}
	}
	return out
}

// Start subscribes to the configured events and relays them until ctx is
// cancelled. It returns once the subscriptions are in place.
func (s *Service) Start(ctx context.Context) {
	for _, eventType := range s.cfg.Events {
		sub := s.bus.Subscribe(eventType)
		s.wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer s.wg.Done()
			defer s.bus.Unsubscribe(eventType, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					s.fire(ctx, eventType, payload)
				}
			}
		}(eventType, sub)
	}
	s.logger.Info().Int("targets", len(s.cfg.URLs)).Int("events", len(s.cfg.Events)).Msg("webhook service started")
}

// Wait blocks until every relay goroutine has exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) fire(ctx context.Context, eventType events.EventType, data events.Payload) {
	body, err := json.Marshal(Payload{Event: eventType, Timestamp: s.now().UTC(), Data: data})
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to marshal webhook payload")
		return
	}
	for _, url := range s.cfg.URLs {
		if err := s.Send(ctx, url, eventType, body); err != nil {
			telemetry.WebhookDeliveriesTotal.WithLabelValues(string(eventType), "error").Inc()
			s.logger.Warn().Err(err).Str("url", url).Str("event", string(eventType)).Msg("webhook delivery failed")
			continue
		}
		telemetry.WebhookDeliveriesTotal.WithLabelValues(string(eventType), "delivered").Inc()
		s.logger.Debug().Str("url", url).Str("event", string(eventType)).Msg("webhook delivered")
	}
}

// Send posts body to url. Non-2xx responses are errors.
func (s *Service) Send(ctx context.Context, url string, eventType events.EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Janitor-Webhook/1.0")
	req.Header.Set("X-Janitor-Event", string(eventType))
	req.Header.Set("X-Janitor-Timestamp", fmt.Sprintf("%d", s.now().Unix()))
	if s.cfg.Secret != "" {
		req.Header.Set("X-Janitor-Signature", Sign(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign creates an HMAC-SHA256 signature of payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
