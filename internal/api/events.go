/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/telemetry"
)

var defaultStreamTypes = []events.EventType{
	events.EventTickStarted,
	events.EventTickCompleted,
	events.EventTickFailed,
	events.EventItemDeleted,
	events.EventCleanupFailed,
}

// handleEvents streams bus events over a WebSocket. Query: types, a comma
// separated list of event types.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable")
		return
	}
	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = defaultStreamTypes
	}

	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIActiveConnections.Inc()
	defer telemetry.APIActiveConnections.Dec()

	subscribers := make([]events.Subscriber, len(eventTypes))
	for i, eventType := range eventTypes {
		subscribers[i] = a.deps.Bus.Subscribe(eventType)
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.deps.Bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	// Reads are discarded; CloseRead cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	cases := make([]reflect.SelectCase, 0, len(subscribers)+2)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ticker.C)})
	for _, sub := range subscribers {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub)})
	}

	for {
		chosen, value, ok := reflect.Select(cases)
		switch chosen {
		case 0:
			conn.Close(ws.StatusNormalClosure, "")
			return
		case 1:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		default:
			if !ok {
				return
			}
			payload, _ := value.Interface().(events.Payload)
			if err := writeEvent(ctx, conn, eventTypes[chosen-2], payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, events.EventType(part))
		}
	}
	return out
}
