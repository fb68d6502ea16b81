/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so the
// management API can show what the last ticks did.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when none is given.
const DefaultCapacity = 2000

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed size ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Add appends an entry, evicting the oldest when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
	b.mu.Unlock()
}

// All returns the entries oldest first.
func (b *Buffer) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, b.count)
	start := (b.head - b.count + len(b.entries)) % len(b.entries)
	for i := range out {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Query filters entries.
type Query struct {
	Level     string
	Component string
	Search    string
	Since     time.Time
	// Limit keeps the newest matches. Zero keeps all.
	Limit int
}

// Find returns the entries matching q, oldest first.
func (b *Buffer) Find(q Query) []Entry {
	var out []Entry
	search := strings.ToLower(q.Search)
	for _, e := range b.All() {
		if q.Level != "" && !strings.EqualFold(e.Level, q.Level) {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Write implements io.Writer for zerolog JSON output. Lines that are not
// JSON are kept as plain messages.
func (b *Buffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line == "" {
			continue
		}
		b.Add(parseLine(line))
	}
	return len(p), nil
}

func parseLine(line string) Entry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Timestamp: time.Now(), Level: "info", Message: line}
	}
	e := Entry{Timestamp: time.Now()}
	if v, ok := raw["level"].(string); ok {
		e.Level = v
	}
	if v, ok := raw["message"].(string); ok {
		e.Message = v
	}
	if v, ok := raw["component"].(string); ok {
		e.Component = v
	}
	switch ts := raw["time"].(type) {
	case float64:
		e.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = parsed
		}
	}
	for _, k := range []string{"level", "message", "component", "time"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Fields = raw
	}
	return e
}
