/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package metrics keeps in-memory cleanup statistics.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HistoryCapacity is the number of cleanup events retained.
const HistoryCapacity = 1000

// Event is one successful cleanup.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	MediaType    string    `json:"media_type"`
	FilesDeleted int64     `json:"files_deleted"`
	BytesFreed   int64     `json:"bytes_freed"`
}

// Summary is a point-in-time view of the totals.
type Summary struct {
	TotalFilesDeleted int64            `json:"total_files_deleted"`
	TotalBytesFreed   int64            `json:"total_bytes_freed"`
	FilesByMediaType  map[string]int64 `json:"files_by_media_type"`
	BytesByMediaType  map[string]int64 `json:"bytes_by_media_type"`
	Events            int              `json:"events_retained"`
}

type typeCounters struct {
	files atomic.Int64
	bytes atomic.Int64
}

// Recorder accumulates cleanup statistics. Counters are atomic; the history
// ring is guarded by a mutex held only while writing or copying entries.
type Recorder struct {
	files  atomic.Int64
	bytes  atomic.Int64
	byType sync.Map // string -> *typeCounters

	mu      sync.RWMutex
	entries []Event
	head    int
	count   int

	now func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		entries: make([]Event, HistoryCapacity),
		now:     time.Now,
	}
}

// Record adds one cleanup event. Negative amounts are ignored.
func (r *Recorder) Record(mediaType string, files, bytes int64) {
	if files < 0 || bytes < 0 {
		return
	}
	r.files.Add(files)
	r.bytes.Add(bytes)
	counters, _ := r.byType.LoadOrStore(mediaType, &typeCounters{})
	tc := counters.(*typeCounters)
	tc.files.Add(files)
	tc.bytes.Add(bytes)

	r.mu.Lock()
	// Stamped under the lock so the ring stays in timestamp order.
	r.entries[r.head] = Event{Timestamp: r.now().UTC(), MediaType: mediaType, FilesDeleted: files, BytesFreed: bytes}
	r.head = (r.head + 1) % HistoryCapacity
	if r.count < HistoryCapacity {
		r.count++
	}
	r.mu.Unlock()
}

// Summary returns the current totals.
func (r *Recorder) Summary() Summary {
	s := Summary{
		TotalFilesDeleted: r.files.Load(),
		TotalBytesFreed:   r.bytes.Load(),
		FilesByMediaType:  make(map[string]int64),
		BytesByMediaType:  make(map[string]int64),
	}
	r.byType.Range(func(key, value any) bool {
		tc := value.(*typeCounters)
		s.FilesByMediaType[key.(string)] = tc.files.Load()
		s.BytesByMediaType[key.(string)] = tc.bytes.Load()
		return true
	})
	r.mu.RLock()
	s.Events = r.count
	r.mu.RUnlock()
	return s
}

// History returns the most recent min(limit, HistoryCapacity) events in
// chronological order. A non-positive limit returns no events.
func (r *Recorder) History(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.count
	if limit < n {
		n = max(limit, 0)
	}
	out := make([]Event, n)
	if n == 0 {
		return out
	}
	// The newest entry sits just before head.
	start := (r.head - n + HistoryCapacity) % HistoryCapacity
	for i := 0; i < n; i++ {
		out[i] = r.entries[(start+i)%HistoryCapacity]
	}
	return out
}

// MediaTypes returns the media types seen so far, sorted.
func (r *Recorder) MediaTypes() []string {
	var out []string
	r.byType.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	sort.Strings(out)
	return out
}
