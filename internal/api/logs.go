/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/janitor/internal/logbuffer"
)

// handleLogs returns recent captured log lines.
// Query: level, component, search, since (RFC 3339), limit.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_unavailable")
		return
	}
	q := logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Search:    r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = since
	}
	limit, ok := queryInt(r, "limit", 200)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	q.Limit = limit

	entries := a.deps.Logs.Find(q)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
