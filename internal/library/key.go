/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import "fmt"

// LookupKey identifies a library asset across services. It is a comparable
// value type and is used directly as a map key.
type LookupKey struct {
	ID        int
	Season    int
	HasSeason bool
}

// ShowKey identifies a movie or a whole TV show.
func ShowKey(id int) LookupKey {
	return LookupKey{ID: id}
}

// SeasonKey identifies a single season of a TV show.
func SeasonKey(id, season int) LookupKey {
	return LookupKey{ID: id, Season: season, HasSeason: true}
}

// Show drops the season component.
func (k LookupKey) Show() LookupKey {
	return LookupKey{ID: k.ID}
}

func (k LookupKey) String() string {
	if k.HasSeason {
		return fmt.Sprintf("%d/S%d", k.ID, k.Season)
	}
	return fmt.Sprintf("%d", k.ID)
}
