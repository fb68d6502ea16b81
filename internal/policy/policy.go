/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package policy classifies items by age against expiration windows.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
)

// Verdict is the expiration outcome for one item.
type Verdict string

const (
	VerdictKeep        Verdict = "KEEP"
	VerdictLeavingSoon Verdict = "LEAVING_SOON"
	VerdictDelete      Verdict = "DELETE"
)

// Window holds the two boundaries of an expiration schedule.
// LeavingSoon is always strictly shorter than HardExpiration.
type Window struct {
	LeavingSoon    time.Duration
	HardExpiration time.Duration
}

// NewWindow validates and builds a window.
func NewWindow(leavingSoon, hardExpiration time.Duration) (Window, error) {
	if hardExpiration <= 0 {
		return Window{}, faults.Configf("hard_expiration", "must be positive, got %s", hardExpiration)
	}
	if leavingSoon < 0 {
		return Window{}, faults.Configf("leaving_soon", "must not be negative, got %s", leavingSoon)
	}
	if leavingSoon >= hardExpiration {
		return Window{}, faults.Configf("leaving_soon", "%s must be shorter than hard expiration %s",
			FormatDuration(leavingSoon), FormatDuration(hardExpiration))
	}
	return Window{LeavingSoon: leavingSoon, HardExpiration: hardExpiration}, nil
}

// Classify maps an age onto the window.
func (w Window) Classify(age time.Duration) Verdict {
	switch {
	case age >= w.HardExpiration:
		return VerdictDelete
	case age >= w.HardExpiration-w.LeavingSoon:
		return VerdictLeavingSoon
	default:
		return VerdictKeep
	}
}

// Signals carries system state the window choice depends on.
type Signals struct {
	FreeDiskPercent float64
	DiskKnown       bool
}

// TagSchedule overrides the media-type window for items carrying Tag.
type TagSchedule struct {
	Tag        string
	Expiration time.Duration
}

// Threshold applies Expiration while free disk space is below FreeDiskPercent.
type Threshold struct {
	FreeDiskPercent float64
	Expiration      time.Duration
}

// MediaPolicy is the default schedule of one media type. HardExpiration
// applies when no threshold is configured, Thresholds otherwise.
type MediaPolicy struct {
	HardExpiration time.Duration
	Thresholds     []Threshold
}

// Config is the validated input for New.
type Config struct {
	LeavingSoon  time.Duration
	Media        map[library.MediaType]MediaPolicy
	TagSchedules []TagSchedule
	// TagMinimumFreeDiskPercent gates tag schedules to disk pressure. Zero disables the gate.
	TagMinimumFreeDiskPercent float64
}

// Resolved is a window together with where it came from.
type Resolved struct {
	Window
	Source string
}

type mediaWindows struct {
	fixed      *Window
	thresholds []Threshold
	windows    []Window
	// lenient indexes the window with the longest expiration.
	lenient int
}

// Policy resolves and applies expiration windows.
type Policy struct {
	leavingSoon time.Duration
	media       map[library.MediaType]mediaWindows
	tags        []TagSchedule
	tagWindows  []Window
	tagMinFree  float64
}

// New validates every configured window. Any window whose leaving-soon span
// is not shorter than its expiration yields a ConfigurationError.
func New(cfg Config) (*Policy, error) {
	p := &Policy{
		leavingSoon: cfg.LeavingSoon,
		media:       make(map[library.MediaType]mediaWindows),
		tagMinFree:  cfg.TagMinimumFreeDiskPercent,
	}

	for mediaType, mp := range cfg.Media {
		var mw mediaWindows
		if len(mp.Thresholds) == 0 {
			if mp.HardExpiration == 0 {
				continue
			}
			w, err := NewWindow(cfg.LeavingSoon, mp.HardExpiration)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", mediaType, err)
			}
			mw.fixed = &w
		} else {
			mw.thresholds = append([]Threshold(nil), mp.Thresholds...)
			sort.Slice(mw.thresholds, func(i, j int) bool {
				return mw.thresholds[i].FreeDiskPercent < mw.thresholds[j].FreeDiskPercent
			})
			for _, th := range mw.thresholds {
				if th.FreeDiskPercent <= 0 || th.FreeDiskPercent > 100 {
					return nil, faults.Configf(string(mediaType)+".disk_thresholds", "free disk percent %.1f out of range", th.FreeDiskPercent)
				}
				w, err := NewWindow(cfg.LeavingSoon, th.Expiration)
				if err != nil {
					return nil, fmt.Errorf("%s at %.0f%% free: %w", mediaType, th.FreeDiskPercent, err)
				}
				mw.windows = append(mw.windows, w)
				if w.HardExpiration > mw.windows[mw.lenient].HardExpiration {
					mw.lenient = len(mw.windows) - 1
				}
			}
		}
		p.media[mediaType] = mw
	}

	seen := make(map[string]bool)
	for _, ts := range cfg.TagSchedules {
		tag := strings.TrimSpace(ts.Tag)
		if tag == "" {
			return nil, faults.Configf("tag_schedules", "tag must not be blank")
		}
		if seen[strings.ToLower(tag)] {
			return nil, faults.Configf("tag_schedules", "tag %q listed twice", tag)
		}
		seen[strings.ToLower(tag)] = true
		w, err := NewWindow(cfg.LeavingSoon, ts.Expiration)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tag, err)
		}
		p.tags = append(p.tags, TagSchedule{Tag: tag, Expiration: ts.Expiration})
		p.tagWindows = append(p.tagWindows, w)
	}
	return p, nil
}

// LeavingSoon returns the global leaving-soon span.
func (p *Policy) LeavingSoon() time.Duration { return p.leavingSoon }

// ComputeWindow picks the window for item. The first configured tag schedule
// the item carries wins over the media-type default. ok is false when no
// window applies, which means the item is not subject to expiration.
func (p *Policy) ComputeWindow(item *library.Item, sig Signals) (Resolved, bool) {
	if p.tagsApply(sig) {
		for i, ts := range p.tags {
			if item.HasTag(ts.Tag) {
				return Resolved{Window: p.tagWindows[i], Source: "tag:" + ts.Tag}, true
			}
		}
	}

	mw, ok := p.media[item.Type]
	if !ok {
		return Resolved{}, false
	}
	if mw.fixed != nil {
		return Resolved{Window: *mw.fixed, Source: string(item.Type)}, true
	}
	if !sig.DiskKnown {
		// Without a disk reading the longest expiration applies.
		return Resolved{Window: mw.windows[mw.lenient], Source: string(item.Type) + ":disk-unknown"}, true
	}
	for i, th := range mw.thresholds {
		if sig.FreeDiskPercent < th.FreeDiskPercent {
			return Resolved{
				Window: mw.windows[i],
				Source: fmt.Sprintf("%s:below-%.0f%%-free", item.Type, th.FreeDiskPercent),
			}, true
		}
	}
	return Resolved{}, false
}

func (p *Policy) tagsApply(sig Signals) bool {
	if p.tagMinFree <= 0 || !sig.DiskKnown {
		return true
	}
	return sig.FreeDiskPercent <= p.tagMinFree
}

// Evaluate classifies item at now. Items with no applicable window are kept.
func (p *Policy) Evaluate(item *library.Item, now time.Time, sig Signals) (Verdict, Resolved) {
	resolved, ok := p.ComputeWindow(item, sig)
	if !ok {
		return VerdictKeep, Resolved{Source: "no-expiration"}
	}
	return resolved.Classify(item.Age(now)), resolved
}
