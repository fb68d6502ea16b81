/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package retention merges expiration verdicts, rule matches and the
// seeding signal into one decision per item.
package retention

import (
	"fmt"
	"strings"

	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/policy"
	"github.com/friendsincode/janitor/internal/rules"
)

// Kind is the final outcome for an item in one tick.
type Kind string

const (
	Keep        Kind = "KEEP"
	LeavingSoon Kind = "LEAVING_SOON"
	Delete      Kind = "DELETE"
	HoldSeeding Kind = "HOLD_SEEDING"
)

// Decision is the outcome for one item together with its provenance.
type Decision struct {
	Item   library.Item `json:"item"`
	Kind   Kind         `json:"kind"`
	Source string       `json:"source"`
	Reason string       `json:"reason"`
	// Rules lists the names of the matched rules, in execution order.
	Rules []string `json:"rules,omitempty"`
}

// FlagLeavingSoon reports whether the item is shown in the leaving-soon
// collection, and whether only as a hold.
func (d Decision) FlagLeavingSoon() (flag, holdOnly bool) {
	switch d.Kind {
	case LeavingSoon:
		return true, false
	case HoldSeeding:
		return true, true
	}
	return false, false
}

// Input gathers everything Decide needs about one item.
type Input struct {
	Item    library.Item
	Verdict policy.Verdict
	// PolicySource names the window the verdict came from.
	PolicySource string
	Matches      []rules.Match
	Seeding      bool
	// ExcludedByTag is the configured exclusion tag the item carries, if any.
	ExcludedByTag string
}

// DeleteCandidate reports whether the input would lead to deletion if the
// item were not seeding. Callers use it to avoid needless seeding checks.
func (in Input) DeleteCandidate() bool {
	if in.excludingRule() != nil || in.ExcludedByTag != "" {
		return false
	}
	return in.Verdict == policy.VerdictDelete || in.deletingRule() != nil
}

func (in Input) excludingRule() *rules.Rule {
	for _, m := range in.Matches {
		if m.Matched && m.Rule.Excludes() {
			return m.Rule
		}
	}
	return nil
}

func (in Input) deletingRule() *rules.Rule {
	for _, m := range in.Matches {
		if m.Matched && m.Rule.Deletes() {
			return m.Rule
		}
	}
	return nil
}

// Decide merges the inputs in a fixed order:
//  1. an exclusion rule or exclusion tag keeps the item;
//  2. a deletion (expired or by rule) of a seeding item is held;
//  3. otherwise it is deleted;
//  4. an item inside its leaving-soon span is flagged;
//  5. everything else is kept.
func Decide(in Input) Decision {
	d := Decision{Item: in.Item}
	for _, m := range in.Matches {
		if m.Matched {
			d.Rules = append(d.Rules, m.Rule.Name)
		}
	}

	if rule := in.excludingRule(); rule != nil {
		d.Kind = Keep
		d.Source = "rule:" + rule.Name
		d.Reason = "excluded by rule"
		if reason := exclusionReason(rule); reason != "" {
			d.Reason += ": " + reason
		}
		return d
	}
	if in.ExcludedByTag != "" {
		d.Kind = Keep
		d.Source = "tag:" + in.ExcludedByTag
		d.Reason = "excluded by tag"
		return d
	}

	deleteSource, deleteReason := "", ""
	if in.Verdict == policy.VerdictDelete {
		deleteSource = in.PolicySource
		deleteReason = "expired"
	} else if rule := in.deletingRule(); rule != nil {
		deleteSource = "rule:" + rule.Name
		deleteReason = "matched deletion rule"
	}

	if deleteSource != "" {
		d.Source = deleteSource
		if in.Seeding {
			d.Kind = HoldSeeding
			d.Reason = deleteReason + ", held while seeding"
			return d
		}
		d.Kind = Delete
		d.Reason = deleteReason
		return d
	}

	if in.Verdict == policy.VerdictLeavingSoon {
		d.Kind = LeavingSoon
		d.Source = in.PolicySource
		d.Reason = "expires soon"
		return d
	}

	d.Kind = Keep
	d.Source = in.PolicySource
	d.Reason = "within retention"
	return d
}

func exclusionReason(rule *rules.Rule) string {
	for _, a := range rule.Actions {
		if a.Type == rules.ActionAddToExclusion && strings.TrimSpace(a.Reason) != "" {
			return a.Reason
		}
	}
	return ""
}

// Unresolved is the decision for an item whose inputs could not be gathered.
func Unresolved(item library.Item, err error) Decision {
	return Decision{
		Item:   item,
		Kind:   Keep,
		Source: "unresolved",
		Reason: fmt.Sprintf("skipped this tick: %v", err),
	}
}

// Counts tallies decisions by kind.
func Counts(decisions []Decision) map[Kind]int {
	out := map[Kind]int{Keep: 0, LeavingSoon: 0, Delete: 0, HoldSeeding: 0}
	for _, d := range decisions {
		out[d.Kind]++
	}
	return out
}
