/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rules evaluates user defined retention rules against library items.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/friendsincode/janitor/internal/faults"
)

// Logic combines the conditions of a rule.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Schedule restricts a rule to the ticks following a cron firing.
type Schedule struct {
	Cron    string `json:"cron" yaml:"cron"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Rule is a user defined retention rule. Lower Priority runs first.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Enabled     bool        `json:"enabled" yaml:"-"`
	Logic       Logic       `json:"logic" yaml:"logic"`
	Priority    int         `json:"priority" yaml:"priority"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Actions     []Action    `json:"actions" yaml:"actions"`
	Schedule    *Schedule   `json:"schedule,omitempty" yaml:"schedule"`
	CreatedAt   time.Time   `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty" yaml:"-"`
}

// Excludes reports whether the rule protects matched items.
func (r *Rule) Excludes() bool {
	for _, a := range r.Actions {
		if a.Type == ActionAddToExclusion {
			return true
		}
	}
	return false
}

// Deletes reports whether the rule asks for matched items to be removed.
func (r *Rule) Deletes() bool {
	for _, a := range r.Actions {
		if a.IsDeleteClass() {
			return true
		}
	}
	return false
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Due reports whether a scheduled rule fired in (since, now]. Unscheduled
// rules and a zero since are always due.
func (r *Rule) Due(since, now time.Time) bool {
	if r.Schedule == nil || !r.Schedule.Enabled || since.IsZero() {
		return true
	}
	sched, err := cronParser.Parse(r.Schedule.Cron)
	if err != nil {
		return false
	}
	next := sched.Next(since)
	return !next.After(now)
}

// Problems lists every validation failure of the rule.
func Problems(r *Rule) []string {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name must not be blank")
	}
	switch Logic(strings.ToUpper(string(r.Logic))) {
	case "", LogicAnd, LogicOr:
	default:
		problems = append(problems, fmt.Sprintf("unknown logic %q", r.Logic))
	}
	if len(r.Actions) == 0 {
		problems = append(problems, "at least one action is required")
	}
	for i, c := range r.Conditions {
		for _, p := range c.validate() {
			problems = append(problems, fmt.Sprintf("condition %d: %s", i+1, p))
		}
	}
	for i, a := range r.Actions {
		for _, p := range a.validate() {
			problems = append(problems, fmt.Sprintf("action %d: %s", i+1, p))
		}
	}
	if r.Schedule != nil && r.Schedule.Enabled {
		if _, err := cronParser.Parse(r.Schedule.Cron); err != nil {
			problems = append(problems, fmt.Sprintf("schedule: %v", err))
		}
	}
	return problems
}

// Validate returns a ConfigurationError describing every problem of the rule.
func Validate(r *Rule) error {
	problems := Problems(r)
	if len(problems) == 0 {
		return nil
	}
	name := r.Name
	if name == "" {
		name = r.ID
	}
	return faults.Configf("rule "+strings.TrimSpace(name), "%s", strings.Join(problems, "; "))
}

// Prepare canonicalizes r and validates it.
func Prepare(r *Rule) error {
	normalize(r)
	return Validate(r)
}

// normalize canonicalizes the logic, operators and log levels in place.
func normalize(r *Rule) {
	r.Logic = Logic(strings.ToUpper(string(r.Logic)))
	if r.Logic == "" {
		r.Logic = LogicAnd
	}
	for i := range r.Conditions {
		r.Conditions[i].Type = ConditionType(strings.ToUpper(string(r.Conditions[i].Type)))
		r.Conditions[i].Operator = r.Conditions[i].Operator.Normalize()
	}
	for i := range r.Actions {
		r.Actions[i].Type = ActionType(strings.ToUpper(string(r.Actions[i].Type)))
		r.Actions[i].Level = strings.ToLower(strings.TrimSpace(r.Actions[i].Level))
	}
}

// Ordered returns the enabled rules sorted by priority, then name, then ID.
func Ordered(rules []Rule) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for i := range rules {
		if rules[i].Enabled {
			out = append(out, &rules[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
