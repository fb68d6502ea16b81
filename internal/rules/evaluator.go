/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/library"
)

const bytesPerGB = 1 << 30

// Signals is the system state a rule may depend on. The caller samples it
// once per tick so evaluation stays free of I/O.
type Signals struct {
	Now time.Time
	// Since is the start of the current tick window, used by scheduled rules.
	Since            time.Time
	DiskUsagePercent float64
	DiskKnown        bool
}

// Match is the verdict of one rule for one item.
type Match struct {
	Rule    *Rule
	Matched bool
	// NotDue is set when a scheduled rule was skipped for this tick.
	NotDue bool
}

// Evaluator applies rules to items.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With().Str("component", "rules").Logger()}
}

// Evaluate returns one Match per enabled rule, in execution order. Every
// enabled rule is evaluated; a match never stops evaluation of later rules.
func (e *Evaluator) Evaluate(item *library.Item, rules []Rule, sig Signals) []Match {
	return e.EvaluateOrdered(item, Ordered(rules), sig)
}

// EvaluateOrdered is Evaluate for rules already passed through Ordered.
func (e *Evaluator) EvaluateOrdered(item *library.Item, ordered []*Rule, sig Signals) []Match {
	matches := make([]Match, 0, len(ordered))
	for _, rule := range ordered {
		if !rule.Due(sig.Since, sig.Now) {
			matches = append(matches, Match{Rule: rule, NotDue: true})
			continue
		}
		matches = append(matches, Match{Rule: rule, Matched: e.matches(item, rule, sig)})
	}
	return matches
}

// Preview returns the items rule matches. Schedules are ignored.
func (e *Evaluator) Preview(rule *Rule, items []library.Item, sig Signals) []library.Item {
	var out []library.Item
	for i := range items {
		if e.matches(&items[i], rule, sig) {
			out = append(out, items[i])
		}
	}
	return out
}

func (e *Evaluator) matches(item *library.Item, rule *Rule, sig Signals) bool {
	// An empty condition list always matches.
	if len(rule.Conditions) == 0 {
		return true
	}
	or := strings.EqualFold(string(rule.Logic), string(LogicOr))
	for _, cond := range rule.Conditions {
		ok, err := evaluateCondition(item, cond, sig)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("rule", rule.Name).
				Int("item_id", item.ID).
				Msg("condition could not be evaluated")
			ok = false
		}
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

func evaluateCondition(item *library.Item, c Condition, sig Signals) (bool, error) {
	op := c.Operator.Normalize()
	switch c.Type {
	case ConditionAge:
		return compareNumber(item.Age(sig.Now).Hours()/24, op, c.Value, false)
	case ConditionSize:
		return compareNumber(float64(item.SizeBytes)/bytesPerGB, op, c.Value, false)
	case ConditionRating:
		if item.Rating <= 0 {
			return false, nil
		}
		return compareNumber(item.Rating, op, c.Value, false)
	case ConditionIMDBRating:
		if item.IMDBRating <= 0 {
			return false, nil
		}
		return compareNumber(item.IMDBRating, op, c.Value, false)
	case ConditionPlays:
		return compareNumber(float64(item.Plays), op, c.Value, false)
	case ConditionReleaseYear:
		if item.ReleaseYear <= 0 {
			return false, nil
		}
		return compareNumber(float64(item.ReleaseYear), op, c.Value, false)
	case ConditionDiskUsage:
		if !sig.DiskKnown {
			return false, nil
		}
		return compareNumber(sig.DiskUsagePercent, op, c.Value, false)
	case ConditionTimeOfDay:
		return compareNumber(float64(sig.Now.Hour()), op, c.Value, true)
	case ConditionGenre:
		return compareText(item.Genres, op, c.Value)
	case ConditionTag:
		return compareText(item.Tags, op, c.Value)
	case ConditionQuality:
		return compareText([]string{item.Quality}, op, c.Value)
	case ConditionFileFormat:
		return compareText([]string{item.FileFormat()}, op, mapOperand(c.Value, trimDot))
	case ConditionSeriesStatus:
		return compareText([]string{item.SeriesStatus}, op, c.Value)
	case ConditionDayOfWeek:
		return compareText([]string{sig.Now.Weekday().String()}, op, mapOperand(c.Value, canonicalWeekday))
	}
	return false, fmt.Errorf("unsupported condition type %q", c.Type)
}

func compareNumber(actual float64, op Operator, value any, wrap bool) (bool, error) {
	if op == OpBetween {
		r, ok := toFloatRange(value)
		if !ok {
			return false, fmt.Errorf("between needs a [min, max] pair, got %v", value)
		}
		if wrap && r[0] > r[1] {
			return actual >= r[0] || actual <= r[1], nil
		}
		return actual >= r[0] && actual <= r[1], nil
	}
	expected, ok := toFloat(value)
	if !ok {
		return false, fmt.Errorf("expected a number, got %v", value)
	}
	switch op {
	case OpEquals:
		return actual == expected, nil
	case OpNotEquals:
		return actual != expected, nil
	case OpGreater:
		return actual > expected, nil
	case OpLess:
		return actual < expected, nil
	case OpGreaterOrEqual:
		return actual >= expected, nil
	case OpLessOrEqual:
		return actual <= expected, nil
	}
	return false, fmt.Errorf("operator %q not valid for numbers", op)
}

func compareText(actual []string, op Operator, value any) (bool, error) {
	values := make([]string, 0, len(actual))
	for _, v := range actual {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	switch op {
	case OpIn, OpNotIn:
		list, ok := toStringSlice(value)
		if !ok {
			return false, fmt.Errorf("expected a list, got %v", value)
		}
		found := false
		for _, v := range values {
			if containsFold(list, v) {
				found = true
				break
			}
		}
		return found == (op == OpIn), nil
	}

	expected, ok := toString(value)
	if !ok {
		return false, fmt.Errorf("expected text, got %v", value)
	}
	expected = strings.TrimSpace(expected)
	switch op {
	case OpEquals, OpNotEquals:
		found := containsFold(values, expected)
		return found == (op == OpEquals), nil
	case OpContains, OpNotContains:
		needle := strings.ToLower(expected)
		found := false
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), needle) {
				found = true
				break
			}
		}
		return found == (op == OpContains), nil
	}
	return false, fmt.Errorf("operator %q not valid for text", op)
}

// mapOperand applies fn to a text or list operand.
func mapOperand(value any, fn func(string) string) any {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, ",") {
			return fn(v)
		}
		list, _ := toStringSlice(v)
		return strings.Join(mapOperand(list, fn).([]string), ",")
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fn(s))
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := toString(item)
			out = append(out, fn(s))
		}
		return out
	}
	return value
}

func trimDot(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), ".")
}

func canonicalWeekday(s string) string {
	if day, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]; ok {
		return day.String()
	}
	return s
}
