/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"strings"
	"time"
)

// ConditionType tags the variant of a Condition.
type ConditionType string

const (
	ConditionAge          ConditionType = "AGE"
	ConditionSize         ConditionType = "SIZE"
	ConditionRating       ConditionType = "RATING"
	ConditionGenre        ConditionType = "GENRE"
	ConditionQuality      ConditionType = "QUALITY"
	ConditionPlays        ConditionType = "PLAYS"
	ConditionFileFormat   ConditionType = "FILE_FORMAT"
	ConditionReleaseYear  ConditionType = "RELEASE_YEAR"
	ConditionDiskUsage    ConditionType = "DISK_USAGE"
	ConditionTimeOfDay    ConditionType = "TIME_OF_DAY"
	ConditionDayOfWeek    ConditionType = "DAY_OF_WEEK"
	ConditionIMDBRating   ConditionType = "IMDB_RATING"
	ConditionSeriesStatus ConditionType = "SERIES_STATUS"
	ConditionTag          ConditionType = "TAG"
)

// Operator compares an item attribute with the condition operand.
type Operator string

const (
	OpEquals         Operator = "="
	OpNotEquals      Operator = "!="
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpBetween        Operator = "between"
)

var operatorAliases = map[string]Operator{
	"equals":                OpEquals,
	"==":                    OpEquals,
	"not_equals":            OpNotEquals,
	"≠":                     OpNotEquals,
	"greater_than":          OpGreater,
	"less_than":             OpLess,
	"greater_than_or_equal": OpGreaterOrEqual,
	"≥":                     OpGreaterOrEqual,
	"less_than_or_equal":    OpLessOrEqual,
	"≤":                     OpLessOrEqual,
}

// Normalize maps the long operator names to their canonical symbols.
func (o Operator) Normalize() Operator {
	if canonical, ok := operatorAliases[strings.ToLower(string(o))]; ok {
		return canonical
	}
	return Operator(strings.ToLower(string(o)))
}

type operandKind int

const (
	numericOperand operandKind = iota
	textOperand
)

type conditionSpec struct {
	operand   operandKind
	operators []Operator
	min, max  float64
	// exclusiveMin rejects values equal to min.
	exclusiveMin bool
}

var (
	numericOps = []Operator{OpEquals, OpNotEquals, OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpBetween}
	textOps    = []Operator{OpEquals, OpNotEquals, OpContains, OpNotContains, OpIn, OpNotIn}
	setOps     = []Operator{OpEquals, OpNotEquals, OpIn, OpNotIn}
)

// conditionSpecs is the closed set of condition variants.
var conditionSpecs = map[ConditionType]conditionSpec{
	ConditionAge:          {operand: numericOperand, operators: numericOps, min: 0, max: 36500},
	ConditionSize:         {operand: numericOperand, operators: numericOps, min: 0, max: 1 << 20, exclusiveMin: true},
	ConditionRating:       {operand: numericOperand, operators: numericOps, min: 0, max: 10},
	ConditionIMDBRating:   {operand: numericOperand, operators: numericOps, min: 0, max: 10},
	ConditionPlays:        {operand: numericOperand, operators: numericOps, min: 0, max: 1 << 20},
	ConditionReleaseYear:  {operand: numericOperand, operators: numericOps, min: 1800, max: 3000},
	ConditionDiskUsage:    {operand: numericOperand, operators: numericOps, min: 0, max: 100},
	ConditionTimeOfDay:    {operand: numericOperand, operators: numericOps, min: 0, max: 23},
	ConditionGenre:        {operand: textOperand, operators: textOps},
	ConditionQuality:      {operand: textOperand, operators: textOps},
	ConditionFileFormat:   {operand: textOperand, operators: textOps},
	ConditionSeriesStatus: {operand: textOperand, operators: textOps},
	ConditionTag:          {operand: textOperand, operators: textOps},
	ConditionDayOfWeek:    {operand: textOperand, operators: setOps},
}

// Condition is one predicate of a rule. Type selects the variant, Value holds
// the operand: a number for numeric variants, a string or list for text
// variants, and a [min, max] pair for "between".
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type"`
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    any           `json:"value" yaml:"value"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// validate returns the problems found in the condition, if any.
func (c Condition) validate() []string {
	spec, ok := conditionSpecs[c.Type]
	if !ok {
		return []string{fmt.Sprintf("unknown condition type %q", c.Type)}
	}
	op := c.Operator.Normalize()
	allowed := false
	for _, candidate := range spec.operators {
		if candidate == op {
			allowed = true
			break
		}
	}
	if !allowed {
		return []string{fmt.Sprintf("%s does not support operator %q", c.Type, c.Operator)}
	}

	switch spec.operand {
	case numericOperand:
		return c.validateNumeric(spec, op)
	default:
		return c.validateText(op)
	}
}

func (c Condition) validateNumeric(spec conditionSpec, op Operator) []string {
	var values []float64
	if op == OpBetween {
		r, ok := toFloatRange(c.Value)
		if !ok {
			return []string{fmt.Sprintf("%s between needs a [min, max] pair", c.Type)}
		}
		// A time-of-day range may wrap past midnight.
		if r[0] > r[1] && c.Type != ConditionTimeOfDay {
			return []string{fmt.Sprintf("%s between range is reversed", c.Type)}
		}
		values = r[:]
	} else {
		v, ok := toFloat(c.Value)
		if !ok {
			return []string{fmt.Sprintf("%s needs a numeric value", c.Type)}
		}
		values = []float64{v}
	}
	for _, v := range values {
		if v < spec.min || v > spec.max || (spec.exclusiveMin && v == spec.min) {
			return []string{fmt.Sprintf("%s value %v out of range", c.Type, v)}
		}
	}
	return nil
}

func (c Condition) validateText(op Operator) []string {
	var values []string
	if op == OpIn || op == OpNotIn {
		list, ok := toStringSlice(c.Value)
		if !ok || len(list) == 0 {
			return []string{fmt.Sprintf("%s %s needs a non-empty list", c.Type, op)}
		}
		values = list
	} else {
		s, ok := toString(c.Value)
		if !ok || strings.TrimSpace(s) == "" {
			return []string{fmt.Sprintf("%s needs a text value", c.Type)}
		}
		values = []string{s}
	}
	if c.Type == ConditionDayOfWeek {
		for _, v := range values {
			if _, ok := weekdays[strings.ToLower(strings.TrimSpace(v))]; !ok {
				return []string{fmt.Sprintf("unknown day of week %q", v)}
			}
		}
	}
	return nil
}
