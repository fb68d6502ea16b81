/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"strings"
	"testing"

	"github.com/friendsincode/janitor/internal/faults"
)

func TestValidate(t *testing.T) {
	deleteAction := []Action{{Type: ActionDeleteFile}}
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{
			name: "valid",
			rule: Rule{Name: "ok", Conditions: []Condition{{ConditionAge, OpGreater, 30}}, Actions: deleteAction},
		},
		{
			name: "empty conditions allowed",
			rule: Rule{Name: "ok", Actions: deleteAction},
		},
		{name: "blank name", rule: Rule{Name: "  ", Actions: deleteAction}, wantErr: "name must not be blank"},
		{name: "no actions", rule: Rule{Name: "x"}, wantErr: "at least one action"},
		{
			name:    "negative age",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionAge, OpGreater, -1}}, Actions: deleteAction},
			wantErr: "out of range",
		},
		{
			name:    "zero size",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionSize, OpGreater, 0}}, Actions: deleteAction},
			wantErr: "out of range",
		},
		{
			name:    "disk over 100",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionDiskUsage, OpGreater, 120}}, Actions: deleteAction},
			wantErr: "out of range",
		},
		{
			name:    "rating over 10",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionRating, OpLess, 11}}, Actions: deleteAction},
			wantErr: "out of range",
		},
		{
			name:    "operator mismatch",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionAge, OpContains, "3"}}, Actions: deleteAction},
			wantErr: "does not support operator",
		},
		{
			name:    "unknown condition",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionType("MOOD"), OpEquals, "sad"}}, Actions: deleteAction},
			wantErr: "unknown condition type",
		},
		{
			name:    "reversed range",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionAge, OpBetween, []any{50, 10}}}, Actions: deleteAction},
			wantErr: "reversed",
		},
		{
			name:    "bad weekday",
			rule:    Rule{Name: "x", Conditions: []Condition{{ConditionDayOfWeek, OpEquals, "funday"}}, Actions: deleteAction},
			wantErr: "unknown day of week",
		},
		{
			name:    "tag action without tag",
			rule:    Rule{Name: "x", Actions: []Action{{Type: ActionAddTag}}},
			wantErr: "needs a tag",
		},
		{
			name:    "bad cron",
			rule:    Rule{Name: "x", Actions: deleteAction, Schedule: &Schedule{Cron: "every day", Enabled: true}},
			wantErr: "schedule",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.rule)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !faults.IsConfiguration(err) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRuleClassification(t *testing.T) {
	r := Rule{Actions: []Action{{Type: ActionLog, Message: "x"}, {Type: ActionRemoveFromManager}}}
	if !r.Deletes() || r.Excludes() {
		t.Errorf("Deletes=%v Excludes=%v", r.Deletes(), r.Excludes())
	}
	r = Rule{Actions: []Action{{Type: ActionAddToExclusion, Reason: "favourite"}}}
	if r.Deletes() || !r.Excludes() {
		t.Errorf("Deletes=%v Excludes=%v", r.Deletes(), r.Excludes())
	}
}

func TestPrepareLowercasesLogLevel(t *testing.T) {
	for _, level := range []string{"WARN", " Error", "debug"} {
		r := Rule{Name: "loud", Actions: []Action{{Type: "log", Message: "x", Level: level}}}
		if err := Prepare(&r); err != nil {
			t.Fatalf("Prepare(%q): %v", level, err)
		}
		want := strings.ToLower(strings.TrimSpace(level))
		if r.Actions[0].Type != ActionLog || r.Actions[0].Level != want {
			t.Errorf("Prepare(%q) action = %+v, want level %q", level, r.Actions[0], want)
		}
	}
}

func TestParseRulesFile(t *testing.T) {
	doc := `
rules:
  - name: Old unwatched
    priority: 5
    logic: and
    conditions:
      - type: age
        operator: greater_than
        value: 180
      - type: PLAYS
        operator: "="
        value: 0
    actions:
      - type: DELETE_FILE
  - name: Keep favourites
    enabled: false
    conditions:
      - type: TAG
        operator: in
        value: [favourite, keep]
    actions:
      - type: ADD_TO_EXCLUSION
`
	got, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	if !got[0].Enabled || got[0].Logic != LogicAnd || got[0].Conditions[0].Operator != OpGreater {
		t.Errorf("first rule not normalized: %+v", got[0])
	}
	if got[0].Conditions[0].Type != ConditionAge {
		t.Errorf("condition type = %q", got[0].Conditions[0].Type)
	}
	if got[1].Enabled {
		t.Error("explicit enabled: false must be kept")
	}

	list := `[{"name": "json", "actions": [{"type": "LOG", "message": "hi"}]}]`
	got, err = Parse([]byte(list))
	if err != nil || len(got) != 1 || got[0].Name != "json" {
		t.Fatalf("Parse(json list) = %+v, %v", got, err)
	}

	if _, err := Parse([]byte(`[{"name": "", "actions": []}]`)); !faults.IsConfiguration(err) {
		t.Errorf("expected ConfigurationError for invalid rule, got %v", err)
	}
}
