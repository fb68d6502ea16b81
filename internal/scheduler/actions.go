/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/telemetry"
)

// applyActions performs the side-effect actions of matched rules. Deletion
// and exclusion actions are already folded into the decision. Items being
// deleted only get LOG and NOTIFY. A dry run performs LOG only.
func (s *Service) applyActions(ctx context.Context, run *audit.Run, all []evaluated, dryRun bool) {
	for _, ev := range all {
		for _, m := range ev.matches {
			if !m.Matched {
				continue
			}
			for _, action := range m.Rule.Actions {
				if ctx.Err() != nil {
					return
				}
				if err := s.applyAction(ctx, ev.decision, m.Rule, action, dryRun); err != nil {
					run.Errors = append(run.Errors, err.Error())
				}
			}
		}
	}
}

func (s *Service) applyAction(ctx context.Context, d retention.Decision, rule *rules.Rule, action rules.Action, dryRun bool) error {
	item := d.Item
	deleting := d.Kind == retention.Delete

	switch action.Type {
	case rules.ActionLog:
		s.ruleLog(action.Level).
			Str("rule", rule.Name).
			Str("item", item.Label()).
			Str("decision", string(d.Kind)).
			Msg(action.Message)
		return nil

	case rules.ActionNotify:
		if dryRun {
			return nil
		}
		s.deps.Bus.Publish(events.EventNotify, events.Payload{
			"rule":     rule.Name,
			"message":  action.Message,
			"item":     item.Label(),
			"item_id":  item.ID,
			"type":     string(item.Type),
			"decision": string(d.Kind),
		})
		return nil

	case rules.ActionAddTag, rules.ActionRemoveTag:
		if dryRun || deleting || s.deps.Tags == nil {
			return nil
		}
		var err error
		op := "add_tag"
		if action.Type == rules.ActionAddTag {
			err = s.deps.Tags.AddTag(ctx, item, action.Tag)
		} else {
			op = "remove_tag"
			err = s.deps.Tags.RemoveTag(ctx, item, action.Tag)
		}
		return s.actionFailed(err, "library", op, rule, item.Label())

	case rules.ActionMoveTo:
		if dryRun || deleting || s.deps.Mover == nil {
			return nil
		}
		return s.actionFailed(s.deps.Mover.Move(ctx, item, action.Destination), "library", "move", rule, item.Label())
	}
	return nil
}

func (s *Service) actionFailed(err error, service, op string, rule *rules.Rule, label string) error {
	if err == nil {
		return nil
	}
	telemetry.CollaboratorErrorsTotal.WithLabelValues(service, op).Inc()
	s.logger.Warn().Err(err).Str("rule", rule.Name).Str("item", label).Str("op", op).Msg("rule action failed")
	return fmt.Errorf("rule %s %s on %s: %w", rule.Name, op, label, err)
}

func (s *Service) ruleLog(level string) *zerolog.Event {
	switch level {
	case "debug":
		return s.logger.Debug()
	case "warn":
		return s.logger.Warn()
	case "error":
		return s.logger.Error()
	default:
		return s.logger.Info()
	}
}
