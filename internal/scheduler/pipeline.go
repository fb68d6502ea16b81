/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/cleanup"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/policy"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/telemetry"
)

// evaluated pairs a decision with the rule matches that produced it.
type evaluated struct {
	decision retention.Decision
	matches  []rules.Match
}

// tickState is sampled once at the start of a tick.
type tickState struct {
	policySignals policy.Signals
	ruleSignals   rules.Signals
	rules         []*rules.Rule
	rulesErr      error
}

func (s *Service) tick(ctx context.Context, trigger string, dryRun bool) *audit.Run {
	run := &audit.Run{Trigger: trigger, DryRun: dryRun, StartedAt: s.now().UTC()}

	ctx, span := telemetry.StartSpan(ctx, "scheduler.tick",
		attribute.String("trigger", trigger),
		attribute.Bool("dry_run", dryRun),
	)
	s.deps.Bus.Publish(events.EventTickStarted, events.Payload{"trigger": trigger, "dry_run": dryRun})
	s.logger.Info().Str("trigger", trigger).Bool("dry_run", dryRun).Msg("tick started")

	state := s.sample(ctx, run)

	var all []evaluated
	for _, mediaType := range s.deps.Library.Types() {
		if err := ctx.Err(); err != nil {
			run.Errors = append(run.Errors, err.Error())
			break
		}
		batch, err := s.evaluateType(ctx, mediaType, state)
		if err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("snapshot").Inc()
			run.Errors = append(run.Errors, err.Error())
			s.logger.Error().Err(err).Str("media_type", string(mediaType)).Msg("library snapshot failed, type skipped")
			continue
		}
		s.flagLeavingSoon(ctx, run, mediaType, batch)
		all = append(all, batch...)
	}

	run.Decisions = make([]retention.Decision, len(all))
	for i, ev := range all {
		run.Decisions[i] = ev.decision
		telemetry.DecisionsTotal.WithLabelValues(string(ev.decision.Item.Type), string(ev.decision.Kind)).Inc()
	}

	s.applyActions(ctx, run, all, dryRun)
	s.cleanup(ctx, run, dryRun)

	run.FinishedAt = s.now().UTC()
	s.finish(ctx, run)

	var tickErr error
	if len(run.Errors) > 0 {
		tickErr = errors.New(run.Errors[0])
	}
	telemetry.EndSpan(span, tickErr)
	return run
}

// sample reads disk usage and loads rules. Neither failure aborts the tick.
func (s *Service) sample(ctx context.Context, run *audit.Run) tickState {
	state := tickState{
		ruleSignals: rules.Signals{Now: run.StartedAt, Since: s.since()},
	}

	if s.deps.Disk != nil {
		free, err := s.deps.Disk.FreePercent(ctx)
		if err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("disk").Inc()
			s.logger.Warn().Err(err).Msg("disk usage unknown, using the most lenient window")
		} else {
			state.policySignals = policy.Signals{FreeDiskPercent: free, DiskKnown: true}
			state.ruleSignals.DiskUsagePercent = 100 - free
			state.ruleSignals.DiskKnown = true
			telemetry.DiskFreePercent.Set(free)
		}
	}

	if s.deps.Rules != nil {
		loaded, err := s.deps.Rules.LoadEnabled(ctx)
		if err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("rules").Inc()
			state.rulesErr = fmt.Errorf("load rules: %w", err)
			run.Errors = append(run.Errors, state.rulesErr.Error())
			s.logger.Error().Err(err).Msg("rules unavailable, keeping every item this tick")
		} else {
			state.rules = rules.Ordered(loaded)
		}
	}
	return state
}

func (s *Service) evaluateType(ctx context.Context, mediaType library.MediaType, state tickState) ([]evaluated, error) {
	items, err := s.deps.Library.Snapshot(ctx, mediaType)
	if err != nil {
		return nil, err
	}

	out := make([]evaluated, len(items))
	if state.rulesErr != nil {
		for i := range items {
			out[i] = evaluated{decision: retention.Unresolved(items[i], state.rulesErr)}
		}
		return out, nil
	}

	itemErrs := make([]error, len(items))
	if s.deps.Correlator != nil {
		itemErrs = s.deps.Correlator.Enrich(ctx, mediaType, items)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range items {
		if err := itemErrs[i]; err != nil && errors.Is(err, faults.ErrCollaboratorUnavailable) {
			out[i] = evaluated{decision: retention.Unresolved(items[i], err)}
			continue
		}
		g.Go(func() error {
			out[i] = s.evaluateItem(gctx, &items[i], state)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (s *Service) evaluateItem(ctx context.Context, item *library.Item, state tickState) evaluated {
	verdict, resolved := s.deps.Retention.Policy.Evaluate(item, state.ruleSignals.Now, state.policySignals)
	in := retention.Input{
		Item:          *item,
		Verdict:       verdict,
		PolicySource:  resolved.Source,
		Matches:       s.deps.Evaluator.EvaluateOrdered(item, state.rules, state.ruleSignals),
		ExcludedByTag: s.deps.Retention.ExclusionTag(item),
	}
	if in.DeleteCandidate() {
		in.Seeding = s.deps.Seeding.Seeding(ctx, item)
		in.Item.Seeding = in.Seeding
	}
	return evaluated{decision: retention.Decide(in), matches: in.Matches}
}

// flagLeavingSoon refreshes both leaving-soon collections of a media type,
// including when they are empty so stale entries drop out.
func (s *Service) flagLeavingSoon(ctx context.Context, run *audit.Run, mediaType library.MediaType, batch []evaluated) {
	if s.deps.MediaServer == nil {
		return
	}
	var flagged, held []library.Item
	for _, ev := range batch {
		flag, holdOnly := ev.decision.FlagLeavingSoon()
		switch {
		case flag && holdOnly:
			held = append(held, ev.decision.Item)
		case flag:
			flagged = append(flagged, ev.decision.Item)
		}
	}

	for _, set := range []struct {
		items    []library.Item
		holdOnly bool
	}{{flagged, false}, {held, true}} {
		if err := s.deps.MediaServer.FlagLeavingSoon(ctx, mediaType, set.items, set.holdOnly); err != nil {
			telemetry.CollaboratorErrorsTotal.WithLabelValues("media-server", "flag_leaving_soon").Inc()
			run.Errors = append(run.Errors, fmt.Sprintf("flag leaving soon %s: %v", mediaType, err))
			s.logger.Warn().Err(err).Str("media_type", string(mediaType)).Bool("hold_only", set.holdOnly).Msg("flag leaving soon failed")
			continue
		}
		for _, item := range set.items {
			s.deps.Bus.Publish(events.EventLeavingSoon, events.Payload{
				"item":      item.Label(),
				"item_id":   item.ID,
				"type":      string(item.Type),
				"hold_only": set.holdOnly,
			})
		}
	}
}

func (s *Service) cleanup(ctx context.Context, run *audit.Run, dryRun bool) {
	if s.deps.Executor == nil {
		return
	}
	if dryRun || s.deps.Executor.DryRun() {
		run.DryRun = true
		run.Cleanup = s.deps.Executor.Simulate(run.Decisions)
		return
	}
	run.Cleanup = s.deps.Executor.Execute(ctx, run.Decisions)

	for _, o := range run.Cleanup.Outcomes {
		payload := events.Payload{"item": o.Label, "item_id": o.ItemID, "type": string(o.MediaType), "status": string(o.Status)}
		switch o.Status {
		case cleanup.StatusDeleted, cleanup.StatusAlreadyRemoved:
			s.deps.Bus.Publish(events.EventItemDeleted, payload)
		case cleanup.StatusPartial, cleanup.StatusFailed:
			payload["errors"] = o.Errors
			s.deps.Bus.Publish(events.EventCleanupFailed, payload)
			run.Errors = append(run.Errors, fmt.Sprintf("cleanup %s: %s", o.Label, o.Status))
		}
	}
}

func (s *Service) finish(ctx context.Context, run *audit.Run) {
	counts := retention.Counts(run.Decisions)
	duration := run.FinishedAt.Sub(run.StartedAt)

	result := "success"
	if len(run.Errors) > 0 {
		result = "degraded"
	}
	telemetry.SchedulerTicksTotal.WithLabelValues(run.Trigger, result).Inc()
	telemetry.SchedulerTickDuration.Observe(duration.Seconds())
	telemetry.SchedulerLastTickTimestamp.Set(float64(run.FinishedAt.Unix()))

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Record(ctx, run); err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("audit").Inc()
			s.logger.Error().Err(err).Msg("record tick run")
		}
	}

	payload := events.Payload{
		"run_id":       run.ID,
		"trigger":      run.Trigger,
		"dry_run":      run.DryRun,
		"keep":         counts[retention.Keep],
		"leaving_soon": counts[retention.LeavingSoon],
		"delete":       counts[retention.Delete],
		"hold_seeding": counts[retention.HoldSeeding],
		"bytes_freed":  run.Cleanup.BytesFreed,
		"errors":       len(run.Errors),
	}
	if result == "success" {
		s.deps.Bus.Publish(events.EventTickCompleted, payload)
	} else {
		s.deps.Bus.Publish(events.EventTickFailed, payload)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Dur("duration", duration).
		Int("keep", counts[retention.Keep]).
		Int("leaving_soon", counts[retention.LeavingSoon]).
		Int("delete", counts[retention.Delete]).
		Int("hold_seeding", counts[retention.HoldSeeding]).
		Int("errors", len(run.Errors)).
		Bool("dry_run", run.DryRun).
		Msg("tick finished")
}
