/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/retention"
)

// fakeServices records every collaborator call.
type fakeServices struct {
	mu         sync.Mutex
	removeErrs map[int]error
	absent     map[int]bool
	requestErr map[int]error
	removed    []int
	requests   []int
	purges     []library.LookupKey
	purgeIDs   [][]string
	calls      int
}

func (f *fakeServices) Remove(_ context.Context, _ library.MediaType, items []library.Item) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	present := 0
	for _, it := range items {
		if err := f.removeErrs[it.ID]; err != nil {
			return present, err
		}
		if f.absent[it.ID] {
			continue
		}
		f.removed = append(f.removed, it.ID)
		present++
	}
	return present, nil
}

func (f *fakeServices) CleanupRequests(_ context.Context, item library.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, item.ID)
	return f.requestErr[item.ID]
}

func (f *fakeServices) Purge(_ context.Context, _ library.MediaType, key library.LookupKey, serverIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.purges = append(f.purges, key)
	f.purgeIDs = append(f.purgeIDs, serverIDs)
	return nil
}

func season(n int) *int { return &n }

func deleteDecision(id int, size int64) retention.Decision {
	return retention.Decision{Item: library.Item{ID: id, Type: library.Movies, SizeBytes: size}, Kind: retention.Delete}
}

func newTestExecutor(cfg Config, f *fakeServices, rec *metrics.Recorder) *Executor {
	return NewExecutor(cfg, f, f, f, rec, zerolog.Nop())
}

func TestDryRunMakesNoCalls(t *testing.T) {
	f := &fakeServices{}
	rec := metrics.NewRecorder()
	ex := newTestExecutor(Config{DryRun: true}, f, rec)

	report := ex.Execute(context.Background(), []retention.Decision{deleteDecision(1, 100), deleteDecision(2, 200)})
	if f.calls != 0 {
		t.Fatalf("dry run made %d collaborator calls", f.calls)
	}
	if len(report.Outcomes) != 2 || report.Outcomes[0].Status != StatusDryRun {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}
	if rec.Summary().TotalFilesDeleted != 0 {
		t.Error("dry run must not record metrics")
	}
}

func TestExecuteOnlyDeletes(t *testing.T) {
	f := &fakeServices{}
	ex := newTestExecutor(Config{}, f, metrics.NewRecorder())
	decisions := []retention.Decision{
		{Item: library.Item{ID: 1}, Kind: retention.Keep},
		{Item: library.Item{ID: 2}, Kind: retention.HoldSeeding},
		{Item: library.Item{ID: 3}, Kind: retention.LeavingSoon},
	}
	report := ex.Execute(context.Background(), decisions)
	if f.calls != 0 || len(report.Outcomes) != 0 {
		t.Fatalf("non-delete decisions must not be executed: calls=%d outcomes=%d", f.calls, len(report.Outcomes))
	}
}

func TestLibraryFailureAbortsItemNotBatch(t *testing.T) {
	f := &fakeServices{removeErrs: map[int]error{1: faults.Unavailable("radarr", "delete", errors.New("503"))}}
	rec := metrics.NewRecorder()
	ex := newTestExecutor(Config{Parallelism: 2}, f, rec)

	report := ex.Execute(context.Background(), []retention.Decision{deleteDecision(1, 100), deleteDecision(2, 200)})

	if report.Outcomes[0].Status != StatusFailed {
		t.Errorf("item 1 status = %s, want failed", report.Outcomes[0].Status)
	}
	var execErr *faults.ExecutionError
	if !errors.As(report.Outcomes[0].Err(), &execErr) || execErr.Step != StepLibrary {
		t.Errorf("item 1 error = %v, want library execution error", report.Outcomes[0].Err())
	}
	if report.Outcomes[1].Status != StatusDeleted {
		t.Errorf("item 2 status = %s, want deleted", report.Outcomes[1].Status)
	}
	for _, id := range f.requests {
		if id == 1 {
			t.Error("request cleanup ran for an item whose removal failed")
		}
	}
	if len(f.purges) != 1 {
		t.Errorf("purges = %d, want 1", len(f.purges))
	}

	sum := rec.Summary()
	if sum.TotalFilesDeleted != 1 || sum.TotalBytesFreed != 200 {
		t.Errorf("metrics = %+v, want only item 2", sum)
	}
	if report.Deleted != 1 || report.Failed != 1 || report.BytesFreed != 200 {
		t.Errorf("report totals = %+v", report)
	}
}

func TestAlreadyRemovedIsIdempotent(t *testing.T) {
	f := &fakeServices{absent: map[int]bool{1: true}}
	rec := metrics.NewRecorder()
	ex := newTestExecutor(Config{}, f, rec)

	report := ex.Execute(context.Background(), []retention.Decision{deleteDecision(1, 100)})
	o := report.Outcomes[0]
	if o.Status != StatusAlreadyRemoved || o.Err() != nil {
		t.Fatalf("outcome = %+v", o)
	}
	if len(f.requests) != 1 || len(f.purges) != 1 {
		t.Error("remaining steps should still run for an already removed item")
	}
	if rec.Summary().TotalFilesDeleted != 0 {
		t.Error("already removed items must not be counted")
	}
}

func TestLaterStepFailureIsPartial(t *testing.T) {
	f := &fakeServices{requestErr: map[int]error{1: errors.New("overseerr down")}}
	rec := metrics.NewRecorder()
	ex := newTestExecutor(Config{}, f, rec)

	report := ex.Execute(context.Background(), []retention.Decision{deleteDecision(1, 100)})
	if report.Outcomes[0].Status != StatusPartial {
		t.Fatalf("status = %s, want partial", report.Outcomes[0].Status)
	}
	if len(f.purges) != 1 {
		t.Error("media server purge should run after a request cleanup failure")
	}
	if rec.Summary().TotalFilesDeleted != 1 {
		t.Error("the library removal succeeded, so it must be counted")
	}
}

func TestWholeShowPurgeDeduplicated(t *testing.T) {
	f := &fakeServices{}
	ex := newTestExecutor(Config{Granularity: identity.ByShow, Parallelism: 4}, f, metrics.NewRecorder())
	var decisions []retention.Decision
	for s := 1; s <= 3; s++ {
		decisions = append(decisions, retention.Decision{Item: library.Item{ID: 7, Type: library.TV, Season: season(s)}, Kind: retention.Delete})
	}

	report := ex.Execute(context.Background(), decisions)
	if report.Deleted != 3 {
		t.Fatalf("deleted = %d, want 3", report.Deleted)
	}
	if len(f.purges) != 1 || f.purges[0] != library.ShowKey(7) {
		t.Errorf("purges = %v, want one show purge", f.purges)
	}
}

func TestWholeShowPurgeSkippedWhileSeasonsRemain(t *testing.T) {
	tests := []struct {
		name string
		kind retention.Kind
	}{
		{"held season", retention.HoldSeeding},
		{"kept season", retention.Keep},
		{"leaving soon season", retention.LeavingSoon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeServices{}
			ex := newTestExecutor(Config{Granularity: identity.ByShow}, f, metrics.NewRecorder())
			showIDs := []string{"jf-show-7"}
			decisions := []retention.Decision{
				{Item: library.Item{ID: 7, Type: library.TV, Season: season(1), MediaServerIDs: showIDs}, Kind: retention.Delete},
				{Item: library.Item{ID: 7, Type: library.TV, Season: season(2), MediaServerIDs: showIDs}, Kind: tt.kind},
			}

			report := ex.Execute(context.Background(), decisions)
			if report.Deleted != 1 {
				t.Fatalf("deleted = %d, want 1", report.Deleted)
			}
			if len(f.purges) != 1 || f.purges[0] != library.SeasonKey(7, 1) {
				t.Fatalf("purges = %v, want only season 1", f.purges)
			}
			if f.purgeIDs[0] != nil {
				t.Errorf("season purge passed show ids %v", f.purgeIDs[0])
			}
		})
	}
}

func TestSeasonPurgesAreSeparate(t *testing.T) {
	f := &fakeServices{}
	ex := newTestExecutor(Config{}, f, metrics.NewRecorder())
	decisions := []retention.Decision{
		{Item: library.Item{ID: 7, Type: library.TV, Season: season(1)}, Kind: retention.Delete},
		{Item: library.Item{ID: 7, Type: library.TV, Season: season(2)}, Kind: retention.Delete},
	}
	ex.Execute(context.Background(), decisions)
	if len(f.purges) != 2 {
		t.Errorf("purges = %d, want 2", len(f.purges))
	}
}

func TestCancelledContextFailsRemainingItems(t *testing.T) {
	f := &fakeServices{}
	ex := newTestExecutor(Config{CallTimeout: time.Second}, f, metrics.NewRecorder())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := ex.Execute(ctx, []retention.Decision{deleteDecision(1, 1)})
	if report.Outcomes[0].Status != StatusFailed || f.calls != 0 {
		t.Errorf("cancelled run: status=%s calls=%d", report.Outcomes[0].Status, f.calls)
	}
}

func TestSimulateIgnoresConfiguredMode(t *testing.T) {
	f := &fakeServices{}
	ex := newTestExecutor(Config{}, f, metrics.NewRecorder())
	report := ex.Simulate([]retention.Decision{deleteDecision(1, 1)})
	if !report.DryRun || f.calls != 0 {
		t.Errorf("Simulate made calls or was not a dry run: %+v", report)
	}
}
