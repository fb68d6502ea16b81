/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/cleanup"
	"github.com/friendsincode/janitor/internal/config"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/retention"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/seeding"
)

const testPolicy = `
leaving_soon: 10d
media:
  movies:
    expiration: 30d
`

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return testNow.Add(-time.Duration(n) * 24 * time.Hour) }

type fakeSource struct {
	mu      sync.Mutex
	items   []library.Item
	err     error
	removed []int
}

func (f *fakeSource) ListItems(context.Context) ([]library.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]library.Item(nil), f.items...), nil
}

func (f *fakeSource) RemoveItems(_ context.Context, items []library.Item) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.removed = append(f.removed, it.ID)
	}
	return len(items), nil
}

type fakeMediaServer struct {
	mu      sync.Mutex
	flagged map[bool][]int
	purged  int
}

func (f *fakeMediaServer) LookupServerIDs(context.Context, library.MediaType, []library.Item, identity.Granularity) (map[library.LookupKey][]string, error) {
	return map[library.LookupKey][]string{}, nil
}

func (f *fakeMediaServer) FlagLeavingSoon(_ context.Context, _ library.MediaType, items []library.Item, holdOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagged == nil {
		f.flagged = map[bool][]int{}
	}
	for _, it := range items {
		f.flagged[holdOnly] = append(f.flagged[holdOnly], it.ID)
	}
	return nil
}

func (f *fakeMediaServer) Purge(context.Context, library.MediaType, library.LookupKey, []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged++
	return nil
}

type fakeRules struct {
	rules []rules.Rule
	err   error
}

func (f fakeRules) LoadEnabled(context.Context) ([]rules.Rule, error) { return f.rules, f.err }

type fakeTags struct {
	mu    sync.Mutex
	added []int
}

func (f *fakeTags) AddTag(_ context.Context, item library.Item, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, item.ID)
	return nil
}

func (f *fakeTags) RemoveTag(context.Context, library.Item, string) error { return nil }

type seedingIDs map[int]bool

func (s seedingIDs) IsSeeding(_ context.Context, item *library.Item) (bool, error) {
	return s[item.ID], nil
}

type fixedDisk struct {
	free float64
	err  error
}

func (d fixedDisk) FreePercent(context.Context) (float64, error) { return d.free, d.err }

type runCapture struct {
	mu   sync.Mutex
	runs []*audit.Run
}

func (r *runCapture) Record(_ context.Context, run *audit.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = "run-" + string(rune('a'+len(r.runs)))
	r.runs = append(r.runs, run)
	return nil
}

type harness struct {
	svc      *Service
	source   *fakeSource
	server   *fakeMediaServer
	tags     *fakeTags
	recorder *runCapture
	bus      *events.Bus
}

func catalogue() []library.Item {
	return []library.Item{
		{ID: 1, Title: "Fresh", ImportedAt: daysAgo(1)},
		{ID: 2, Title: "Leaving", ImportedAt: daysAgo(25)},
		{ID: 3, Title: "Expired", ImportedAt: daysAgo(40), SizeBytes: 1000},
		{ID: 4, Title: "Seeding", ImportedAt: daysAgo(40)},
		{ID: 5, Title: "Kept", ImportedAt: daysAgo(40), Tags: []string{config.DefaultExclusionTag}},
	}
}

func newHarness(t *testing.T, ruleSrc rules.Source, opts Options) *harness {
	t.Helper()
	logger := zerolog.Nop()

	ret, err := config.ParsePolicy([]byte(testPolicy))
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}

	h := &harness{
		source:   &fakeSource{items: catalogue()},
		server:   &fakeMediaServer{},
		tags:     &fakeTags{},
		recorder: &runCapture{},
		bus:      events.NewBus(),
	}
	provider := library.NewProvider(logger)
	provider.Register(library.Movies, h.source)

	exec := cleanup.NewExecutor(cleanup.Config{Parallelism: 2}, provider, nil, h.server, metrics.NewRecorder(), logger)

	svc, err := New(Deps{
		Library:     provider,
		Correlator:  identity.NewCorrelator(h.server, nil, identity.BySeason, 2, logger),
		Rules:       ruleSrc,
		Retention:   ret,
		Seeding:     seeding.NewChecker(seedingIDs{4: true}, logger),
		MediaServer: h.server,
		Tags:        h.tags,
		Executor:    exec,
		Disk:        fixedDisk{free: 50},
		Recorder:    h.recorder,
		Bus:         h.bus,
	}, opts, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc.now = func() time.Time { return testNow }
	h.svc = svc
	return h
}

func kinds(run *audit.Run) map[int]retention.Kind {
	out := map[int]retention.Kind{}
	for _, d := range run.Decisions {
		out[d.Item.ID] = d.Kind
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "interval default", opts: Options{}},
		{name: "valid cron", opts: Options{Cron: "0 3 * * *"}},
		{name: "invalid cron", opts: Options{Cron: "every night"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(Deps{Library: library.NewProvider(zerolog.Nop())}, tt.opts, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.opts.Cron == "" && svc.opts.Interval != 24*time.Hour {
				t.Errorf("interval = %v", svc.opts.Interval)
			}
		})
	}
}

func TestRunOnceDecisionsAndCleanup(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, false)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := map[int]retention.Kind{
		1: retention.Keep,
		2: retention.LeavingSoon,
		3: retention.Delete,
		4: retention.HoldSeeding,
		5: retention.Keep,
	}
	got := kinds(run)
	for id, kind := range want {
		if got[id] != kind {
			t.Errorf("item %d = %s, want %s", id, got[id], kind)
		}
	}

	if len(h.source.removed) != 1 || h.source.removed[0] != 3 {
		t.Errorf("removed = %v, want [3]", h.source.removed)
	}
	if run.Cleanup.Deleted != 1 || run.Cleanup.BytesFreed != 1000 {
		t.Errorf("cleanup report = %+v", run.Cleanup)
	}
	if got := h.server.flagged[false]; len(got) != 1 || got[0] != 2 {
		t.Errorf("leaving soon flagged = %v", got)
	}
	if got := h.server.flagged[true]; len(got) != 1 || got[0] != 4 {
		t.Errorf("hold flagged = %v", got)
	}
	if len(h.recorder.runs) != 1 || run.ID == "" {
		t.Fatalf("run not recorded: %+v", h.recorder.runs)
	}
	if h.svc.LastRun() != run {
		t.Error("LastRun() does not return the finished run")
	}
}

func TestRunOnceDryRunMakesNoCleanupCalls(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, true)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(h.source.removed) != 0 || h.server.purged != 0 {
		t.Fatalf("dry run removed %v, purged %d", h.source.removed, h.server.purged)
	}
	if !run.DryRun || !run.Cleanup.DryRun {
		t.Errorf("run not marked dry: %+v", run)
	}
	if kinds(run)[3] != retention.Delete {
		t.Error("dry run should still report the DELETE decision")
	}
}

func TestRuleLoadFailureKeepsEverything(t *testing.T) {
	h := newHarness(t, fakeRules{err: errors.New("database locked")}, Options{})

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, false)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	for _, d := range run.Decisions {
		if d.Kind != retention.Keep || d.Source != "unresolved" {
			t.Errorf("item %d = %s from %s, want unresolved KEEP", d.Item.ID, d.Kind, d.Source)
		}
	}
	if len(h.source.removed) != 0 {
		t.Errorf("removed = %v, want none", h.source.removed)
	}
	if len(run.Errors) == 0 {
		t.Error("rule failure not reported on the run")
	}
}

func TestSnapshotFailureSkipsType(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})
	h.source.err = errors.New("manager down")

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, false)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(run.Decisions) != 0 || len(run.Errors) == 0 {
		t.Errorf("decisions = %d, errors = %v", len(run.Decisions), run.Errors)
	}
	if len(h.server.flagged) != 0 {
		t.Errorf("flagged with no snapshot: %v", h.server.flagged)
	}
}

func TestExclusionRuleOverridesExpiry(t *testing.T) {
	keepAll := rules.Rule{
		ID:      "r1",
		Name:    "keep everything",
		Enabled: true,
		Logic:   rules.LogicAnd,
		Actions: []rules.Action{{Type: rules.ActionAddToExclusion, Reason: "archive"}},
	}
	h := newHarness(t, fakeRules{rules: []rules.Rule{keepAll}}, Options{})

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, false)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	for _, d := range run.Decisions {
		if d.Kind != retention.Keep {
			t.Errorf("item %d = %s, want KEEP", d.Item.ID, d.Kind)
		}
	}
	if len(h.source.removed) != 0 {
		t.Errorf("removed = %v", h.source.removed)
	}
}

func TestOnlyScheduledLiveTicksAdvanceRuleWindow(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})
	ctx := context.Background()

	steps := []struct {
		trigger string
		dryRun  bool
		at      time.Time
		want    time.Time
	}{
		{TriggerManual, false, testNow, time.Time{}},
		{TriggerInterval, true, testNow.Add(time.Hour), time.Time{}},
		{TriggerInterval, false, testNow.Add(2 * time.Hour), testNow.Add(2 * time.Hour)},
		{TriggerManual, true, testNow.Add(3 * time.Hour), testNow.Add(2 * time.Hour)},
		{TriggerCron, false, testNow.Add(4 * time.Hour), testNow.Add(4 * time.Hour)},
	}
	for i, step := range steps {
		at := step.at
		h.svc.now = func() time.Time { return at }
		if _, err := h.svc.RunOnce(ctx, step.trigger, step.dryRun); err != nil {
			t.Fatalf("step %d RunOnce() error = %v", i, err)
		}
		if got := h.svc.since(); !got.Equal(step.want) {
			t.Errorf("step %d (%s, dry_run=%v): since = %v, want %v", i, step.trigger, step.dryRun, got, step.want)
		}
	}
}

func TestTagActionsSkipDeletedItemsAndDryRun(t *testing.T) {
	tagAll := rules.Rule{
		ID:      "r1",
		Name:    "tag everything",
		Enabled: true,
		Logic:   rules.LogicAnd,
		Actions: []rules.Action{{Type: rules.ActionAddTag, Tag: "reviewed"}},
	}
	h := newHarness(t, fakeRules{rules: []rules.Rule{tagAll}}, Options{})

	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, true); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(h.tags.added) != 0 {
		t.Fatalf("dry run tagged %v", h.tags.added)
	}

	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, false); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	got := append([]int(nil), h.tags.added...)
	sort.Ints(got)
	want := []int{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("tagged = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tagged = %v, want %v", got, want)
		}
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})
	h.svc.running.Lock()
	defer h.svc.running.Unlock()

	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, false); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("RunOnce() error = %v, want ErrTickInProgress", err)
	}
}

func TestRunOnceRespectsLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "janitor.lock")
	h := newHarness(t, fakeRules{}, Options{LockFile: path})

	other := flock.New(path)
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v", locked, err)
	}
	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, false); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("RunOnce() error = %v, want ErrTickInProgress", err)
	}
	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, false); err != nil {
		t.Fatalf("RunOnce() after unlock error = %v", err)
	}
}

func TestTickEvents(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})
	completed := h.bus.Subscribe(events.EventTickCompleted)
	deleted := h.bus.Subscribe(events.EventItemDeleted)

	if _, err := h.svc.RunOnce(context.Background(), TriggerManual, false); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	select {
	case p := <-deleted:
		if p["item_id"] != 3 {
			t.Errorf("deleted payload = %v", p)
		}
	default:
		t.Error("no media.deleted event")
	}
	select {
	case p := <-completed:
		if p["delete"] != 1 || p["run_id"] == "" {
			t.Errorf("completed payload = %v", p)
		}
	default:
		t.Error("no tick.completed event")
	}
}

func TestUnknownDiskUsesLenientWindow(t *testing.T) {
	h := newHarness(t, fakeRules{}, Options{})
	h.svc.deps.Disk = fixedDisk{err: errors.New("statfs failed")}

	run, err := h.svc.RunOnce(context.Background(), TriggerManual, true)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if kinds(run)[3] != retention.Delete {
		t.Error("fixed expiration should not depend on disk readings")
	}
}

type fakeLeader struct {
	ch     chan bool
	leader bool
}

func (f *fakeLeader) Start(context.Context) error { return nil }
func (f *fakeLeader) Stop() error                 { return nil }
func (f *fakeLeader) IsLeader() bool              { return f.leader }
func (f *fakeLeader) LeaderCh() <-chan bool       { return f.ch }

type blockingRunner struct {
	started chan struct{}
}

func (r blockingRunner) Run(ctx context.Context) error {
	r.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	leader := &fakeLeader{ch: make(chan bool)}
	runner := blockingRunner{started: make(chan struct{}, 1)}
	las := NewLeaderAware(runner, leader, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := las.Start(ctx); err != nil {
		t.Fatal(err)
	}

	leader.ch <- true
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler not started on leadership")
	}
	if !las.Running() {
		t.Error("Running() = false while leading")
	}

	leader.ch <- false
	deadline := time.Now().Add(2 * time.Second)
	for las.Running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after leadership loss")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := las.Stop(); err != nil {
		t.Fatal(err)
	}
}
