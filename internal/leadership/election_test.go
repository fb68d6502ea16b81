/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memLease is an in-process lease shared by several elections.
type memLease struct {
	mu       sync.Mutex
	owner    string
	expires  time.Time
	failNext bool
	closed   bool
}

func (m *memLease) Acquire(_ context.Context, _, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return false, errors.New("redis unavailable")
	}
	if m.owner == "" || m.owner == owner || time.Now().After(m.expires) {
		m.owner = owner
		m.expires = time.Now().Add(ttl)
		return true, nil
	}
	return false, nil
}

func (m *memLease) Release(_ context.Context, _, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.owner = ""
	}
	return nil
}

func (m *memLease) Owner(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, nil
}

func (m *memLease) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestOnlyOneLeader(t *testing.T) {
	shared := &memLease{}
	cfg := Config{LeaseDuration: time.Minute}
	a := newElection(shared, Config{LeaseDuration: cfg.LeaseDuration, InstanceID: "a"}, zerolog.Nop())
	b := newElection(shared, Config{LeaseDuration: cfg.LeaseDuration, InstanceID: "b"}, zerolog.Nop())

	ctx := context.Background()
	a.attempt(ctx)
	b.attempt(ctx)
	if !a.IsLeader() || b.IsLeader() {
		t.Fatalf("leaders: a=%v b=%v, want only a", a.IsLeader(), b.IsLeader())
	}
	if owner, _ := b.Leader(ctx); owner != "a" {
		t.Errorf("Leader() = %q, want a", owner)
	}
	if got := <-a.LeaderCh(); !got {
		t.Error("a should have been notified of leadership")
	}

	// Renewal keeps leadership.
	a.attempt(ctx)
	if !a.IsLeader() {
		t.Error("renewal lost leadership")
	}
}

func TestAcquireErrorDropsLeadership(t *testing.T) {
	shared := &memLease{}
	e := newElection(shared, Config{InstanceID: "a"}, zerolog.Nop())
	ctx := context.Background()

	e.attempt(ctx)
	if !e.IsLeader() {
		t.Fatal("expected leadership")
	}
	shared.failNext = true
	e.attempt(ctx)
	if e.IsLeader() {
		t.Error("a failed renewal must drop leadership")
	}
	if got := <-e.LeaderCh(); got {
		t.Error("latest buffered change should be the loss")
	}
}

func TestStopReleasesLease(t *testing.T) {
	shared := &memLease{}
	e := newElection(shared, Config{InstanceID: "a", RenewalInterval: time.Hour}, zerolog.Nop())
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !e.IsLeader() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !e.IsLeader() {
		t.Fatal("election never acquired the free lease")
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if owner, _ := shared.Owner(context.Background(), ""); owner != "" {
		t.Errorf("lease still owned by %q after Stop", owner)
	}
	if !shared.closed {
		t.Error("lease was not closed")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{LeaseDuration: 9 * time.Second, RenewalInterval: 20 * time.Second}
	cfg.applyDefaults()
	if cfg.RenewalInterval != 3*time.Second {
		t.Errorf("renewal = %v, want a third of the lease", cfg.RenewalInterval)
	}
	if cfg.ElectionKey != defaultElectionKey || cfg.InstanceID == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
