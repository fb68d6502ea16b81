/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Leader reports cluster leadership. leadership.Election satisfies it.
type Leader interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// Runner is the loop a LeaderAwareScheduler starts and stops.
type Runner interface {
	Run(ctx context.Context) error
}

// LeaderAwareScheduler runs the scheduler loop only while this instance leads.
type LeaderAwareScheduler struct {
	runner   Runner
	election Leader
	logger   zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderAware wraps runner with leadership gating.
func NewLeaderAware(runner Runner, election Leader, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		runner:   runner,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start joins the election and follows leadership changes until ctx ends.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.mu.Lock()
	las.ctx = ctx
	las.mu.Unlock()

	if err := las.election.Start(ctx); err != nil {
		return err
	}
	las.logger.Info().Msg("leader-aware scheduler started")
	go las.monitor(ctx)
	return nil
}

// Stop halts the loop and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")
	las.stopRunner()
	return las.election.Stop()
}

// IsLeader reports whether this instance runs ticks.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}

// Running reports whether the scheduler loop is active.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.done != nil
}

func (las *LeaderAwareScheduler) monitor(ctx context.Context) {
	if las.election.IsLeader() {
		las.startRunner()
	}
	leaderCh := las.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			las.stopRunner()
			return
		case isLeader, ok := <-leaderCh:
			if !ok {
				las.stopRunner()
				return
			}
			if isLeader {
				las.logger.Info().Msg("became leader, starting scheduler")
				las.startRunner()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping scheduler")
				las.stopRunner()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startRunner() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	done := make(chan struct{})
	las.cancel = cancel
	las.done = done

	go func() {
		defer close(done)
		if err := las.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("scheduler error")
		}
	}()
}

// stopRunner cancels the loop and waits for the current tick to return.
func (las *LeaderAwareScheduler) stopRunner() {
	las.mu.Lock()
	cancel, done := las.cancel, las.done
	las.cancel, las.done = nil, nil
	las.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	las.logger.Info().Msg("scheduler stopped")
}
