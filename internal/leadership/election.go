/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one janitor instance to run retention ticks.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/janitor/internal/telemetry"
)

const (
	defaultElectionKey     = "janitor:leader:ticks"
	defaultLeaseDuration   = 30 * time.Second
	defaultRenewalInterval = 10 * time.Second
)

// renewScript extends the lease only while the caller still owns it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`)

// releaseScript deletes the lease only while the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Config configures leader election.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the current leader's instance id.
	ElectionKey string
	// LeaseDuration is how long leadership lasts without renewal.
	LeaseDuration time.Duration
	// RenewalInterval is how often the lease is acquired or renewed.
	RenewalInterval time.Duration
	InstanceID      string
}

func (c *Config) applyDefaults() {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 || c.RenewalInterval >= c.LeaseDuration {
		c.RenewalInterval = c.LeaseDuration / 3
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
}

// lease is the shared lock the election campaigns for.
type lease interface {
	// Acquire takes the lease or renews it when owner already holds it.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
	Owner(ctx context.Context, key string) (string, error)
	Close() error
}

type redisLease struct {
	client redis.UniversalClient
}

func (l *redisLease) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, l.client, []string{key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (l *redisLease) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (l *redisLease) Owner(ctx context.Context, key string) (string, error) {
	owner, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return owner, nil
}

func (l *redisLease) Close() error { return l.client.Close() }

// Election campaigns for a Redis lease and reports leadership changes.
type Election struct {
	lease  lease
	cfg    Config
	logger zerolog.Logger

	leader   atomic.Bool
	leaderCh chan bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewElection connects to Redis and prepares an election.
func NewElection(cfg Config, logger zerolog.Logger) (*Election, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return newElection(&redisLease{client: client}, cfg, logger), nil
}

func newElection(l lease, cfg Config, logger zerolog.Logger) *Election {
	cfg.applyDefaults()
	return &Election{
		lease:    l,
		cfg:      cfg,
		logger:   logger.With().Str("component", "leader_election").Str("instance_id", cfg.InstanceID).Logger(),
		leaderCh: make(chan bool, 1),
		done:     make(chan struct{}),
	}
}

// InstanceID identifies this instance in the election.
func (e *Election) InstanceID() string { return e.cfg.InstanceID }

// Start campaigns in the background until ctx ends or Stop is called.
func (e *Election) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().Dur("lease", e.cfg.LeaseDuration).Msg("starting leader election")
	go e.campaign(ctx)
	return nil
}

// Stop ends the campaign and releases the lease if held.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}
		if e.leader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := e.lease.Release(ctx, e.cfg.ElectionKey, e.cfg.InstanceID); rerr != nil {
				e.logger.Error().Err(rerr).Msg("failed to release leadership")
			}
			e.setLeader(false)
		}
		err = e.lease.Close()
	})
	return err
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool { return e.leader.Load() }

// LeaderCh delivers leadership changes. Only the latest change is buffered.
func (e *Election) LeaderCh() <-chan bool { return e.leaderCh }

// Leader returns the instance id holding the lease, or "" when nobody does.
func (e *Election) Leader(ctx context.Context) (string, error) {
	return e.lease.Owner(ctx, e.cfg.ElectionKey)
}

func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)
	e.attempt(ctx)

	ticker := time.NewTicker(e.cfg.RenewalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	acquired, err := e.lease.Acquire(ctx, e.cfg.ElectionKey, e.cfg.InstanceID, e.cfg.LeaseDuration)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("leadership attempt failed")
		acquired = false
	}
	e.setLeader(acquired)
}

func (e *Election) setLeader(leader bool) {
	if e.leader.Swap(leader) == leader {
		return
	}
	if leader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderElectionStatus.Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues("acquired").Inc()
	} else {
		e.logger.Warn().Msg("lost leadership")
		telemetry.LeaderElectionStatus.Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues("lost").Inc()
	}
	// Replace a stale buffered value so the reader always sees the latest state.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- leader:
	default:
	}
}
