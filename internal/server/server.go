/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the janitor services together and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/janitor/internal/api"
	"github.com/friendsincode/janitor/internal/audit"
	"github.com/friendsincode/janitor/internal/auth"
	"github.com/friendsincode/janitor/internal/cleanup"
	"github.com/friendsincode/janitor/internal/config"
	"github.com/friendsincode/janitor/internal/db"
	"github.com/friendsincode/janitor/internal/eventbus"
	"github.com/friendsincode/janitor/internal/events"
	"github.com/friendsincode/janitor/internal/identity"
	"github.com/friendsincode/janitor/internal/leadership"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/logbuffer"
	"github.com/friendsincode/janitor/internal/metrics"
	"github.com/friendsincode/janitor/internal/rules"
	"github.com/friendsincode/janitor/internal/scheduler"
	"github.com/friendsincode/janitor/internal/seeding"
	"github.com/friendsincode/janitor/internal/services"
	"github.com/friendsincode/janitor/internal/storage"
	"github.com/friendsincode/janitor/internal/telemetry"
	"github.com/friendsincode/janitor/internal/version"
	"github.com/friendsincode/janitor/internal/webhooks"
)

const (
	dbMetricsInterval = 15 * time.Second
	auditPruneEvery   = 24 * time.Hour
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db                   *gorm.DB
	logBuffer            *logbuffer.Buffer
	bus                  *events.Bus
	publisher            events.Publisher
	ruleStore            *rules.Store
	auditSvc             *audit.Service
	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler
	webhooks             *webhooks.Service
	api                  *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)

	if logBuf == nil {
		logBuf = logbuffer.New(0)
	}
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
		bus:       events.NewBus(),
	}

	if err := srv.initTracing(); err != nil {
		srv.Close()
		return nil, err
	}
	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.api.Routes(srv.router)
	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Manual ticks and the event stream hold responses open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) initTracing() error {
	tp, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "janitor",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return nil
}

func (s *Server) initDependencies() error {
	retention, err := config.LoadPolicy(s.cfg.PolicyFile)
	if err != nil {
		return err
	}

	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	s.ruleStore = rules.NewStore(database, s.cfg.MaxRules, s.logger)
	if s.cfg.RulesFile != "" {
		n, err := ImportRules(context.Background(), s.ruleStore, s.cfg.RulesFile)
		if err != nil {
			return err
		}
		s.logger.Info().Int("rules", n).Str("file", s.cfg.RulesFile).Msg("rules imported")
	}

	s.publisher = s.bus
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		natsCfg.SubjectPrefix = s.cfg.NATSSubjectPrefix
		natsBus, err := eventbus.NewNATSBus(natsCfg, s.bus, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats unavailable, events stay in-process")
		} else {
			s.publisher = natsBus
			s.DeferClose(natsBus.Close)
		}
	}

	if len(s.cfg.WebhookURLs) > 0 {
		s.webhooks = webhooks.NewService(webhooks.Config{
			URLs:    s.cfg.WebhookURLs,
			Secret:  s.cfg.WebhookSecret,
			Events:  webhooks.ParseEvents(s.cfg.WebhookEvents),
			Timeout: s.cfg.WebhookTimeout,
		}, s.bus, s.logger)
	}

	store, err := s.reportStore()
	if err != nil {
		return err
	}
	s.auditSvc = audit.NewService(database, store, s.logger)

	provider := library.NewProvider(s.logger)
	for _, mt := range library.MediaTypes {
		provider.Register(mt, library.NewInventory(database, mt))
	}

	// Service clients live outside this module; without them the tick
	// runs against no-op collaborators.
	mediaServer := services.NewNoop("media-server", s.logger)
	requests := services.NewNoop("request-tracker", s.logger)
	mover := services.NewNoop("mover", s.logger)

	var signal seeding.Signal = seeding.Never{}
	if s.cfg.FileSystemAccess {
		signal = seeding.NewFileSystem(s.cfg.DownloadRoot)
	}

	recorder := metrics.NewRecorder()
	executor := cleanup.NewExecutor(cleanup.Config{
		Parallelism:   s.cfg.CleanupParallelism,
		RatePerSecond: s.cfg.CleanupRatePerSec,
		Burst:         s.cfg.CleanupParallelism,
		CallTimeout:   s.cfg.CollaboratorTimeout,
		Granularity:   s.cfg.Granularity(),
	}, provider, requests, mediaServer, recorder, s.logger)

	disk := scheduler.FilesystemProbe{Path: s.cfg.LibraryPath}
	evaluator := rules.NewEvaluator(s.logger)

	s.scheduler, err = scheduler.New(scheduler.Deps{
		Library:     provider,
		Correlator:  identity.NewCorrelator(mediaServer, mediaServer, s.cfg.Granularity(), s.cfg.AnalysisWorkers, s.logger),
		Rules:       s.ruleStore,
		Evaluator:   evaluator,
		Retention:   retention,
		Seeding:     seeding.NewChecker(signal, s.logger),
		MediaServer: mediaServer,
		Tags:        library.NewTagStore(database),
		Mover:       mover,
		Executor:    executor,
		Disk:        disk,
		Recorder:    s.auditSvc,
		Bus:         s.publisher,
	}, scheduler.Options{
		Cron:       s.cfg.TickCron,
		Interval:   s.cfg.TickInterval,
		RunOnStart: s.cfg.RunOnStart,
		DryRun:     s.cfg.DryRun,
		LockFile:   s.cfg.LockFile,
		Workers:    s.cfg.AnalysisWorkers,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	isLeader := func() bool { return true }
	if s.cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.Config{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			InstanceID:    s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
		s.DeferClose(s.leaderAwareScheduler.Stop)
		isLeader = s.leaderAwareScheduler.IsLeader
		s.logger.Info().
			Str("instance_id", election.InstanceID()).
			Str("redis_addr", s.cfg.RedisAddr).
			Msg("leader election enabled for scheduler")
	}

	keys, err := auth.ParseKeyring(s.cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("JANITOR_API_KEYS: %w", err)
	}
	authn := auth.NewAuthenticator([]byte(s.cfg.JWTSecret), keys)
	if !authn.Enabled() {
		s.logger.Warn().Msg("management API has no credentials configured and is open")
	}

	s.api = api.New(api.Deps{
		DB:        database,
		Ticker:    s.scheduler,
		Rules:     s.ruleStore,
		Evaluator: evaluator,
		Library:   provider,
		Disk:      disk,
		Runs:      s.auditSvc,
		Recorder:  recorder,
		Logs:      s.logBuffer,
		Bus:       s.bus,
		Auth:      authn,
		IsLeader:  isLeader,
	}, s.logger)
	return nil
}

// reportStore picks the tick report archive: S3 when a bucket is set,
// otherwise a local directory.
func (s *Server) reportStore() (storage.ObjectStore, error) {
	if s.cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(context.Background(), storage.S3Config{
			Bucket:    s.cfg.S3Bucket,
			Prefix:    s.cfg.S3Prefix,
			Region:    s.cfg.S3Region,
			Endpoint:  s.cfg.S3Endpoint,
			AccessKey: s.cfg.S3AccessKeyID,
			SecretKey: s.cfg.S3SecretAccessKey,
			PathStyle: s.cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 report store: %w", err)
		}
		s.logger.Info().Str("bucket", s.cfg.S3Bucket).Msg("tick reports archived to s3")
		return store, nil
	}
	if s.cfg.ReportDir == "" {
		return nil, nil
	}
	store, err := storage.NewFileStore(s.cfg.ReportDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ImportRules stores every rule of a YAML rules file, replacing rules with
// the same id.
func ImportRules(ctx context.Context, store *rules.Store, path string) (int, error) {
	parsed, err := rules.LoadFile(path)
	if err != nil {
		return 0, err
	}
	for i := range parsed {
		if err := store.Save(ctx, &parsed[i]); err != nil {
			return i, fmt.Errorf("import rule %q: %w", parsed[i].Name, err)
		}
	}
	return len(parsed), nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Scheduler exposes the tick service for one-shot runs.
func (s *Server) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Start launches background workers and begins serving HTTP.
func (s *Server) Start() error {
	s.startBackgroundWorkers()
	s.logger.Info().Str("addr", s.httpServer.Addr).Bool("dry_run", s.cfg.DryRun).Msg("janitor listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops HTTP and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	} else if s.scheduler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler loop exited")
			}
		}()
	}

	if s.webhooks != nil {
		s.webhooks.Start(ctx)
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.databaseMetricsLoop(ctx)
	}()

	if s.auditSvc != nil && s.cfg.AuditRetention > 0 {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditPruneLoop(ctx)
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	if s.webhooks != nil {
		s.webhooks.Wait()
	}
	s.bgCancel = nil
}

func (s *Server) databaseMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(dbMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdateConnectionMetrics(s.db)
		}
	}
}

func (s *Server) auditPruneLoop(ctx context.Context) {
	prune := func() {
		cutoff := time.Now().Add(-s.cfg.AuditRetention)
		if _, err := s.auditSvc.Prune(ctx, cutoff); err != nil {
			s.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("prune tick runs failed")
		}
	}
	prune()

	ticker := time.NewTicker(auditPruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
