/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/identity"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	LogLevel    string

	// PolicyFile is the YAML file holding the retention schedules.
	PolicyFile string
	// RulesFile, when set, is imported into the rule store at start-up.
	RulesFile string
	MaxRules  int

	// Tick scheduling. TickCron takes precedence over TickInterval.
	TickInterval time.Duration
	TickCron     string
	RunOnStart   bool
	DryRun       bool
	LockFile     string

	// Analysis
	LibraryPath      string // filesystem whose free space drives disk pressure
	FileSystemAccess bool   // enables the original-path seeding check
	DownloadRoot     string
	WholeTVShow      bool
	AnalysisWorkers  int

	// Cleanup
	CleanupParallelism  int
	CleanupRatePerSec   float64
	CollaboratorTimeout time.Duration

	// Tick report archive. S3 is used when a bucket is configured.
	ReportDir         string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3UsePathStyle    bool

	// AuditRetention bounds how long tick runs are kept. Zero keeps them forever.
	AuditRetention time.Duration

	// API access. Both empty leaves the API open.
	JWTSecret string
	APIKeys   string

	// Event relay
	NATSURL           string
	NATSToken         string
	NATSSubjectPrefix string

	// Webhook relay. Empty WebhookURLs disables it.
	WebhookURLs    []string
	WebhookSecret  string
	WebhookEvents  string
	WebhookTimeout time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
// Invalid settings are reported as faults.ConfigurationError.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"JANITOR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"JANITOR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"JANITOR_HTTP_PORT", "SERVER_PORT"}, 8978),
		DBBackend:   DatabaseBackend(strings.ToLower(getEnvAny([]string{"JANITOR_DB_BACKEND"}, string(DatabaseSQLite)))),
		DBDSN:       getEnvAny([]string{"JANITOR_DB_DSN"}, "janitor.db"),
		LogLevel:    getEnvAny([]string{"JANITOR_LOG_LEVEL"}, "info"),

		PolicyFile: getEnvAny([]string{"JANITOR_POLICY_FILE"}, "janitor.yaml"),
		RulesFile:  getEnvAny([]string{"JANITOR_RULES_FILE"}, ""),
		MaxRules:   getEnvIntAny([]string{"JANITOR_MAX_RULES"}, 100),

		TickInterval: getEnvDurationAny([]string{"JANITOR_TICK_INTERVAL"}, 24*time.Hour),
		TickCron:     getEnvAny([]string{"JANITOR_TICK_CRON"}, ""),
		RunOnStart:   getEnvBoolAny([]string{"JANITOR_RUN_ON_START"}, false),
		DryRun:       getEnvBoolAny([]string{"JANITOR_DRY_RUN", "APPLICATION_DRY_RUN"}, true),
		LockFile:     getEnvAny([]string{"JANITOR_LOCK_FILE"}, filepath.Join(os.TempDir(), "janitor.lock")),

		LibraryPath:      getEnvAny([]string{"JANITOR_LIBRARY_PATH"}, "/data/media"),
		FileSystemAccess: getEnvBoolAny([]string{"JANITOR_FILE_SYSTEM_ACCESS", "FILE_SYSTEM_ACCESS"}, false),
		DownloadRoot:     getEnvAny([]string{"JANITOR_DOWNLOAD_ROOT"}, ""),
		WholeTVShow:      getEnvBoolAny([]string{"JANITOR_WHOLE_TV_SHOW", "WHOLE_TV_SHOW"}, false),
		AnalysisWorkers:  getEnvIntAny([]string{"JANITOR_ANALYSIS_WORKERS"}, 8),

		CleanupParallelism:  getEnvIntAny([]string{"JANITOR_CLEANUP_PARALLELISM"}, 2),
		CleanupRatePerSec:   getEnvFloatAny([]string{"JANITOR_CLEANUP_RATE"}, 5),
		CollaboratorTimeout: getEnvDurationAny([]string{"JANITOR_COLLABORATOR_TIMEOUT"}, 30*time.Second),

		ReportDir:         getEnvAny([]string{"JANITOR_REPORT_DIR"}, "./reports"),
		S3AccessKeyID:     getEnvAny([]string{"JANITOR_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"JANITOR_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"JANITOR_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"JANITOR_S3_BUCKET"}, ""),
		S3Prefix:          getEnvAny([]string{"JANITOR_S3_PREFIX"}, "janitor"),
		S3Endpoint:        getEnvAny([]string{"JANITOR_S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"JANITOR_S3_USE_PATH_STYLE"}, false),

		AuditRetention: getEnvDurationAny([]string{"JANITOR_AUDIT_RETENTION"}, 90*24*time.Hour),

		JWTSecret: getEnvAny([]string{"JANITOR_JWT_SECRET"}, ""),
		APIKeys:   getEnvAny([]string{"JANITOR_API_KEYS"}, ""),

		NATSURL:           getEnvAny([]string{"JANITOR_NATS_URL"}, ""),
		NATSToken:         getEnvAny([]string{"JANITOR_NATS_TOKEN"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"JANITOR_NATS_SUBJECT_PREFIX"}, "janitor.events"),

		WebhookURLs:    splitList(getEnvAny([]string{"JANITOR_WEBHOOK_URLS"}, "")),
		WebhookSecret:  getEnvAny([]string{"JANITOR_WEBHOOK_SECRET"}, ""),
		WebhookEvents:  getEnvAny([]string{"JANITOR_WEBHOOK_EVENTS"}, ""),
		WebhookTimeout: getEnvDurationAny([]string{"JANITOR_WEBHOOK_TIMEOUT"}, 10*time.Second),

		TracingEnabled:    getEnvBoolAny([]string{"JANITOR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"JANITOR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"JANITOR_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"JANITOR_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"JANITOR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"JANITOR_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"JANITOR_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"JANITOR_INSTANCE_ID"}, ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return faults.Configf("JANITOR_DB_BACKEND", "unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return faults.Configf("JANITOR_DB_DSN", "must be provided")
	}
	if c.TickCron == "" && c.TickInterval <= 0 {
		return faults.Configf("JANITOR_TICK_INTERVAL", "must be positive when no cron is set")
	}
	if c.AnalysisWorkers <= 0 {
		return faults.Configf("JANITOR_ANALYSIS_WORKERS", "must be positive")
	}
	if c.CleanupParallelism <= 0 {
		return faults.Configf("JANITOR_CLEANUP_PARALLELISM", "must be positive")
	}
	if c.CleanupRatePerSec < 0 {
		return faults.Configf("JANITOR_CLEANUP_RATE", "must not be negative")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return faults.Configf("JANITOR_TRACING_SAMPLE_RATE", "must be between 0 and 1")
	}
	for _, u := range c.WebhookURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return faults.Configf("JANITOR_WEBHOOK_URLS", "invalid url %q", u)
		}
	}
	if c.AuditRetention < 0 {
		return faults.Configf("JANITOR_AUDIT_RETENTION", "must not be negative")
	}
	if strings.EqualFold(c.Environment, "production") && c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return faults.Configf("JANITOR_JWT_SECRET", "must be at least 32 characters in production")
	}
	if strings.EqualFold(c.Environment, "production") && c.S3Bucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey == "" {
		return faults.Configf("JANITOR_S3_SECRET_ACCESS_KEY", "required when an access key id is set")
	}
	return nil
}

// Granularity is the identity granularity implied by the whole-show setting.
func (c *Config) Granularity() identity.Granularity {
	if c.WholeTVShow {
		return identity.ByShow
	}
	return identity.BySeason
}

// HTTPAddr is the listen address of the management API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"APPLICATION_DRY_RUN": "use JANITOR_DRY_RUN",
		"FILE_SYSTEM_ACCESS":  "use JANITOR_FILE_SYSTEM_ACCESS",
		"WHOLE_TV_SHOW":       "use JANITOR_WHOLE_TV_SHOW",
		"SERVER_PORT":         "use JANITOR_HTTP_PORT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("36h") and whole seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
