/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every janitor metric. It is private so tests and embedded
// use never collide with the default registry.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// API metrics
var (
	APIRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_api_requests_total",
		Help: "Total API requests by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "janitor_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = factory.NewGauge(prometheus.GaugeOpts{
		Name: "janitor_api_active_connections",
		Help: "In-flight API requests.",
	})
)

// Scheduler metrics
var (
	SchedulerTicksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_scheduler_ticks_total",
		Help: "Retention ticks by trigger and result.",
	}, []string{"trigger", "result"})

	SchedulerErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_scheduler_errors_total",
		Help: "Tick stage failures.",
	}, []string{"stage"})

	SchedulerTickDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "janitor_scheduler_tick_duration_seconds",
		Help:    "Duration of a full retention tick.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	SchedulerLastTickTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "janitor_scheduler_last_tick_timestamp_seconds",
		Help: "Unix time the last tick finished.",
	})

	SchedulerSkippedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_scheduler_skipped_total",
		Help: "Ticks skipped because another one held the lock.",
	}, []string{"reason"})
)

// Decision and cleanup metrics
var (
	DecisionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_decisions_total",
		Help: "Retention decisions by media type and kind.",
	}, []string{"media_type", "kind"})

	CleanupItemsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_cleanup_items_total",
		Help: "Cleanup outcomes by media type and status.",
	}, []string{"media_type", "status"})

	CleanupBytesFreedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_cleanup_bytes_freed_total",
		Help: "Bytes freed by deletions.",
	}, []string{"media_type"})

	CollaboratorErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_collaborator_errors_total",
		Help: "Failed calls to external services.",
	}, []string{"service", "op"})

	DiskFreePercent = factory.NewGauge(prometheus.GaugeOpts{
		Name: "janitor_disk_free_percent",
		Help: "Free space of the library filesystem at the last tick.",
	})

	WebhookDeliveriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_webhook_deliveries_total",
		Help: "Webhook deliveries by event and result.",
	}, []string{"event", "result"})
)

// Cluster and database metrics
var (
	LeaderElectionStatus = factory.NewGauge(prometheus.GaugeOpts{
		Name: "janitor_leader_election_status",
		Help: "1 when this instance is the leader.",
	})

	LeaderElectionChanges = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_leader_election_changes_total",
		Help: "Leadership transitions observed by this instance.",
	}, []string{"transition"})

	DatabaseConnectionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "janitor_database_connections_active",
		Help: "Open database connections.",
	})

	DatabaseQueryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "janitor_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_database_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
