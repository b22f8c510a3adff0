/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopfloor"

var (
	// ScheduleComputations counts ComputeSchedule calls by result.
	ScheduleComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_computations_total",
		Help:      "Schedules computed, by result (ok, invalid, unreachable, error).",
	}, []string{"result"})

	// SlotSearchIterations observes how many candidates a slot search tried.
	SlotSearchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "slot_search_iterations",
		Help:      "Candidate starts evaluated per available-slot search.",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
	})

	// SlotSearchDegraded counts searches that hit the iteration cap.
	SlotSearchDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_search_degraded_total",
		Help:      "Slot searches that returned a best-effort candidate after exhausting the iteration cap.",
	})

	// ConflictsDetected counts placements found to overlap, per equipment.
	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_detected_total",
		Help:      "Placements that overlapped an existing job.",
	}, []string{"equipment_id"})

	// CascadeRuns counts cascades by outcome.
	CascadeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cascade_runs_total",
		Help:      "Cascade reschedules by outcome (no_conflict, dry_run, applied, rolled_back).",
	}, []string{"outcome"})

	// CascadeMovedJobs observes the number of downstream jobs shifted per applied cascade.
	CascadeMovedJobs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cascade_moved_jobs",
		Help:      "Downstream jobs moved by one cascade.",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50},
	})

	// CascadeDuration observes wall time spent inside a cascade transaction.
	CascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cascade_duration_seconds",
		Help:      "Time spent resolving and persisting a cascade.",
		Buckets:   prometheus.DefBuckets,
	})

	// CalendarCacheRequests counts calendar cache lookups by result (hit, miss, bypass).
	CalendarCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendar_cache_requests_total",
		Help:      "Calendar capacity lookups through the cache, by result.",
	}, []string{"result"})

	// DatabaseQueryDuration observes gorm statement latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "Database statement latency by operation and table.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed statements.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Database statements that returned an error.",
	}, []string{"operation", "table"})

	// DatabaseConnectionsOpen tracks the connection pool size.
	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections_open",
		Help:      "Open database connections.",
	})

	// APIRequestDuration observes HTTP handler latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "HTTP requests currently being served.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
