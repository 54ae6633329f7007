// Package telemetry provides application-level observability for the tenant registry.
//
// All metrics are registered against the default Prometheus registry and served
// on a side-channel HTTP port started by cmd/server (default 9090, configured
// with TNR_TELEMETRY_METRICS_PROMETHEUS_PORT). The endpoint is GET /metrics and
// is deliberately not part of the Gin router so it cannot be reached through
// the public ingress or rate-limiting path.
//
// Metric groups:
//
//   - HTTP request counters and latency histograms (labelled by route template,
//     not raw URL, to keep label cardinality bounded)
//   - Tenant lifecycle operation counters {operation, outcome}
//   - Compensation and inconsistency counters — an inconsistency increment means
//     a compensation step itself failed and an operator should run reconciliation
//   - Reconciler finding counters {kind}
//   - Mongo connection pool gauges (polled every 30 s)
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	// HTTPRequestsTotal counts processed HTTP requests by method, Gin route
	// template, and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration is a latency histogram by method and route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// LifecycleOperationsTotal counts lifecycle operations by operation
	// (create, rename, update, delete) and outcome (ok, rejected, failed).
	// Rejected means a precondition failure with zero side effects; failed
	// means a mid-sequence failure that triggered compensation.
	LifecycleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_lifecycle_operations_total",
			Help: "Total tenant lifecycle operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// CompensationsTotal counts compensation steps that ran, by operation.
	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_lifecycle_compensations_total",
			Help: "Total compensation (undo) steps executed after a mid-sequence failure, by operation.",
		},
		[]string{"operation"},
	)

	// InconsistenciesTotal counts failed compensations — registry and partition
	// store are known to disagree until reconciliation repairs them.
	InconsistenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_lifecycle_inconsistencies_total",
			Help: "Total detected registry/partition inconsistencies requiring reconciliation, by operation.",
		},
		[]string{"operation"},
	)

	// ReconcilerFindingsTotal counts what the background sweep discovered, by
	// kind: drifted_partition_id, missing_partition, orphaned_partition,
	// stale_intent, repaired.
	ReconcilerFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_reconciler_findings_total",
			Help: "Total findings of the registry/partition reconciliation sweep, by kind.",
		},
		[]string{"kind"},
	)

	// OrphanedPartitionsFlagged counts delete operations whose partition drop
	// failed after the registry record was already removed.
	OrphanedPartitionsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_orphaned_partitions_flagged_total",
			Help: "Total partitions left behind by deletes whose physical drop failed.",
		},
	)

	mongoPingUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mongo_up",
			Help: "1 if the last periodic ping of the document store succeeded, 0 otherwise.",
		},
	)

	mongoPingDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mongo_ping_duration_seconds",
			Help: "Duration of the last periodic document store ping.",
		},
	)
)

// StartMongoHealthCollector starts a goroutine that pings the document store
// every 30 seconds and exports the result as mongo_up / mongo_ping_duration_seconds.
// The goroutine exits when ctx is cancelled.
func StartMongoHealthCollector(ctx context.Context, client *mongo.Client) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				start := time.Now()
				err := client.Ping(pingCtx, readpref.Primary())
				cancel()
				mongoPingDuration.Set(time.Since(start).Seconds())
				if err != nil {
					mongoPingUp.Set(0)
					slog.Warn("document store ping failed", "error", err)
				} else {
					mongoPingUp.Set(1)
				}
			}
		}
	}()
}
