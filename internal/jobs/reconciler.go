// Package jobs contains background workers that run on a schedule.
// The reconciler periodically compares the tenant registry against the
// partition store and flags (or, where safe, repairs) divergence left behind
// by crashes between lifecycle steps. Sweeps are idempotent — re-running
// after a crash produces the same result as a clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tenant-registry/tenant-registry/internal/config"
	"github.com/tenant-registry/tenant-registry/internal/db/models"
	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
	"github.com/tenant-registry/tenant-registry/internal/telemetry"
)

// Finding kinds reported by the sweep, used as the metric label.
const (
	FindingDriftedPartitionID = "drifted_partition_id"
	FindingMissingPartition   = "missing_partition"
	FindingOrphanedPartition  = "orphaned_partition"
	FindingStaleIntent        = "stale_intent"
	FindingRepairedPartition  = "repaired_partition"
	FindingReplayedDelete     = "replayed_delete"
)

// TenantSource is the registry view the reconciler needs.
type TenantSource interface {
	List(ctx context.Context) ([]*models.Tenant, error)
	FindByID(ctx context.Context, id string) (*models.Tenant, error)
}

// IntentSource is the journal view the reconciler needs.
type IntentSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.LifecycleIntent, error)
	Clear(ctx context.Context, id string) error
}

// PartitionInventory is the partition store view the reconciler needs.
type PartitionInventory interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, id string) error
	Drop(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Reconciler is the background consistency sweep.
type Reconciler struct {
	tenants TenantSource
	intents IntentSource
	parts   PartitionInventory
	cfg     config.ReconcilerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(tenants TenantSource, intents IntentSource, parts PartitionInventory, cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		tenants: tenants,
		intents: intents,
		parts:   parts,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the periodic sweep. The first sweep runs immediately.
func (r *Reconciler) Start(ctx context.Context) {
	slog.Info("starting reconciler", "interval", r.cfg.Interval, "repair_missing", r.cfg.RepairMissing)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-r.stopCh:
				slog.Info("reconciler stopped")
				return
			case <-ctx.Done():
				slog.Info("reconciler context cancelled")
				return
			}
		}
	}()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// RunOnce performs a single full sweep: stale intents first (they may drop or
// clear state the record checks would otherwise misreport), then per-record
// checks, then the orphan scan.
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.sweepStaleIntents(ctx)

	records, err := r.tenants.List(ctx)
	if err != nil {
		slog.Error("reconciler: failed to list tenants", "error", err)
		return
	}

	referenced := make(map[string]bool, len(records))
	for _, tenant := range records {
		referenced[tenant.PartitionID] = true
		r.checkRecord(ctx, tenant)
	}

	r.sweepOrphans(ctx, referenced)
}

// checkRecord verifies a single registry record against the derivation rule
// and partition existence.
func (r *Reconciler) checkRecord(ctx context.Context, tenant *models.Tenant) {
	tenantID := tenant.ID.Hex()

	if derived := lifecycle.PartitionFor(tenant.Name); tenant.PartitionID != derived {
		// The record survived a crash between a partition rename and the registry
		// commit, or was mutated out of band. Flag only: picking which side is
		// right needs an operator.
		r.report(FindingDriftedPartitionID,
			"tenant_id", tenantID, "name", tenant.Name,
			"partition_id", tenant.PartitionID, "derived", derived)
		return
	}

	exists, err := r.parts.Exists(ctx, tenant.PartitionID)
	if err != nil {
		slog.Error("reconciler: partition check failed", "tenant_id", tenantID, "error", err)
		return
	}
	if exists {
		return
	}

	r.report(FindingMissingPartition,
		"tenant_id", tenantID, "name", tenant.Name, "partition_id", tenant.PartitionID)

	if r.cfg.RepairMissing {
		if err := r.parts.Create(ctx, tenant.PartitionID); err != nil {
			slog.Error("reconciler: failed to recreate partition",
				"tenant_id", tenantID, "partition_id", tenant.PartitionID, "error", err)
			return
		}
		r.report(FindingRepairedPartition,
			"tenant_id", tenantID, "partition_id", tenant.PartitionID)
	}
}

// sweepOrphans flags partitions no registry record points at.
func (r *Reconciler) sweepOrphans(ctx context.Context, referenced map[string]bool) {
	partitions, err := r.parts.List(ctx)
	if err != nil {
		slog.Error("reconciler: failed to list partitions", "error", err)
		return
	}

	for _, id := range partitions {
		if !referenced[id] {
			r.report(FindingOrphanedPartition, "partition_id", id)
		}
	}
}

// sweepStaleIntents handles journal entries older than the configured age.
// A delete intent is replayed (the drop is idempotent and the record is
// already gone). Create and rename intents over a consistent tenant are
// cleared; anything else is flagged for an operator.
func (r *Reconciler) sweepStaleIntents(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.cfg.StaleIntentAge)
	stale, err := r.intents.ListOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("reconciler: failed to list intents", "error", err)
		return
	}

	for _, intent := range stale {
		switch intent.Operation {
		case models.IntentDelete:
			r.replayDelete(ctx, intent)
		case models.IntentCreate, models.IntentRename:
			r.resolveMutationIntent(ctx, intent)
		default:
			r.report(FindingStaleIntent, "intent_id", intent.ID, "operation", intent.Operation)
		}
	}
}

// replayDelete retries the partition drop of a delete whose logical half
// already committed.
func (r *Reconciler) replayDelete(ctx context.Context, intent *models.LifecycleIntent) {
	tenant, err := r.tenants.FindByID(ctx, intent.TenantID)
	if err != nil {
		slog.Error("reconciler: intent lookup failed", "intent_id", intent.ID, "error", err)
		return
	}
	if tenant != nil {
		// Record still present: the delete never committed, so nothing to replay.
		r.clearIntent(ctx, intent.ID)
		return
	}

	exists, err := r.parts.Exists(ctx, intent.OldPartitionID)
	if err != nil {
		slog.Error("reconciler: partition check failed", "intent_id", intent.ID, "error", err)
		return
	}
	if exists {
		if err := r.parts.Drop(ctx, intent.OldPartitionID); err != nil {
			slog.Error("reconciler: replayed drop failed",
				"intent_id", intent.ID, "partition_id", intent.OldPartitionID, "error", err)
			return
		}
		r.report(FindingReplayedDelete,
			"tenant_id", intent.TenantID, "partition_id", intent.OldPartitionID)
	}
	r.clearIntent(ctx, intent.ID)
}

// resolveMutationIntent clears a create or rename intent when the tenant it
// covers is consistent, and flags it otherwise.
func (r *Reconciler) resolveMutationIntent(ctx context.Context, intent *models.LifecycleIntent) {
	tenant, err := r.tenants.FindByID(ctx, intent.TenantID)
	if err != nil {
		slog.Error("reconciler: intent lookup failed", "intent_id", intent.ID, "error", err)
		return
	}

	if tenant == nil {
		if intent.Operation == models.IntentCreate {
			// Create was compensated (or never committed); any partition the
			// intent names and nobody references shows up in the orphan scan.
			r.clearIntent(ctx, intent.ID)
			return
		}
		r.report(FindingStaleIntent,
			"intent_id", intent.ID, "operation", intent.Operation, "tenant_id", intent.TenantID)
		return
	}

	exists, err := r.parts.Exists(ctx, tenant.PartitionID)
	if err != nil {
		slog.Error("reconciler: partition check failed", "intent_id", intent.ID, "error", err)
		return
	}
	if exists && tenant.PartitionID == lifecycle.PartitionFor(tenant.Name) {
		r.clearIntent(ctx, intent.ID)
		return
	}

	r.report(FindingStaleIntent,
		"intent_id", intent.ID, "operation", intent.Operation, "tenant_id", intent.TenantID)
}

func (r *Reconciler) clearIntent(ctx context.Context, id string) {
	if err := r.intents.Clear(ctx, id); err != nil {
		slog.Error("reconciler: failed to clear intent", "intent_id", id, "error", err)
	}
}

// report logs a finding and counts it.
func (r *Reconciler) report(kind string, args ...any) {
	telemetry.ReconcilerFindingsTotal.WithLabelValues(kind).Inc()
	slog.Warn("reconciler finding", append([]any{"kind", kind}, args...)...)
}
