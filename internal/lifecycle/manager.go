// Package lifecycle implements the tenant lifecycle manager: the component
// that keeps a tenant's master record and its physical data partition
// consistent across creation, rename-triggered migration, and deletion.
//
// The two backing stores are not covered by one transaction, so every
// operation follows an explicit ordering rule with a compensation rule:
//
//	create:  registry insert (atomic uniqueness gate) → partition create;
//	         partition failure compensates by deleting the fresh record.
//	rename:  uniqueness precheck → partition rename → registry commit of
//	         name and partition id together; a registry failure after the
//	         physical rename compensates by renaming the partition back.
//	delete:  registry delete → partition drop; a drop failure still reports
//	         success and flags the orphaned partition for cleanup.
//
// A failed compensation is never swallowed: it surfaces as an
// InconsistencyError and increments the inconsistency metric so an operator
// can run reconciliation. Before any partition mutation the manager records a
// durable intent so a crash mid-sequence is detectable afterwards.
//
// Operations on the same tenant are serialized through a keyed mutex;
// operations on different tenants run fully in parallel.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tenant-registry/tenant-registry/internal/db/models"
	"github.com/tenant-registry/tenant-registry/internal/telemetry"
)

// Registry is the master tenant record store. Find methods return (nil, nil)
// when the record is absent; Insert and Update return ErrDuplicateName when
// the name uniqueness constraint would be violated.
type Registry interface {
	Insert(ctx context.Context, t *models.Tenant) error
	FindByID(ctx context.Context, id string) (*models.Tenant, error)
	FindByName(ctx context.Context, normalizedName string) (*models.Tenant, error)
	Update(ctx context.Context, id string, fields UpdateFields) (*models.Tenant, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PartitionStore creates, renames, and drops named physical partitions. It
// has no concept of tenants.
type PartitionStore interface {
	Create(ctx context.Context, id string) error
	Rename(ctx context.Context, oldID, newID string) error
	Drop(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// IntentJournal persists in-progress lifecycle operations so crash windows
// are detectable. Clear is best-effort: a stale intent over a consistent
// tenant is harmless and swept later.
type IntentJournal interface {
	Record(ctx context.Context, intent *models.LifecycleIntent) error
	Clear(ctx context.Context, id string) error
}

// UpdateFields is a partial update of a tenant record. Nil means unchanged.
// Name, NameLower, and PartitionID always change together (rename commit).
type UpdateFields struct {
	Name           *string
	NameLower      *string
	Email          *string
	CredentialHash *string
	PartitionID    *string
}

// UpdateParams carries the caller-requested changes into Update. The
// credential arrives pre-hashed; the manager never sees plaintext.
type UpdateParams struct {
	Name           *string
	Email          *string
	CredentialHash *string
}

// Manager orchestrates the registry and the partition store.
type Manager struct {
	registry Registry
	parts    PartitionStore
	intents  IntentJournal
	locks    *keyedMutex
}

// NewManager creates a lifecycle manager over the given stores.
func NewManager(registry Registry, parts PartitionStore, intents IntentJournal) *Manager {
	return &Manager{
		registry: registry,
		parts:    parts,
		intents:  intents,
		locks:    newKeyedMutex(),
	}
}

// Create provisions a tenant: a master record plus its physical partition.
//
// The registry insert runs first because its unique index is the cheap,
// authoritative uniqueness gate — a duplicate name aborts before any
// partition exists, so the common failure path can never orphan a partition.
func (m *Manager) Create(ctx context.Context, name, email, credentialHash string) (*models.Tenant, error) {
	normalized := NormalizeName(name)
	release := m.locks.acquire("name:" + normalized)
	defer release()

	now := time.Now().UTC()
	tenant := &models.Tenant{
		Name:         name,
		NameLower:    normalized,
		Email:        NormalizeName(email),
		PasswordHash: credentialHash,
		PartitionID:  PartitionFor(name),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.registry.Insert(ctx, tenant); err != nil {
		if isKind(err, ErrDuplicateName) {
			telemetry.LifecycleOperationsTotal.WithLabelValues("create", "rejected").Inc()
			return nil, ErrDuplicateName
		}
		telemetry.LifecycleOperationsTotal.WithLabelValues("create", "failed").Inc()
		return nil, unavailable(err)
	}

	tenantID := tenant.ID.Hex()
	intentID := m.recordIntent(ctx, &models.LifecycleIntent{
		TenantID:       tenantID,
		Operation:      models.IntentCreate,
		Name:           name,
		NewPartitionID: tenant.PartitionID,
	})

	// The partition store has not been touched yet, but from here the
	// operation must run to completion or explicit compensation even if the
	// caller disconnects.
	opCtx := context.WithoutCancel(ctx)

	if err := m.parts.Create(opCtx, tenant.PartitionID); err != nil {
		telemetry.LifecycleOperationsTotal.WithLabelValues("create", "failed").Inc()
		return nil, m.compensateCreate(opCtx, tenant, intentID, err)
	}

	m.clearIntent(opCtx, intentID)
	telemetry.LifecycleOperationsTotal.WithLabelValues("create", "ok").Inc()
	slog.Info("tenant created", "tenant_id", tenantID, "name", name, "partition_id", tenant.PartitionID)
	return tenant, nil
}

// compensateCreate undoes the registry insert after partition creation failed.
// If the compensating delete itself fails, the registry points at a partition
// that does not exist — a fatal inconsistency reported distinctly, never retried.
func (m *Manager) compensateCreate(ctx context.Context, tenant *models.Tenant, intentID string, cause error) error {
	tenantID := tenant.ID.Hex()
	if _, err := m.registry.Delete(ctx, tenantID); err != nil {
		telemetry.InconsistenciesTotal.WithLabelValues("create").Inc()
		incErr := &InconsistencyError{
			Operation: "create",
			Step:      "compensate_delete_record",
			TenantID:  tenantID,
			Name:      tenant.Name,
			Err:       err,
		}
		slog.Error("create compensation failed, registry record points at missing partition",
			"tenant_id", tenantID, "name", tenant.Name, "partition_id", tenant.PartitionID,
			"cause", cause, "compensation_error", err)
		return incErr
	}

	telemetry.CompensationsTotal.WithLabelValues("create").Inc()
	m.clearIntent(ctx, intentID)
	slog.Warn("tenant create rolled back after partition failure",
		"tenant_id", tenantID, "name", tenant.Name, "error", cause)
	return unavailable(fmt.Errorf("creating partition %s: %w", tenant.PartitionID, cause))
}

// GetByName resolves a tenant by its (case-insensitive) name.
func (m *Manager) GetByName(ctx context.Context, name string) (*models.Tenant, error) {
	tenant, err := m.registry.FindByName(ctx, NormalizeName(name))
	if err != nil {
		return nil, unavailable(err)
	}
	if tenant == nil {
		return nil, ErrNotFound
	}
	return tenant, nil
}

// Update applies a partial update. A name change whose derived partition id
// differs from the stored one triggers a partition migration: the physical
// rename happens first, and only after it succeeds are the record's name and
// partition id committed together. A crash between the two leaves the data
// reachable at the predictably derived new name, and the stale record is
// caught by reconciliation.
func (m *Manager) Update(ctx context.Context, tenantID string, params UpdateParams) (*models.Tenant, error) {
	release := m.locks.acquire("tenant:" + tenantID)
	defer release()

	current, err := m.registry.FindByID(ctx, tenantID)
	if err != nil {
		return nil, unavailable(err)
	}
	if current == nil {
		return nil, ErrNotFound
	}

	fields := UpdateFields{
		Email:          normalizedEmail(params.Email),
		CredentialHash: params.CredentialHash,
	}

	renaming := false
	newPartitionID := current.PartitionID
	if params.Name != nil && *params.Name != current.Name {
		newName := *params.Name
		newNormalized := NormalizeName(newName)

		if newNormalized != current.NameLower {
			// Precheck so the common duplicate case aborts before any
			// partition mutation. The unique index remains the authority at
			// commit time; a race loser is handled by rename compensation.
			existing, err := m.registry.FindByName(ctx, newNormalized)
			if err != nil {
				return nil, unavailable(err)
			}
			if existing != nil {
				telemetry.LifecycleOperationsTotal.WithLabelValues("rename", "rejected").Inc()
				return nil, ErrDuplicateName
			}
		}

		fields.Name = &newName
		fields.NameLower = &newNormalized
		newPartitionID = PartitionFor(newName)
		if newPartitionID != current.PartitionID {
			renaming = true
			fields.PartitionID = &newPartitionID
		}
	}

	if !renaming {
		updated, err := m.registry.Update(ctx, tenantID, fields)
		if err != nil {
			if isKind(err, ErrDuplicateName) {
				return nil, ErrDuplicateName
			}
			telemetry.LifecycleOperationsTotal.WithLabelValues("update", "failed").Inc()
			return nil, unavailable(err)
		}
		if updated == nil {
			return nil, ErrNotFound
		}
		telemetry.LifecycleOperationsTotal.WithLabelValues("update", "ok").Inc()
		return updated, nil
	}

	return m.renameAndCommit(ctx, current, fields, newPartitionID)
}

// renameAndCommit performs the partition migration half of Update: physical
// rename first, registry commit second.
func (m *Manager) renameAndCommit(ctx context.Context, current *models.Tenant, fields UpdateFields, newPartitionID string) (*models.Tenant, error) {
	tenantID := current.ID.Hex()
	intentID := m.recordIntent(ctx, &models.LifecycleIntent{
		TenantID:       tenantID,
		Operation:      models.IntentRename,
		Name:           *fields.Name,
		OldPartitionID: current.PartitionID,
		NewPartitionID: newPartitionID,
	})

	opCtx := context.WithoutCancel(ctx)

	if err := m.parts.Rename(opCtx, current.PartitionID, newPartitionID); err != nil {
		// Abort before touching the registry: the tenant keeps its old name
		// and partition, a safe no-op from the caller's perspective.
		m.clearIntent(opCtx, intentID)
		telemetry.LifecycleOperationsTotal.WithLabelValues("rename", "failed").Inc()
		if isKind(err, ErrPartitionNotFound) {
			// The record references a partition that does not exist: an
			// inconsistency that predates this request.
			telemetry.InconsistenciesTotal.WithLabelValues("rename").Inc()
			return nil, &InconsistencyError{
				Operation: "rename",
				Step:      "rename_partition",
				TenantID:  tenantID,
				Name:      current.Name,
				Err:       err,
			}
		}
		return nil, unavailable(fmt.Errorf("renaming partition %s to %s: %w", current.PartitionID, newPartitionID, err))
	}

	updated, err := m.registry.Update(opCtx, tenantID, fields)
	if err == nil && updated == nil {
		err = ErrNotFound // deleted concurrently between lock release windows
	}
	if err != nil {
		// The partition already moved but the registry still names the old
		// one — the single window where invariant I1 can break. Compensate by
		// renaming the partition back; if that also fails, escalate.
		if backErr := m.parts.Rename(opCtx, newPartitionID, current.PartitionID); backErr != nil {
			telemetry.InconsistenciesTotal.WithLabelValues("rename").Inc()
			telemetry.LifecycleOperationsTotal.WithLabelValues("rename", "failed").Inc()
			incErr := &InconsistencyError{
				Operation: "rename",
				Step:      "compensate_rename_back",
				TenantID:  tenantID,
				Name:      current.Name,
				Err:       backErr,
			}
			slog.Error("rename compensation failed, registry names old partition but data moved",
				"tenant_id", tenantID, "name", current.Name,
				"old_partition_id", current.PartitionID, "new_partition_id", newPartitionID,
				"cause", err, "compensation_error", backErr)
			// Intent deliberately left in place for the reconciler.
			return nil, incErr
		}
		telemetry.CompensationsTotal.WithLabelValues("rename").Inc()
		m.clearIntent(opCtx, intentID)
		telemetry.LifecycleOperationsTotal.WithLabelValues("rename", "failed").Inc()
		if isKind(err, ErrDuplicateName) {
			return nil, ErrDuplicateName
		}
		if isKind(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}

	m.clearIntent(opCtx, intentID)
	telemetry.LifecycleOperationsTotal.WithLabelValues("rename", "ok").Inc()
	slog.Info("tenant renamed", "tenant_id", tenantID,
		"old_name", current.Name, "new_name", updated.Name,
		"old_partition_id", current.PartitionID, "new_partition_id", updated.PartitionID)
	return updated, nil
}

// Delete removes the registry record first, then drops the partition. Once
// the record is gone the tenant is logically gone; a failed drop is flagged
// as an orphaned partition, not surfaced as an operation failure — a dangling
// registry entry is user-visible, a dangling partition is storage hygiene.
func (m *Manager) Delete(ctx context.Context, tenantID string) error {
	release := m.locks.acquire("tenant:" + tenantID)
	defer release()

	current, err := m.registry.FindByID(ctx, tenantID)
	if err != nil {
		return unavailable(err)
	}
	if current == nil {
		return ErrNotFound
	}

	intentID := m.recordIntent(ctx, &models.LifecycleIntent{
		TenantID:       tenantID,
		Operation:      models.IntentDelete,
		Name:           current.Name,
		OldPartitionID: current.PartitionID,
	})

	deleted, err := m.registry.Delete(ctx, tenantID)
	if err != nil {
		m.clearIntent(ctx, intentID)
		telemetry.LifecycleOperationsTotal.WithLabelValues("delete", "failed").Inc()
		return unavailable(err)
	}
	if !deleted {
		m.clearIntent(ctx, intentID)
		return ErrNotFound
	}

	opCtx := context.WithoutCancel(ctx)

	if err := m.parts.Drop(opCtx, current.PartitionID); err != nil && !isKind(err, ErrPartitionNotFound) {
		// Logical deletion already committed; report success but flag the
		// orphan. The intent is left behind so the reconciler retries the drop.
		telemetry.OrphanedPartitionsFlagged.Inc()
		telemetry.LifecycleOperationsTotal.WithLabelValues("delete", "ok").Inc()
		slog.Warn("partition drop failed after registry delete, orphan flagged for reconciliation",
			"tenant_id", tenantID, "name", current.Name, "partition_id", current.PartitionID, "error", err)
		return nil
	}

	m.clearIntent(opCtx, intentID)
	telemetry.LifecycleOperationsTotal.WithLabelValues("delete", "ok").Inc()
	slog.Info("tenant deleted", "tenant_id", tenantID, "name", current.Name, "partition_id", current.PartitionID)
	return nil
}

// recordIntent persists a durable in-progress marker. A journal write failure
// is logged but does not abort the operation: the intent only narrows the
// reconciler's search window, it is not a correctness requirement.
func (m *Manager) recordIntent(ctx context.Context, intent *models.LifecycleIntent) string {
	intent.ID = uuid.New().String()
	intent.CreatedAt = time.Now().UTC()
	if err := m.intents.Record(ctx, intent); err != nil {
		slog.Warn("failed to record lifecycle intent",
			"operation", intent.Operation, "tenant_id", intent.TenantID, "error", err)
	}
	return intent.ID
}

func (m *Manager) clearIntent(ctx context.Context, id string) {
	if err := m.intents.Clear(ctx, id); err != nil {
		slog.Warn("failed to clear lifecycle intent", "intent_id", id, "error", err)
	}
}

func normalizedEmail(email *string) *string {
	if email == nil {
		return nil
	}
	e := NormalizeName(*email)
	return &e
}

// isKind reports whether err matches the given taxonomy sentinel.
func isKind(err, kind error) bool {
	return err != nil && errors.Is(err, kind)
}
