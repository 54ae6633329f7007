package jobs

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tenant-registry/tenant-registry/internal/config"
	"github.com/tenant-registry/tenant-registry/internal/db/models"
	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
)

type stubTenants struct {
	tenants []*models.Tenant
}

func (s *stubTenants) List(context.Context) ([]*models.Tenant, error) {
	return s.tenants, nil
}

func (s *stubTenants) FindByID(_ context.Context, id string) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.ID.Hex() == id {
			return t, nil
		}
	}
	return nil, nil
}

type stubIntents struct {
	intents []*models.LifecycleIntent
	cleared []string
}

func (s *stubIntents) ListOlderThan(context.Context, time.Time) ([]*models.LifecycleIntent, error) {
	return s.intents, nil
}

func (s *stubIntents) Clear(_ context.Context, id string) error {
	s.cleared = append(s.cleared, id)
	return nil
}

type stubPartitions struct {
	ids     map[string]bool
	created []string
	dropped []string
}

func newStubPartitions(ids ...string) *stubPartitions {
	p := &stubPartitions{ids: make(map[string]bool)}
	for _, id := range ids {
		p.ids[id] = true
	}
	return p
}

func (p *stubPartitions) Exists(_ context.Context, id string) (bool, error) {
	return p.ids[id], nil
}

func (p *stubPartitions) Create(_ context.Context, id string) error {
	p.ids[id] = true
	p.created = append(p.created, id)
	return nil
}

func (p *stubPartitions) Drop(_ context.Context, id string) error {
	delete(p.ids, id)
	p.dropped = append(p.dropped, id)
	return nil
}

func (p *stubPartitions) List(context.Context) ([]string, error) {
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	return out, nil
}

func tenantRecord(name string) *models.Tenant {
	return &models.Tenant{
		ID:          primitive.NewObjectID(),
		Name:        name,
		NameLower:   lifecycle.NormalizeName(name),
		PartitionID: lifecycle.PartitionFor(name),
	}
}

func defaultCfg() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		Enabled:        true,
		Interval:       time.Minute,
		StaleIntentAge: time.Minute,
	}
}

func TestRunOnce_ConsistentStateProducesNoChanges(t *testing.T) {
	tenant := tenantRecord("Acme Corp")
	parts := newStubPartitions(tenant.PartitionID)
	intents := &stubIntents{}

	r := NewReconciler(&stubTenants{tenants: []*models.Tenant{tenant}}, intents, parts, defaultCfg())
	r.RunOnce(context.Background())

	if len(parts.created) != 0 || len(parts.dropped) != 0 {
		t.Errorf("consistent state must not mutate partitions: created=%v dropped=%v", parts.created, parts.dropped)
	}
	if len(intents.cleared) != 0 {
		t.Errorf("no intents should be cleared, got %v", intents.cleared)
	}
}

func TestRunOnce_MissingPartitionRepairedOnlyWhenEnabled(t *testing.T) {
	tenant := tenantRecord("Acme Corp")

	parts := newStubPartitions() // partition absent
	r := NewReconciler(&stubTenants{tenants: []*models.Tenant{tenant}}, &stubIntents{}, parts, defaultCfg())
	r.RunOnce(context.Background())
	if len(parts.created) != 0 {
		t.Errorf("repair disabled: partition must not be recreated, got %v", parts.created)
	}

	cfg := defaultCfg()
	cfg.RepairMissing = true
	parts = newStubPartitions()
	r = NewReconciler(&stubTenants{tenants: []*models.Tenant{tenant}}, &stubIntents{}, parts, cfg)
	r.RunOnce(context.Background())
	if len(parts.created) != 1 || parts.created[0] != tenant.PartitionID {
		t.Errorf("repair enabled: expected recreation of %s, got %v", tenant.PartitionID, parts.created)
	}
}

func TestRunOnce_StaleDeleteIntentReplaysDrop(t *testing.T) {
	orphaned := lifecycle.PartitionFor("Ghost Corp")
	parts := newStubPartitions(orphaned)
	intents := &stubIntents{intents: []*models.LifecycleIntent{{
		ID:             "intent-1",
		TenantID:       primitive.NewObjectID().Hex(), // record already deleted
		Operation:      models.IntentDelete,
		Name:           "Ghost Corp",
		OldPartitionID: orphaned,
	}}}

	r := NewReconciler(&stubTenants{}, intents, parts, defaultCfg())
	r.RunOnce(context.Background())

	if len(parts.dropped) != 1 || parts.dropped[0] != orphaned {
		t.Fatalf("expected replayed drop of %s, got %v", orphaned, parts.dropped)
	}
	if len(intents.cleared) != 1 || intents.cleared[0] != "intent-1" {
		t.Errorf("expected intent-1 cleared after replay, got %v", intents.cleared)
	}
}

func TestRunOnce_StaleCreateIntentOverConsistentTenantIsCleared(t *testing.T) {
	tenant := tenantRecord("Acme Corp")
	parts := newStubPartitions(tenant.PartitionID)
	intents := &stubIntents{intents: []*models.LifecycleIntent{{
		ID:             "intent-2",
		TenantID:       tenant.ID.Hex(),
		Operation:      models.IntentCreate,
		Name:           tenant.Name,
		NewPartitionID: tenant.PartitionID,
	}}}

	r := NewReconciler(&stubTenants{tenants: []*models.Tenant{tenant}}, intents, parts, defaultCfg())
	r.RunOnce(context.Background())

	if len(intents.cleared) != 1 || intents.cleared[0] != "intent-2" {
		t.Errorf("expected stale intent over consistent tenant to be cleared, got %v", intents.cleared)
	}
	if len(parts.dropped) != 0 {
		t.Errorf("no partitions should be dropped, got %v", parts.dropped)
	}
}

func TestRunOnce_StaleRenameIntentOverDriftedTenantIsNotCleared(t *testing.T) {
	// The record still names the old partition but the data moved: the window
	// where a rename crashed between the physical rename and the commit.
	tenant := tenantRecord("Acme Corp")
	newPartition := lifecycle.PartitionFor("Acme Corporation")
	parts := newStubPartitions(newPartition) // old partition gone
	intents := &stubIntents{intents: []*models.LifecycleIntent{{
		ID:             "intent-3",
		TenantID:       tenant.ID.Hex(),
		Operation:      models.IntentRename,
		Name:           "Acme Corporation",
		OldPartitionID: tenant.PartitionID,
		NewPartitionID: newPartition,
	}}}

	r := NewReconciler(&stubTenants{tenants: []*models.Tenant{tenant}}, intents, parts, defaultCfg())
	r.RunOnce(context.Background())

	if len(intents.cleared) != 0 {
		t.Errorf("drifted rename intent must stay for an operator, got cleared=%v", intents.cleared)
	}
}

func TestStartStop(t *testing.T) {
	r := NewReconciler(&stubTenants{}, &stubIntents{}, newStubPartitions(), defaultCfg())
	r.Start(context.Background())
	r.Stop() // must not hang or panic
}
