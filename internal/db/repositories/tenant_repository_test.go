package repositories

import (
	"context"
	"testing"

	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
)

// Lookups by malformed object ids must behave like a miss, not an error: the
// lifecycle manager maps a (nil, nil) find to NotFound, which is the right
// answer for an id that can never exist. These paths return before any
// network call, so they are testable without a running server.

func TestFindByID_MalformedIDIsAMiss(t *testing.T) {
	r := &TenantRepository{}

	tenant, err := r.FindByID(context.Background(), "not-a-hex-object-id")
	if err != nil {
		t.Fatalf("expected no error for malformed id, got %v", err)
	}
	if tenant != nil {
		t.Errorf("expected nil tenant for malformed id, got %+v", tenant)
	}
}

func TestDelete_MalformedIDIsAMiss(t *testing.T) {
	r := &TenantRepository{}

	deleted, err := r.Delete(context.Background(), "12345")
	if err != nil {
		t.Fatalf("expected no error for malformed id, got %v", err)
	}
	if deleted {
		t.Error("malformed id must never report a deletion")
	}
}

func TestUpdate_MalformedIDIsAMiss(t *testing.T) {
	r := &TenantRepository{}

	tenant, err := r.Update(context.Background(), "zzzz", lifecycle.UpdateFields{})
	if err != nil {
		t.Fatalf("expected no error for malformed id, got %v", err)
	}
	if tenant != nil {
		t.Errorf("expected nil tenant for malformed id, got %+v", tenant)
	}
}
