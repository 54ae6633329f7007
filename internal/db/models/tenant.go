// Package models - tenant.go defines the master registry's tenant record: the
// single authoritative association between a logical tenant and its physical
// data partition.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tenant is the master record for one tenant. Name is unique across all
// tenants (case-insensitive, enforced by a unique index on NameLower).
// PartitionID is derived from Name at creation and recomputed on rename; it is
// stored rather than recomputed on lookup so historical partition names
// survive if the derivation rule ever changes.
type Tenant struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	NameLower    string             `bson:"name_lower"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	PartitionID  string             `bson:"partition_id"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// TenantProjection is the caller-facing view of a tenant. It never carries the
// credential hash.
type TenantProjection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PartitionID string    `json:"partition_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Projection returns the caller-facing view of the tenant.
func (t *Tenant) Projection() *TenantProjection {
	return &TenantProjection{
		ID:          t.ID.Hex(),
		Name:        t.Name,
		Email:       t.Email,
		PartitionID: t.PartitionID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
