package models

import "time"

// Lifecycle intent operations.
const (
	IntentCreate = "create"
	IntentRename = "rename"
	IntentDelete = "delete"
)

// LifecycleIntent is a durable "operation in progress" record written before
// the physical partition is touched and cleared once the operation completes.
// An intent that outlives its operation marks a crash window; the reconciler
// uses it to classify and repair the half-applied state.
type LifecycleIntent struct {
	ID             string    `bson:"_id"`
	TenantID       string    `bson:"tenant_id"`
	Operation      string    `bson:"operation"`
	Name           string    `bson:"name"`
	OldPartitionID string    `bson:"old_partition_id,omitempty"`
	NewPartitionID string    `bson:"new_partition_id,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}
