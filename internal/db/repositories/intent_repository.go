// intent_repository.go implements IntentRepository, the durable journal of
// in-progress lifecycle operations. The lifecycle manager records an intent
// before any partition mutation and clears it on completion; the reconciler
// sweeps intents that outlive their operation.
package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tenant-registry/tenant-registry/internal/db/models"
)

const intentCollection = "lifecycle_intents"

// IntentRepository handles database operations for lifecycle intents.
type IntentRepository struct {
	coll *mongo.Collection
}

// NewIntentRepository creates a new intent repository over the given database.
func NewIntentRepository(database *mongo.Database) *IntentRepository {
	return &IntentRepository{coll: database.Collection(intentCollection)}
}

// Record persists an intent.
func (r *IntentRepository) Record(ctx context.Context, intent *models.LifecycleIntent) error {
	if _, err := r.coll.InsertOne(ctx, intent); err != nil {
		return fmt.Errorf("failed to record intent: %w", err)
	}
	return nil
}

// Clear removes an intent by id. Clearing an already-cleared intent is a no-op.
func (r *IntentRepository) Clear(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to clear intent: %w", err)
	}
	return nil
}

// ListOlderThan retrieves intents recorded before the cutoff, oldest first.
// Fresh intents are skipped so the reconciler never races a live operation.
func (r *IntentRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.LifecycleIntent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	defer cursor.Close(ctx)

	intents := make([]*models.LifecycleIntent, 0)
	for cursor.Next(ctx) {
		intent := &models.LifecycleIntent{}
		if err := cursor.Decode(intent); err != nil {
			return nil, fmt.Errorf("failed to decode intent: %w", err)
		}
		intents = append(intents, intent)
	}

	return intents, cursor.Err()
}
