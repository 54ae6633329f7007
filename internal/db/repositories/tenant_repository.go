// tenant_repository.go implements TenantRepository, the MongoDB-backed master
// record store for tenants. The unique index on name_lower is the atomic
// uniqueness gate the lifecycle manager relies on.
package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tenant-registry/tenant-registry/internal/db/models"
	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
)

const tenantCollection = "tenants"

// TenantRepository handles database operations for tenant master records.
type TenantRepository struct {
	coll *mongo.Collection
}

// NewTenantRepository creates a new tenant repository over the given database.
func NewTenantRepository(database *mongo.Database) *TenantRepository {
	return &TenantRepository{coll: database.Collection(tenantCollection)}
}

// EnsureIndexes creates the unique name_lower index and the email lookup
// index. Safe to call on every startup; Mongo treats it as a no-op when the
// indexes already exist.
func (r *TenantRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_lower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_name_lower"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_email"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create tenant indexes: %w", err)
	}
	return nil
}

// Insert stores a new tenant record. A name_lower collision surfaces as
// lifecycle.ErrDuplicateName via the unique index, which makes the insert an
// atomic insert-if-absent.
func (r *TenantRepository) Insert(ctx context.Context, t *models.Tenant) error {
	t.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return lifecycle.ErrDuplicateName
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// FindByID retrieves a tenant by its hex object id. Returns (nil, nil) when
// the record is absent or the id is not a valid object id.
func (r *TenantRepository) FindByID(ctx context.Context, id string) (*models.Tenant, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil // Not found
	}

	tenant := &models.Tenant{}
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(tenant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// FindByName retrieves a tenant by its normalized (lowercased) name.
func (r *TenantRepository) FindByName(ctx context.Context, normalizedName string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := r.coll.FindOne(ctx, bson.M{"name_lower": normalizedName}).Decode(tenant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// FindByEmail retrieves a tenant by its admin email.
func (r *TenantRepository) FindByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(tenant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// Update applies a partial update and returns the post-update record. Nil
// fields are left untouched; updated_at is always refreshed. Returns
// (nil, nil) when no record matches the id.
func (r *TenantRepository) Update(ctx context.Context, id string, fields lifecycle.UpdateFields) (*models.Tenant, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil // Not found
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if fields.Name != nil {
		set["name"] = *fields.Name
	}
	if fields.NameLower != nil {
		set["name_lower"] = *fields.NameLower
	}
	if fields.Email != nil {
		set["email"] = *fields.Email
	}
	if fields.CredentialHash != nil {
		set["password_hash"] = *fields.CredentialHash
	}
	if fields.PartitionID != nil {
		set["partition_id"] = *fields.PartitionID
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	tenant := &models.Tenant{}
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(tenant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Not found
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, lifecycle.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	return tenant, nil
}

// Delete removes a tenant record. The bool reports whether a record was
// actually removed, so callers can distinguish deletion from a miss.
func (r *TenantRepository) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, fmt.Errorf("failed to delete tenant: %w", err)
	}

	return res.DeletedCount > 0, nil
}

// List retrieves all tenant records ordered by creation time. Used by the
// reconciler to sweep the full registry.
func (r *TenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer cursor.Close(ctx)

	tenants := make([]*models.Tenant, 0)
	for cursor.Next(ctx) {
		tenant := &models.Tenant{}
		if err := cursor.Decode(tenant); err != nil {
			return nil, fmt.Errorf("failed to decode tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	return tenants, cursor.Err()
}

// Count returns the total number of tenant records.
func (r *TenantRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	return count, nil
}
