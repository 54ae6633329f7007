// Package partition implements the physical partition store on MongoDB: each
// tenant's data lives in its own collection inside a shared database. The
// store deals purely in partition ids; it knows nothing about tenants.
package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
)

const (
	codeNamespaceExists   = 48
	codeNamespaceNotFound = 26
)

// Store manages per-tenant collections in a shared MongoDB database.
type Store struct {
	client *mongo.Client
	dbName string
}

// NewStore creates a partition store over the given database.
func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, dbName: dbName}
}

// Create materializes an empty partition. Mongo creates collections lazily on
// first write, so an explicit create is what makes an empty partition visible
// to Exists and to the rename command.
func (s *Store) Create(ctx context.Context, id string) error {
	err := s.client.Database(s.dbName).CreateCollection(ctx, id)
	if err != nil {
		if hasErrorCode(err, codeNamespaceExists) {
			return lifecycle.ErrPartitionExists
		}
		return fmt.Errorf("failed to create partition %s: %w", id, err)
	}
	return nil
}

// Rename moves a partition to a new id, carrying all its documents. Backed by
// the server-side renameCollection command, which is atomic within a database.
func (s *Store) Rename(ctx context.Context, oldID, newID string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: s.dbName + "." + oldID},
		{Key: "to", Value: s.dbName + "." + newID},
	}
	err := s.client.Database("admin").RunCommand(ctx, cmd).Err()
	if err != nil {
		if hasErrorCode(err, codeNamespaceNotFound) {
			return lifecycle.ErrPartitionNotFound
		}
		if hasErrorCode(err, codeNamespaceExists) {
			return lifecycle.ErrPartitionExists
		}
		return fmt.Errorf("failed to rename partition %s to %s: %w", oldID, newID, err)
	}
	return nil
}

// Drop removes a partition and all its documents. Dropping a partition that
// does not exist reports ErrPartitionNotFound so callers can treat it as
// already gone.
func (s *Store) Drop(ctx context.Context, id string) error {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return lifecycle.ErrPartitionNotFound
	}
	if err := s.client.Database(s.dbName).Collection(id).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a partition is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	names, err := s.client.Database(s.dbName).ListCollectionNames(ctx, bson.M{"name": id})
	if err != nil {
		return false, fmt.Errorf("failed to check partition %s: %w", id, err)
	}
	return len(names) > 0, nil
}

// List returns every partition id in the database, skipping collections that
// do not carry the partition prefix (system collections, the registry's own
// collections when colocated).
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.client.Database(s.dbName).ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	partitions := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, lifecycle.PartitionPrefix) {
			partitions = append(partitions, name)
		}
	}
	return partitions, nil
}

// hasErrorCode unwraps driver errors down to a server error code.
func hasErrorCode(err error, code int) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == int32(code)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == code {
				return true
			}
		}
	}
	return false
}
