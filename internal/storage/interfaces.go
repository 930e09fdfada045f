// Package storage provides composable storage interfaces for the Lethe system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The engine itself works on
// in-memory batches; stores are the durable home for records between runs and
// the append-only sink for audit history.
package storage

import (
	"context"

	"github.com/lethehq/lethe/pkg/types"
)

// RecordStore provides CRUD operations and pagination for memory records.
type RecordStore interface {
	// Store creates or updates a record (upsert semantics).
	// If a record with the same ID exists, it is updated; otherwise, a new one
	// is created.
	Store(ctx context.Context, record *types.Record) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*types.Record, error)

	// List retrieves records with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Record], error)

	// All returns every stored record, removed ones included. This is the load
	// path for an evaluation batch, which needs the complete set.
	All(ctx context.Context) ([]*types.Record, error)

	// ReplaceAll atomically replaces the stored set with the given records.
	// This is the persist path after an evaluation batch mutated the set.
	ReplaceAll(ctx context.Context, records []*types.Record) error

	// Delete permanently removes a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// AuditStore is the durable append-only sink for audit entries.
type AuditStore interface {
	// Append persists a single audit entry.
	Append(ctx context.Context, entry types.AuditEntry) error

	// AppendBatch persists a batch of audit entries in order, atomically.
	AppendBatch(ctx context.Context, entries []types.AuditEntry) error

	// ListAudit retrieves audit entries with pagination, oldest first,
	// preserving append order.
	ListAudit(ctx context.Context, opts ListOptions) (*PaginatedResult[types.AuditEntry], error)
}

// Store combines the record and audit stores a backend must provide.
type Store interface {
	RecordStore
	AuditStore
}
