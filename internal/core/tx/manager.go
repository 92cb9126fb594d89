// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT and ROLLBACK.
//
// Domain services depend on this interface, not concrete implementations.
// The actual implementation lives in infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SavepointManager extends Manager with intra-transaction savepoints.
// The apply pipeline uses savepoints to undo domain writes while keeping the
// operation ledger row durable in the same transaction.
type SavepointManager interface {
	Manager

	// Savepoint issues SAVEPOINT name on the transaction in ctx.
	Savepoint(ctx context.Context, name string) error

	// RollbackTo issues ROLLBACK TO SAVEPOINT name.
	RollbackTo(ctx context.Context, name string) error

	// Release issues RELEASE SAVEPOINT name.
	Release(ctx context.Context, name string) error
}
