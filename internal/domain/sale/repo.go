package sale

import (
	"context"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

// Repository persists sales and their lines. All writes participate in the
// transaction carried by ctx.
type Repository interface {
	// Create inserts the sale and its items.
	Create(ctx context.Context, s *Sale) error

	// GetByID loads a sale with its items.
	GetByID(ctx context.Context, tenantID, saleID id.ID) (*Sale, error)

	// FindByClientUUID returns the sale previously persisted for a client
	// draft uuid, or nil when none exists. Secondary dedup under the
	// operation ledger for offline-created drafts.
	FindByClientUUID(ctx context.Context, tenantID id.ID, clientUUID string) (*Sale, error)

	// Update rewrites the sale header and items.
	Update(ctx context.Context, s *Sale) error
}

// CashDrawerRecorder feeds finalized cash takings into the open cash session's
// expected balance. Implemented by the cash session repository.
type CashDrawerRecorder interface {
	// AddExpectedCash increments the open session's expected cash for the
	// branch. A missing open session is not an error; the amounts are
	// simply not tracked against a drawer.
	AddExpectedCash(ctx context.Context, tenantID, branchID id.ID, usd, khr types.Money) error
}
