package cashsession

import (
	"context"

	"khmerpos/internal/core/id"
)

// RegisterStatus is the administrative state of a cash register device.
type RegisterStatus string

const (
	RegisterActive   RegisterStatus = "ACTIVE"
	RegisterInactive RegisterStatus = "INACTIVE"
)

// Register is a physical cash register bound to a branch.
type Register struct {
	ID       id.ID          `db:"id" json:"id"`
	TenantID id.ID          `db:"tenant_id" json:"tenantId"`
	BranchID id.ID          `db:"branch_id" json:"branchId"`
	Name     string         `db:"name" json:"name"`
	Status   RegisterStatus `db:"status" json:"status"`
}

// Repository persists cash sessions. All writes participate in the
// transaction carried by ctx.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// GetByID loads a session.
	GetByID(ctx context.Context, tenantID, sessionID id.ID) (*Session, error)

	// FindOpen returns the OPEN session for a register, or the OPEN
	// device-agnostic session for the branch when registerID is nil.
	// Returns nil when no session is open.
	FindOpen(ctx context.Context, tenantID, branchID id.ID, registerID *id.ID) (*Session, error)

	// Update rewrites the session row (close, expected-cash changes).
	Update(ctx context.Context, s *Session) error
}

// RegisterRepository resolves register devices for open-session validation.
type RegisterRepository interface {
	// GetByID returns the register or nil when it does not exist within
	// the tenant/branch.
	GetByID(ctx context.Context, tenantID, branchID, registerID id.ID) (*Register, error)
}
