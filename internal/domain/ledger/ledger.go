// Package ledger defines the per-tenant operation ledger: one row per
// (tenant, client operation id) guaranteeing at-most-one business effect.
// Rows are created PROCESSING inside the apply transaction, move to exactly
// one terminal state, and are never deleted or re-processed.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ops"
)

// Status is the ledger record state.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusApplied    Status = "APPLIED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status is APPLIED or FAILED.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusFailed
}

// Record is one ledger row.
type Record struct {
	TenantID          id.ID           `db:"tenant_id"`
	ClientOperationID string          `db:"client_operation_id"`
	BranchID          id.ID           `db:"branch_id"`
	Type              ops.Type        `db:"operation_type"`
	Payload           json.RawMessage `db:"payload"`
	OccurredAt        time.Time       `db:"occurred_at"`
	Status            Status          `db:"status"`
	Result            json.RawMessage `db:"result"`
	ErrorCode         string          `db:"error_code"`
	ErrorMessage      string          `db:"error_message"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Ledger is the persistence contract for operation records.
type Ledger interface {
	// FindByKey returns the record for (tenant, client operation id), or
	// nil when none exists.
	FindByKey(ctx context.Context, tenantID id.ID, clientOperationID string) (*Record, error)

	// InsertProcessing conditionally inserts a PROCESSING row. Returns
	// (nil, nil) without creating a row when the key already exists: a
	// concurrent writer won the race and the caller must replay.
	InsertProcessing(ctx context.Context, rec *Record) (*Record, error)

	// MarkApplied moves a PROCESSING record to APPLIED with its result.
	// No-op on a record not in PROCESSING state.
	MarkApplied(ctx context.Context, tenantID id.ID, clientOperationID string, result json.RawMessage) error

	// MarkFailed moves a PROCESSING record to FAILED with the error.
	// No-op on a record not in PROCESSING state.
	MarkFailed(ctx context.Context, tenantID id.ID, clientOperationID, errorCode, errorMessage string) error
}
