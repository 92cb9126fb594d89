package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ledger"
)

// Compile-time check that OperationLedger implements ledger.Ledger.
var _ ledger.Ledger = (*OperationLedger)(nil)

const ledgerColumns = `tenant_id, client_operation_id, branch_id, operation_type, payload,
	occurred_at, status, result, error_code, error_message, created_at, updated_at`

// OperationLedger is the PostgreSQL operation ledger. The unique constraint
// on (tenant_id, client_operation_id) is the sole concurrency-control
// primitive against duplicate application.
type OperationLedger struct {
	txManager *TxManager
}

// NewOperationLedger creates a new operation ledger.
func NewOperationLedger(txManager *TxManager) *OperationLedger {
	return &OperationLedger{txManager: txManager}
}

// FindByKey returns the record for (tenant, client operation id), or nil.
func (l *OperationLedger) FindByKey(ctx context.Context, tenantID id.ID, clientOperationID string) (*ledger.Record, error) {
	row := l.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM sys_operation_ledger
		WHERE tenant_id = $1 AND client_operation_id = $2
	`, tenantID, clientOperationID)

	rec, err := scanLedgerRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger record: %w", err)
	}
	return rec, nil
}

// InsertProcessing conditionally inserts a PROCESSING row. Returns (nil, nil)
// when the key already exists: a concurrent writer won the race and the
// caller must replay the stored outcome instead of applying again.
func (l *OperationLedger) InsertProcessing(ctx context.Context, rec *ledger.Record) (*ledger.Record, error) {
	now := time.Now().UTC()

	row := l.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_operation_ledger (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, '', '', $8, $8)
		ON CONFLICT (tenant_id, client_operation_id) DO NOTHING
		RETURNING `+ledgerColumns+`
	`, rec.TenantID, rec.ClientOperationID, rec.BranchID, rec.Type, rec.Payload,
		rec.OccurredAt, ledger.StatusProcessing, now)

	inserted, err := scanLedgerRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert processing record: %w", err)
	}
	return inserted, nil
}

// MarkApplied moves a PROCESSING record to APPLIED with its result.
// A record not in PROCESSING state is left untouched.
func (l *OperationLedger) MarkApplied(ctx context.Context, tenantID id.ID, clientOperationID string, result json.RawMessage) error {
	_, err := l.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_operation_ledger
		SET status = $1, result = $2, updated_at = $3
		WHERE tenant_id = $4 AND client_operation_id = $5 AND status = $6
	`, ledger.StatusApplied, result, time.Now().UTC(), tenantID, clientOperationID, ledger.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return nil
}

// MarkFailed moves a PROCESSING record to FAILED with the error.
// A record not in PROCESSING state is left untouched.
func (l *OperationLedger) MarkFailed(ctx context.Context, tenantID id.ID, clientOperationID, errorCode, errorMessage string) error {
	_, err := l.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_operation_ledger
		SET status = $1, error_code = $2, error_message = $3, updated_at = $4
		WHERE tenant_id = $5 AND client_operation_id = $6 AND status = $7
	`, ledger.StatusFailed, errorCode, errorMessage, time.Now().UTC(), tenantID, clientOperationID, ledger.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func scanLedgerRecord(row pgx.Row) (*ledger.Record, error) {
	var rec ledger.Record
	err := row.Scan(
		&rec.TenantID, &rec.ClientOperationID, &rec.BranchID, &rec.Type, &rec.Payload,
		&rec.OccurredAt, &rec.Status, &rec.Result, &rec.ErrorCode, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
