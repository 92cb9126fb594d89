package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ports"
)

const branchesTable = "branches"

// Compile-time check that BranchRepo implements ports.BranchGuardPort.
var _ ports.BranchGuardPort = (*BranchRepo)(nil)

// BranchRepo checks branch administrative state before any write applies.
type BranchRepo struct {
	txManager *TxManager
}

// NewBranchRepo creates a new branch repository.
func NewBranchRepo(txManager *TxManager) *BranchRepo {
	return &BranchRepo{txManager: txManager}
}

// AssertBranchActive returns nil when the branch accepts operations, a
// BRANCH_FROZEN denial when it is administratively frozen, and a missing
// dependency error when the branch does not exist for the tenant.
func (r *BranchRepo) AssertBranchActive(ctx context.Context, tenantID, branchID id.ID) error {
	row := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT frozen
		FROM `+branchesTable+`
		WHERE id = $1 AND tenant_id = $2
	`, branchID, tenantID)

	var frozen bool
	err := row.Scan(&frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewDependencyMissing("branch", branchID)
	}
	if err != nil {
		return fmt.Errorf("scan branch: %w", err)
	}
	if frozen {
		return apperror.NewBranchFrozen(branchID)
	}
	return nil
}
