package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"khmerpos/internal/domain/ports"
)

const menuItemsTable = "menu_items"

// Compile-time check that MenuRepo implements ports.MenuPort.
var _ ports.MenuPort = (*MenuRepo)(nil)

// MenuRepo resolves menu item pricing from the tenant's catalog.
type MenuRepo struct {
	txManager *TxManager
}

// NewMenuRepo creates a new menu repository.
func NewMenuRepo(txManager *TxManager) *MenuRepo {
	return &MenuRepo{txManager: txManager}
}

// GetMenuItem returns the priced menu entry, or nil when the item does not
// exist or is not available at the branch.
func (r *MenuRepo) GetMenuItem(ctx context.Context, ref ports.MenuItemRef) (*ports.MenuItem, error) {
	row := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT id, name, price_usd
		FROM `+menuItemsTable+`
		WHERE id = $1 AND tenant_id = $2
		  AND (branch_id IS NULL OR branch_id = $3)
		  AND active
	`, ref.MenuItemID, ref.TenantID, ref.BranchID)

	var item ports.MenuItem
	err := row.Scan(&item.ID, &item.Name, &item.PriceUsd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan menu item: %w", err)
	}
	return &item, nil
}
