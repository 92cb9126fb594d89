package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ports"
)

const (
	tenantSettingsTable   = "tenant_settings"
	discountPoliciesTable = "discount_policies"
)

// discount policy scopes
const (
	policyScopeItem  = "item"
	policyScopeOrder = "order"
)

// Compile-time check that PolicyRepo implements ports.PolicyPort.
var _ ports.PolicyPort = (*PolicyRepo)(nil)

// PolicyRepo reads tenant pricing configuration: FX rate, VAT, KHR rounding
// and discount policy candidates.
type PolicyRepo struct {
	txManager *TxManager
}

// NewPolicyRepo creates a new policy repository.
func NewPolicyRepo(txManager *TxManager) *PolicyRepo {
	return &PolicyRepo{txManager: txManager}
}

// Builder returns a new squirrel builder.
func (r *PolicyRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// settingsRow is the single-row tenant configuration.
type settingsRow struct {
	FxRate   ports.FxRate
	Vat      ports.VatPolicy
	Rounding ports.RoundingPolicy
}

func (r *PolicyRepo) settings(ctx context.Context, tenantID id.ID) (*settingsRow, error) {
	row := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT fx_rate, fx_rate_as_of, vat_enabled, vat_rate,
		       rounding_enabled, rounding_granularity_khr
		FROM `+tenantSettingsTable+`
		WHERE tenant_id = $1
	`, tenantID)

	var s settingsRow
	err := row.Scan(
		&s.FxRate.Rate, &s.FxRate.AsOf,
		&s.Vat.Enabled, &s.Vat.Rate,
		&s.Rounding.Enabled, &s.Rounding.GranularityKhr,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewDependencyMissing("tenant settings", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant settings: %w", err)
	}
	return &s, nil
}

// GetCurrentFxRate returns the tenant's KHR-per-USD rate.
func (r *PolicyRepo) GetCurrentFxRate(ctx context.Context, tenantID id.ID) (ports.FxRate, error) {
	s, err := r.settings(ctx, tenantID)
	if err != nil {
		return ports.FxRate{}, err
	}
	return s.FxRate, nil
}

// GetVatPolicy returns the tenant's VAT configuration.
func (r *PolicyRepo) GetVatPolicy(ctx context.Context, tenantID id.ID) (ports.VatPolicy, error) {
	s, err := r.settings(ctx, tenantID)
	if err != nil {
		return ports.VatPolicy{}, err
	}
	return s.Vat, nil
}

// GetRoundingPolicy returns the tenant's KHR cash rounding configuration.
func (r *PolicyRepo) GetRoundingPolicy(ctx context.Context, tenantID id.ID) (ports.RoundingPolicy, error) {
	s, err := r.settings(ctx, tenantID)
	if err != nil {
		return ports.RoundingPolicy{}, err
	}
	return s.Rounding, nil
}

// GetItemDiscountPolicies returns the active item-scope candidates for a
// menu item. Policies bound to a branch apply only there; NULL branch_id
// applies tenant-wide.
func (r *PolicyRepo) GetItemDiscountPolicies(ctx context.Context, tenantID, branchID, menuItemID id.ID) ([]ports.DiscountPolicy, error) {
	q := r.Builder().
		Select("id", "discount_type", "value", "condition").
		From(discountPoliciesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "scope": policyScopeItem, "active": true}).
		Where(squirrel.Or{
			squirrel.Eq{"menu_item_id": menuItemID},
			squirrel.Eq{"menu_item_id": nil},
		}).
		Where(squirrel.Or{
			squirrel.Eq{"branch_id": branchID},
			squirrel.Eq{"branch_id": nil},
		}).
		OrderBy("created_at")
	return r.queryPolicies(ctx, q)
}

// GetOrderDiscountPolicies returns the active order-scope candidates.
func (r *PolicyRepo) GetOrderDiscountPolicies(ctx context.Context, tenantID, branchID id.ID) ([]ports.DiscountPolicy, error) {
	q := r.Builder().
		Select("id", "discount_type", "value", "condition").
		From(discountPoliciesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "scope": policyScopeOrder, "active": true}).
		Where(squirrel.Or{
			squirrel.Eq{"branch_id": branchID},
			squirrel.Eq{"branch_id": nil},
		}).
		OrderBy("created_at")
	return r.queryPolicies(ctx, q)
}

func (r *PolicyRepo) queryPolicies(ctx context.Context, q squirrel.SelectBuilder) ([]ports.DiscountPolicy, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query discount policies: %w", err)
	}
	defer rows.Close()

	var policies []ports.DiscountPolicy
	for rows.Next() {
		var p ports.DiscountPolicy
		var condition *string
		if err := rows.Scan(&p.ID, &p.Type, &p.Value, &condition); err != nil {
			return nil, fmt.Errorf("scan discount policy: %w", err)
		}
		if condition != nil {
			p.Condition = *condition
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}
