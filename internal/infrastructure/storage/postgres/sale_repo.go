package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ports"
	"khmerpos/internal/domain/sale"
)

const (
	salesTable     = "sales"
	saleItemsTable = "sale_items"
)

// Compile-time check that SaleRepo implements sale.Repository.
var _ sale.Repository = (*SaleRepo)(nil)

// SaleRepo is the PostgreSQL sale repository.
type SaleRepo struct {
	txManager *TxManager
}

// NewSaleRepo creates a new sale repository.
func NewSaleRepo(txManager *TxManager) *SaleRepo {
	return &SaleRepo{txManager: txManager}
}

// Builder returns a new squirrel builder.
func (r *SaleRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func saleHeaderMap(s *sale.Sale) map[string]any {
	m := map[string]any{
		"id":                       s.ID,
		"tenant_id":                s.TenantID,
		"branch_id":                s.BranchID,
		"employee_id":              s.EmployeeID,
		"client_uuid":              s.ClientUUID,
		"sale_type":                s.SaleType,
		"state":                    s.State,
		"fx_rate":                  s.FxRate,
		"vat_enabled":              s.VatEnabled,
		"vat_rate":                 s.VatRate,
		"rounding_enabled":         s.RoundingEnabled,
		"rounding_granularity_khr": s.RoundingGranularityKhr,
		"tender_currency":          s.TenderCurrency,
		"payment_method":           s.PaymentMethod,
		"cash_received_usd":        s.CashReceivedUsd,
		"subtotal_usd":             s.Totals.SubtotalUsd,
		"subtotal_khr":             s.Totals.SubtotalKhr,
		"order_discount_usd":       s.Totals.OrderDiscountUsd,
		"order_discount_khr":       s.Totals.OrderDiscountKhr,
		"vat_amount_usd":           s.Totals.VatAmountUsd,
		"vat_amount_khr":           s.Totals.VatAmountKhr,
		"total_usd":                s.Totals.TotalUsd,
		"total_khr":                s.Totals.TotalKhr,
		"rounding_delta_khr":       s.Totals.RoundingDeltaKhr,
		"change_usd":               s.Totals.ChangeUsd,
		"fulfillment_status":       s.FulfillmentStatus,
		"ref_previous_sale_id":     s.RefPreviousSaleID,
		"created_at":               s.CreatedAt,
		"finalized_at":             s.FinalizedAt,
		"voided_at":                s.VoidedAt,
	}
	if s.OrderDiscount != nil {
		m["order_discount_type"] = s.OrderDiscount.Type
		m["order_discount_amount"] = s.OrderDiscount.Amount
		m["order_discount_policy_id"] = s.OrderDiscount.PolicyID
	} else {
		m["order_discount_type"] = nil
		m["order_discount_amount"] = nil
		m["order_discount_policy_id"] = nil
	}
	return m
}

// Create inserts the sale header and its items.
func (r *SaleRepo) Create(ctx context.Context, s *sale.Sale) error {
	q := r.Builder().Insert(salesTable).SetMap(saleHeaderMap(s))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	return r.saveItems(ctx, s.ID, s.Items)
}

// Update rewrites the sale header and items.
func (r *SaleRepo) Update(ctx context.Context, s *sale.Sale) error {
	m := saleHeaderMap(s)
	delete(m, "id")
	delete(m, "tenant_id")
	delete(m, "created_at")

	q := r.Builder().Update(salesTable).SetMap(m).
		Where(squirrel.Eq{"id": s.ID, "tenant_id": s.TenantID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	return r.saveItems(ctx, s.ID, s.Items)
}

// GetByID loads a sale with its items.
func (r *SaleRepo) GetByID(ctx context.Context, tenantID, saleID id.ID) (*sale.Sale, error) {
	return r.findOne(ctx, squirrel.Eq{"id": saleID, "tenant_id": tenantID})
}

// FindByClientUUID returns the sale for a client draft uuid, or nil.
func (r *SaleRepo) FindByClientUUID(ctx context.Context, tenantID id.ID, clientUUID string) (*sale.Sale, error) {
	return r.findOne(ctx, squirrel.Eq{"client_uuid": clientUUID, "tenant_id": tenantID})
}

func (r *SaleRepo) findOne(ctx context.Context, where squirrel.Eq) (*sale.Sale, error) {
	q := r.Builder().
		Select(
			"id", "tenant_id", "branch_id", "employee_id", "client_uuid",
			"sale_type", "state", "fx_rate", "vat_enabled", "vat_rate",
			"rounding_enabled", "rounding_granularity_khr",
			"tender_currency", "payment_method", "cash_received_usd",
			"subtotal_usd", "subtotal_khr",
			"order_discount_usd", "order_discount_khr",
			"vat_amount_usd", "vat_amount_khr",
			"total_usd", "total_khr", "rounding_delta_khr", "change_usd",
			"order_discount_type", "order_discount_amount", "order_discount_policy_id",
			"fulfillment_status", "ref_previous_sale_id",
			"created_at", "finalized_at", "voided_at",
		).
		From(salesTable).
		Where(where)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	row := querier.QueryRow(ctx, sql, args...)

	var s sale.Sale
	var discType *string
	var discAmount *string
	var discPolicyID *id.ID
	err = row.Scan(
		&s.ID, &s.TenantID, &s.BranchID, &s.EmployeeID, &s.ClientUUID,
		&s.SaleType, &s.State, &s.FxRate, &s.VatEnabled, &s.VatRate,
		&s.RoundingEnabled, &s.RoundingGranularityKhr,
		&s.TenderCurrency, &s.PaymentMethod, &s.CashReceivedUsd,
		&s.Totals.SubtotalUsd, &s.Totals.SubtotalKhr,
		&s.Totals.OrderDiscountUsd, &s.Totals.OrderDiscountKhr,
		&s.Totals.VatAmountUsd, &s.Totals.VatAmountKhr,
		&s.Totals.TotalUsd, &s.Totals.TotalKhr, &s.Totals.RoundingDeltaKhr, &s.Totals.ChangeUsd,
		&discType, &discAmount, &discPolicyID,
		&s.FulfillmentStatus, &s.RefPreviousSaleID,
		&s.CreatedAt, &s.FinalizedAt, &s.VoidedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan sale: %w", err)
	}

	if d, err := scanDiscount(discType, discAmount, discPolicyID); err != nil {
		return nil, err
	} else if d != nil {
		s.OrderDiscount = d
	}

	items, err := r.getItems(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Items = items

	return &s, nil
}

func (r *SaleRepo) getItems(ctx context.Context, saleID id.ID) ([]sale.Item, error) {
	q := r.Builder().
		Select(
			"id", "menu_item_id", "name", "unit_price_usd", "unit_price_khr_exact",
			"quantity", "discount_type", "discount_amount", "discount_policy_id",
			"line_total_usd", "line_total_khr",
		).
		From(saleItemsTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()

	var items []sale.Item
	for rows.Next() {
		var item sale.Item
		var discType *string
		var discAmount *string
		var discPolicyID *id.ID
		if err := rows.Scan(
			&item.ID, &item.MenuItemID, &item.Name, &item.UnitPriceUsd, &item.UnitPriceKhrExact,
			&item.Quantity, &discType, &discAmount, &discPolicyID,
			&item.LineTotalUsd, &item.LineTotalKhr,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if d, err := scanDiscount(discType, discAmount, discPolicyID); err != nil {
			return nil, err
		} else if d != nil {
			item.Discount = d
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// scanDiscount assembles a Discount from its nullable columns. All three are
// set together or not at all.
func scanDiscount(discType, discAmount *string, discPolicyID *id.ID) (*sale.Discount, error) {
	if discType == nil {
		return nil, nil
	}
	if discAmount == nil || discPolicyID == nil {
		return nil, fmt.Errorf("discount columns partially set for type %q", *discType)
	}
	amount, err := decimal.NewFromString(*discAmount)
	if err != nil {
		return nil, fmt.Errorf("parse discount amount: %w", err)
	}
	return &sale.Discount{
		Type:     ports.DiscountType(*discType),
		Amount:   amount,
		PolicyID: *discPolicyID,
	}, nil
}

// saveItems replaces the sale's lines (delete existing + insert new).
func (r *SaleRepo) saveItems(ctx context.Context, saleID id.ID, items []sale.Item) error {
	querier := r.txManager.GetQuerier(ctx)

	deleteSQL := "DELETE FROM " + saleItemsTable + " WHERE sale_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, saleID); err != nil {
		return fmt.Errorf("delete existing items: %w", err)
	}

	if len(items) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(saleItemsTable).
		Columns(
			"id", "sale_id", "line_no", "menu_item_id", "name",
			"unit_price_usd", "unit_price_khr_exact", "quantity",
			"discount_type", "discount_amount", "discount_policy_id",
			"line_total_usd", "line_total_khr",
		)

	for i, item := range items {
		var discType, discAmount, discPolicyID any
		if item.Discount != nil {
			discType = item.Discount.Type
			discAmount = item.Discount.Amount
			discPolicyID = item.Discount.PolicyID
		}
		q = q.Values(
			item.ID, saleID, i+1, item.MenuItemID, item.Name,
			item.UnitPriceUsd, item.UnitPriceKhrExact, item.Quantity,
			discType, discAmount, discPolicyID,
			item.LineTotalUsd, item.LineTotalKhr,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}

	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}

	return nil
}
