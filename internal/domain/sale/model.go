// Package sale provides the Sale aggregate: a cart-like draft that is
// finalized into an immutable receipt, priced in both USD and KHR.
package sale

import (
	"time"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/ports"
)

// State is the sale lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StateFinalized State = "finalized"
	StateVoided    State = "voided"
	StateReopened  State = "reopened"
)

// Currency is a tender currency.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyKHR Currency = "KHR"
)

// PaymentMethod is how the sale was settled.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
	PaymentQR   PaymentMethod = "QR"
)

// FulfillmentStatus tracks order preparation downstream of the core.
type FulfillmentStatus string

const (
	FulfillmentNone      FulfillmentStatus = "NONE"
	FulfillmentPending   FulfillmentStatus = "PENDING"
	FulfillmentCompleted FulfillmentStatus = "COMPLETED"
)

// Discount is an applied discount, either per-line or order-level.
// Amount is a percent (0-100) for percentage discounts and a USD amount for
// fixed discounts; KHR conversion uses the sale's locked FX rate.
type Discount struct {
	Type     ports.DiscountType `db:"discount_type" json:"type"`
	Amount   types.Money        `db:"discount_amount" json:"amount"`
	PolicyID id.ID              `db:"discount_policy_id" json:"policyId"`
}

// Item is one sale line. Line totals are always a pure function of
// (unit price, quantity, discount, sale FX rate), never mutated directly.
type Item struct {
	ID                id.ID       `db:"id" json:"id"`
	MenuItemID        id.ID       `db:"menu_item_id" json:"menuItemId"`
	Name              string      `db:"name" json:"name"`
	UnitPriceUsd      types.Money `db:"unit_price_usd" json:"unitPriceUsd"`
	UnitPriceKhrExact types.Money `db:"unit_price_khr_exact" json:"unitPriceKhrExact"`
	Quantity          int         `db:"quantity" json:"quantity"`
	Discount          *Discount   `db:"-" json:"discount,omitempty"`
	LineTotalUsd      types.Money `db:"line_total_usd" json:"lineTotalUsd"`
	LineTotalKhr      types.Money `db:"line_total_khr" json:"lineTotalKhr"`
}

// Totals are the recomputed monetary figures for the whole sale.
type Totals struct {
	SubtotalUsd      types.Money `db:"subtotal_usd" json:"subtotalUsd"`
	SubtotalKhr      types.Money `db:"subtotal_khr" json:"subtotalKhr"`
	OrderDiscountUsd types.Money `db:"order_discount_usd" json:"orderDiscountUsd"`
	OrderDiscountKhr types.Money `db:"order_discount_khr" json:"orderDiscountKhr"`
	VatAmountUsd     types.Money `db:"vat_amount_usd" json:"vatAmountUsd"`
	VatAmountKhr     types.Money `db:"vat_amount_khr" json:"vatAmountKhr"`
	TotalUsd         types.Money `db:"total_usd" json:"totalUsd"`
	TotalKhr         types.Money `db:"total_khr" json:"totalKhr"`
	RoundingDeltaKhr types.Money `db:"rounding_delta_khr" json:"roundingDeltaKhr"`
	ChangeUsd        types.Money `db:"change_usd" json:"changeUsd"`
}

// Sale is the aggregate root.
type Sale struct {
	ID         id.ID  `db:"id" json:"id"`
	TenantID   id.ID  `db:"tenant_id" json:"tenantId"`
	BranchID   id.ID  `db:"branch_id" json:"branchId"`
	EmployeeID id.ID  `db:"employee_id" json:"employeeId"`
	ClientUUID string `db:"client_uuid" json:"clientUuid"`
	SaleType   string `db:"sale_type" json:"saleType"`
	State      State  `db:"state" json:"state"`

	// Pricing configuration locked at creation.
	FxRate                 types.Money `db:"fx_rate" json:"fxRate"` // KHR per USD
	VatEnabled             bool        `db:"vat_enabled" json:"vatEnabled"`
	VatRate                types.Money `db:"vat_rate" json:"vatRate"`
	RoundingEnabled        bool        `db:"rounding_enabled" json:"roundingEnabled"`
	RoundingGranularityKhr int64       `db:"rounding_granularity_khr" json:"roundingGranularityKhr"`

	TenderCurrency  Currency      `db:"tender_currency" json:"tenderCurrency"`
	PaymentMethod   PaymentMethod `db:"payment_method" json:"paymentMethod"`
	CashReceivedUsd *types.Money  `db:"cash_received_usd" json:"cashReceivedUsd,omitempty"`

	Items         []Item    `db:"-" json:"items"`
	OrderDiscount *Discount `db:"-" json:"orderDiscount,omitempty"`
	Totals        Totals    `json:"totals"`

	FulfillmentStatus FulfillmentStatus `db:"fulfillment_status" json:"fulfillmentStatus"`

	// RefPreviousSaleID links a reopen successor to its original.
	RefPreviousSaleID *id.ID `db:"ref_previous_sale_id" json:"refPreviousSaleId,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	FinalizedAt *time.Time `db:"finalized_at" json:"finalizedAt,omitempty"`
	VoidedAt    *time.Time `db:"voided_at" json:"voidedAt,omitempty"`
}

// PricingConfig carries the tenant policies a draft sale locks at creation.
type PricingConfig struct {
	FxRate   ports.FxRate
	Vat      ports.VatPolicy
	Rounding ports.RoundingPolicy
}

// NewDraft creates a draft sale with pricing configuration locked in.
func NewDraft(tenantID, branchID, employeeID id.ID, clientUUID, saleType string, cfg PricingConfig, now time.Time) *Sale {
	s := &Sale{
		ID:                     id.New(),
		TenantID:               tenantID,
		BranchID:               branchID,
		EmployeeID:             employeeID,
		ClientUUID:             clientUUID,
		SaleType:               saleType,
		State:                  StateDraft,
		FxRate:                 cfg.FxRate.Rate,
		VatEnabled:             cfg.Vat.Enabled,
		VatRate:                cfg.Vat.Rate,
		RoundingEnabled:        cfg.Rounding.Enabled,
		RoundingGranularityKhr: cfg.Rounding.GranularityKhr,
		TenderCurrency:         CurrencyUSD,
		FulfillmentStatus:      FulfillmentPending,
		Items:                  make([]Item, 0),
		CreatedAt:              now,
	}
	s.Recalculate()
	return s
}

// AddItem appends a line with the KHR unit price derived from the sale's
// locked FX rate, then recomputes totals. Returns the new line's id.
func (s *Sale) AddItem(menuItemID id.ID, name string, unitPriceUsd types.Money, quantity int) (id.ID, error) {
	if s.State != StateDraft {
		return id.Nil(), apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "items can only be added to a draft sale")
	}
	if quantity <= 0 {
		return id.Nil(), apperror.NewValidation("quantity must be positive").WithDetail("quantity", quantity)
	}

	item := Item{
		ID:                id.New(),
		MenuItemID:        menuItemID,
		Name:              name,
		UnitPriceUsd:      unitPriceUsd,
		UnitPriceKhrExact: unitPriceUsd.Mul(s.FxRate),
		Quantity:          quantity,
	}
	s.Items = append(s.Items, item)
	s.Recalculate()
	return item.ID, nil
}

// SetItemDiscount applies a discount to one line and recomputes totals.
func (s *Sale) SetItemDiscount(itemID id.ID, d Discount) error {
	if s.State != StateDraft {
		return apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "discounts can only be applied to a draft sale")
	}
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			s.Items[i].Discount = &d
			s.Recalculate()
			return nil
		}
	}
	return apperror.NewNotFound("sale item", itemID)
}

// SetOrderDiscount applies an order-level discount and recomputes totals.
func (s *Sale) SetOrderDiscount(d Discount) error {
	if s.State != StateDraft {
		return apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "discounts can only be applied to a draft sale")
	}
	s.OrderDiscount = &d
	s.Recalculate()
	return nil
}

// SetTenderCurrency selects the tender currency. Switching to KHR triggers
// cash rounding during recompute when the rounding policy is enabled.
func (s *Sale) SetTenderCurrency(c Currency) error {
	if s.State != StateDraft {
		return apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "tender currency can only be set on a draft sale")
	}
	if c != CurrencyUSD && c != CurrencyKHR {
		return apperror.NewValidation("unsupported tender currency").WithDetail("currency", string(c))
	}
	s.TenderCurrency = c
	s.Recalculate()
	return nil
}

// SetPaymentMethod records how the sale is settled. For cash payments the
// change due is derived during recompute from the received amount.
func (s *Sale) SetPaymentMethod(m PaymentMethod, cashReceivedUsd *types.Money) error {
	if s.State != StateDraft {
		return apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "payment method can only be set on a draft sale")
	}
	switch m {
	case PaymentCash, PaymentCard, PaymentQR:
	default:
		return apperror.NewValidation("unsupported payment method").WithDetail("method", string(m))
	}
	if cashReceivedUsd != nil && cashReceivedUsd.IsNegative() {
		return apperror.NewValidation("cash received must not be negative")
	}
	s.PaymentMethod = m
	s.CashReceivedUsd = cashReceivedUsd
	s.Recalculate()
	return nil
}

// Finalize commits the sale. Only a draft with at least one item can be
// finalized; the transition is irreversible.
func (s *Sale) Finalize(at time.Time) error {
	if s.State != StateDraft {
		return apperror.NewBusinessRule(apperror.CodeSaleNotDraft, "only a draft sale can be finalized").
			WithDetail("state", string(s.State))
	}
	if len(s.Items) == 0 {
		return apperror.NewBusinessRule(apperror.CodeSaleEmpty, "a sale needs at least one item to be finalized")
	}
	s.Recalculate()
	s.State = StateFinalized
	s.FinalizedAt = &at
	return nil
}

// Void cancels a finalized sale in place.
func (s *Sale) Void(at time.Time) error {
	if s.State != StateFinalized {
		return apperror.NewBusinessRule(apperror.CodeSaleNotFinalized, "only a finalized sale can be voided").
			WithDetail("state", string(s.State))
	}
	s.State = StateVoided
	s.VoidedAt = &at
	return nil
}

// Reopen marks a finalized sale as reopened and returns a successor draft
// carrying the original lines, linked via RefPreviousSaleID.
func (s *Sale) Reopen(at time.Time) (*Sale, error) {
	if s.State != StateFinalized {
		return nil, apperror.NewBusinessRule(apperror.CodeSaleNotFinalized, "only a finalized sale can be reopened").
			WithDetail("state", string(s.State))
	}
	s.State = StateReopened

	successor := &Sale{
		ID:                     id.New(),
		TenantID:               s.TenantID,
		BranchID:               s.BranchID,
		EmployeeID:             s.EmployeeID,
		ClientUUID:             "",
		SaleType:               s.SaleType,
		State:                  StateDraft,
		FxRate:                 s.FxRate,
		VatEnabled:             s.VatEnabled,
		VatRate:                s.VatRate,
		RoundingEnabled:        s.RoundingEnabled,
		RoundingGranularityKhr: s.RoundingGranularityKhr,
		TenderCurrency:         s.TenderCurrency,
		FulfillmentStatus:      FulfillmentPending,
		RefPreviousSaleID:      &s.ID,
		CreatedAt:              at,
	}
	successor.Items = make([]Item, len(s.Items))
	for i, item := range s.Items {
		copied := item
		copied.ID = id.New()
		if item.Discount != nil {
			d := *item.Discount
			copied.Discount = &d
		}
		successor.Items[i] = copied
	}
	if s.OrderDiscount != nil {
		d := *s.OrderDiscount
		successor.OrderDiscount = &d
	}
	successor.Recalculate()
	return successor, nil
}
