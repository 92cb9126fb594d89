package sync

import (
	"time"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

// Event type names published to the outbox. These are boundary contracts;
// downstream consumers (reports, inventory) subscribe by these names.
const (
	EventSaleFinalized     = "sale.finalized"
	EventCashSessionOpened = "cash.session_opened"
	EventCashSessionClosed = "cash.session_closed"
)

// DualAmount is a USD/KHR money pair. KHR is whole riel.
type DualAmount struct {
	Usd types.Money `json:"usd"`
	Khr int64       `json:"khr"`
}

// SaleFinalizedEvent is emitted once per finalized sale.
type SaleFinalizedEvent struct {
	TenantID    id.ID             `json:"tenantId"`
	BranchID    id.ID             `json:"branchId"`
	SaleID      id.ID             `json:"saleId"`
	Lines       []SaleEventLine   `json:"lines"`
	Totals      SaleEventTotals   `json:"totals"`
	Tenders     []SaleEventTender `json:"tenders"`
	FinalizedAt time.Time         `json:"finalizedAt"`
	ActorID     id.ID             `json:"actorId"`
}

// SaleEventLine carries a finalized line quantity.
type SaleEventLine struct {
	MenuItemID id.ID `json:"menuItemId"`
	Qty        int   `json:"qty"`
}

// SaleEventTotals carries the finalized currency totals.
type SaleEventTotals struct {
	SubtotalUsd  types.Money `json:"subtotalUsd"`
	TotalUsd     types.Money `json:"totalUsd"`
	TotalKhr     int64       `json:"totalKhr"`
	VatAmountUsd types.Money `json:"vatAmountUsd"`
}

// SaleEventTender is the single tender used to settle the sale.
type SaleEventTender struct {
	Method    string      `json:"method"`
	AmountUsd types.Money `json:"amountUsd"`
	AmountKhr int64       `json:"amountKhr"`
}

// CashSessionOpenedEvent is emitted once per opened session.
type CashSessionOpenedEvent struct {
	TenantID     id.ID      `json:"tenantId"`
	BranchID     id.ID      `json:"branchId"`
	SessionID    id.ID      `json:"sessionId"`
	OpenedBy     id.ID      `json:"openedBy"`
	OpeningFloat DualAmount `json:"openingFloat"`
	OpenedAt     time.Time  `json:"openedAt"`
}

// CashSessionClosedEvent is emitted once per closed session, whether the
// close landed in CLOSED or PENDING_REVIEW.
type CashSessionClosedEvent struct {
	TenantID     id.ID      `json:"tenantId"`
	BranchID     id.ID      `json:"branchId"`
	SessionID    id.ID      `json:"sessionId"`
	ClosedBy     id.ID      `json:"closedBy"`
	ClosedAt     time.Time  `json:"closedAt"`
	ExpectedCash DualAmount `json:"expectedCash"`
	ActualCash   DualAmount `json:"actualCash"`
	Variance     DualAmount `json:"variance"`
	Status       string     `json:"status"`
}
