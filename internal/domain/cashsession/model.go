// Package cashsession provides the CashSession aggregate: the lifecycle of a
// cash drawer from opening float to counted close, with variance review.
package cashsession

import (
	"time"

	"github.com/shopspring/decimal"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

// Status is the session lifecycle status.
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusClosed        Status = "CLOSED"
	StatusPendingReview Status = "PENDING_REVIEW"
)

// VarianceThresholdUsd is the absolute USD variance above which a closing
// session escalates to PENDING_REVIEW instead of CLOSED.
var VarianceThresholdUsd = decimal.NewFromInt(5)

// Session is the aggregate root. RegisterID is nil for device-agnostic
// sessions; at most one session may be OPEN per (tenant, branch, register),
// or per (tenant, branch) when no register is bound.
type Session struct {
	ID         id.ID  `db:"id" json:"id"`
	TenantID   id.ID  `db:"tenant_id" json:"tenantId"`
	BranchID   id.ID  `db:"branch_id" json:"branchId"`
	RegisterID *id.ID `db:"register_id" json:"registerId,omitempty"`
	OpenedBy   id.ID  `db:"opened_by" json:"openedBy"`
	ClosedBy   *id.ID `db:"closed_by" json:"closedBy,omitempty"`

	OpeningFloatUsd types.Money `db:"opening_float_usd" json:"openingFloatUsd"`
	OpeningFloatKhr types.Money `db:"opening_float_khr" json:"openingFloatKhr"`

	// Running balance: opening float plus cash takings recorded while open.
	ExpectedCashUsd types.Money `db:"expected_cash_usd" json:"expectedCashUsd"`
	ExpectedCashKhr types.Money `db:"expected_cash_khr" json:"expectedCashKhr"`

	CountedCashUsd *types.Money `db:"counted_cash_usd" json:"countedCashUsd,omitempty"`
	CountedCashKhr *types.Money `db:"counted_cash_khr" json:"countedCashKhr,omitempty"`
	VarianceUsd    *types.Money `db:"variance_usd" json:"varianceUsd,omitempty"`
	VarianceKhr    *types.Money `db:"variance_khr" json:"varianceKhr,omitempty"`

	Status   Status `db:"status" json:"status"`
	OpenNote string `db:"open_note" json:"openNote,omitempty"`

	OpenedAt time.Time  `db:"opened_at" json:"openedAt"`
	ClosedAt *time.Time `db:"closed_at" json:"closedAt,omitempty"`
}

// Open creates a new OPEN session with expected cash seeded from the float.
func Open(tenantID, branchID id.ID, registerID *id.ID, openedBy id.ID, floatUsd, floatKhr types.Money, note string, now time.Time) (*Session, error) {
	if floatUsd.IsNegative() || floatKhr.IsNegative() {
		return nil, apperror.NewValidation("opening float must not be negative")
	}
	return &Session{
		ID:              id.New(),
		TenantID:        tenantID,
		BranchID:        branchID,
		RegisterID:      registerID,
		OpenedBy:        openedBy,
		OpeningFloatUsd: floatUsd,
		OpeningFloatKhr: floatKhr,
		ExpectedCashUsd: floatUsd,
		ExpectedCashKhr: floatKhr,
		Status:          StatusOpen,
		OpenNote:        note,
		OpenedAt:        now,
	}, nil
}

// RecordCashIn adds cash takings to the running expected balance.
func (s *Session) RecordCashIn(usd, khr types.Money) error {
	if s.Status != StatusOpen {
		return apperror.NewBusinessRule(apperror.CodeSessionNotOpen, "cash can only be recorded on an open session")
	}
	s.ExpectedCashUsd = s.ExpectedCashUsd.Add(usd)
	s.ExpectedCashKhr = s.ExpectedCashKhr.Add(khr)
	return nil
}

// Close counts the drawer and transitions the session to its terminal status.
// Variance is counted minus expected, per currency. A USD variance beyond
// VarianceThresholdUsd escalates to PENDING_REVIEW; both outcomes are
// successful closes, the distinction is business state.
func (s *Session) Close(closedBy id.ID, countedUsd, countedKhr types.Money, now time.Time) error {
	if s.Status != StatusOpen {
		return apperror.NewBusinessRule(apperror.CodeSessionNotOpen, "only an open session can be closed").
			WithDetail("status", string(s.Status))
	}
	if countedUsd.IsNegative() || countedKhr.IsNegative() {
		return apperror.NewValidation("counted cash must not be negative")
	}

	varianceUsd := countedUsd.Sub(s.ExpectedCashUsd)
	varianceKhr := countedKhr.Sub(s.ExpectedCashKhr)

	s.CountedCashUsd = &countedUsd
	s.CountedCashKhr = &countedKhr
	s.VarianceUsd = &varianceUsd
	s.VarianceKhr = &varianceKhr
	s.ClosedBy = &closedBy
	s.ClosedAt = &now

	if varianceUsd.Abs().GreaterThan(VarianceThresholdUsd) {
		s.Status = StatusPendingReview
	} else {
		s.Status = StatusClosed
	}
	return nil
}
