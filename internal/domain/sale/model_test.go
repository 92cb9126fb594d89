package sale

import (
	"testing"
	"time"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError with code %s, got %v", code, err)
	}
	if appErr.Code != code {
		t.Errorf("error code mismatch\nwant: %s\ngot:  %s", code, appErr.Code)
	}
}

func TestNewDraft_LocksPricingConfig(t *testing.T) {
	cfg := testConfig(true, true)
	s := newTestDraft(t, cfg)

	if !s.FxRate.Equal(cfg.FxRate.Rate) {
		t.Errorf("FxRate not locked: %s", s.FxRate)
	}
	if !s.VatEnabled || !s.VatRate.Equal(cfg.Vat.Rate) {
		t.Error("VAT config not locked")
	}
	if !s.RoundingEnabled || s.RoundingGranularityKhr != 100 {
		t.Error("rounding config not locked")
	}
	if s.State != StateDraft {
		t.Errorf("expected draft state, got %s", s.State)
	}
}

func TestAddItem_Validation(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))

	if _, err := s.AddItem(id.New(), "item", types.MustMoney("1.00"), 0); err == nil {
		t.Error("expected error for zero quantity")
	} else {
		assertCode(t, err, apperror.CodeValidation)
	}
}

func TestFinalize_RequiresItems(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))

	err := s.Finalize(time.Now())
	assertCode(t, err, apperror.CodeSaleEmpty)
}

func TestFinalize_Transitions(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))
	mustAddItem(t, s, "1.00", 1)

	if err := s.Finalize(time.Now()); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if s.State != StateFinalized || s.FinalizedAt == nil {
		t.Errorf("expected finalized state with timestamp, got %s", s.State)
	}

	// A finalized sale rejects further mutation.
	if _, err := s.AddItem(id.New(), "late", types.MustMoney("1.00"), 1); err == nil {
		t.Error("expected error adding item to finalized sale")
	} else {
		assertCode(t, err, apperror.CodeSaleNotDraft)
	}
	if err := s.Finalize(time.Now()); err == nil {
		t.Error("expected error finalizing twice")
	}
}

func TestVoid_OnlyFinalized(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))
	mustAddItem(t, s, "1.00", 1)

	err := s.Void(time.Now())
	assertCode(t, err, apperror.CodeSaleNotFinalized)

	if err := s.Finalize(time.Now()); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := s.Void(time.Now()); err != nil {
		t.Fatalf("Void failed: %v", err)
	}
	if s.State != StateVoided || s.VoidedAt == nil {
		t.Errorf("expected voided state with timestamp, got %s", s.State)
	}
}

func TestReopen_CreatesLinkedSuccessor(t *testing.T) {
	s := newTestDraft(t, testConfig(true, true))
	mustAddItem(t, s, "2.50", 2)
	if err := s.Finalize(time.Now()); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	successor, err := s.Reopen(time.Now())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	if s.State != StateReopened {
		t.Errorf("original should be reopened, got %s", s.State)
	}
	if successor.State != StateDraft {
		t.Errorf("successor should be a draft, got %s", successor.State)
	}
	if successor.RefPreviousSaleID == nil || *successor.RefPreviousSaleID != s.ID {
		t.Error("successor not linked to original")
	}
	if len(successor.Items) != 1 || successor.Items[0].ID == s.Items[0].ID {
		t.Error("successor lines must be copies with fresh ids")
	}
	if !successor.FxRate.Equal(s.FxRate) {
		t.Error("successor must inherit the original pricing config")
	}
	if !successor.Totals.TotalUsd.Equal(s.Totals.TotalUsd) {
		t.Errorf("successor totals diverge: %s vs %s", successor.Totals.TotalUsd, s.Totals.TotalUsd)
	}
}

func TestSetTenderCurrency_RejectsUnknown(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))

	err := s.SetTenderCurrency(Currency("THB"))
	assertCode(t, err, apperror.CodeValidation)
}

func TestSetPaymentMethod_RejectsNegativeCash(t *testing.T) {
	s := newTestDraft(t, testConfig(false, false))

	negative := types.MustMoney("-1.00")
	err := s.SetPaymentMethod(PaymentCash, &negative)
	assertCode(t, err, apperror.CodeValidation)
}
