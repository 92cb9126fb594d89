package sync

import (
	"context"
	"time"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/domain/cashsession"
	"khmerpos/internal/domain/ops"
	"khmerpos/internal/domain/ports"
	"khmerpos/pkg/logger"
)

// applySessionOpened validates register availability and opens a session.
// At most one session may be OPEN per register, or per branch for
// device-agnostic sessions.
func (p *Pipeline) applySessionOpened(ctx context.Context, act actor.Context, pl ops.CashSessionOpenedPayload, occurred time.Time) (*applied, error) {
	if pl.RegisterID != nil {
		reg, err := p.registers.GetByID(ctx, act.TenantID, act.BranchID, *pl.RegisterID)
		if err != nil {
			return nil, err
		}
		if reg == nil {
			return nil, apperror.NewDependencyMissing("cash register", *pl.RegisterID)
		}
		if reg.Status != cashsession.RegisterActive {
			return nil, apperror.NewValidation("cash register is not active").
				WithDetail("register_id", *pl.RegisterID).
				WithDetail("status", string(reg.Status))
		}
		open, err := p.sessions.FindOpen(ctx, act.TenantID, act.BranchID, pl.RegisterID)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return nil, apperror.NewSessionAlreadyOpen("register").
				WithDetail("session_id", open.ID)
		}
	} else {
		open, err := p.sessions.FindOpen(ctx, act.TenantID, act.BranchID, nil)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return nil, apperror.NewSessionAlreadyOpen("branch").
				WithDetail("session_id", open.ID)
		}
	}

	sess, err := cashsession.Open(act.TenantID, act.BranchID, pl.RegisterID, act.EmployeeID,
		pl.OpeningFloatUsd, pl.OpeningFloatKhr, pl.Note, occurred)
	if err != nil {
		return nil, err
	}

	if err := p.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	logger.Info(ctx, "cash session opened",
		"session_id", sess.ID,
		"register_id", pl.RegisterID)

	return &applied{
		resourceType: "cash_session",
		resourceID:   sess.ID.String(),
		result:       CashSessionOpenedResult{SessionID: sess.ID},
		events: []ports.Event{{
			Type:          EventCashSessionOpened,
			AggregateType: "CashSession",
			AggregateID:   sess.ID,
			Payload: CashSessionOpenedEvent{
				TenantID:  sess.TenantID,
				BranchID:  sess.BranchID,
				SessionID: sess.ID,
				OpenedBy:  sess.OpenedBy,
				OpeningFloat: DualAmount{
					Usd: sess.OpeningFloatUsd,
					Khr: sess.OpeningFloatKhr.IntPart(),
				},
				OpenedAt: sess.OpenedAt,
			},
		}},
		auditDetails: map[string]any{
			"opening_float_usd": sess.OpeningFloatUsd,
			"opening_float_khr": sess.OpeningFloatKhr,
		},
	}, nil
}

// applySessionClosed counts the drawer and closes the session. A variance
// beyond the review threshold lands in PENDING_REVIEW; both outcomes are
// successful applications.
func (p *Pipeline) applySessionClosed(ctx context.Context, act actor.Context, pl ops.CashSessionClosedPayload, occurred time.Time) (*applied, error) {
	sess, err := p.sessions.GetByID(ctx, act.TenantID, pl.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperror.NewDependencyMissing("cash session", pl.SessionID)
	}
	if sess.BranchID != act.BranchID {
		return nil, apperror.NewValidation("session belongs to another branch").
			WithDetail("session_id", pl.SessionID)
	}

	if err := sess.Close(act.EmployeeID, pl.CountedCashUsd, pl.CountedCashKhr, occurred); err != nil {
		return nil, err
	}

	if err := p.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	logger.Info(ctx, "cash session closed",
		"session_id", sess.ID,
		"status", string(sess.Status),
		"variance_usd", sess.VarianceUsd)

	return &applied{
		resourceType: "cash_session",
		resourceID:   sess.ID.String(),
		result: CashSessionClosedResult{
			SessionID:   sess.ID,
			Status:      sess.Status,
			VarianceUsd: *sess.VarianceUsd,
			VarianceKhr: *sess.VarianceKhr,
		},
		events: []ports.Event{{
			Type:          EventCashSessionClosed,
			AggregateType: "CashSession",
			AggregateID:   sess.ID,
			Payload: CashSessionClosedEvent{
				TenantID:  sess.TenantID,
				BranchID:  sess.BranchID,
				SessionID: sess.ID,
				ClosedBy:  *sess.ClosedBy,
				ClosedAt:  *sess.ClosedAt,
				ExpectedCash: DualAmount{
					Usd: sess.ExpectedCashUsd,
					Khr: sess.ExpectedCashKhr.IntPart(),
				},
				ActualCash: DualAmount{
					Usd: *sess.CountedCashUsd,
					Khr: sess.CountedCashKhr.IntPart(),
				},
				Variance: DualAmount{
					Usd: *sess.VarianceUsd,
					Khr: sess.VarianceKhr.IntPart(),
				},
				Status: string(sess.Status),
			},
		}},
		auditDetails: map[string]any{
			"expected_cash_usd": sess.ExpectedCashUsd,
			"expected_cash_khr": sess.ExpectedCashKhr,
			"counted_cash_usd":  *sess.CountedCashUsd,
			"counted_cash_khr":  *sess.CountedCashKhr,
			"variance_usd":      *sess.VarianceUsd,
			"variance_khr":      *sess.VarianceKhr,
			"status":            string(sess.Status),
		},
	}, nil
}
