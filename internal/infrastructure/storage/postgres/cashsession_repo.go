package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/cashsession"
	"khmerpos/internal/domain/sale"
)

const (
	cashSessionsTable  = "cash_sessions"
	cashRegistersTable = "cash_registers"
)

// Compile-time checks.
var (
	_ cashsession.Repository         = (*CashSessionRepo)(nil)
	_ sale.CashDrawerRecorder        = (*CashSessionRepo)(nil)
	_ cashsession.RegisterRepository = (*RegisterRepo)(nil)
)

// CashSessionRepo is the PostgreSQL cash session repository. It also resolves
// registers and records finalized cash takings into the open drawer.
type CashSessionRepo struct {
	txManager *TxManager
}

// NewCashSessionRepo creates a new cash session repository.
func NewCashSessionRepo(txManager *TxManager) *CashSessionRepo {
	return &CashSessionRepo{txManager: txManager}
}

// Builder returns a new squirrel builder.
func (r *CashSessionRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func sessionMap(s *cashsession.Session) map[string]any {
	return map[string]any{
		"id":                s.ID,
		"tenant_id":         s.TenantID,
		"branch_id":         s.BranchID,
		"register_id":       s.RegisterID,
		"opened_by":         s.OpenedBy,
		"closed_by":         s.ClosedBy,
		"opening_float_usd": s.OpeningFloatUsd,
		"opening_float_khr": s.OpeningFloatKhr,
		"expected_cash_usd": s.ExpectedCashUsd,
		"expected_cash_khr": s.ExpectedCashKhr,
		"counted_cash_usd":  s.CountedCashUsd,
		"counted_cash_khr":  s.CountedCashKhr,
		"variance_usd":      s.VarianceUsd,
		"variance_khr":      s.VarianceKhr,
		"status":            s.Status,
		"open_note":         s.OpenNote,
		"opened_at":         s.OpenedAt,
		"closed_at":         s.ClosedAt,
	}
}

var sessionColumns = []string{
	"id", "tenant_id", "branch_id", "register_id", "opened_by", "closed_by",
	"opening_float_usd", "opening_float_khr",
	"expected_cash_usd", "expected_cash_khr",
	"counted_cash_usd", "counted_cash_khr",
	"variance_usd", "variance_khr",
	"status", "open_note", "opened_at", "closed_at",
}

// Create inserts a new session.
func (r *CashSessionRepo) Create(ctx context.Context, s *cashsession.Session) error {
	sql, args, err := r.Builder().Insert(cashSessionsTable).SetMap(sessionMap(s)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Update rewrites the session row.
func (r *CashSessionRepo) Update(ctx context.Context, s *cashsession.Session) error {
	m := sessionMap(s)
	delete(m, "id")
	delete(m, "tenant_id")

	sql, args, err := r.Builder().Update(cashSessionsTable).SetMap(m).
		Where(squirrel.Eq{"id": s.ID, "tenant_id": s.TenantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// GetByID loads a session.
func (r *CashSessionRepo) GetByID(ctx context.Context, tenantID, sessionID id.ID) (*cashsession.Session, error) {
	return r.findOne(ctx, squirrel.Eq{"id": sessionID, "tenant_id": tenantID})
}

// FindOpen returns the OPEN session for a register, or the OPEN
// device-agnostic session for the branch when registerID is nil.
func (r *CashSessionRepo) FindOpen(ctx context.Context, tenantID, branchID id.ID, registerID *id.ID) (*cashsession.Session, error) {
	where := squirrel.Eq{
		"tenant_id": tenantID,
		"branch_id": branchID,
		"status":    cashsession.StatusOpen,
	}
	if registerID != nil {
		where["register_id"] = *registerID
	} else {
		where["register_id"] = nil
	}
	return r.findOne(ctx, where)
}

func (r *CashSessionRepo) findOne(ctx context.Context, where squirrel.Eq) (*cashsession.Session, error) {
	sql, args, err := r.Builder().
		Select(sessionColumns...).
		From(cashSessionsTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s cashsession.Session
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// AddExpectedCash increments expected cash on every OPEN session of the
// branch. Touching zero rows is fine; cash takings without an open drawer
// are simply untracked.
func (r *CashSessionRepo) AddExpectedCash(ctx context.Context, tenantID, branchID id.ID, usd, khr types.Money) error {
	if usd.IsZero() && khr.IsZero() {
		return nil
	}
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE `+cashSessionsTable+`
		SET expected_cash_usd = expected_cash_usd + $1,
		    expected_cash_khr = expected_cash_khr + $2
		WHERE tenant_id = $3 AND branch_id = $4 AND status = $5
	`, usd, khr, tenantID, branchID, cashsession.StatusOpen)
	if err != nil {
		return fmt.Errorf("add expected cash: %w", err)
	}
	return nil
}

// RegisterRepo resolves cash register devices.
type RegisterRepo struct {
	txManager *TxManager
}

// NewRegisterRepo creates a new register repository.
func NewRegisterRepo(txManager *TxManager) *RegisterRepo {
	return &RegisterRepo{txManager: txManager}
}

// GetByID returns the register or nil when it does not exist within the
// tenant/branch.
func (r *RegisterRepo) GetByID(ctx context.Context, tenantID, branchID, registerID id.ID) (*cashsession.Register, error) {
	row := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, branch_id, name, status
		FROM `+cashRegistersTable+`
		WHERE id = $1 AND tenant_id = $2 AND branch_id = $3
	`, registerID, tenantID, branchID)

	var reg cashsession.Register
	err := row.Scan(&reg.ID, &reg.TenantID, &reg.BranchID, &reg.Name, &reg.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan register: %w", err)
	}
	return &reg, nil
}
