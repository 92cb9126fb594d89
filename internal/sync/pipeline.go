// Package sync implements the transactional apply pipeline: ordered,
// idempotent application of client-submitted operation batches. Each
// operation runs in its own database transaction; the operation ledger row
// survives business rejections via a savepoint so resubmissions replay the
// stored outcome instead of re-evaluating rules.
package sync

import (
	"context"
	"encoding/json"
	"time"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/tx"
	"khmerpos/internal/domain/cashsession"
	"khmerpos/internal/domain/ledger"
	"khmerpos/internal/domain/ops"
	"khmerpos/internal/domain/policy"
	"khmerpos/internal/domain/ports"
	"khmerpos/internal/domain/sale"
	"khmerpos/pkg/logger"
)

// savepointName guards the domain writes of one operation. The ledger row is
// written before it, so a rollback keeps the row while undoing domain work.
const savepointName = "op_apply"

// Pipeline applies operation batches.
type Pipeline struct {
	txm       tx.SavepointManager
	ledger    ledger.Ledger
	sales     sale.Repository
	drawer    sale.CashDrawerRecorder
	sessions  cashsession.Repository
	registers cashsession.RegisterRepository
	policies  ports.PolicyPort
	menu      ports.MenuPort
	guard     ports.BranchGuardPort
	audit     ports.AuditWriterPort
	events    ports.EventPublisher
	discounts *policy.Engine
}

// Config collects the pipeline's collaborators.
type Config struct {
	TxManager      tx.SavepointManager
	Ledger         ledger.Ledger
	Sales          sale.Repository
	CashDrawer     sale.CashDrawerRecorder
	Sessions       cashsession.Repository
	Registers      cashsession.RegisterRepository
	Policies       ports.PolicyPort
	Menu           ports.MenuPort
	BranchGuard    ports.BranchGuardPort
	AuditWriter    ports.AuditWriterPort
	Events         ports.EventPublisher
	DiscountEngine *policy.Engine
}

// NewPipeline creates the apply pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		txm:       cfg.TxManager,
		ledger:    cfg.Ledger,
		sales:     cfg.Sales,
		drawer:    cfg.CashDrawer,
		sessions:  cfg.Sessions,
		registers: cfg.Registers,
		policies:  cfg.Policies,
		menu:      cfg.Menu,
		guard:     cfg.BranchGuard,
		audit:     cfg.AuditWriter,
		events:    cfg.Events,
		discounts: cfg.DiscountEngine,
	}
}

// ApplyBatch processes operations strictly in order for one actor context.
// Operation i+1 never begins before operation i's outcome is known, and a
// FAILED outcome (fresh or replayed) halts the batch: later operations are
// assumed causally dependent on earlier ones.
//
// The returned error is reserved for unexpected infrastructure faults; every
// business rejection surfaces as a FAILED OperationResult.
func (p *Pipeline) ApplyBatch(ctx context.Context, act actor.Context, operations []ops.Operation) (BatchResult, error) {
	res := BatchResult{Results: make([]OperationResult, 0, len(operations))}

	for i := range operations {
		outcome, err := p.applyOne(ctx, act, operations[i])
		if err != nil {
			return res, err
		}
		res.Results = append(res.Results, outcome)

		if outcome.Status == ledger.StatusFailed {
			idx := i
			res.StoppedAtIndex = &idx
			logger.Info(ctx, "operation batch halted",
				"client_operation_id", outcome.ClientOperationID,
				"error_code", outcome.ErrorCode,
				"index", i)
			break
		}
	}

	return res, nil
}

// applyOne runs the per-operation algorithm: dedup lookup, conditional
// PROCESSING insert, branch checks, savepoint-guarded domain apply, ledger
// finalize, audit and event emission, all inside one transaction.
func (p *Pipeline) applyOne(ctx context.Context, act actor.Context, op ops.Operation) (OperationResult, error) {
	existing, err := p.ledger.FindByKey(ctx, act.TenantID, op.ClientOperationID)
	if err != nil {
		return OperationResult{}, err
	}
	if existing != nil {
		return replayResult(existing), nil
	}

	occurred := op.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var result OperationResult
	raced := false

	err = p.txm.RunInTransaction(ctx, func(txCtx context.Context) error {
		inserted, err := p.ledger.InsertProcessing(txCtx, &ledger.Record{
			TenantID:          act.TenantID,
			ClientOperationID: op.ClientOperationID,
			BranchID:          act.BranchID,
			Type:              op.Type,
			Payload:           op.Payload,
			OccurredAt:        occurred,
			Status:            ledger.StatusProcessing,
		})
		if err != nil {
			return err
		}
		if inserted == nil {
			// A concurrent writer holds the key. Informational, not an
			// error: commit nothing and replay the existing record.
			raced = true
			return nil
		}

		applied, applyErr := p.execute(txCtx, act, op, occurred)
		if applyErr != nil {
			appErr, ok := apperror.AsAppError(applyErr)
			if !ok {
				// Unexpected fault: abort the whole transaction,
				// ledger insert included. A naive retry is correct.
				return applyErr
			}
			return p.finalizeFailed(txCtx, act, op, occurred, appErr, &result)
		}
		return p.finalizeApplied(txCtx, act, op, occurred, applied, &result)
	})
	if err != nil {
		return OperationResult{}, err
	}

	if raced {
		rec, err := p.ledger.FindByKey(ctx, act.TenantID, op.ClientOperationID)
		if err != nil {
			return OperationResult{}, err
		}
		if rec == nil {
			// The racing transaction aborted after we observed its insert.
			// Report the operation as still in flight; a resubmission
			// re-applies it from scratch.
			return OperationResult{
				ClientOperationID: op.ClientOperationID,
				Type:              op.Type,
				Status:            ledger.StatusProcessing,
				Deduped:           true,
			}, nil
		}
		return replayResult(rec), nil
	}

	return result, nil
}

// applied carries the outputs of a successful domain apply.
type applied struct {
	resourceType string
	resourceID   string
	result       any
	events       []ports.Event
	auditDetails map[string]any
}

// execute validates the operation and runs its type-specific domain logic
// behind a savepoint. Returned *apperror.AppError values are deterministic
// apply failures; any other error aborts the enclosing transaction.
func (p *Pipeline) execute(ctx context.Context, act actor.Context, op ops.Operation, occurred time.Time) (*applied, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	// The payload's declared branch must match the authenticated one.
	if op.BranchID != nil && *op.BranchID != act.BranchID {
		return nil, apperror.NewBranchMismatch(*op.BranchID, act.BranchID)
	}

	if err := p.guard.AssertBranchActive(ctx, act.TenantID, act.BranchID); err != nil {
		return nil, err
	}

	payload, err := op.DecodePayload()
	if err != nil {
		return nil, err
	}

	if err := p.txm.Savepoint(ctx, savepointName); err != nil {
		return nil, err
	}

	var out *applied
	switch pl := payload.(type) {
	case ops.SaleFinalizedPayload:
		out, err = p.applySaleFinalized(ctx, act, pl, occurred)
	case ops.CashSessionOpenedPayload:
		out, err = p.applySessionOpened(ctx, act, pl, occurred)
	case ops.CashSessionClosedPayload:
		out, err = p.applySessionClosed(ctx, act, pl, occurred)
	default:
		err = apperror.NewValidation("unknown operation type").WithDetail("type", string(op.Type))
	}

	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			// Undo domain writes only; the PROCESSING ledger row survives.
			if rbErr := p.txm.RollbackTo(ctx, savepointName); rbErr != nil {
				return nil, rbErr
			}
		}
		return nil, err
	}

	if err := p.txm.Release(ctx, savepointName); err != nil {
		return nil, err
	}
	return out, nil
}

// finalizeApplied marks the ledger APPLIED, writes the audit entry and
// appends events to the outbox, all in the same transaction.
func (p *Pipeline) finalizeApplied(ctx context.Context, act actor.Context, op ops.Operation, occurred time.Time, out *applied, result *OperationResult) error {
	resultJSON, err := json.Marshal(out.result)
	if err != nil {
		return err
	}

	if err := p.ledger.MarkApplied(ctx, act.TenantID, op.ClientOperationID, resultJSON); err != nil {
		return err
	}

	if err := p.audit.Write(ctx, ports.AuditEntry{
		TenantID:     act.TenantID,
		BranchID:     act.BranchID,
		EmployeeID:   act.EmployeeID,
		ActorRole:    act.Role,
		ActionType:   string(op.Type),
		ResourceType: out.resourceType,
		ResourceID:   out.resourceID,
		Outcome:      ports.AuditOutcomeSuccess,
		OccurredAt:   occurred,
		Details:      out.auditDetails,
	}); err != nil {
		return err
	}

	for _, ev := range out.events {
		if err := p.events.Publish(ctx, ev); err != nil {
			return err
		}
	}

	*result = OperationResult{
		ClientOperationID: op.ClientOperationID,
		Type:              op.Type,
		Status:            ledger.StatusApplied,
		Result:            resultJSON,
	}
	return nil
}

// finalizeFailed marks the ledger FAILED and writes a denial/failure audit
// entry. The commit persists both while the domain writes stay rolled back.
func (p *Pipeline) finalizeFailed(ctx context.Context, act actor.Context, op ops.Operation, occurred time.Time, appErr *apperror.AppError, result *OperationResult) error {
	if err := p.ledger.MarkFailed(ctx, act.TenantID, op.ClientOperationID, appErr.Code, appErr.Message); err != nil {
		return err
	}

	outcome := ports.AuditOutcomeFailure
	if appErr.DenialReason != "" {
		outcome = ports.AuditOutcomeDenied
	}

	if err := p.audit.Write(ctx, ports.AuditEntry{
		TenantID:     act.TenantID,
		BranchID:     act.BranchID,
		EmployeeID:   act.EmployeeID,
		ActorRole:    act.Role,
		ActionType:   string(op.Type),
		ResourceType: resourceTypeFor(op.Type),
		Outcome:      outcome,
		DenialReason: appErr.DenialReason,
		OccurredAt:   occurred,
		Details: map[string]any{
			"error_code":    appErr.Code,
			"error_message": appErr.Message,
		},
	}); err != nil {
		return err
	}

	*result = OperationResult{
		ClientOperationID: op.ClientOperationID,
		Type:              op.Type,
		Status:            ledger.StatusFailed,
		ErrorCode:         appErr.Code,
		ErrorMessage:      appErr.Message,
	}
	return nil
}

func resourceTypeFor(t ops.Type) string {
	switch t {
	case ops.TypeSaleFinalized:
		return "sale"
	case ops.TypeCashSessionOpened, ops.TypeCashSessionClosed:
		return "cash_session"
	default:
		return "operation"
	}
}
