package sync

import (
	"encoding/json"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/cashsession"
	"khmerpos/internal/domain/ledger"
	"khmerpos/internal/domain/ops"
)

// OperationResult is the outcome of one operation in a batch. A replayed
// operation carries Deduped=true and is otherwise identical to its original
// terminal outcome.
type OperationResult struct {
	ClientOperationID string          `json:"clientOperationId"`
	Type              ops.Type        `json:"type"`
	Status            ledger.Status   `json:"status"`
	Result            json.RawMessage `json:"result,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	Deduped           bool            `json:"deduped"`
}

// BatchResult is the outcome of ApplyBatch. StoppedAtIndex is set when a
// FAILED outcome halted the batch before its end.
type BatchResult struct {
	Results        []OperationResult `json:"results"`
	StoppedAtIndex *int              `json:"stoppedAtIndex,omitempty"`
}

// SaleFinalizedResult is the stored success payload for SALE_FINALIZED.
type SaleFinalizedResult struct {
	SaleID    id.ID       `json:"saleId"`
	TotalUsd  types.Money `json:"totalUsd"`
	TotalKhr  int64       `json:"totalKhr"`
	ChangeUsd types.Money `json:"changeUsd"`
}

// CashSessionOpenedResult is the stored success payload for CASH_SESSION_OPENED.
type CashSessionOpenedResult struct {
	SessionID id.ID `json:"sessionId"`
}

// CashSessionClosedResult is the stored success payload for CASH_SESSION_CLOSED.
type CashSessionClosedResult struct {
	SessionID   id.ID              `json:"sessionId"`
	Status      cashsession.Status `json:"status"`
	VarianceUsd types.Money        `json:"varianceUsd"`
	VarianceKhr types.Money        `json:"varianceKhr"`
}

func replayResult(rec *ledger.Record) OperationResult {
	return OperationResult{
		ClientOperationID: rec.ClientOperationID,
		Type:              rec.Type,
		Status:            rec.Status,
		Result:            rec.Result,
		ErrorCode:         rec.ErrorCode,
		ErrorMessage:      rec.ErrorMessage,
		Deduped:           true,
	}
}
