// Package ops models client-submitted operations: the envelope shared by all
// operation types and one strongly-typed payload per type. Payloads are
// decoded exactly once, at the apply pipeline boundary.
package ops

import (
	"encoding/json"
	"time"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

// Type enumerates the supported operation types.
type Type string

const (
	TypeSaleFinalized     Type = "SALE_FINALIZED"
	TypeCashSessionOpened Type = "CASH_SESSION_OPENED"
	TypeCashSessionClosed Type = "CASH_SESSION_CLOSED"
)

// Known reports whether t is a supported operation type.
func (t Type) Known() bool {
	switch t {
	case TypeSaleFinalized, TypeCashSessionOpened, TypeCashSessionClosed:
		return true
	}
	return false
}

// Operation is the envelope submitted by a terminal. ClientOperationID is
// generated client-side and, together with the tenant, identifies the
// operation for idempotent application. Payload stays opaque until
// DecodePayload narrows it by Type.
type Operation struct {
	ClientOperationID string          `json:"clientOperationId"`
	Type              Type            `json:"type"`
	BranchID          *id.ID          `json:"branchId,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
	Payload           json.RawMessage `json:"payload"`
}

// Validate checks the envelope shape.
func (o Operation) Validate() error {
	if o.ClientOperationID == "" {
		return apperror.NewValidation("clientOperationId is required")
	}
	if !o.Type.Known() {
		return apperror.NewValidation("unknown operation type").WithDetail("type", string(o.Type))
	}
	return nil
}

// SaleLine is one requested sale line.
type SaleLine struct {
	MenuItemID id.ID    `json:"menuItemId"`
	Quantity   int      `json:"quantity"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

// SaleFinalizedPayload finalizes an offline-built sale in one operation.
type SaleFinalizedPayload struct {
	ClientSaleUUID  string       `json:"clientSaleUuid"`
	SaleType        string       `json:"saleType"`
	Lines           []SaleLine   `json:"lines"`
	TenderCurrency  string       `json:"tenderCurrency"`
	PaymentMethod   string       `json:"paymentMethod"`
	CashReceivedUsd *types.Money `json:"cashReceivedUsd,omitempty"`
}

// CashSessionOpenedPayload opens a cash session with its float.
type CashSessionOpenedPayload struct {
	RegisterID      *id.ID      `json:"registerId,omitempty"`
	OpeningFloatUsd types.Money `json:"openingFloatUsd"`
	OpeningFloatKhr types.Money `json:"openingFloatKhr"`
	Note            string      `json:"note,omitempty"`
}

// CashSessionClosedPayload closes a session with the counted drawer.
type CashSessionClosedPayload struct {
	SessionID      id.ID       `json:"sessionId"`
	CountedCashUsd types.Money `json:"countedCashUsd"`
	CountedCashKhr types.Money `json:"countedCashKhr"`
	Note           string      `json:"note,omitempty"`
}

// DecodePayload parses the opaque payload into the variant matching o.Type.
// A malformed payload is a deterministic validation failure.
func (o Operation) DecodePayload() (any, error) {
	switch o.Type {
	case TypeSaleFinalized:
		var p SaleFinalizedPayload
		if err := strictUnmarshal(o.Payload, &p); err != nil {
			return nil, err
		}
		if p.ClientSaleUUID == "" {
			return nil, apperror.NewValidation("clientSaleUuid is required")
		}
		if len(p.Lines) == 0 {
			return nil, apperror.NewValidation("at least one sale line is required")
		}
		return p, nil

	case TypeCashSessionOpened:
		var p CashSessionOpenedPayload
		if err := strictUnmarshal(o.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil

	case TypeCashSessionClosed:
		var p CashSessionClosedPayload
		if err := strictUnmarshal(o.Payload, &p); err != nil {
			return nil, err
		}
		if id.IsNil(p.SessionID) {
			return nil, apperror.NewValidation("sessionId is required")
		}
		return p, nil

	default:
		return nil, apperror.NewValidation("unknown operation type").WithDetail("type", string(o.Type))
	}
}

func strictUnmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperror.NewValidation("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperror.NewValidation("malformed operation payload").WithCause(err)
	}
	return nil
}
