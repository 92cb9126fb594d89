package ops

import (
	"encoding/json"
	"testing"

	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
)

func TestOperation_Validate(t *testing.T) {
	tests := []struct {
		name     string
		op       Operation
		wantCode string
	}{
		{
			name:     "missing client operation id",
			op:       Operation{Type: TypeSaleFinalized},
			wantCode: apperror.CodeValidation,
		},
		{
			name:     "unknown type",
			op:       Operation{ClientOperationID: "op-1", Type: "REFUND_ISSUED"},
			wantCode: apperror.CodeValidation,
		},
		{
			name: "valid",
			op:   Operation{ClientOperationID: "op-1", Type: TypeCashSessionOpened},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			appErr, ok := apperror.AsAppError(err)
			if !ok || appErr.Code != tt.wantCode {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestDecodePayload_SaleFinalized(t *testing.T) {
	menuItem := id.New()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name: "valid",
			payload: `{"clientSaleUuid":"sale-1","saleType":"DINE_IN",
				"lines":[{"menuItemId":"` + menuItem.String() + `","quantity":2}],
				"tenderCurrency":"USD","paymentMethod":"CASH"}`,
		},
		{
			name:    "missing client sale uuid",
			payload: `{"saleType":"DINE_IN","lines":[{"menuItemId":"` + menuItem.String() + `","quantity":1}]}`,
			wantErr: true,
		},
		{
			name:    "no lines",
			payload: `{"clientSaleUuid":"sale-1","lines":[]}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{`,
			wantErr: true,
		},
		{
			name:    "empty payload",
			payload: ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Operation{
				ClientOperationID: "op-1",
				Type:              TypeSaleFinalized,
				Payload:           json.RawMessage(tt.payload),
			}
			decoded, err := op.DecodePayload()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !apperror.IsAppError(err) {
					t.Fatalf("decode errors must be deterministic AppErrors, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePayload failed: %v", err)
			}
			pl, ok := decoded.(SaleFinalizedPayload)
			if !ok {
				t.Fatalf("wrong payload type %T", decoded)
			}
			if pl.ClientSaleUUID != "sale-1" || len(pl.Lines) != 1 {
				t.Errorf("payload not decoded: %+v", pl)
			}
		})
	}
}

func TestDecodePayload_CashSessionClosed(t *testing.T) {
	op := Operation{
		ClientOperationID: "op-1",
		Type:              TypeCashSessionClosed,
		Payload:           json.RawMessage(`{"countedCashUsd":"100.00","countedCashKhr":"0"}`),
	}
	if _, err := op.DecodePayload(); err == nil {
		t.Fatal("expected error for missing sessionId")
	}

	sessionID := id.New()
	op.Payload = json.RawMessage(`{"sessionId":"` + sessionID.String() + `","countedCashUsd":"100.00","countedCashKhr":"0"}`)
	decoded, err := op.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	pl := decoded.(CashSessionClosedPayload)
	if pl.SessionID != sessionID {
		t.Errorf("sessionId not decoded: %+v", pl)
	}
}
