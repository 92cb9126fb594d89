// Package dto defines the HTTP API request/response shapes.
package dto

import (
	"encoding/json"
	"time"
)

// SyncOperationRequest is one operation inside a sync batch.
type SyncOperationRequest struct {
	ClientOperationID string          `json:"clientOperationId" binding:"required"`
	Type              string          `json:"type" binding:"required"`
	BranchID          string          `json:"branchId,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
	Payload           json.RawMessage `json:"payload" binding:"required"`
}

// SyncBatchRequest is the body of POST /v1/sync/operations.
type SyncBatchRequest struct {
	Operations []SyncOperationRequest `json:"operations" binding:"required,min=1"`
}

// SyncOperationResponse mirrors one operation outcome.
type SyncOperationResponse struct {
	ClientOperationID string          `json:"clientOperationId"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	Result            json.RawMessage `json:"result,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	Deduped           bool            `json:"deduped"`
}

// SyncBatchResponse is the response of POST /v1/sync/operations.
type SyncBatchResponse struct {
	Results        []SyncOperationResponse `json:"results"`
	StoppedAtIndex *int                    `json:"stoppedAtIndex,omitempty"`
}
