package handlers

import (
	"github.com/gin-gonic/gin"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ops"
	"khmerpos/internal/infrastructure/http/v1/dto"
	"khmerpos/internal/sync"
)

// maxBatchSize bounds one sync request. Terminals chunk larger backlogs.
const maxBatchSize = 100

// SyncHandler applies operation batches submitted by POS terminals.
type SyncHandler struct {
	*BaseHandler
	pipeline *sync.Pipeline
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(base *BaseHandler, pipeline *sync.Pipeline) *SyncHandler {
	return &SyncHandler{BaseHandler: base, pipeline: pipeline}
}

// ApplyBatch handles POST /v1/sync/operations.
func (h *SyncHandler) ApplyBatch(c *gin.Context) {
	var req dto.SyncBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if len(req.Operations) > maxBatchSize {
		h.Error(c, apperror.NewValidation("batch too large").
			WithDetail("max", maxBatchSize).
			WithDetail("got", len(req.Operations)))
		return
	}

	act, ok := actor.FromContext(c.Request.Context())
	if !ok {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	operations := make([]ops.Operation, 0, len(req.Operations))
	for i, op := range req.Operations {
		var branchID *id.ID
		if op.BranchID != "" {
			parsed, err := id.Parse(op.BranchID)
			if err != nil {
				h.Error(c, apperror.NewValidation("invalid branchId").
					WithDetail("index", i).
					WithDetail("branch_id", op.BranchID))
				return
			}
			branchID = &parsed
		}
		operations = append(operations, ops.Operation{
			ClientOperationID: op.ClientOperationID,
			Type:              ops.Type(op.Type),
			BranchID:          branchID,
			OccurredAt:        op.OccurredAt,
			Payload:           op.Payload,
		})
	}

	batch, err := h.pipeline.ApplyBatch(c.Request.Context(), act, operations)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, toBatchResponse(batch))
}

func toBatchResponse(batch sync.BatchResult) dto.SyncBatchResponse {
	resp := dto.SyncBatchResponse{
		Results:        make([]dto.SyncOperationResponse, 0, len(batch.Results)),
		StoppedAtIndex: batch.StoppedAtIndex,
	}
	for _, r := range batch.Results {
		resp.Results = append(resp.Results, dto.SyncOperationResponse{
			ClientOperationID: r.ClientOperationID,
			Type:              string(r.Type),
			Status:            string(r.Status),
			Result:            r.Result,
			ErrorCode:         r.ErrorCode,
			ErrorMessage:      r.ErrorMessage,
			Deduped:           r.Deduped,
		})
	}
	return resp
}
