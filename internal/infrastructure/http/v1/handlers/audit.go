package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AuditHistoryReader retrieves the audit trail for one resource.
// Implemented by the postgres audit service.
type AuditHistoryReader interface {
	History(ctx context.Context, tenantID id.ID, resourceType, resourceID string, limit int) ([]ports.AuditEntry, error)
}

// AuditHandler serves the audit trail to back-office clients.
type AuditHandler struct {
	*BaseHandler
	history AuditHistoryReader
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, history AuditHistoryReader) *AuditHandler {
	return &AuditHandler{BaseHandler: base, history: history}
}

// History handles GET /v1/audit/:resourceType/:resourceId.
// Entries are returned newest first, scoped to the authenticated tenant.
func (h *AuditHandler) History(c *gin.Context) {
	act, ok := actor.FromContext(c.Request.Context())
	if !ok {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	resourceType := c.Param("resourceType")
	resourceID := c.Param("resourceId")
	if resourceType == "" || resourceID == "" {
		h.Error(c, apperror.NewValidation("resource type and id are required"))
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.Error(c, apperror.NewValidation("limit must be a positive integer").
				WithDetail("limit", raw))
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := h.history.History(c.Request.Context(), act.TenantID, resourceType, resourceID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []ports.AuditEntry{}
	}

	h.OK(c, gin.H{"entries": entries})
}
