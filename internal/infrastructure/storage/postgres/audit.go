package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"khmerpos/internal/core/id"
	"khmerpos/internal/domain/ports"
)

// CompressionAlgo specifies the compression algorithm used for audit details.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// Compile-time check that AuditService implements ports.AuditWriterPort.
var _ ports.AuditWriterPort = (*AuditService)(nil)

// auditRow is the storage shape of one audit entry.
type auditRow struct {
	ID                id.ID           `db:"id"`
	TenantID          id.ID           `db:"tenant_id"`
	BranchID          id.ID           `db:"branch_id"`
	EmployeeID        id.ID           `db:"employee_id"`
	ActorRole         string          `db:"actor_role"`
	ActionType        string          `db:"action_type"`
	ResourceType      string          `db:"resource_type"`
	ResourceID        string          `db:"resource_id"`
	Outcome           string          `db:"outcome"`
	DenialReason      string          `db:"denial_reason"`
	Details           json.RawMessage `db:"details"`
	DetailsCompressed []byte          `db:"details_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	OccurredAt        time.Time       `db:"occurred_at"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the append-only audit trail. Large detail payloads are
// stored zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes, default 10KB
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// Write records an audit entry. Participates in the transaction carried by
// ctx so the trail commits or rolls back with the operation it describes.
func (s *AuditService) Write(ctx context.Context, entry ports.AuditEntry) error {
	row := auditRow{
		ID:           id.New(),
		TenantID:     entry.TenantID,
		BranchID:     entry.BranchID,
		EmployeeID:   entry.EmployeeID,
		ActorRole:    entry.ActorRole,
		ActionType:   entry.ActionType,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Outcome:      string(entry.Outcome),
		DenialReason: entry.DenialReason,
		OccurredAt:   entry.OccurredAt,
		CreatedAt:    time.Now().UTC(),
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = row.CreatedAt
	}

	if entry.Details != nil {
		detailsJSON, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		row.Details = detailsJSON
	}

	row.CompressionAlgo = CompressionNone
	if len(row.Details) > s.compressThreshold {
		row.DetailsCompressed = s.encoder.EncodeAll(row.Details, nil)
		row.Details = nil
		row.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_audit (
			id, tenant_id, branch_id, employee_id, actor_role,
			action_type, resource_type, resource_id, outcome, denial_reason,
			details, details_compressed, compression_algo,
			occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		row.ID, row.TenantID, row.BranchID, row.EmployeeID, row.ActorRole,
		row.ActionType, row.ResourceType, row.ResourceID, row.Outcome, row.DenialReason,
		row.Details, row.DetailsCompressed, row.CompressionAlgo,
		row.OccurredAt, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History retrieves audit entries for a resource, newest first. Compressed
// details are inflated transparently.
func (s *AuditService) History(ctx context.Context, tenantID id.ID, resourceType, resourceID string, limit int) ([]ports.AuditEntry, error) {
	sql := `
		SELECT tenant_id, branch_id, employee_id, actor_role,
			   action_type, resource_type, resource_id, outcome, denial_reason,
			   details, details_compressed, compression_algo, occurred_at
		FROM sys_audit
		WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3
		ORDER BY occurred_at DESC
		LIMIT $4
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, tenantID, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []ports.AuditEntry
	for rows.Next() {
		var e ports.AuditEntry
		var outcome string
		var details json.RawMessage
		var compressed []byte
		var algo CompressionAlgo
		err := rows.Scan(
			&e.TenantID, &e.BranchID, &e.EmployeeID, &e.ActorRole,
			&e.ActionType, &e.ResourceType, &e.ResourceID, &outcome, &e.DenialReason,
			&details, &compressed, &algo, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Outcome = ports.AuditOutcome(outcome)

		if algo == CompressionZstd && len(compressed) > 0 {
			details, err = s.decoder.DecodeAll(compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress details: %w", err)
			}
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
