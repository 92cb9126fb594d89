// Package ports declares the contracts the transactional core consumes.
// Implementations live in infrastructure (PostgreSQL, Redis, Kafka) or are
// provided by external services; the core only depends on these interfaces.
package ports

import (
	"context"
	"time"

	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
)

// FxRate is the tenant's current KHR-per-USD exchange rate.
type FxRate struct {
	Rate types.Money
	AsOf time.Time
}

// VatPolicy configures value-added tax application.
type VatPolicy struct {
	Enabled bool
	Rate    types.Money // fraction, e.g. 0.10 for 10%
}

// RoundingPolicy configures KHR cash rounding.
type RoundingPolicy struct {
	Enabled        bool
	GranularityKhr int64 // e.g. 100 riel
}

// DiscountType distinguishes percentage and fixed-amount discounts.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountPolicy is a configured discount candidate.
// Condition is an optional CEL expression over {base_usd, qty, sale_type};
// empty means always eligible.
type DiscountPolicy struct {
	ID        id.ID
	Type      DiscountType
	Value     types.Money // percent (0-100) or fixed USD amount
	Condition string
}

// PolicyPort supplies tenant pricing configuration.
type PolicyPort interface {
	GetCurrentFxRate(ctx context.Context, tenantID id.ID) (FxRate, error)
	GetVatPolicy(ctx context.Context, tenantID id.ID) (VatPolicy, error)
	GetRoundingPolicy(ctx context.Context, tenantID id.ID) (RoundingPolicy, error)
	GetItemDiscountPolicies(ctx context.Context, tenantID, branchID, menuItemID id.ID) ([]DiscountPolicy, error)
	GetOrderDiscountPolicies(ctx context.Context, tenantID, branchID id.ID) ([]DiscountPolicy, error)
}

// MenuItemRef identifies a menu item within a tenant branch.
type MenuItemRef struct {
	MenuItemID id.ID
	BranchID   id.ID
	TenantID   id.ID
}

// MenuItem is the priced menu entry returned by the menu service.
type MenuItem struct {
	ID       id.ID
	Name     string
	PriceUsd types.Money
}

// MenuPort resolves menu item pricing.
// GetMenuItem returns (nil, nil) when the item does not exist.
type MenuPort interface {
	GetMenuItem(ctx context.Context, ref MenuItemRef) (*MenuItem, error)
}

// BranchGuardPort rejects writes against administratively frozen branches.
// AssertBranchActive returns an apperror with code BRANCH_FROZEN when the
// branch cannot accept operations.
type BranchGuardPort interface {
	AssertBranchActive(ctx context.Context, tenantID, branchID id.ID) error
}

// AuditOutcome classifies an audit entry.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "SUCCESS"
	AuditOutcomeDenied  AuditOutcome = "DENIED"
	AuditOutcomeFailure AuditOutcome = "FAILURE"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	TenantID     id.ID
	BranchID     id.ID
	EmployeeID   id.ID
	ActorRole    string
	ActionType   string
	ResourceType string
	ResourceID   string
	Outcome      AuditOutcome
	DenialReason string
	OccurredAt   time.Time
	Details      map[string]any
}

// AuditWriterPort persists audit entries. Write must participate in the
// caller's transaction when one is present in ctx.
type AuditWriterPort interface {
	Write(ctx context.Context, entry AuditEntry) error
}

// Event is a domain event destined for the transactional outbox.
type Event struct {
	Type          string // e.g. "sale.finalized"
	AggregateType string
	AggregateID   id.ID
	Payload       any
}

// EventPublisher appends events to the outbox. Delivery happens only if the
// enclosing transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
