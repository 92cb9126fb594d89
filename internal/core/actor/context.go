// Package actor carries the authenticated request identity through context.
// Every operation batch is applied on behalf of exactly one
// (tenant, branch, employee, role) tuple resolved by the HTTP layer.
package actor

import (
	"context"

	"khmerpos/internal/core/id"
)

// Context identifies who is applying operations and where.
type Context struct {
	TenantID   id.ID
	BranchID   id.ID
	EmployeeID id.ID
	Role       string
}

type actorKey struct{}

// WithContext stores the actor in ctx.
func WithContext(ctx context.Context, a Context) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	a, ok := ctx.Value(actorKey{}).(Context)
	return a, ok
}
