package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Scope is the authenticated tenant/branch context attached to every
// staff-facing request. It is produced by the HTTP auth middleware and
// consumed by services; nothing in this package validates it.
type Scope struct {
	TenantID snowflake.ID
	BranchID snowflake.ID
	User     string
}

type scopeKey struct{}

// WithScope stores the scope in the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope from context, if set.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || scope.TenantID == 0 || scope.BranchID == 0 {
		return Scope{}, false
	}
	return scope, true
}
