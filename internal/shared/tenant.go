package shared

import (
	"context"
	"errors"
)

// TenantID scopes every row and query to one tenant. It is a defined type
// so a tenant id cannot be confused with any other int64 at a call site.
type TenantID int64

// ErrNoTenant indicates a request reached the core without a tenant scope.
var ErrNoTenant = errors.New("shared: no tenant in context")

type tenantContextKey struct{}

// ContextWithTenant stores the tenant scope in context.
func ContextWithTenant(ctx context.Context, id TenantID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, id)
}

// TenantFromContext extracts the tenant scope from context.
func TenantFromContext(ctx context.Context) (TenantID, error) {
	id, ok := ctx.Value(tenantContextKey{}).(TenantID)
	if !ok || id == 0 {
		return 0, ErrNoTenant
	}
	return id, nil
}
