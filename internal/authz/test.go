package authz

import (
	"context"
)

// NewTestContext creates context with Test principal (only for test environment).
func NewTestContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalKey{}, Principal{Type: PrincipalTypeTest})
}

// WithTestBypass creates context with Test principal and isolation bypass.
// Used in tests that need to cross tenant boundaries without a full principal setup.
func WithTestBypass(ctx context.Context) context.Context {
	bypassCtx, _ := WithBypassIsolation(NewTestContext(ctx), "test")
	return bypassCtx
}
