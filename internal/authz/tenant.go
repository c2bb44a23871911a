package authz

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/vault"
)

// CheckTenant reports whether the current principal may operate on records
// owned by the given tenant. System and Test principals always pass, as does
// any context holding an active isolation bypass.
func CheckTenant(ctx context.Context, tenant vault.HashKey) bool {
	if IsBypassActive(ctx) {
		return true
	}

	p, ok := GetPrincipal(ctx)
	if !ok {
		return false
	}

	switch p.Type {
	case PrincipalTypeSystem, PrincipalTypeTest:
		return true
	case PrincipalTypeActor, PrincipalTypeSession:
		return p.TenantKey != nil && *p.TenantKey == tenant
	case PrincipalTypeUnknown:
		return false
	default:
		return false
	}
}

// RequireTenant checks tenant access and returns an error on denial.
// The decision is logged for audit correlation.
func RequireTenant(ctx context.Context, tenant vault.HashKey) error {
	allowed := CheckTenant(ctx, tenant)

	p, _ := GetPrincipal(ctx)

	log.Debug(ctx, "authz: tenant decision",
		log.String("principal", p.String()),
		log.String("tenant", tenant.String()),
		log.String("decision", lo.Ternary(allowed, "allow", "deny")),
	)

	if !allowed {
		return fmt.Errorf("%w: principal %s may not operate on tenant %s", ErrDenied, p.String(), tenant.String())
	}

	return nil
}

// RequireSameActor restricts session principals to records of their own actor.
// Actor, System and Test principals pass; so does an active isolation bypass.
// Tenant membership is checked separately via RequireTenant.
func RequireSameActor(ctx context.Context, actor vault.HashKey) error {
	if IsBypassActive(ctx) {
		return nil
	}

	p, ok := GetPrincipal(ctx)
	if !ok {
		return fmt.Errorf("%w: no principal in context", ErrDenied)
	}

	if p.Type != PrincipalTypeSession {
		return nil
	}

	if p.ActorKey == nil || *p.ActorKey != actor {
		return fmt.Errorf("%w: session principal %s may not operate on actor %s", ErrDenied, p.String(), actor.String())
	}

	return nil
}
