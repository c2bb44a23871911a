package authz

import (
	"context"
	"fmt"

	"github.com/keeldata/trustvault/internal/vault"
)

// PrincipalType defines authorization principal types.
type PrincipalType int

const (
	// PrincipalTypeUnknown unknown principal type.
	PrincipalTypeUnknown PrincipalType = iota
	// PrincipalTypeSystem system principal (bootstrap, retention, internal operations).
	PrincipalTypeSystem PrincipalType = iota
	// PrincipalTypeActor actor principal (operator authenticated on the admin surface).
	PrincipalTypeActor
	// PrincipalTypeSession session principal (data-plane caller holding a session token).
	PrincipalTypeSession
	// PrincipalTypeTest test principal (only for test environment).
	PrincipalTypeTest
)

// String returns string representation of PrincipalType.
func (p PrincipalType) String() string {
	switch p {
	case PrincipalTypeUnknown:
		return "unknown"
	case PrincipalTypeSystem:
		return "system"
	case PrincipalTypeActor:
		return "actor"
	case PrincipalTypeSession:
		return "session"
	case PrincipalTypeTest:
		return "test"
	default:
		return "unknown"
	}
}

// Principal represents authorization principal.
// Each request can only have one Principal, guaranteed by WithPrincipal's set-once semantics.
type Principal struct {
	Type          PrincipalType
	TenantKey     *vault.HashKey
	ActorKey      *vault.HashKey
	SessionDigest *string
}

// IsSystem checks if it is a system principal.
func (p Principal) IsSystem() bool {
	return p.Type == PrincipalTypeSystem
}

// IsActor checks if it is an actor principal.
func (p Principal) IsActor() bool {
	return p.Type == PrincipalTypeActor
}

// IsSession checks if it is a session principal.
func (p Principal) IsSession() bool {
	return p.Type == PrincipalTypeSession
}

// IsTest checks if it is a test principal.
func (p Principal) IsTest() bool {
	return p.Type == PrincipalTypeTest
}

// String returns string representation of Principal (for audit logs).
func (p Principal) String() string {
	switch p.Type {
	case PrincipalTypeUnknown:
		return "unknown"
	case PrincipalTypeSystem:
		return "system"
	case PrincipalTypeActor:
		if p.ActorKey != nil {
			return fmt.Sprintf("actor:%s", p.ActorKey.String())
		}

		return "actor:unknown"
	case PrincipalTypeSession:
		if p.SessionDigest != nil {
			return fmt.Sprintf("session:%s", *p.SessionDigest)
		}

		return "session:unknown"
	case PrincipalTypeTest:
		return "test"
	default:
		return "unknown"
	}
}

// principalKey is an unexported key type to prevent external forgery.
type principalKey struct{}

// WithPrincipal sets Principal, returns error if already exists.
// Ensures each context can only set Principal once, preventing principal mixing.
func WithPrincipal(ctx context.Context, p Principal) (context.Context, error) {
	if existing, ok := GetPrincipal(ctx); ok {
		if existing.Type != p.Type || !principalEqual(existing, p) {
			return ctx, fmt.Errorf("authz: principal conflict: existing=%s, new=%s", existing.String(), p.String())
		}

		return ctx, nil // Same principal, idempotent
	}

	return context.WithValue(ctx, principalKey{}, p), nil
}

// principalEqual compares if two Principals are equal.
func principalEqual(a, b Principal) bool {
	if a.Type != b.Type {
		return false
	}

	if !keyPtrEqual(a.TenantKey, b.TenantKey) {
		return false
	}

	if !keyPtrEqual(a.ActorKey, b.ActorKey) {
		return false
	}

	if !stringPtrEqual(a.SessionDigest, b.SessionDigest) {
		return false
	}

	return true
}

// keyPtrEqual compares if two *vault.HashKey are equal.
func keyPtrEqual(a, b *vault.HashKey) bool {
	if a == nil && b == nil {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return *a == *b
}

// stringPtrEqual compares if two *string are equal.
func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return *a == *b
}

// GetPrincipal reads Principal.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// MustGetPrincipal reads Principal, panics if not exists (used in chains where principal is confirmed).
func MustGetPrincipal(ctx context.Context) Principal {
	p, ok := GetPrincipal(ctx)
	if !ok {
		panic("authz: no principal in context")
	}

	return p
}

// NewActorContext creates context with Actor principal.
func NewActorContext(ctx context.Context, tenantKey, actorKey vault.HashKey) context.Context {
	return context.WithValue(ctx, principalKey{}, Principal{
		Type:      PrincipalTypeActor,
		TenantKey: &tenantKey,
		ActorKey:  &actorKey,
	})
}

// NewSessionContext creates context with Session principal.
func NewSessionContext(ctx context.Context, tenantKey, actorKey vault.HashKey, sessionDigest string) context.Context {
	return context.WithValue(ctx, principalKey{}, Principal{
		Type:          PrincipalTypeSession,
		TenantKey:     &tenantKey,
		ActorKey:      &actorKey,
		SessionDigest: &sessionDigest,
	})
}
