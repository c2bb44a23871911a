package authz

import (
	"context"
	"testing"

	"github.com/keeldata/trustvault/internal/vault"
)

func TestCheckTenant(t *testing.T) {
	acme := vault.ResolveTenant("acme")
	globex := vault.ResolveTenant("globex")
	alice := vault.Resolve(acme, vault.KindActor, "alice@acme.test")

	tests := []struct {
		name   string
		ctx    context.Context
		tenant vault.HashKey
		want   bool
	}{
		{
			"no principal",
			context.Background(),
			acme,
			false,
		},
		{
			"system principal",
			NewSystemContext(context.Background()),
			acme,
			true,
		},
		{
			"test principal",
			NewTestContext(context.Background()),
			acme,
			true,
		},
		{
			"actor own tenant",
			NewActorContext(context.Background(), acme, alice),
			acme,
			true,
		},
		{
			"actor foreign tenant",
			NewActorContext(context.Background(), acme, alice),
			globex,
			false,
		},
		{
			"session own tenant",
			NewSessionContext(context.Background(), acme, alice, "digest"),
			acme,
			true,
		},
		{
			"session foreign tenant",
			NewSessionContext(context.Background(), acme, alice, "digest"),
			globex,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckTenant(tt.ctx, tt.tenant); got != tt.want {
				t.Errorf("CheckTenant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckTenant_BypassCrossesTenants(t *testing.T) {
	acme := vault.ResolveTenant("acme")
	globex := vault.ResolveTenant("globex")

	bypassCtx := WithSystemBypass(context.Background(), "retention-sweep")

	if !CheckTenant(bypassCtx, acme) || !CheckTenant(bypassCtx, globex) {
		t.Error("Active bypass should allow any tenant")
	}
}

func TestRequireTenant(t *testing.T) {
	acme := vault.ResolveTenant("acme")
	globex := vault.ResolveTenant("globex")
	alice := vault.Resolve(acme, vault.KindActor, "alice@acme.test")

	ctx := NewActorContext(context.Background(), acme, alice)

	if err := RequireTenant(ctx, acme); err != nil {
		t.Errorf("RequireTenant should pass for own tenant: %v", err)
	}

	if err := RequireTenant(ctx, globex); err == nil {
		t.Error("RequireTenant should fail for foreign tenant")
	}
}

func TestRequireSameActor(t *testing.T) {
	acme := vault.ResolveTenant("acme")
	alice := vault.Resolve(acme, vault.KindActor, "alice@acme.test")
	bob := vault.Resolve(acme, vault.KindActor, "bob@acme.test")

	// Session principal is pinned to its own actor
	sessionCtx := NewSessionContext(context.Background(), acme, alice, "digest")

	if err := RequireSameActor(sessionCtx, alice); err != nil {
		t.Errorf("RequireSameActor should pass for own actor: %v", err)
	}

	if err := RequireSameActor(sessionCtx, bob); err == nil {
		t.Error("RequireSameActor should fail for another actor")
	}

	// Actor principal administers the whole tenant
	actorCtx := NewActorContext(context.Background(), acme, alice)
	if err := RequireSameActor(actorCtx, bob); err != nil {
		t.Errorf("RequireSameActor should pass for actor principal: %v", err)
	}

	// System principal passes
	if err := RequireSameActor(NewSystemContext(context.Background()), bob); err != nil {
		t.Errorf("RequireSameActor should pass for system principal: %v", err)
	}

	// Missing principal fails
	if err := RequireSameActor(context.Background(), alice); err == nil {
		t.Error("RequireSameActor should fail without a principal")
	}

	// Bypass passes
	if err := RequireSameActor(WithSystemBypass(context.Background(), "test"), bob); err != nil {
		t.Errorf("RequireSameActor should pass under bypass: %v", err)
	}
}
