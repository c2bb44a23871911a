package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/tracing"
	"github.com/keeldata/trustvault/internal/vault"
)

func TestNewDecisionEvent(t *testing.T) {
	tenant := vault.ResolveTenant("acme")
	actor := vault.Resolve(tenant, vault.KindActor, "alice@acme.test")

	ctx := tracing.WithTraceID(context.Background(), "tv-trace-1")

	event := NewDecisionEvent(ctx, tenant, actor, access.Decision{
		Allowed: false,
		Reason:  access.ReasonRiskDenied,
		Tier:    access.TierDenied,
		Score:   88,
	}, "finance", "entity.read")

	require.NotEmpty(t, event.ID)
	require.Equal(t, KindDecision, event.Kind)
	require.Equal(t, KindDecision, event.EventKind())
	require.Equal(t, event.ID, event.EventID())
	require.False(t, event.Time.IsZero())
	require.Equal(t, "tv-trace-1", event.TraceID)
	require.Equal(t, tenant.String(), event.TenantKey)
	require.Equal(t, actor.String(), event.ActorKey)
	require.False(t, event.Allowed)
	require.Equal(t, string(access.ReasonRiskDenied), event.Reason)
	require.Equal(t, "finance", event.ResourceDomain)
	require.Equal(t, "entity.read", event.Action)
	require.Equal(t, 88, event.RiskScore)
	require.Equal(t, string(access.TierDenied), event.RiskTier)
}

func TestNewDecisionEvent_ZeroActor(t *testing.T) {
	tenant := vault.ResolveTenant("acme")

	event := NewDecisionEvent(context.Background(), tenant, vault.HashKey{}, access.Decision{
		Allowed: true,
		Tier:    access.TierFull,
	}, "", "")

	require.Empty(t, event.ActorKey)
	require.Empty(t, event.TraceID)
	require.True(t, event.Allowed)
}

func TestNewMutationEvent(t *testing.T) {
	tenant := vault.ResolveTenant("acme")
	entity := vault.Resolve(tenant, "device", "sensor-1")
	actor := vault.Resolve(tenant, vault.KindActor, "alice@acme.test")
	effectiveFrom := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ctx := tracing.WithTraceID(context.Background(), "tv-trace-2")

	event := NewMutationEvent(ctx, tenant, entity, RecordSatellite, effectiveFrom, vault.Provenance{
		ActorKey:      actor,
		SessionDigest: "abc123",
		Source:        "api",
		RequestID:     "req-9",
	})

	require.NotEmpty(t, event.ID)
	require.Equal(t, KindMutation, event.EventKind())
	require.Equal(t, "tv-trace-2", event.TraceID)
	require.Equal(t, tenant.String(), event.TenantKey)
	require.Equal(t, entity.String(), event.EntityKey)
	require.Equal(t, RecordSatellite, event.RecordKind)
	require.Equal(t, effectiveFrom, event.EffectiveFrom)
	require.Equal(t, actor.String(), event.ActorKey)
	require.Equal(t, "abc123", event.SessionDigest)
	require.Equal(t, "api", event.Source)
	require.Equal(t, "req-9", event.RequestID)
}

func TestNewMutationEvent_EmptyProvenance(t *testing.T) {
	tenant := vault.ResolveTenant("acme")
	entity := vault.Resolve(tenant, "device", "sensor-1")

	event := NewMutationEvent(context.Background(), tenant, entity, RecordHub, time.Time{}, vault.Provenance{})

	require.Empty(t, event.ActorKey)
	require.Empty(t, event.SessionDigest)
	require.Empty(t, event.TraceID)
	require.Equal(t, RecordHub, event.RecordKind)
}
