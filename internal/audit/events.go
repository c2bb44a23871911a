// Package audit emits decision and mutation events to configured sinks.
// Delivery is at-least-once and, except for denials, decoupled from the
// request path: a slow or failing sink never rolls back the operation it
// describes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/tracing"
	"github.com/keeldata/trustvault/internal/vault"
)

type Kind string

const (
	KindDecision Kind = "decision"
	KindMutation Kind = "mutation"
)

// Event is one audit record. Both event families implement it.
type Event interface {
	EventID() string
	EventKind() Kind
}

// DecisionEvent records one access decision, allowed or denied.
type DecisionEvent struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	Time           time.Time `json:"time"`
	TraceID        string    `json:"traceID,omitempty"`
	TenantKey      string    `json:"tenantKey,omitempty"`
	ActorKey       string    `json:"actorKey,omitempty"`
	Allowed        bool      `json:"allowed"`
	Reason         string    `json:"reason,omitempty"`
	ResourceDomain string    `json:"resourceDomain,omitempty"`
	Action         string    `json:"action,omitempty"`
	RiskScore      int       `json:"riskScore"`
	RiskTier       string    `json:"riskTier,omitempty"`
}

func (e DecisionEvent) EventID() string {
	return e.ID
}

func (e DecisionEvent) EventKind() Kind {
	return KindDecision
}

// MutationEvent records one write against the record families.
type MutationEvent struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Time          time.Time `json:"time"`
	TraceID       string    `json:"traceID,omitempty"`
	TenantKey     string    `json:"tenantKey,omitempty"`
	EntityKey     string    `json:"entityKey"`
	RecordKind    string    `json:"recordKind"`
	EffectiveFrom time.Time `json:"effectiveFrom,omitempty"`
	ActorKey      string    `json:"actorKey,omitempty"`
	SessionDigest string    `json:"sessionDigest,omitempty"`
	Source        string    `json:"source,omitempty"`
	RequestID     string    `json:"requestID,omitempty"`
}

func (e MutationEvent) EventID() string {
	return e.ID
}

func (e MutationEvent) EventKind() Kind {
	return KindMutation
}

// Record kinds carried by mutation events.
const (
	RecordHub       = "hub"
	RecordSatellite = "satellite"
	RecordLink      = "link"
)

// NewDecisionEvent stamps id, time and trace correlation onto a decision.
func NewDecisionEvent(ctx context.Context, tenant, actor vault.HashKey, decision access.Decision, domain, action string) DecisionEvent {
	event := DecisionEvent{
		ID:             uuid.NewString(),
		Kind:           KindDecision,
		Time:           xtime.Now(),
		Allowed:        decision.Allowed,
		Reason:         string(decision.Reason),
		ResourceDomain: domain,
		Action:         action,
		RiskScore:      decision.Score,
		RiskTier:       string(decision.Tier),
	}
	if traceID, ok := tracing.GetTraceID(ctx); ok {
		event.TraceID = traceID
	}

	if !tenant.IsZero() {
		event.TenantKey = tenant.String()
	}

	if !actor.IsZero() {
		event.ActorKey = actor.String()
	}

	return event
}

// NewMutationEvent stamps id, time and trace correlation onto a mutation.
func NewMutationEvent(ctx context.Context, tenant vault.HashKey, entityKey vault.HashKey, recordKind string, effectiveFrom time.Time, provenance vault.Provenance) MutationEvent {
	event := MutationEvent{
		ID:            uuid.NewString(),
		Kind:          KindMutation,
		Time:          xtime.Now(),
		EntityKey:     entityKey.String(),
		RecordKind:    recordKind,
		EffectiveFrom: effectiveFrom,
		SessionDigest: provenance.SessionDigest,
		Source:        provenance.Source,
		RequestID:     provenance.RequestID,
	}
	if traceID, ok := tracing.GetTraceID(ctx); ok {
		event.TraceID = traceID
	}

	if !tenant.IsZero() {
		event.TenantKey = tenant.String()
	}

	if !provenance.ActorKey.IsZero() {
		event.ActorKey = provenance.ActorKey.String()
	}

	return event
}
