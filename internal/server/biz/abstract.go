package biz

import (
	"context"
	"time"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/tracing"
	"github.com/keeldata/trustvault/internal/vault"
)

// AbstractService carries the backends every service shares: the vault
// store and the audit dispatcher.
type AbstractService struct {
	store vault.Store
	audit *audit.Dispatcher
}

func (a *AbstractService) Store() vault.Store {
	return a.store
}

// auditMutation publishes a mutation event on the async path. Audit
// never rolls back the write it describes.
func (a *AbstractService) auditMutation(
	ctx context.Context,
	tenant, entityKey vault.HashKey,
	recordKind string,
	effectiveFrom time.Time,
	prov vault.Provenance,
) {
	if a.audit == nil {
		return
	}

	a.audit.Publish(ctx, audit.NewMutationEvent(ctx, tenant, entityKey, recordKind, effectiveFrom, prov))
}

// provenanceFrom assembles write provenance from the calling principal
// and request correlation.
func provenanceFrom(ctx context.Context, source string) vault.Provenance {
	prov := vault.Provenance{Source: source}

	if requestID, ok := tracing.GetRequestID(ctx); ok {
		prov.RequestID = requestID
	}

	principal, ok := authz.GetPrincipal(ctx)
	if !ok {
		return prov
	}

	if principal.ActorKey != nil {
		prov.ActorKey = *principal.ActorKey
	}

	if principal.SessionDigest != nil {
		prov.SessionDigest = *principal.SessionDigest
	}

	return prov
}
