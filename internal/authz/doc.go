// Package authz implements the tenant-isolation governance mechanism,
// providing controlled isolation bypass and a single-principal authorization model.
//
// Core concepts:
//
//   - Principal: A single authorization identity per request (System/Actor/Session).
//     Set via NewSystemContext, NewActorContext, NewSessionContext, or WithPrincipal.
//
//   - Bypass: Controlled isolation bypass via RunWithBypass (closure, preferred)
//     or WithBypassIsolation (explicit context). All bypass operations are audited.
//
//   - Tenant Decision: Tenant-aware authorization via CheckTenant or RequireTenant,
//     supporting all principal types. RequireSameActor additionally restricts
//     session principals to their own actor's records.
//
// Usage rules:
//
//  1. Never read or forge the principal or bypass context keys outside this package.
//  2. Prefer RunWithBypass closures to limit bypass scope.
//  3. When using WithBypassIsolation, assign to bypassCtx, never ctx.
//  4. All bypass reasons must be stable strings for audit aggregation.
//  5. Background tasks must declare System principal via NewSystemContext.
package authz
