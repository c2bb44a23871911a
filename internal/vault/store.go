package vault

import (
	"context"
	"fmt"
	"time"
)

// Epsilon is the spacing between a closed version's end and its
// successor's start. Two versions of one record never share a boundary
// instant, so ordering never depends on tie-breaking.
const Epsilon = time.Nanosecond

// History pagination bounds.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// VersionBoundaries computes where an append closes the current version
// and opens its successor. Normally the close lands on now; when the
// clock stalled or regressed relative to the current version's start,
// the close is nudged just past it so windows stay strictly ordered.
func VersionBoundaries(prevEffectiveFrom, now time.Time) (closeAt, openAt time.Time) {
	closeAt = now
	if !closeAt.After(prevEffectiveFrom) {
		closeAt = prevEffectiveFrom.Add(Epsilon)
	}

	return closeAt, closeAt.Add(Epsilon)
}

// ValidateHub checks the invariants every backend enforces before
// recording a hub.
func ValidateHub(hub Hub) error {
	switch {
	case hub.Key.IsZero():
		return fmt.Errorf("%w: hub key required", ErrValidation)
	case hub.TenantKey.IsZero():
		return fmt.Errorf("%w: hub tenant key required", ErrValidation)
	case hub.Kind == "":
		return fmt.Errorf("%w: hub kind required", ErrValidation)
	case hub.BusinessKey == "":
		return fmt.Errorf("%w: hub business key required", ErrValidation)
	case hub.Kind == KindTenant && hub.TenantKey != hub.Key:
		return fmt.Errorf("%w: tenant hub must reference itself", ErrValidation)
	default:
		return nil
	}
}

// ValidateLink checks the invariants every backend enforces before
// recording a link.
func ValidateLink(link Link) error {
	switch {
	case link.Key.IsZero():
		return fmt.Errorf("%w: link key required", ErrValidation)
	case link.TenantKey.IsZero():
		return fmt.Errorf("%w: link tenant key required", ErrValidation)
	case link.Kind == "":
		return fmt.Errorf("%w: link kind required", ErrValidation)
	case len(link.Endpoints) < 2:
		return fmt.Errorf("%w: link needs at least two endpoints", ErrValidation)
	default:
		for _, endpoint := range link.Endpoints {
			if endpoint.IsZero() {
				return fmt.Errorf("%w: link endpoint key required", ErrValidation)
			}
		}

		return nil
	}
}

// ValidateSession checks the invariants every backend enforces before
// recording a session row.
func ValidateSession(session *Session) error {
	switch {
	case session == nil:
		return fmt.Errorf("%w: session required", ErrValidation)
	case session.TokenDigest == "":
		return fmt.Errorf("%w: session token digest required", ErrValidation)
	case session.HubKey.IsZero():
		return fmt.Errorf("%w: session hub key required", ErrValidation)
	case session.TenantKey.IsZero():
		return fmt.Errorf("%w: session tenant key required", ErrValidation)
	case session.ActorKey.IsZero():
		return fmt.Errorf("%w: session actor key required", ErrValidation)
	case !session.State.Valid():
		return fmt.Errorf("%w: unknown session state %q", ErrValidation, session.State)
	case !session.ExpiresAt.After(session.IssuedAt):
		return fmt.Errorf("%w: session must expire after issuance", ErrValidation)
	case session.MaxRequests < 0 || session.MaxBytes < 0:
		return fmt.Errorf("%w: session allowances cannot be negative", ErrValidation)
	default:
		return nil
	}
}

// SessionFilter narrows ListSessions. Zero-valued fields match
// everything.
type SessionFilter struct {
	TenantKey     HashKey
	ActorKey      HashKey
	States        []SessionState
	UpdatedBefore time.Time
	UpdatedSince  time.Time
	Limit         int
}

// Matches reports whether the session satisfies every set field.
func (f SessionFilter) Matches(s *Session) bool {
	if !f.TenantKey.IsZero() && s.TenantKey != f.TenantKey {
		return false
	}

	if !f.ActorKey.IsZero() && s.ActorKey != f.ActorKey {
		return false
	}

	if len(f.States) > 0 {
		found := false

		for _, state := range f.States {
			if s.State == state {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if !f.UpdatedBefore.IsZero() && !s.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}

	if !f.UpdatedSince.IsZero() && !s.UpdatedAt.After(f.UpdatedSince) {
		return false
	}

	return true
}

// Store is the persistence contract every backend satisfies. Hubs and
// links are write-once, versions are append-only, and sessions are the
// single mutate-in-place family. All returned records are copies owned
// by the caller.
type Store interface {
	// EnsureHub records the hub if absent and reports whether it was
	// created. Re-ensuring an identical hub is a no-op; ensuring a hub
	// whose key exists with different identity fields is a conflict.
	EnsureHub(ctx context.Context, hub Hub) (*Hub, bool, error)

	// GetHub fetches a hub by key.
	GetHub(ctx context.Context, key HashKey) (*Hub, error)

	// EnsureLink records the link if absent, with EnsureHub semantics.
	// Every endpoint hub must already exist.
	EnsureLink(ctx context.Context, link Link) (*Link, bool, error)

	// GetLink fetches a link by key.
	GetLink(ctx context.Context, key HashKey) (*Link, error)

	// LinksByEndpoint lists links touching the hub, newest first.
	// An empty kind matches every link kind.
	LinksByEndpoint(ctx context.Context, endpoint HashKey, kind string) ([]*Link, error)

	// Put appends a version under a hub or link key. When the payload
	// fingerprint equals the current version's, nothing is written and
	// the current version is returned with Created false. Otherwise the
	// current version is closed at t1 and the new one opens at
	// t1 + Epsilon.
	Put(ctx context.Context, key HashKey, payload []byte, prov Provenance) (*PutResult, error)

	// Current fetches the open version under the key.
	Current(ctx context.Context, key HashKey) (*Version, error)

	// AsOf fetches the version whose validity window contained the
	// given instant.
	AsOf(ctx context.Context, key HashKey, at time.Time) (*Version, error)

	// History pages through the version log oldest first. An empty
	// cursor starts from the beginning; the returned cursor resumes
	// after the last served version and survives concurrent appends.
	History(ctx context.Context, key HashKey, cursor string, limit int) (*HistoryPage, error)

	// InsertSession records a new session index row. Inserting an
	// existing token digest is a conflict.
	InsertSession(ctx context.Context, session *Session) error

	// GetSession fetches a session by token digest.
	GetSession(ctx context.Context, tokenDigest string) (*Session, error)

	// MutateSession applies fn to the session under the row lock and
	// persists the result. When fn fails the row is left untouched and
	// the error is returned as-is. UpdatedAt is bumped on success.
	MutateSession(ctx context.Context, tokenDigest string, fn func(*Session) error) (*Session, error)

	// ListSessions returns sessions matching the filter, in no
	// particular order.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)

	// DeleteSessions removes session index rows by digest and reports
	// how many existed. Version logs under session hubs are not
	// touched: the index row is disposable, history is not.
	DeleteSessions(ctx context.Context, tokenDigests []string) (int, error)

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error

	Close() error
}
