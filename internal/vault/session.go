package vault

import (
	"fmt"
	"time"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
)

// SessionState is the lifecycle state of a session index row. Sessions
// are the only record family mutated in place: they move through a fixed
// state machine, and every move is also appended as a version under the
// session hub so history stays complete.
type SessionState string

const (
	// SessionIssued the token exists but has not served a request yet.
	SessionIssued SessionState = "issued"

	// SessionActive the token has served at least one validated request.
	SessionActive SessionState = "active"

	// SessionExpired the validity window passed. Terminal.
	SessionExpired SessionState = "expired"

	// SessionRevoked an operator or owner cancelled the token. Terminal.
	SessionRevoked SessionState = "revoked"

	// SessionExhausted a usage allowance ran out. Terminal.
	SessionExhausted SessionState = "exhausted"
)

// sessionTransitions lists the legal moves. Terminal states are
// absorbing: they have no outgoing edges.
var sessionTransitions = map[SessionState][]SessionState{
	SessionIssued: {SessionActive, SessionExpired, SessionRevoked},
	SessionActive: {SessionExpired, SessionRevoked, SessionExhausted},
}

// Terminal reports whether the state has no outgoing transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionExpired, SessionRevoked, SessionExhausted:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Valid reports whether s names a known state.
func (s SessionState) Valid() bool {
	switch s {
	case SessionIssued, SessionActive, SessionExpired, SessionRevoked, SessionExhausted:
		return true
	default:
		return false
	}
}

// Session is the mutable index row for one issued token. The row is
// keyed by the token digest; the raw token is never stored. Allowance
// fields with value zero mean unlimited.
type Session struct {
	TokenDigest string `json:"token_digest"`

	// HubKey is the session hub the transition log is appended under.
	HubKey    HashKey `json:"hub_key"`
	TenantKey HashKey `json:"tenant_key"`
	ActorKey  HashKey `json:"actor_key"`

	State SessionState `json:"state"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// LastScore is the most recent risk score observed for the session.
	LastScore int `json:"last_score"`

	RequestCount int64 `json:"request_count"`
	BytesMoved   int64 `json:"bytes_moved"`
	MaxRequests  int64 `json:"max_requests"`
	MaxBytes     int64 `json:"max_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns the half-open validity interval [IssuedAt, ExpiresAt).
func (s *Session) Window() xtime.Period {
	return xtime.Period{Start: s.IssuedAt, End: s.ExpiresAt}
}

// ExpiredAt reports whether the session window has passed at the given
// instant. A request arriving exactly at ExpiresAt is outside the window.
func (s *Session) ExpiredAt(t time.Time) bool {
	return !s.Window().Contains(t)
}

// Exhausted reports whether a usage allowance is spent. Zero-valued
// allowances never exhaust.
func (s *Session) Exhausted() bool {
	if s.MaxRequests > 0 && s.RequestCount >= s.MaxRequests {
		return true
	}

	if s.MaxBytes > 0 && s.BytesMoved >= s.MaxBytes {
		return true
	}

	return false
}

// TransitionTo moves the session to the next state, or fails with a
// conflict when the move is illegal. A transition to the current state
// is a no-op.
func (s *Session) TransitionTo(next SessionState) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown session state %q", ErrValidation, next)
	}

	if s.State == next {
		return nil
	}

	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: session %s cannot move from %s to %s",
			ErrConflict, s.TokenDigest, s.State, next)
	}

	s.State = next

	return nil
}

// Clone returns a copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s

	return &clone
}
