package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/pkg/watcher"
	"github.com/keeldata/trustvault/internal/pkg/xcache/live"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/vault"
)

// sessionTokenPrefix marks bearer tokens so middleware can tell them
// apart from other Authorization schemes at a glance.
const sessionTokenPrefix = "tv-"

const (
	defaultSessionTTL = time.Hour

	sessionCacheTTL     = 5 * time.Minute
	sessionCacheRefresh = time.Minute
)

// GenerateSessionToken returns a fresh opaque bearer token.
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, 32)

	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return sessionTokenPrefix + hex.EncodeToString(bytes), nil
}

// sessionSnapshot is the payload schema of session satellites: one at
// issuance, one per state transition afterwards.
type sessionSnapshot struct {
	State     string    `json:"state"`
	ActorKey  string    `json:"actorKey"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason,omitempty"`
}

type SessionServiceParams struct {
	fx.In

	Store    vault.Store
	Audit    *audit.Dispatcher
	Risk     *risk.Engine
	Notifier watcher.Notifier[live.CacheEvent[string]]
}

func NewSessionService(params SessionServiceParams) *SessionService {
	s := &SessionService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
		Risk:     params.Risk,
		notifier: params.Notifier,
	}

	s.cache = live.NewIndexedCache(live.IndexedOptions[string, *vault.Session]{
		Name: "sessions",
		TTL:  sessionCacheTTL,
		KeyFunc: func(session *vault.Session) string {
			return session.TokenDigest
		},
		LoadOneFunc: func(ctx context.Context, digest string) (*vault.Session, error) {
			return params.Store.GetSession(ctx, digest)
		},
		LoadSinceFunc: func(ctx context.Context, since time.Time) ([]*vault.Session, time.Time, error) {
			sessions, err := params.Store.ListSessions(ctx, vault.SessionFilter{UpdatedSince: since})
			if err != nil {
				return nil, since, err
			}

			latest := since
			for _, session := range sessions {
				if session.UpdatedAt.After(latest) {
					latest = session.UpdatedAt
				}
			}

			return sessions, latest, nil
		},
		RefreshInterval: sessionCacheRefresh,
		Watcher:         params.Notifier,
	})

	return s
}

// SessionService owns the session lifecycle. The index row is the only
// mutate-in-place record; every transition also appends a satellite to
// the session hub so the history of the token remains reconstructable.
type SessionService struct {
	*AbstractService

	Risk *risk.Engine

	cache    *live.IndexedCache[string, *vault.Session]
	notifier watcher.Notifier[live.CacheEvent[string]]
}

type IssueOptions struct {
	TTL         time.Duration
	MaxRequests int64
	MaxBytes    int64
}

// Issue creates an active session for the actor and returns the token.
// The raw token leaves the service exactly once, here.
func (s *SessionService) Issue(
	ctx context.Context,
	tenant, actorKey vault.HashKey,
	opts IssueOptions,
) (*objects.IssuedSession, error) {
	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, err
	}

	actorHub, err := s.store.GetHub(ctx, actorKey)
	if err != nil {
		return nil, fmt.Errorf("session actor: %w", err)
	}

	if actorHub.TenantKey != tenant {
		return nil, fmt.Errorf("%w: actor belongs to another tenant", vault.ErrValidation)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	digest := vault.TokenDigest(token)
	now := xtime.Now()

	hub := vault.NewHub(tenant, vault.KindSession, digest)

	ensured, createdHub, err := s.store.EnsureHub(ctx, hub)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure session hub: %w", err)
	}

	prov := provenanceFrom(ctx, "api")
	prov.SessionDigest = digest

	if createdHub {
		s.auditMutation(ctx, tenant, ensured.Key, audit.RecordHub, ensured.CreatedAt, prov)
	}

	session := &vault.Session{
		TokenDigest: digest,
		HubKey:      ensured.Key,
		TenantKey:   tenant,
		ActorKey:    actorKey,
		State:       vault.SessionActive,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		MaxRequests: opts.MaxRequests,
		MaxBytes:    opts.MaxBytes,
	}

	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	// The first satellite snapshots issuance; the index row is already
	// active by then.
	s.appendSnapshot(ctx, session, string(vault.SessionIssued), "")

	inserted, err := s.store.GetSession(ctx, digest)
	if err != nil {
		return nil, err
	}

	s.cache.Set(digest, inserted)
	metrics.SessionActivated(ctx, tenant.String())

	log.Debug(ctx, "session issued",
		log.String("actor_key", actorKey.String()),
		log.String("session_digest", digest))

	return &objects.IssuedSession{
		Token:   token,
		Session: objects.NewSessionInfo(inserted),
	}, nil
}

// Validate resolves the token and evaluates the session state together
// with a fresh risk assessment. Expiry is lazy: an overdue session is
// flipped to expired here, as a side effect of being observed.
func (s *SessionService) Validate(
	ctx context.Context,
	token string,
	signals risk.Signals,
) (*vault.Session, *risk.Assessment, access.Reason, error) {
	digest := vault.TokenDigest(token)

	session, err := s.cache.Get(ctx, digest)
	if err != nil {
		if vault.IsNotFound(err) {
			return nil, nil, access.ReasonSessionNotFound, nil
		}

		return nil, nil, access.ReasonNone, err
	}

	now := xtime.Now()

	if !session.State.Terminal() && session.ExpiredAt(now) {
		expired, terr := s.transition(ctx, digest, vault.SessionExpired, "validity window passed")
		if terr != nil {
			return nil, nil, access.ReasonNone, terr
		}

		session = expired
	}

	if reason := deniedReason(session.State); reason != access.ReasonNone {
		s.Risk.RecordFailure(session.ActorKey)

		return session, nil, reason, nil
	}

	assessment := s.Risk.Assess(session.ActorKey, nil, signals)

	if session.LastScore != assessment.Score {
		updated, err := s.store.MutateSession(ctx, digest, func(row *vault.Session) error {
			row.LastScore = assessment.Score

			return nil
		})
		if err != nil {
			return nil, nil, access.ReasonNone, err
		}

		session = updated
		s.cache.Set(digest, updated)
	}

	metrics.RecordRiskScore(ctx, assessment.Score)

	return session, &assessment, access.ReasonNone, nil
}

// RecordUsage charges the request against the session allowances. The
// limit-crossing request itself is served; the exhausted transition only
// denies what comes after it.
func (s *SessionService) RecordUsage(ctx context.Context, token string, bytes int64) (*vault.Session, error) {
	digest := vault.TokenDigest(token)

	var becameExhausted bool

	updated, err := s.store.MutateSession(ctx, digest, func(row *vault.Session) error {
		if row.State.Terminal() {
			return nil
		}

		row.RequestCount++
		row.BytesMoved += bytes

		if row.Exhausted() {
			if err := row.TransitionTo(vault.SessionExhausted); err != nil {
				return err
			}

			becameExhausted = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(digest, updated)

	if becameExhausted {
		s.notifyInvalidate(ctx, digest)
		s.appendSnapshot(ctx, updated, string(vault.SessionExhausted), "allowance spent")
		metrics.SessionClosed(ctx, updated.TenantKey.String())

		log.Info(ctx, "session exhausted", log.String("session_digest", digest))
	}

	return updated, nil
}

// Revoke cancels the caller's own session.
func (s *SessionService) Revoke(ctx context.Context, token string) (*vault.Session, error) {
	digest := vault.TokenDigest(token)

	session, err := s.cache.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireSameActor(ctx, session.ActorKey); err != nil {
		return nil, err
	}

	return s.revoke(ctx, session)
}

// RevokeByDigest cancels a session on behalf of an operator.
func (s *SessionService) RevokeByDigest(ctx context.Context, digest string) (*vault.Session, error) {
	session, err := s.cache.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, session.TenantKey); err != nil {
		return nil, err
	}

	return s.revoke(ctx, session)
}

func (s *SessionService) revoke(ctx context.Context, session *vault.Session) (*vault.Session, error) {
	updated, err := s.transition(ctx, session.TokenDigest, vault.SessionRevoked, "revoked by operator")
	if err != nil {
		return nil, err
	}

	metrics.SessionClosed(ctx, updated.TenantKey.String())

	log.Info(ctx, "session revoked",
		log.String("session_digest", updated.TokenDigest),
		log.String("actor_key", updated.ActorKey.String()))

	return updated, nil
}

// Get fetches a session by digest for introspection.
func (s *SessionService) Get(ctx context.Context, digest string) (*vault.Session, error) {
	session, err := s.cache.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, session.TenantKey); err != nil {
		return nil, err
	}

	return session, nil
}

// List returns sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter vault.SessionFilter) ([]*vault.Session, error) {
	if !filter.TenantKey.IsZero() {
		if err := authz.RequireTenant(ctx, filter.TenantKey); err != nil {
			return nil, err
		}
	} else if err := authz.RequirePrincipal(ctx); err != nil {
		return nil, err
	}

	return s.store.ListSessions(ctx, filter)
}

// Stop releases the session cache workers.
func (s *SessionService) Stop() {
	s.cache.Stop()
}

// transition moves the session index row and appends the matching
// satellite. Illegal moves surface as conflicts from the state machine.
func (s *SessionService) transition(
	ctx context.Context,
	digest string,
	next vault.SessionState,
	reason string,
) (*vault.Session, error) {
	updated, err := s.store.MutateSession(ctx, digest, func(row *vault.Session) error {
		return row.TransitionTo(next)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(digest, updated)
	s.notifyInvalidate(ctx, digest)
	s.appendSnapshot(ctx, updated, string(next), reason)

	return updated, nil
}

func (s *SessionService) appendSnapshot(ctx context.Context, session *vault.Session, state, reason string) {
	payload, err := json.Marshal(sessionSnapshot{
		State:     state,
		ActorKey:  session.ActorKey.String(),
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
		Reason:    reason,
	})
	if err != nil {
		log.Warn(ctx, "failed to encode session snapshot", log.Cause(err))

		return
	}

	prov := provenanceFrom(ctx, "api")
	prov.SessionDigest = session.TokenDigest

	result, err := s.store.Put(ctx, session.HubKey, payload, prov)
	if err != nil {
		// The index row already moved; the satellite is best effort.
		log.Warn(ctx, "failed to append session snapshot",
			log.String("session_digest", session.TokenDigest),
			log.Cause(err))

		return
	}

	s.auditMutation(ctx, session.TenantKey, session.HubKey, audit.RecordSatellite, result.Version.EffectiveFrom, prov)
}

func (s *SessionService) notifyInvalidate(ctx context.Context, digest string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Notify(ctx, live.NewInvalidateKeysEvent(digest)); err != nil {
		log.Warn(ctx, "failed to broadcast session invalidation", log.Cause(err))
	}
}

// deniedReason maps a terminal state to its wire reason.
func deniedReason(state vault.SessionState) access.Reason {
	switch state {
	case vault.SessionExpired:
		return access.ReasonSessionExpired
	case vault.SessionRevoked:
		return access.ReasonSessionRevoked
	case vault.SessionExhausted:
		return access.ReasonSessionExhausted
	default:
		return access.ReasonNone
	}
}
