package biz

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/vault"
)

type AccessServiceParams struct {
	fx.In

	Store             vault.Store
	Audit             *audit.Dispatcher
	Risk              *risk.Engine
	SessionService    *SessionService
	AssignmentService *AssignmentService
	AuthService       *AuthService
}

func NewAccessService(params AccessServiceParams) *AccessService {
	return &AccessService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
		Risk:              params.Risk,
		SessionService:    params.SessionService,
		AssignmentService: params.AssignmentService,
		AuthService:       params.AuthService,
	}
}

// AccessService runs the full decision procedure: session gates, then
// the domain-isolation gate, then risk tiering. Earlier gates win; the
// isolation gate never consults the score.
type AccessService struct {
	*AbstractService

	Risk              *risk.Engine
	SessionService    *SessionService
	AssignmentService *AssignmentService
	AuthService       *AuthService
}

// AccessRequest describes one request to be decided.
type AccessRequest struct {
	// Token is the opaque session bearer token.
	Token string

	// Domain is the knowledge domain the target resource belongs to.
	Domain string

	// Action is the operation class requested.
	Action access.Action

	// Categories are caller-declared resource categories. Categories
	// detected in the payload are added to them.
	Categories []string

	// Payload is the request content, scanned for restricted categories
	// and sensitivity.
	Payload []byte

	// StepUpGrant optionally proves a recent re-authentication.
	StepUpGrant string

	Signals risk.Signals
}

// Authorize decides the request. The error return covers store failures
// only; every policy outcome is a Decision.
func (s *AccessService) Authorize(ctx context.Context, req *AccessRequest) (access.Decision, error) {
	started := xtime.Now()

	session, _, reason, err := s.SessionService.Validate(ctx, req.Token, req.Signals)
	if err != nil {
		return access.Decision{}, err
	}

	var tenant, actor vault.HashKey
	if session != nil {
		tenant, actor = session.TenantKey, session.ActorKey
	}

	if reason != access.ReasonNone {
		return s.finish(ctx, started, tenant, actor, req, access.Deny(reason, access.TierDenied, 0)), nil
	}

	// The gate walks the assignment under the system identity; the
	// subject is the session actor, not the calling principal.
	assignment, err := authz.RunWithSystemBypass(ctx, "access-gate", func(bypassCtx context.Context) (*domains.Assignment, error) {
		return s.AssignmentService.Live(bypassCtx, actor)
	})
	if err != nil {
		return access.Decision{}, err
	}

	categories := req.Categories

	if len(req.Payload) > 0 {
		_, detected := s.Risk.ScanPayload(req.Payload)
		categories = append(append([]string(nil), categories...), detected...)
	}

	if gateReason, ok := domains.Check(assignment, req.Domain, categories); !ok {
		return s.finish(ctx, started, tenant, actor, req, access.Deny(gateReason, access.TierDenied, 0)), nil
	}

	assessment := s.Risk.Assess(actor, req.Payload, req.Signals)
	metrics.RecordRiskScore(ctx, assessment.Score)

	switch assessment.Tier {
	case access.TierDenied:
		return s.finish(ctx, started, tenant, actor, req,
			access.Deny(access.ReasonRiskDenied, assessment.Tier, assessment.Score)), nil

	case access.TierElevated:
		if !s.stepUpVerified(ctx, req.StepUpGrant, session.TokenDigest) {
			return s.finish(ctx, started, tenant, actor, req,
				access.Deny(access.ReasonStepUpRequired, assessment.Tier, assessment.Score)), nil
		}
	}

	return s.finish(ctx, started, tenant, actor, req, access.Allow(assessment.Tier, assessment.Score)), nil
}

// finish records metrics and audit for the decision. Denied-tier
// refusals write their audit event before the caller sees the verdict;
// everything else goes through the async path.
func (s *AccessService) finish(
	ctx context.Context,
	started time.Time,
	tenant, actor vault.HashKey,
	req *AccessRequest,
	decision access.Decision,
) access.Decision {
	elapsed := xtime.Now().Sub(started)
	metrics.RecordDecision(ctx, decision.Allowed, string(decision.Reason), string(decision.Tier), elapsed)

	if s.audit != nil {
		event := audit.NewDecisionEvent(ctx, tenant, actor, decision, req.Domain, string(req.Action))

		if !decision.Allowed && decision.Tier == access.TierDenied {
			if err := s.audit.PublishSync(ctx, event); err != nil {
				log.Warn(ctx, "failed to record denial", log.Cause(err))
			}
		} else {
			s.audit.Publish(ctx, event)
		}
	}

	if !decision.Allowed {
		log.Info(ctx, "access denied",
			log.String("reason", string(decision.Reason)),
			log.String("domain", req.Domain),
			log.String("action", string(req.Action)),
			log.Int("score", decision.Score))
	}

	return decision
}

// stepUpVerified accepts a grant only when it is bound to the session
// being decided.
func (s *AccessService) stepUpVerified(ctx context.Context, grant, digest string) bool {
	if grant == "" {
		return false
	}

	bound, err := s.AuthService.VerifyStepUp(ctx, grant)
	if err != nil {
		log.Debug(ctx, "step-up grant rejected", log.Cause(err))

		return false
	}

	return bound == digest
}
