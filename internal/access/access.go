package access

import "slices"

// Reason identifies why an access decision denied a request.
// Reason values are stable wire strings: clients and audit consumers
// match on them, so existing values must never be renamed.
type Reason string

// Available deny reasons.
const (
	// ReasonNone marks an allowed decision.
	ReasonNone Reason = ""

	// ReasonSessionNotFound no session matches the presented token.
	ReasonSessionNotFound Reason = "SESSION_NOT_FOUND"
	// ReasonSessionExpired the session validity window has passed.
	ReasonSessionExpired Reason = "SESSION_EXPIRED"
	// ReasonSessionRevoked the session was revoked by an operator.
	ReasonSessionRevoked Reason = "SESSION_REVOKED"
	// ReasonSessionExhausted the session spent its request or byte allowance.
	ReasonSessionExhausted Reason = "SESSION_EXHAUSTED"

	// ReasonNoDomainAssigned the actor has no live domain assignment in the tenant.
	ReasonNoDomainAssigned Reason = "NO_DOMAIN_ASSIGNED"
	// ReasonCrossDomainViolation the resource belongs to a domain outside the assignment.
	ReasonCrossDomainViolation Reason = "CROSS_DOMAIN_VIOLATION"
	// ReasonCategoryDenied the resource category is excluded by the assignment.
	ReasonCategoryDenied Reason = "CATEGORY_DENIED"

	// ReasonRiskDenied the computed risk score landed in the denied tier.
	ReasonRiskDenied Reason = "RISK_DENIED"
	// ReasonStepUpRequired the tier demands a step-up proof that was absent or invalid.
	ReasonStepUpRequired Reason = "STEP_UP_REQUIRED"
)

// Tier is the clearance band derived from a risk score. Tiers are ordered:
// a larger ordinal means less access.
type Tier string

const (
	// TierFull unrestricted access within the assignment.
	TierFull Tier = "full"

	// TierStandard normal access, elevated operations may be trimmed.
	TierStandard Tier = "standard"

	// TierElevated access only with a verified step-up proof.
	TierElevated Tier = "elevated"

	// TierDenied no access regardless of proofs.
	TierDenied Tier = "denied"
)

// Action is the operation class a caller requests against a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// Decision is the outcome of the full access procedure. A denied decision
// always carries a Reason; an allowed one carries the tier the caller
// operates under.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Tier    Tier   `json:"tier,omitempty"`
	Score   int    `json:"score"`
}

// Allow builds an allowed decision for the given tier and score.
func Allow(tier Tier, score int) Decision {
	return Decision{Allowed: true, Tier: tier, Score: score}
}

// Deny builds a denied decision. Gate denials that precede scoring pass
// a zero score and TierDenied.
func Deny(reason Reason, tier Tier, score int) Decision {
	return Decision{Allowed: false, Reason: reason, Tier: tier, Score: score}
}

type reasonConfig struct {
	Reason      Reason
	Description string
	// Terminal reasons cannot be cured by a step-up proof on the same request.
	Terminal bool
}

// reasonConfigs defines all deny reasons with their configurations.
var reasonConfigs = []reasonConfig{
	{
		Reason:      ReasonSessionNotFound,
		Description: "No session matches the presented token",
		Terminal:    true,
	},
	{
		Reason:      ReasonSessionExpired,
		Description: "Session validity window has passed",
		Terminal:    true,
	},
	{
		Reason:      ReasonSessionRevoked,
		Description: "Session was revoked",
		Terminal:    true,
	},
	{
		Reason:      ReasonSessionExhausted,
		Description: "Session request or byte allowance is spent",
		Terminal:    true,
	},
	{
		Reason:      ReasonNoDomainAssigned,
		Description: "Actor holds no live domain assignment in the tenant",
		Terminal:    true,
	},
	{
		Reason:      ReasonCrossDomainViolation,
		Description: "Resource domain is outside the actor assignment",
		Terminal:    true,
	},
	{
		Reason:      ReasonCategoryDenied,
		Description: "Resource category is excluded by the assignment",
		Terminal:    true,
	},
	{
		Reason:      ReasonRiskDenied,
		Description: "Risk score landed in the denied tier",
		Terminal:    true,
	},
	{
		Reason:      ReasonStepUpRequired,
		Description: "Tier requires a step-up proof",
		Terminal:    false,
	},
}

var tierOrder = []Tier{TierFull, TierStandard, TierElevated, TierDenied}

// AllReasons returns every deny reason as wire strings.
func AllReasons() []string {
	reasons := make([]string, 0, len(reasonConfigs))
	for _, cfg := range reasonConfigs {
		reasons = append(reasons, string(cfg.Reason))
	}

	return reasons
}

// IsValidReason reports whether the string is a known deny reason.
func IsValidReason(reason string) bool {
	return slices.ContainsFunc(reasonConfigs, func(cfg reasonConfig) bool {
		return string(cfg.Reason) == reason
	})
}

// IsTerminalReason reports whether the reason cannot be cured by a
// step-up proof on the same request.
func IsTerminalReason(reason Reason) bool {
	for _, cfg := range reasonConfigs {
		if cfg.Reason == reason {
			return cfg.Terminal
		}
	}

	return false
}

// DescribeReason returns the human description for a reason, or the
// reason itself when unknown.
func DescribeReason(reason Reason) string {
	for _, cfg := range reasonConfigs {
		if cfg.Reason == reason {
			return cfg.Description
		}
	}

	return string(reason)
}

// AllTiers returns the tiers ordered from most to least access.
func AllTiers() []Tier {
	return slices.Clone(tierOrder)
}

// IsValidTier reports whether the string names a known tier.
func IsValidTier(tier string) bool {
	return slices.Contains(tierOrder, Tier(tier))
}

// AtMost reports whether t grants no more access than limit.
// Unknown tiers never satisfy AtMost.
func (t Tier) AtMost(limit Tier) bool {
	ti := slices.Index(tierOrder, t)
	li := slices.Index(tierOrder, limit)

	return ti >= 0 && li >= 0 && ti >= li
}

// IsValidAction reports whether the string names a known action.
func IsValidAction(action string) bool {
	switch Action(action) {
	case ActionRead, ActionWrite, ActionAdmin:
		return true
	default:
		return false
	}
}
