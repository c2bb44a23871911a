package domains

import (
	"github.com/samber/lo"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/pkg/xregexp"
)

// Check applies the isolation rules in fixed order and returns the deny
// reason, or ok=true when the gate passes. There is no default-allow path:
// every outcome is decided by an explicit rule.
//
// Order matters: a missing or revoked assignment wins over everything, the
// domain match is absolute and evaluated before category rules.
func Check(assignment *Assignment, resourceDomain string, categories []string) (access.Reason, bool) {
	if assignment == nil || !assignment.Live() {
		return access.ReasonNoDomainAssigned, false
	}

	if assignment.Domain != resourceDomain {
		return access.ReasonCrossDomainViolation, false
	}

	if categoryDenied(assignment, categories) {
		return access.ReasonCategoryDenied, false
	}

	return "", true
}

func categoryDenied(assignment *Assignment, categories []string) bool {
	if len(categories) == 0 {
		return false
	}

	for _, category := range categories {
		denied := lo.SomeBy(assignment.DeniedCategories, func(pattern string) bool {
			return xregexp.MatchString(pattern, category)
		})
		if denied {
			return true
		}
	}

	if len(assignment.AllowedCategories) == 0 {
		return false
	}

	// A non-empty allow-list is exhaustive: every detected category must match.
	for _, category := range categories {
		allowed := lo.SomeBy(assignment.AllowedCategories, func(pattern string) bool {
			return xregexp.MatchString(pattern, category)
		})
		if !allowed {
			return true
		}
	}

	return false
}
