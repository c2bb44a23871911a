package domains

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/vault"
)

func grantedAssignment(domain string) *Assignment {
	return &Assignment{
		Domain:    domain,
		Status:    StatusGranted,
		GrantedBy: "system",
		GrantedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAssignmentRoundTrip(t *testing.T) {
	original := grantedAssignment("finance")
	original.AllowedCategories = []string{"payment"}
	original.DeniedCategories = []string{"health"}

	payload, err := original.Encode()
	require.NoError(t, err)

	parsed, err := ParseAssignment(payload)
	require.NoError(t, err)
	require.Equal(t, *original, parsed)
	require.True(t, parsed.Live())
}

func TestAssignmentValidate(t *testing.T) {
	missing := Assignment{Status: StatusGranted}
	err := missing.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, vault.ErrValidation)

	unknown := Assignment{Domain: "finance", Status: Status("pending")}
	err = unknown.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, vault.ErrValidation)
}

func TestParseAssignmentMalformed(t *testing.T) {
	_, err := ParseAssignment([]byte(`{"domain":`))
	require.Error(t, err)
	require.ErrorIs(t, err, vault.ErrValidation)
}

func TestRevokedAssignmentIsNotLive(t *testing.T) {
	a := grantedAssignment("finance")
	a.Status = StatusRevoked
	require.False(t, a.Live())
}

func TestCheckNoAssignment(t *testing.T) {
	reason, ok := Check(nil, "finance", nil)
	require.False(t, ok)
	require.Equal(t, access.ReasonNoDomainAssigned, reason)
}

func TestCheckRevokedAssignment(t *testing.T) {
	a := grantedAssignment("finance")
	a.Status = StatusRevoked

	reason, ok := Check(a, "finance", nil)
	require.False(t, ok)
	require.Equal(t, access.ReasonNoDomainAssigned, reason)
}

func TestCheckCrossDomain(t *testing.T) {
	a := grantedAssignment("finance")

	reason, ok := Check(a, "clinical", nil)
	require.False(t, ok)
	require.Equal(t, access.ReasonCrossDomainViolation, reason)
}

func TestCheckCrossDomainBeatsCategories(t *testing.T) {
	// The domain rule is absolute: category evaluation never runs for a
	// foreign domain, even when the categories would pass.
	a := grantedAssignment("finance")
	a.AllowedCategories = []string{"payment"}

	reason, ok := Check(a, "clinical", []string{"payment"})
	require.False(t, ok)
	require.Equal(t, access.ReasonCrossDomainViolation, reason)
}

func TestCheckDeniedCategory(t *testing.T) {
	a := grantedAssignment("finance")
	a.DeniedCategories = []string{"health"}

	reason, ok := Check(a, "finance", []string{"health"})
	require.False(t, ok)
	require.Equal(t, access.ReasonCategoryDenied, reason)
}

func TestCheckDeniedCategoryPattern(t *testing.T) {
	a := grantedAssignment("finance")
	a.DeniedCategories = []string{"gov.*"}

	reason, ok := Check(a, "finance", []string{"government-id"})
	require.False(t, ok)
	require.Equal(t, access.ReasonCategoryDenied, reason)
}

func TestCheckAllowListIsExhaustive(t *testing.T) {
	a := grantedAssignment("finance")
	a.AllowedCategories = []string{"payment"}

	// Inside the allow-list passes.
	reason, ok := Check(a, "finance", []string{"payment"})
	require.True(t, ok)
	require.Empty(t, reason)

	// Outside the allow-list denies.
	reason, ok = Check(a, "finance", []string{"payment", "credentials"})
	require.False(t, ok)
	require.Equal(t, access.ReasonCategoryDenied, reason)
}

func TestCheckEmptyAllowListAllowsAnything(t *testing.T) {
	a := grantedAssignment("finance")

	reason, ok := Check(a, "finance", []string{"credentials", "health"})
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestCheckNoCategoriesPasses(t *testing.T) {
	a := grantedAssignment("finance")
	a.AllowedCategories = []string{"payment"}
	a.DeniedCategories = []string{"health"}

	reason, ok := Check(a, "finance", nil)
	require.True(t, ok)
	require.Empty(t, reason)
}
