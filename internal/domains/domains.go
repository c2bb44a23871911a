// Package domains holds the knowledge-domain assignment vocabulary and the
// isolation gate. An actor belongs to at most one live domain per tenant;
// crossing domains is denied absolutely, before any risk evaluation.
package domains

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keeldata/trustvault/internal/vault"
)

// LinkKind is the relationship kind connecting an actor hub to a domain hub.
const LinkKind = "domain-assignment"

// KindDomain is the hub kind for domain hubs.
const KindDomain = "domain"

type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
)

// Assignment is the payload schema of a domain-assignment link satellite.
// Category lists hold exact names or patterns in the platform filter syntax.
type Assignment struct {
	Domain            string    `json:"domain"`
	AllowedCategories []string  `json:"allowedCategories,omitempty"`
	DeniedCategories  []string  `json:"deniedCategories,omitempty"`
	Status            Status    `json:"status"`
	GrantedBy         string    `json:"grantedBy,omitempty"`
	GrantedAt         time.Time `json:"grantedAt"`
}

// Live reports whether the assignment currently grants access.
func (a Assignment) Live() bool {
	return a.Status == StatusGranted
}

func (a Assignment) Validate() error {
	if a.Domain == "" {
		return fmt.Errorf("%w: assignment domain must not be empty", vault.ErrValidation)
	}

	switch a.Status {
	case StatusGranted, StatusRevoked:
	default:
		return fmt.Errorf("%w: unknown assignment status %q", vault.ErrValidation, a.Status)
	}

	return nil
}

// Encode renders the assignment as a satellite payload.
func (a Assignment) Encode() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	return json.Marshal(a)
}

// ParseAssignment decodes and validates a satellite payload.
func ParseAssignment(payload []byte) (Assignment, error) {
	var a Assignment
	if err := json.Unmarshal(payload, &a); err != nil {
		return Assignment{}, fmt.Errorf("%w: malformed assignment payload: %v", vault.ErrValidation, err)
	}

	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}

	return a, nil
}
