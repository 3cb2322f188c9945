// Package role derives a session's privilege tier from primary-provider
// identity claims.
package role

import "strings"

// Role is the privilege tier assigned to a session. It is the subject
// used in policy evaluation.
type Role string

const (
	// Admin is the highest tier, granted to the administrative domain.
	Admin Role = "admin"
	// Premium is the paid consumer tier.
	Premium Role = "premium"
	// Free is the lowest tier and the safe default.
	Free Role = "free"
)

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case Admin, Premium, Free:
		return true
	}
	return false
}

// Deriver computes a Role from an email claim by domain suffix match.
// It is a pure function of the email: the same input always yields the
// same tier.
type Deriver struct {
	adminDomain   string
	premiumDomain string
}

// NewDeriver creates a Deriver for the given email domains.
func NewDeriver(adminDomain, premiumDomain string) *Deriver {
	return &Deriver{
		adminDomain:   adminDomain,
		premiumDomain: premiumDomain,
	}
}

// Derive maps an email to a tier. Callers must reject identities with
// an empty email before reaching this point; an empty email yields Free
// as a backstop. Unverified emails never grant an elevated tier.
func (d *Deriver) Derive(email string, emailVerified bool) Role {
	if email == "" || !emailVerified {
		return Free
	}
	if d.adminDomain != "" && strings.HasSuffix(email, "@"+d.adminDomain) {
		return Admin
	}
	if d.premiumDomain != "" && strings.HasSuffix(email, "@"+d.premiumDomain) {
		return Premium
	}
	return Free
}
