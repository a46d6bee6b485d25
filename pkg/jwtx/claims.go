package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session stages carried in the "stage" claim.
const (
	// StageFull is a fully authenticated session.
	StageFull = "full"

	// StageTwoFAPending is issued after the first factor when a TOTP code is
	// still owed, or when enrolment is mandatory. It only opens the 2FA routes.
	StageTwoFAPending = "2fa_pending"
)

// ScopeTwoFA is the only scope granted to a partial session.
const ScopeTwoFA = "2fa"

// Authentication method references.
const (
	AMRPassword  = "pwd"
	AMRDirectory = "ldap"
	AMROIDC      = "oidc"
	AMRSAML      = "saml"
	AMROTP       = "otp"
	AMRBackup    = "backup"
	AMRDevice    = "device"
)

// Claims are the session-token claims minted by the identity service.
type Claims struct {
	jwt.RegisteredClaims

	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	ParkID    string `json:"park_id,omitempty"`

	// AMR lists how the user proved themselves, e.g. ["pwd","otp"].
	AMR []string `json:"amr,omitempty"`

	Stage string `json:"stage"`
	Scope string `json:"scope,omitempty"`

	// TwoFASetupRequired tells clients to route straight to enrolment.
	TwoFASetupRequired bool `json:"twofa_setup_required,omitempty"`

	// RememberMe survives the partial stage so the full session issued after
	// 2FA gets the long lifetime the user asked for.
	RememberMe bool `json:"rmb,omitempty"`
}

// Subject is a convenience for the user the token was issued to.
func (c Claims) Subject() string { return c.RegisteredClaims.Subject }

// IsPartial reports whether the claims belong to a pending-2FA session.
func (c Claims) IsPartial() bool { return c.Stage != StageFull }

// NewSessionClaims fills the registered claims for a token living ttl from now.
// Callers set the identity fields.
func NewSessionClaims(subject, issuer string, audience []string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Stage: StageFull,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
