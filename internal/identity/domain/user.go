package domain

import (
	"strings"
	"time"
)

type User struct {
	ID    string
	Email string // lower-cased, globally unique
	Name  string
	Role  Role

	CompanyID string  // tenant
	ParkID    *string // copied from the company on creation

	AuthSource    AuthSource
	PasswordHash  string  // argon2, empty for directory and SSO users
	DirectoryDN   *string // set once the user has come from a directory
	SSOSubjectID  *string
	SSOProviderID *string // SSO config id the subject belongs to

	IsActive     bool
	TwoFAEnabled bool
	TwoFASecret  *string // vault-sealed base32 TOTP seed

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the part after the last '@', lower-cased.
func EmailDomain(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// Ptr is a small helper for the optional string fields.
func Ptr(s string) *string { return &s }

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
