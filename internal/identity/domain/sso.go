package domain

import (
	"slices"
	"strings"
	"time"
)

type SSOConfig struct {
	ID          string
	CompanyID   string
	Enabled     bool
	Protocol    SSOProtocol
	DisplayName string

	// OIDC
	IssuerURL       string
	ClientID        string
	ClientSecretEnc string // vault-sealed
	Scopes          []string

	// SAML
	IDPEntityID    string
	IDPSSOURL      string
	IDPCertificate string // PEM

	AutoProvision  bool
	DefaultRole    Role
	AllowedDomains []string // lower-cased; empty allows any domain

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DomainAllowed applies the allow-list to an email address.
func (c SSOConfig) DomainAllowed(email string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	d := EmailDomain(email)
	if d == "" {
		return false
	}
	return slices.ContainsFunc(c.AllowedDomains, func(a string) bool {
		return strings.EqualFold(strings.TrimPrefix(a, "@"), d)
	})
}

// VersionKey changes whenever the config is edited; provider caches key on it.
func (c SSOConfig) VersionKey() string {
	return c.ID + "@" + c.UpdatedAt.UTC().Format(time.RFC3339Nano)
}
