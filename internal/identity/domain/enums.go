package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEnum is wrapped by every Parse* function.
var ErrInvalidEnum = errors.New("domain: invalid value")

// Role is a platform role. The zero value is not a valid role.
type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleCompanyAdmin
	RoleParkAdmin
	RoleSuperAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleCompanyAdmin:
		return "company_admin"
	case RoleParkAdmin:
		return "park_admin"
	case RoleSuperAdmin:
		return "super_admin"
	}
	return "unknown"
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "company_admin":
		return RoleCompanyAdmin, nil
	case "park_admin":
		return RoleParkAdmin, nil
	case "super_admin":
		return RoleSuperAdmin, nil
	}
	return RoleUnknown, fmt.Errorf("%w: role %q", ErrInvalidEnum, s)
}

// DirectoryAssignable reports whether directory sync may grant the role.
// Park and platform administrators are only ever appointed by hand.
func (r Role) DirectoryAssignable() bool {
	switch r {
	case RoleUser, RoleCompanyAdmin:
		return true
	default:
		return false
	}
}

// Rank orders roles by privilege; higher wins.
func (r Role) Rank() int { return int(r) }

// AuthSource records which credential is authoritative for a user.
type AuthSource int

const (
	AuthSourceUnknown AuthSource = iota
	AuthSourceLocal
	AuthSourceDirectory
	AuthSourceOIDC
	AuthSourceSAML
)

func (a AuthSource) String() string {
	switch a {
	case AuthSourceLocal:
		return "local"
	case AuthSourceDirectory:
		return "directory"
	case AuthSourceOIDC:
		return "oidc"
	case AuthSourceSAML:
		return "saml"
	}
	return "unknown"
}

func ParseAuthSource(s string) (AuthSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return AuthSourceLocal, nil
	case "directory", "ldap":
		return AuthSourceDirectory, nil
	case "oidc":
		return AuthSourceOIDC, nil
	case "saml":
		return AuthSourceSAML, nil
	}
	return AuthSourceUnknown, fmt.Errorf("%w: auth source %q", ErrInvalidEnum, s)
}

// IsSSO is true for the federated sources.
func (a AuthSource) IsSSO() bool { return a == AuthSourceOIDC || a == AuthSourceSAML }

// Enforcement is the system-wide 2FA policy and the resolved outcome.
type Enforcement int

const (
	EnforcementUnknown Enforcement = iota
	EnforcementRequired
	EnforcementOptional
	EnforcementDisabled
)

func (e Enforcement) String() string {
	switch e {
	case EnforcementRequired:
		return "required"
	case EnforcementOptional:
		return "optional"
	case EnforcementDisabled:
		return "disabled"
	}
	return "unknown"
}

func ParseEnforcement(s string) (Enforcement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required":
		return EnforcementRequired, nil
	case "optional":
		return EnforcementOptional, nil
	case "disabled":
		return EnforcementDisabled, nil
	}
	return EnforcementUnknown, fmt.Errorf("%w: enforcement %q", ErrInvalidEnum, s)
}

// LevelEnforcement is the park or company override of the system policy.
type LevelEnforcement int

const (
	LevelUnknown LevelEnforcement = iota
	LevelInherit
	LevelOptional
	LevelRequired
)

func (l LevelEnforcement) String() string {
	switch l {
	case LevelInherit:
		return "inherit"
	case LevelOptional:
		return "optional"
	case LevelRequired:
		return "required"
	}
	return "unknown"
}

// ParseLevelEnforcement treats the empty string as inherit.
func ParseLevelEnforcement(s string) (LevelEnforcement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return LevelInherit, nil
	case "optional":
		return LevelOptional, nil
	case "required":
		return LevelRequired, nil
	}
	return LevelUnknown, fmt.Errorf("%w: level enforcement %q", ErrInvalidEnum, s)
}

// SSOProtocol selects the federation adapter.
type SSOProtocol int

const (
	ProtocolUnknown SSOProtocol = iota
	ProtocolOIDC
	ProtocolSAML
)

func (p SSOProtocol) String() string {
	switch p {
	case ProtocolOIDC:
		return "oidc"
	case ProtocolSAML:
		return "saml"
	}
	return "unknown"
}

func ParseSSOProtocol(s string) (SSOProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oidc":
		return ProtocolOIDC, nil
	case "saml":
		return ProtocolSAML, nil
	}
	return ProtocolUnknown, fmt.Errorf("%w: sso protocol %q", ErrInvalidEnum, s)
}

// AuthSource maps a protocol to the user auth source it establishes.
func (p SSOProtocol) AuthSource() AuthSource {
	switch p {
	case ProtocolOIDC:
		return AuthSourceOIDC
	case ProtocolSAML:
		return AuthSourceSAML
	}
	return AuthSourceUnknown
}

// TLSMode is how the directory connection is secured.
type TLSMode int

const (
	TLSNone TLSMode = iota
	TLSLDAPS
	TLSStartTLS
)

func (m TLSMode) String() string {
	switch m {
	case TLSLDAPS:
		return "ldaps"
	case TLSStartTLS:
		return "starttls"
	}
	return "none"
}

func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TLSNone, nil
	case "ldaps", "tls":
		return TLSLDAPS, nil
	case "starttls":
		return TLSStartTLS, nil
	}
	return TLSNone, fmt.Errorf("%w: tls mode %q", ErrInvalidEnum, s)
}

// SyncStatus summarises the last directory sync run.
type SyncStatus int

const (
	SyncNever SyncStatus = iota
	SyncSuccess
	SyncPartial
	SyncError
)

func (s SyncStatus) String() string {
	switch s {
	case SyncSuccess:
		return "success"
	case SyncPartial:
		return "partial"
	case SyncError:
		return "error"
	}
	return "never"
}

func ParseSyncStatus(s string) (SyncStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return SyncNever, nil
	case "success":
		return SyncSuccess, nil
	case "partial":
		return SyncPartial, nil
	case "error":
		return SyncError, nil
	}
	return SyncNever, fmt.Errorf("%w: sync status %q", ErrInvalidEnum, s)
}
