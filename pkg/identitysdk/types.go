package identitysdk

import (
	"time"

	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Error is a stable machine readable code (e.g. "invalid_credentials")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Login Types
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// DeviceToken is a trusted device token from an earlier 2FA login
	DeviceToken string `json:"device_token,omitempty"`

	// RememberMe extends the full session lifetime
	RememberMe bool `json:"remember_me,omitempty"`
}

// LoginResponse carries either a full session or a partial one.
// When RequiresTwoFA is true, Token only grants access to the 2FA endpoints.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`

	RequiresTwoFA      bool `json:"requires_2fa"`
	TwoFASetupRequired bool `json:"two_fa_setup_required,omitempty"`

	// User is omitted for partial sessions
	User *UserResponse `json:"user,omitempty"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	CompanyID    string `json:"company_id"`
	ParkID       string `json:"park_id,omitempty"`
	AuthSource   string `json:"auth_source"`
	TwoFAEnabled bool   `json:"two_fa_enabled"`
}

// ============================================================================
// Two-Factor Types
// ============================================================================

// TwoFASetupResponse is returned once, when enrolment starts.
type TwoFASetupResponse struct {
	Secret     string `json:"secret"`
	QRCodeURL  string `json:"qr_code_url"`
	OTPAuthURL string `json:"otpauth_url"`
}

// TwoFACodeRequest carries a TOTP code.
type TwoFACodeRequest struct {
	Code string `json:"code"`
}

// TwoFAConfirmResponse holds the new backup codes. Session is set when the
// confirmation completed a pending login.
type TwoFAConfirmResponse struct {
	BackupCodes []string       `json:"backup_codes"`
	Session     *LoginResponse `json:"session,omitempty"`
}

// TwoFAVerifyRequest is the body of POST /v1/auth/2fa/verify.
// Code may be a TOTP code or a backup code.
type TwoFAVerifyRequest struct {
	Code        string `json:"code"`
	TrustDevice bool   `json:"trust_device,omitempty"`
}

// TwoFAVerifyResponse is the full session earned by a partial one.
type TwoFAVerifyResponse struct {
	LoginResponse

	// DeviceToken is only returned when the device was trusted
	DeviceToken string `json:"device_token,omitempty"`
}

// TwoFADisableRequest proves the caller before 2FA is turned off. Local and
// directory users send their password, SSO users a TOTP code.
type TwoFADisableRequest struct {
	Password string `json:"password,omitempty"`
	Code     string `json:"code,omitempty"`
}

// BackupCodesResponse lists a freshly generated batch of backup codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// TrustedDeviceResponse describes a trusted device. The token itself is never
// returned after issue.
type TrustedDeviceResponse struct {
	ID         string     `json:"id"`
	UserAgent  string     `json:"user_agent"`
	IP         string     `json:"ip"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// RevokeAllResponse reports how many devices were revoked.
type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// ============================================================================
// Directory Config Types
// ============================================================================

// RoleMapping grants Role to members of GroupDN.
type RoleMapping struct {
	GroupDN string `json:"group_dn"`
	Role    string `json:"role"`
}

// DirectoryConfigRequest creates or replaces a directory config. A nil
// BindPassword on update keeps the stored password.
type DirectoryConfigRequest struct {
	CompanyID string `json:"company_id"`
	Enabled   bool   `json:"enabled"`

	Host               string `json:"host"`
	Port               int    `json:"port,omitempty"`
	TLSMode            string `json:"tls_mode,omitempty"` // none, starttls, ldaps
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`

	BindDN       string  `json:"bind_dn"`
	BindPassword *string `json:"bind_password,omitempty"`

	BaseDN     string `json:"base_dn"`
	UserFilter string `json:"user_filter,omitempty"`
	EmailAttr  string `json:"email_attr,omitempty"`
	NameAttr   string `json:"name_attr,omitempty"`

	GroupBaseDN     string `json:"group_base_dn,omitempty"`
	GroupFilter     string `json:"group_filter,omitempty"`
	GroupMemberAttr string `json:"group_member_attr,omitempty"`

	RoleMappings []RoleMapping `json:"role_mappings,omitempty"`
	DefaultRole  string        `json:"default_role,omitempty"`

	SyncIntervalHours int `json:"sync_interval_hours"`
}

// DirectoryConfigResponse never carries the bind password.
type DirectoryConfigResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Enabled   bool   `json:"enabled"`

	Host               string `json:"host"`
	Port               int    `json:"port"`
	TLSMode            string `json:"tls_mode"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`

	BindDN          string `json:"bind_dn"`
	HasBindPassword bool   `json:"has_bind_password"`

	BaseDN     string `json:"base_dn"`
	UserFilter string `json:"user_filter"`
	EmailAttr  string `json:"email_attr"`
	NameAttr   string `json:"name_attr"`

	GroupBaseDN     string `json:"group_base_dn,omitempty"`
	GroupFilter     string `json:"group_filter,omitempty"`
	GroupMemberAttr string `json:"group_member_attr,omitempty"`

	RoleMappings []RoleMapping `json:"role_mappings"`
	DefaultRole  string        `json:"default_role"`

	SyncIntervalHours int `json:"sync_interval_hours"`

	LastSync SyncStatusResponse `json:"last_sync"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionTestResponse is the outcome of probing a directory.
type ConnectionTestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	UserCount int    `json:"user_count"`
}

// SyncResultResponse is the outcome of one sync run.
type SyncResultResponse struct {
	Created             int      `json:"created"`
	Updated             int      `json:"updated"`
	Disabled            int      `json:"disabled"`
	Reactivated         int      `json:"reactivated"`
	Errors              []string `json:"errors"`
	TotalDirectoryUsers int      `json:"total_directory_users"`
}

// SyncStatusResponse is the last recorded sync for a config.
type SyncStatusResponse struct {
	Status  string     `json:"status"` // success, partial, error, never
	At      *time.Time `json:"at,omitempty"`
	Message string     `json:"message,omitempty"`
	Count   int        `json:"count"`
}

// ============================================================================
// SSO Config Types
// ============================================================================

// SSOConfigRequest creates or replaces an SSO config. A nil ClientSecret on
// update keeps the stored secret.
type SSOConfigRequest struct {
	CompanyID   string `json:"company_id"`
	Enabled     bool   `json:"enabled"`
	Protocol    string `json:"protocol"` // oidc or saml
	DisplayName string `json:"display_name"`

	IssuerURL    string   `json:"issuer_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret *string  `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	IDPEntityID    string `json:"idp_entity_id,omitempty"`
	IDPSSOURL      string `json:"idp_sso_url,omitempty"`
	IDPCertificate string `json:"idp_certificate,omitempty"`

	AutoProvision  bool     `json:"auto_provision"`
	DefaultRole    string   `json:"default_role,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

// SSOConfigResponse never carries the client secret.
type SSOConfigResponse struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Enabled     bool   `json:"enabled"`
	Protocol    string `json:"protocol"`
	DisplayName string `json:"display_name"`

	IssuerURL       string   `json:"issuer_url,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	HasClientSecret bool     `json:"has_client_secret"`
	Scopes          []string `json:"scopes,omitempty"`

	IDPEntityID    string `json:"idp_entity_id,omitempty"`
	IDPSSOURL      string `json:"idp_sso_url,omitempty"`
	IDPCertificate string `json:"idp_certificate,omitempty"`

	AutoProvision  bool     `json:"auto_provision"`
	DefaultRole    string   `json:"default_role"`
	AllowedDomains []string `json:"allowed_domains"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ============================================================================
// SSO Flow Types
// ============================================================================

type DiscoverRequest struct {
	Email string `json:"email"`
}

// DiscoverResponse tells the login page whether to redirect to SSO.
// InitURL is the path to send the browser to when HasSSO is true.
type DiscoverResponse struct {
	HasSSO      bool   `json:"has_sso"`
	ConfigID    string `json:"config_id,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	InitURL     string `json:"init_url,omitempty"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest seeds the first park, company and super admin.
type BootstrapRequest struct {
	ParkName      string `json:"park_name"`
	CompanyName   string `json:"company_name"`
	AdminEmail    string `json:"admin_email"`
	AdminName     string `json:"admin_name"`
	AdminPassword string `json:"admin_password"`
}

// BootstrapResponse contains the IDs of the seeded records.
type BootstrapResponse struct {
	ParkID      string `json:"park_id"`
	CompanyID   string `json:"company_id"`
	AdminUserID string `json:"admin_user_id"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// StateStore indicates the SSO correlation state store status
	StateStore string `json:"state_store"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
type JWKSResponse struct {
	Keys []jwtx.JWK `json:"keys"`
}
