package service

import "errors"

// Caller-visible failures. Credential errors stay deliberately vague.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAccountDisabled         = errors.New("account disabled")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrInvalidOrExpiredState   = errors.New("invalid or expired sso state")

	ErrDirectoryUnavailable      = errors.New("directory unavailable")
	ErrDirectoryConfigIncomplete = errors.New("directory config incomplete")

	ErrEmailDomainNotAllowed     = errors.New("email domain not allowed")
	ErrDuplicateConfigForTenant  = errors.New("tenant already has a config")
	ErrCrossTenantEmailCollision = errors.New("email belongs to another tenant")
	ErrElevatedAccountLink       = errors.New("sso cannot link an elevated account")
	ErrAutoProvisioningDisabled  = errors.New("auto provisioning disabled")
	ErrEmailClaimMissing         = errors.New("identity provider did not release an email")
	ErrSSOUnavailable            = errors.New("identity provider unavailable")
	ErrSSOConfigNotFound         = errors.New("sso config not found")
	ErrProtocolMismatch          = errors.New("sso protocol mismatch")

	ErrTwoFANotEnabled     = errors.New("two-factor authentication not enabled")
	ErrTwoFAAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFANotEnrolled    = errors.New("two-factor setup not started")
	ErrTrustedDevicesOff   = errors.New("trusted devices are disabled")

	ErrSyncInProgress = errors.New("sync already in progress for tenant")

	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid config")
	ErrAlreadySetup  = errors.New("already bootstrapped")
)

// ErrTwoFAPending is not a failure. Login returns it alongside a partial
// session so callers that only look at the error still stop.
var ErrTwoFAPending = errors.New("two-factor verification pending")
