package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// apiError maps a service error onto the wire envelope. It returns nil for
// errors that are not part of the service's caller-visible set.
func apiError(err error) *identitysdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return identitysdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrAccountDisabled):
		return identitysdk.ErrAccountDisabled
	case errors.Is(err, service.ErrInvalidVerificationCode):
		return identitysdk.ErrInvalidVerificationCode
	case errors.Is(err, service.ErrDirectoryUnavailable),
		errors.Is(err, service.ErrSSOUnavailable):
		return identitysdk.ErrAuthenticationUnavailable
	case errors.Is(err, service.ErrForbidden):
		return identitysdk.ErrForbidden
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrSSOConfigNotFound):
		return identitysdk.ErrNotFound
	case errors.Is(err, service.ErrDuplicateConfigForTenant):
		return identitysdk.ErrConflict
	case errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, service.ErrDirectoryConfigIncomplete):
		// Validation messages are written for administrators.
		return identitysdk.ErrInvalidConfig.WithDescription(err.Error())
	case errors.Is(err, service.ErrSyncInProgress):
		return identitysdk.ErrSyncInProgress
	case errors.Is(err, service.ErrTwoFANotEnabled):
		return identitysdk.ErrTwoFANotEnabled
	case errors.Is(err, service.ErrTwoFAAlreadyEnabled):
		return identitysdk.ErrTwoFAAlreadyEnabled
	case errors.Is(err, service.ErrTwoFANotEnrolled):
		return identitysdk.ErrTwoFANotEnrolled
	case errors.Is(err, service.ErrTrustedDevicesOff):
		return identitysdk.ErrTrustedDevicesDisabled
	case errors.Is(err, service.ErrAlreadySetup):
		return identitysdk.ErrAlreadySetup
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		return identitysdk.ErrUnauthorized
	case errors.Is(err, service.ErrInvalidOrExpiredState),
		errors.Is(err, service.ErrProtocolMismatch):
		return identitysdk.ErrInvalidRequest.WithDescription("invalid or expired sso state")
	}
	return nil
}

// writeServiceError logs and writes err. Known errors are a client's
// problem and log at warn; anything else is a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := slogx.FromContext(r.Context())

	if e := apiError(err); e != nil {
		log.Warn(msg, "err", err, "code", e.Code)
		e.WriteError(w)
		return
	}
	log.Error(msg, "err", err)
	identitysdk.ErrServerError.WriteError(w)
}

// ssoErrorCode is the short code put in the ?error= redirect after a failed
// SSO callback. The frontend turns it into a message.
func ssoErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidOrExpiredState),
		errors.Is(err, service.ErrProtocolMismatch):
		return "invalid_state"
	case errors.Is(err, service.ErrEmailDomainNotAllowed):
		return "domain_not_allowed"
	case errors.Is(err, service.ErrCrossTenantEmailCollision),
		errors.Is(err, service.ErrElevatedAccountLink):
		return "account_conflict"
	case errors.Is(err, service.ErrAutoProvisioningDisabled):
		return "provisioning_disabled"
	case errors.Is(err, service.ErrEmailClaimMissing):
		return "email_missing"
	case errors.Is(err, service.ErrAccountDisabled):
		return identitysdk.ErrorCodeAccountDisabled
	case errors.Is(err, service.ErrSSOUnavailable),
		errors.Is(err, service.ErrSSOConfigNotFound):
		return identitysdk.ErrorCodeAuthenticationUnavailable
	case errors.Is(err, service.ErrInvalidCredentials):
		return "authentication_failed"
	}
	return identitysdk.ErrorCodeServerError
}
