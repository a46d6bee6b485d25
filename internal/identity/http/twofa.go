package http

import (
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// TwoFAHandler handles the /v1/auth/2fa endpoints.
type TwoFAHandler struct {
	LoginService     *service.LoginService
	TwoFactorService *service.TwoFactorService
}

// HandleSetup handles POST /v1/auth/2fa/setup
//
//	@Summary		Start TOTP enrolment
//	@Description	Generates a TOTP secret and QR code. 2FA stays off until the setup is confirmed.
//	@Description	Accepts a full session or a partial session waiting on enrolment.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.TwoFASetupResponse	"Secret, QR code data URL and otpauth URL"
//	@Failure		401	{object}	identitysdk.ErrorResponse		"Invalid or missing token"
//	@Failure		409	{object}	identitysdk.ErrorResponse		"2FA already enabled"
//	@Router			/v1/auth/2fa/setup [post].
func (h *TwoFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	setup, err := h.TwoFactorService.BeginSetup(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "failed to start 2fa setup", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.TwoFASetupResponse{
		Secret:     setup.Secret,
		QRCodeURL:  setup.QRCodeURL,
		OTPAuthURL: setup.OTPAuthURL,
	})
}

// HandleConfirm handles POST /v1/auth/2fa/confirm
//
//	@Summary		Confirm TOTP enrolment
//	@Description	Enables 2FA once a valid code is presented and returns the backup codes (shown once).
//	@Description	A partial session waiting on enrolment also gets its full session back.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.TwoFACodeRequest		true	"TOTP code"
//	@Success		200		{object}	identitysdk.TwoFAConfirmResponse	"Backup codes and optional session"
//	@Failure		400		{object}	identitysdk.ErrorResponse			"Setup not started"
//	@Failure		401		{object}	identitysdk.ErrorResponse			"Invalid code or token"
//	@Failure		409		{object}	identitysdk.ErrorResponse			"2FA already enabled"
//	@Router			/v1/auth/2fa/confirm [post].
func (h *TwoFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.TwoFACodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid 2fa confirm body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.LoginService.ConfirmTwoFASetup(ctx, claims, req.Code)
	if err != nil {
		writeServiceError(w, r, "failed to confirm 2fa setup", err)
		return
	}

	out := identitysdk.TwoFAConfirmResponse{BackupCodes: res.BackupCodes}
	if res.Session != nil {
		s := loginResponse(*res.Session)
		out.Session = &s
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleVerify handles POST /v1/auth/2fa/verify
//
//	@Summary		Complete a pending login
//	@Description	Trades a partial session and a TOTP or backup code for a full session.
//	@Description	With trust_device set a device token is returned that skips 2FA on later logins.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.TwoFAVerifyRequest	true	"Code and device preference"
//	@Success		200		{object}	identitysdk.TwoFAVerifyResponse	"Full session"
//	@Failure		400		{object}	identitysdk.ErrorResponse		"2FA not enabled"
//	@Failure		401		{object}	identitysdk.ErrorResponse		"Invalid code or token"
//	@Failure		403		{object}	identitysdk.ErrorResponse		"Not a pending session"
//	@Router			/v1/auth/2fa/verify [post].
func (h *TwoFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.TwoFAVerifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid 2fa verify body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.LoginService.VerifyTwoFA(ctx, claims, req.Code, req.TrustDevice, service.DeviceMeta{
		UserAgent: r.UserAgent(),
		IP:        httpx.IPKeyExtractor(r),
	})
	if err != nil {
		writeServiceError(w, r, "2fa verification failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.TwoFAVerifyResponse{
		LoginResponse: loginResponse(res.LoginResult),
		DeviceToken:   res.DeviceToken,
	})
}

// HandleDisable handles POST /v1/auth/2fa/disable
//
//	@Summary		Disable 2FA
//	@Description	Turns 2FA off and removes backup codes and trusted devices. Local and directory users
//	@Description	prove themselves with their password, SSO users with a TOTP code.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	identitysdk.TwoFADisableRequest	true	"Password or code"
//	@Success		204		"2FA disabled"
//	@Failure		400		{object}	identitysdk.ErrorResponse	"2FA not enabled"
//	@Failure		401		{object}	identitysdk.ErrorResponse	"Wrong password or code"
//	@Failure		503		{object}	identitysdk.ErrorResponse	"Directory unavailable"
//	@Router			/v1/auth/2fa/disable [post].
func (h *TwoFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.TwoFADisableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid 2fa disable body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFactorService.Disable(ctx, userID, service.DisableRequest{
		Password: req.Password,
		Code:     req.Code,
	}); err != nil {
		writeServiceError(w, r, "failed to disable 2fa", err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleBackupCodes handles POST /v1/auth/2fa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code. Requires a current TOTP code.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.TwoFACodeRequest	true	"TOTP code"
//	@Success		200		{object}	identitysdk.BackupCodesResponse	"New backup codes (shown once)"
//	@Failure		400		{object}	identitysdk.ErrorResponse		"2FA not enabled"
//	@Failure		401		{object}	identitysdk.ErrorResponse		"Invalid code or token"
//	@Router			/v1/auth/2fa/backup-codes [post].
func (h *TwoFAHandler) HandleBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.TwoFACodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid backup codes body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.TwoFactorService.RegenerateBackupCodes(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, "failed to regenerate backup codes", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.BackupCodesResponse{BackupCodes: codes})
}
