package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// LoginHandler handles POST /v1/auth/login.
type LoginHandler struct {
	LoginService *service.LoginService
}

// ServeHTTP godoc
//
//	@Summary		Log in with email and password
//	@Description	Checks the password against the user's auth source (local hash or tenant directory).
//	@Description	When a second factor is owed the response carries a partial session token that only
//	@Description	works on the /v1/auth/2fa endpoints, with requires_2fa set.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	identitysdk.LoginResponse	"Full or partial session"
//	@Failure		400		{object}	identitysdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	identitysdk.ErrorResponse	"Invalid email or password"
//	@Failure		403		{object}	identitysdk.ErrorResponse	"Account disabled"
//	@Failure		429		{object}	identitysdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	identitysdk.ErrorResponse	"Directory unavailable"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	// 1. Parse request
	var req identitysdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid login body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		identitysdk.ErrInvalidRequest.WithDescription("email and password are required").WriteError(w)
		return
	}

	// 2. Authenticate. A pending second factor still returns a token.
	res, err := h.LoginService.Login(r.Context(), service.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		DeviceToken: req.DeviceToken,
		RememberMe:  req.RememberMe,
		UserAgent:   r.UserAgent(),
		IP:          httpx.IPKeyExtractor(r),
	})
	if err != nil && !errors.Is(err, service.ErrTwoFAPending) {
		writeServiceError(w, r, "login failed", err)
		return
	}

	// 3. Return session
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}
