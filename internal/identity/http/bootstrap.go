package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the identity service
//	@Description	Creates the first park, company and super admin. Only available when a bootstrap token is configured and while no users exist.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token for authorization"
//	@Param			request				body		identitysdk.BootstrapRequest	true	"Bootstrap configuration"
//	@Success		201					{object}	identitysdk.BootstrapResponse	"IDs of the seeded park, company and admin"
//	@Failure		400					{object}	identitysdk.ErrorResponse		"Invalid request body or validation failed"
//	@Failure		401					{object}	identitysdk.ErrorResponse		"Missing or invalid bootstrap token"
//	@Failure		404					{object}	identitysdk.ErrorResponse		"Bootstrap not enabled (no token configured)"
//	@Failure		409					{object}	identitysdk.ErrorResponse		"Already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		identitysdk.ErrNotFound.WithDescription("Bootstrap endpoint is not enabled").WriteError(w)
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		identitysdk.ErrUnauthorized.WithDescription("Bootstrap token is required in X-Bootstrap-Token header").WriteError(w)
		return
	}

	// 3. Parse request body
	var req identitysdk.BootstrapRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		identitysdk.ErrInvalidRequest.WithDescription("Request body must be valid JSON").WriteError(w)
		return
	}

	// 4. Perform bootstrap
	res, err := h.BootstrapService.Bootstrap(r.Context(), token, service.BootstrapRequest{
		ParkName:      strings.TrimSpace(req.ParkName),
		CompanyName:   strings.TrimSpace(req.CompanyName),
		AdminEmail:    strings.TrimSpace(req.AdminEmail),
		AdminName:     strings.TrimSpace(req.AdminName),
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		writeServiceError(w, r, "bootstrap failed", err)
		return
	}

	// 5. Respond with created IDs
	l.Info("bootstrap complete", "admin_user_id", res.AdminID, "company_id", res.CompanyID)
	httpx.WriteJSON(w, http.StatusCreated, identitysdk.BootstrapResponse{
		ParkID:      res.ParkID,
		CompanyID:   res.CompanyID,
		AdminUserID: res.AdminID,
	})
}
