package http

import (
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
)

// TrustedDevicesHandler lets a user see and revoke their trusted devices.
type TrustedDevicesHandler struct {
	TrustedDeviceService *service.TrustedDeviceService
}

// HandleList handles GET /v1/auth/trusted-devices
//
//	@Summary		List trusted devices
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		identitysdk.TrustedDeviceResponse	"Unexpired devices"
//	@Failure		401	{object}	identitysdk.ErrorResponse			"Invalid or missing token"
//	@Router			/v1/auth/trusted-devices [get].
func (h *TrustedDevicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	devices, err := h.TrustedDeviceService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "failed to list trusted devices", err)
		return
	}

	out := make([]identitysdk.TrustedDeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, trustedDeviceResponse(d))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke handles DELETE /v1/auth/trusted-devices/{id}
//
//	@Summary		Revoke a trusted device
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Device ID"
//	@Success		204	"Device revoked"
//	@Failure		401	{object}	identitysdk.ErrorResponse	"Invalid or missing token"
//	@Failure		404	{object}	identitysdk.ErrorResponse	"No such device for this user"
//	@Router			/v1/auth/trusted-devices/{id} [delete].
func (h *TrustedDevicesHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.TrustedDeviceService.Revoke(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, "failed to revoke trusted device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeAll handles DELETE /v1/auth/trusted-devices
//
//	@Summary		Revoke every trusted device
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.RevokeAllResponse	"Number of devices revoked"
//	@Failure		401	{object}	identitysdk.ErrorResponse		"Invalid or missing token"
//	@Router			/v1/auth/trusted-devices [delete].
func (h *TrustedDevicesHandler) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	n, err := h.TrustedDeviceService.RevokeAll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "failed to revoke trusted devices", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, identitysdk.RevokeAllResponse{Revoked: n})
}
