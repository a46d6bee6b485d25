package http

import (
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// SSOConfigsHandler is tenant-scoped administration of SSO configs.
type SSOConfigsHandler struct {
	SSOConfigService *service.SSOConfigService
}

// HandleCreate handles POST /v1/sso-configs
//
//	@Summary		Create an SSO config
//	@Tags			SSO
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.SSOConfigRequest	true	"Config"
//	@Success		201		{object}	identitysdk.SSOConfigResponse	"Created config"
//	@Failure		400		{object}	identitysdk.ErrorResponse		"Invalid config"
//	@Failure		403		{object}	identitysdk.ErrorResponse		"Not an admin of the tenant"
//	@Failure		409		{object}	identitysdk.ErrorResponse		"Tenant already has a config"
//	@Router			/v1/sso-configs [post].
func (h *SSOConfigsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.SSOConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid sso config body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	in, err := ssoInput(req)
	if err != nil {
		writeServiceError(w, r, "invalid sso config", err)
		return
	}

	cfg, err := h.SSOConfigService.Create(r.Context(), a, in)
	if err != nil {
		writeServiceError(w, r, "failed to create sso config", err)
		return
	}

	log.Info("sso config created", "config_id", cfg.ID, "company_id", cfg.CompanyID, "protocol", cfg.Protocol.String())
	httpx.WriteJSON(w, http.StatusCreated, ssoConfigResponse(cfg))
}

// HandleGet handles GET /v1/sso-configs/{id}
//
//	@Summary		Get an SSO config
//	@Tags			SSO
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string							true	"Config ID"
//	@Success		200	{object}	identitysdk.SSOConfigResponse	"Config without the client secret"
//	@Failure		403	{object}	identitysdk.ErrorResponse		"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse		"Not found"
//	@Router			/v1/sso-configs/{id} [get].
func (h *SSOConfigsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	cfg, err := h.SSOConfigService.Get(r.Context(), a, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "failed to get sso config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ssoConfigResponse(cfg))
}

// HandleUpdate handles PUT /v1/sso-configs/{id}
//
//	@Summary		Replace an SSO config
//	@Description	Omitting client_secret keeps the stored one. Cached provider metadata is dropped.
//	@Tags			SSO
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Config ID"
//	@Param			request	body		identitysdk.SSOConfigRequest	true	"Config"
//	@Success		200		{object}	identitysdk.SSOConfigResponse	"Updated config"
//	@Failure		400		{object}	identitysdk.ErrorResponse		"Invalid config"
//	@Failure		403		{object}	identitysdk.ErrorResponse		"Not an admin of the tenant"
//	@Failure		404		{object}	identitysdk.ErrorResponse		"Not found"
//	@Router			/v1/sso-configs/{id} [put].
func (h *SSOConfigsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.SSOConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid sso config body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	in, err := ssoInput(req)
	if err != nil {
		writeServiceError(w, r, "invalid sso config", err)
		return
	}

	cfg, err := h.SSOConfigService.Update(r.Context(), a, r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "failed to update sso config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ssoConfigResponse(cfg))
}

// HandleDelete handles DELETE /v1/sso-configs/{id}
//
//	@Summary		Delete an SSO config
//	@Tags			SSO
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Config ID"
//	@Success		204	"Deleted"
//	@Failure		403	{object}	identitysdk.ErrorResponse	"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse	"Not found"
//	@Router			/v1/sso-configs/{id} [delete].
func (h *SSOConfigsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.SSOConfigService.Delete(r.Context(), a, r.PathValue("id")); err != nil {
		writeServiceError(w, r, "failed to delete sso config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
