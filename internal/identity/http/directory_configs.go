package http

import (
	"net/http"

	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// DirectoryConfigsHandler is tenant-scoped administration of directory
// configs. Tenant checks happen in the service.
type DirectoryConfigsHandler struct {
	DirectoryConfigService *service.DirectoryConfigService
}

func actor(r *http.Request) (service.Actor, bool) {
	c, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	return service.ActorFromClaims(c), true
}

// HandleCreate handles POST /v1/directory-configs
//
//	@Summary		Create a directory config
//	@Description	Creates the tenant's directory config. An enabled config with a positive interval is scheduled for sync.
//	@Tags			Directory
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.DirectoryConfigRequest	true	"Config"
//	@Success		201		{object}	identitysdk.DirectoryConfigResponse	"Created config"
//	@Failure		400		{object}	identitysdk.ErrorResponse			"Invalid config"
//	@Failure		403		{object}	identitysdk.ErrorResponse			"Not an admin of the tenant"
//	@Failure		409		{object}	identitysdk.ErrorResponse			"Tenant already has a config"
//	@Router			/v1/directory-configs [post].
func (h *DirectoryConfigsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.DirectoryConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid directory config body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	in, err := directoryInput(req)
	if err != nil {
		writeServiceError(w, r, "invalid directory config", err)
		return
	}

	cfg, err := h.DirectoryConfigService.Create(r.Context(), a, in)
	if err != nil {
		writeServiceError(w, r, "failed to create directory config", err)
		return
	}

	log.Info("directory config created", "config_id", cfg.ID, "company_id", cfg.CompanyID, "actor", a.UserID)
	httpx.WriteJSON(w, http.StatusCreated, directoryConfigResponse(cfg))
}

// HandleGet handles GET /v1/directory-configs/{id}
//
//	@Summary		Get a directory config
//	@Tags			Directory
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string								true	"Config ID"
//	@Success		200	{object}	identitysdk.DirectoryConfigResponse	"Config without the bind password"
//	@Failure		403	{object}	identitysdk.ErrorResponse			"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse			"Not found"
//	@Router			/v1/directory-configs/{id} [get].
func (h *DirectoryConfigsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	cfg, err := h.DirectoryConfigService.Get(r.Context(), a, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "failed to get directory config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, directoryConfigResponse(cfg))
}

// HandleUpdate handles PUT /v1/directory-configs/{id}
//
//	@Summary		Replace a directory config
//	@Description	Omitting bind_password keeps the stored one. The sync schedule follows the new settings.
//	@Tags			Directory
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string								true	"Config ID"
//	@Param			request	body		identitysdk.DirectoryConfigRequest	true	"Config"
//	@Success		200		{object}	identitysdk.DirectoryConfigResponse	"Updated config"
//	@Failure		400		{object}	identitysdk.ErrorResponse			"Invalid config"
//	@Failure		403		{object}	identitysdk.ErrorResponse			"Not an admin of the tenant"
//	@Failure		404		{object}	identitysdk.ErrorResponse			"Not found"
//	@Router			/v1/directory-configs/{id} [put].
func (h *DirectoryConfigsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req identitysdk.DirectoryConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid directory config body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	in, err := directoryInput(req)
	if err != nil {
		writeServiceError(w, r, "invalid directory config", err)
		return
	}

	cfg, err := h.DirectoryConfigService.Update(r.Context(), a, r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "failed to update directory config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, directoryConfigResponse(cfg))
}

// HandleDelete handles DELETE /v1/directory-configs/{id}
//
//	@Summary		Delete a directory config
//	@Description	Deletes the config and stops scheduled syncs. Synced users are kept.
//	@Tags			Directory
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Config ID"
//	@Success		204	"Deleted"
//	@Failure		403	{object}	identitysdk.ErrorResponse	"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse	"Not found"
//	@Router			/v1/directory-configs/{id} [delete].
func (h *DirectoryConfigsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.DirectoryConfigService.Delete(r.Context(), a, r.PathValue("id")); err != nil {
		writeServiceError(w, r, "failed to delete directory config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTest handles POST /v1/directory-configs/{id}/test
//
//	@Summary		Test a directory connection
//	@Description	Connects, binds with the service account and counts the users the filter matches.
//	@Description	A failed probe is reported in the body with success=false.
//	@Tags			Directory
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string								true	"Config ID"
//	@Success		200	{object}	identitysdk.ConnectionTestResponse	"Probe outcome"
//	@Failure		403	{object}	identitysdk.ErrorResponse			"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse			"Not found"
//	@Router			/v1/directory-configs/{id}/test [post].
func (h *DirectoryConfigsHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	res, err := h.DirectoryConfigService.Test(r.Context(), a, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "failed to test directory config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, identitysdk.ConnectionTestResponse{
		Success:   res.Success,
		Message:   res.Message,
		UserCount: res.UserCount,
	})
}

// HandleSync handles POST /v1/directory-configs/{id}/sync
//
//	@Summary		Sync a directory now
//	@Description	Runs a reconciliation for the tenant and waits for it. Only one sync per tenant runs at a time.
//	@Tags			Directory
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string							true	"Config ID"
//	@Success		200	{object}	identitysdk.SyncResultResponse	"Sync outcome"
//	@Failure		400	{object}	identitysdk.ErrorResponse		"Config disabled or incomplete"
//	@Failure		403	{object}	identitysdk.ErrorResponse		"Not an admin of the tenant"
//	@Failure		409	{object}	identitysdk.ErrorResponse		"Sync already running"
//	@Failure		503	{object}	identitysdk.ErrorResponse		"Directory unavailable"
//	@Router			/v1/directory-configs/{id}/sync [post].
func (h *DirectoryConfigsHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	res, err := h.DirectoryConfigService.Sync(r.Context(), a, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "directory sync failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, syncResultResponse(res))
}

// HandleSyncStatus handles GET /v1/directory-configs/{id}/sync-status
//
//	@Summary		Last sync status
//	@Tags			Directory
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string							true	"Config ID"
//	@Success		200	{object}	identitysdk.SyncStatusResponse	"Last recorded run"
//	@Failure		403	{object}	identitysdk.ErrorResponse		"Not an admin of the tenant"
//	@Failure		404	{object}	identitysdk.ErrorResponse		"Not found"
//	@Router			/v1/directory-configs/{id}/sync-status [get].
func (h *DirectoryConfigsHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		identitysdk.ErrUnauthorized.WriteError(w)
		return
	}

	st, err := h.DirectoryConfigService.SyncStatus(r.Context(), a, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "failed to get sync status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, syncStatusResponse(st))
}
