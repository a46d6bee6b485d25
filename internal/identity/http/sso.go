package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// SSOCallbackPath is the frontend route the callbacks redirect to.
const SSOCallbackPath = "/sso/callback"

// SSOHandler runs the public half of federated login: discovery, the
// redirect to the IdP and the callbacks.
type SSOHandler struct {
	SSOService   *service.SSOService
	LoginService *service.LoginService

	// AppURL is the frontend origin, e.g. https://app.example.com.
	AppURL string
}

// HandleDiscover handles POST /v1/sso/discover
//
//	@Summary		Discover SSO for an email
//	@Description	Tells the login page whether the email signs in through an identity provider.
//	@Description	Unknown emails and tenants without SSO both answer has_sso=false.
//	@Tags			SSO
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.DiscoverRequest		true	"Email"
//	@Success		200		{object}	identitysdk.DiscoverResponse	"Discovery result"
//	@Failure		400		{object}	identitysdk.ErrorResponse		"Malformed request"
//	@Router			/v1/sso/discover [post].
func (h *SSOHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req identitysdk.DiscoverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid discover body", "err", err)
		identitysdk.ErrInvalidRequest.WriteError(w)
		return
	}

	d, err := h.SSOService.Discover(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, "sso discovery failed", err)
		return
	}

	out := identitysdk.DiscoverResponse{HasSSO: d.HasSSO}
	if d.HasSSO {
		out.ConfigID = d.ConfigID
		out.Protocol = d.Protocol.String()
		out.DisplayName = d.DisplayName
		out.InitURL = "/v1/sso/" + url.PathEscape(d.ConfigID) + "/init"
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleInit handles GET /v1/sso/{id}/init
//
//	@Summary		Start an SSO login
//	@Description	Redirects the browser to the identity provider with a fresh one-time state.
//	@Tags			SSO
//	@Param			id	path	string	true	"SSO config ID"
//	@Success		302	"Redirect to the identity provider"
//	@Failure		404	{object}	identitysdk.ErrorResponse	"Unknown or disabled config"
//	@Failure		503	{object}	identitysdk.ErrorResponse	"Identity provider unavailable"
//	@Router			/v1/sso/{id}/init [get].
func (h *SSOHandler) HandleInit(w http.ResponseWriter, r *http.Request) {
	target, err := h.SSOService.BuildAuthorizationURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "failed to start sso login", err)
		return
	}
	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleOIDCCallback handles GET /v1/sso/callback/oidc
//
//	@Summary		OIDC callback
//	@Description	Completes an OIDC login and redirects to the frontend with the session in the URL fragment,
//	@Description	or with ?error= on failure.
//	@Tags			SSO
//	@Param			code				query	string	false	"Authorization code"
//	@Param			state				query	string	true	"State issued by /init"
//	@Param			error				query	string	false	"Error reported by the identity provider"
//	@Success		302	"Redirect to APP_URL/sso/callback"
//	@Router			/v1/sso/callback/oidc [get].
func (h *SSOHandler) HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())
	q := r.URL.Query()

	// 1. The IdP may refuse outright. The state is left to expire.
	if idpErr := q.Get("error"); idpErr != "" {
		log.Warn("identity provider returned an error", "error", idpErr, "description", q.Get("error_description"))
		h.redirectError(w, r, "authentication_failed")
		return
	}

	// 2. Exchange and resolve the user
	u, err := h.SSOService.HandleOIDCCallback(r.Context(), q.Get("code"), q.Get("state"))
	h.finish(w, r, u, err)
}

// HandleSAMLCallback handles POST /v1/sso/callback/saml
//
//	@Summary		SAML assertion consumer service
//	@Description	Validates the POSTed SAML response and redirects like the OIDC callback.
//	@Tags			SSO
//	@Accept			x-www-form-urlencoded
//	@Param			SAMLResponse	formData	string	true	"Base64 SAML response"
//	@Param			RelayState		formData	string	true	"State issued by /init"
//	@Success		302	"Redirect to APP_URL/sso/callback"
//	@Router			/v1/sso/callback/saml [post].
func (h *SSOHandler) HandleSAMLCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slogx.FromContext(r.Context()).Warn("invalid saml form", "err", err)
		h.redirectError(w, r, identitysdk.ErrorCodeInvalidRequest)
		return
	}

	u, err := h.SSOService.HandleSAMLCallback(r.Context(), r.PostForm.Get("SAMLResponse"), r.PostForm.Get("RelayState"))
	h.finish(w, r, u, err)
}

// HandleMetadata handles GET /v1/sso/{id}/metadata
//
//	@Summary		SAML service provider metadata
//	@Tags			SSO
//	@Produce		xml
//	@Param			id	path	string	true	"SSO config ID"
//	@Success		200	{string}	string						"SP metadata XML"
//	@Failure		400	{object}	identitysdk.ErrorResponse	"Not a SAML config"
//	@Failure		404	{object}	identitysdk.ErrorResponse	"Unknown config"
//	@Router			/v1/sso/{id}/metadata [get].
func (h *SSOHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.SSOService.Metadata(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrProtocolMismatch) {
			identitysdk.ErrInvalidRequest.WithDescription("metadata is only published for saml configs").WriteError(w)
			return
		}
		writeServiceError(w, r, "failed to build saml metadata", err)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(md)
}

// finish turns a resolved SSO user into a session and hands it to the
// frontend in the URL fragment, which never reaches a server log.
func (h *SSOHandler) finish(w http.ResponseWriter, r *http.Request, u domain.User, err error) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err != nil {
		log.Warn("sso callback failed", "err", err)
		h.redirectError(w, r, ssoErrorCode(err))
		return
	}

	res, err := h.LoginService.CompleteExternalLogin(ctx, u, "", false)
	if err != nil && !errors.Is(err, service.ErrTwoFAPending) {
		log.Warn("sso login refused", "user_id", u.ID, "err", err)
		h.redirectError(w, r, ssoErrorCode(err))
		return
	}

	frag := url.Values{}
	frag.Set("token", res.Token)
	frag.Set("expires_at", res.ExpiresAt.UTC().Format(time.RFC3339))
	frag.Set("requires_2fa", strconv.FormatBool(res.RequiresTwoFA))
	if res.TwoFASetupRequired {
		frag.Set("two_fa_setup_required", "true")
	}

	log.Info("sso login completed", "user_id", u.ID, "requires_2fa", res.RequiresTwoFA)
	httpx.NoCache(w)
	http.Redirect(w, r, h.AppURL+SSOCallbackPath+"#"+frag.Encode(), http.StatusFound)
}

func (h *SSOHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	httpx.NoCache(w)
	http.Redirect(w, r, h.AppURL+SSOCallbackPath+"?"+url.Values{"error": {code}}.Encode(), http.StatusFound)
}
