package identitysdk

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientLogin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Empty(t, r.Header.Get("Authorization"))

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "pw" {
			ErrInvalidCredentials.WriteError(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok", RequiresTwoFA: true})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL + "/")

	res, err := c.Login(t.Context(), LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "tok", res.Token)
	require.True(t, res.RequiresTwoFA)

	_, err = c.Login(t.Context(), LoginRequest{Email: "a@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, ErrorCodeInvalidCredentials, apiErr.Code)
}

func TestClientWithToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	anon := NewClient(srv.URL)
	authed := anon.WithToken("secret")
	require.Empty(t, anon.Token, "WithToken copies")

	require.NoError(t, authed.RevokeTrustedDevice(t.Context(), "dev-1"))

	err := anon.RevokeTrustedDevice(t.Context(), "dev-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, ErrorCodeServerError, apiErr.Code, "bodies without an envelope fall back to the status")
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientInitSSO(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sso/cfg-1/init":
			http.Redirect(w, r, "https://idp.example.com/authorize?state=abc", http.StatusFound)
		default:
			ErrNotFound.WriteError(w)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)

	loc, err := c.InitSSO(t.Context(), "cfg-1")
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com/authorize?state=abc", loc)

	_, err = c.InitSSO(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAPIErrorWithDescription(t *testing.T) {
	t.Parallel()

	e := ErrInvalidConfig.WithDescription("host is required")
	require.Equal(t, "host is required", e.Description)
	require.Equal(t, "invalid config", ErrInvalidConfig.Description, "the shared value is untouched")
	require.ErrorIs(t, e, ErrInvalidConfig)
}
