package federation

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var defaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

type OIDCProvider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

var _ Provider = (*OIDCProvider)(nil)

// NewOIDC runs discovery against cfg.IssuerURL.
func NewOIDC(ctx context.Context, cfg domain.SSOConfig, clientSecret, redirectURL string, hc *http.Client) (*OIDCProvider, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	ctx = oidc.ClientContext(ctx, hc)

	p, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", cfg.IssuerURL, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	return &OIDCProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: clientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		verifier: p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		client:   hc,
	}, nil
}

func (p *OIDCProvider) Protocol() domain.SSOProtocol { return domain.ProtocolOIDC }

func (p *OIDCProvider) BeginAuth(_ context.Context, state string) (AuthRequest, error) {
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return AuthRequest{}, err
	}
	return AuthRequest{
		URL:   p.oauth.AuthCodeURL(state, oidc.Nonce(nonce)),
		Nonce: nonce,
	}, nil
}

type oidcClaims struct {
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func (p *OIDCProvider) Complete(ctx context.Context, cb Callback, pending AuthRequest) (Identity, error) {
	ctx = oidc.ClientContext(ctx, p.client)

	tok, err := p.oauth.Exchange(ctx, cb.Code)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return Identity{}, ErrMissingIDToken
	}

	idt, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to verify id token: %w", err)
	}
	if idt.Nonce != pending.Nonce {
		return Identity{}, ErrNonceMismatch
	}

	var c oidcClaims
	if err := idt.Claims(&c); err != nil {
		return Identity{}, fmt.Errorf("failed to decode claims: %w", err)
	}

	email := c.Email
	// An address the IdP says it has not verified is not usable for linking.
	if c.EmailVerified != nil && !*c.EmailVerified {
		email = ""
	}
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	return Identity{Subject: idt.Subject, Email: email, Name: name}, nil
}

func (p *OIDCProvider) Metadata() ([]byte, error) { return nil, ErrUnsupportedProtocol }
