// Package federation adapts external identity providers (OIDC and SAML) to a
// single Provider interface.
package federation

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
)

var (
	ErrUnsupportedProtocol = errors.New("federation: unsupported protocol")
	ErrNonceMismatch       = errors.New("federation: nonce mismatch")
	ErrMissingIDToken      = errors.New("federation: token response has no id_token")
	ErrInvalidCertificate  = errors.New("federation: invalid idp certificate")
)

// Identity is what an IdP asserts about the user. Email may be empty when the
// provider did not release it; callers decide what that means.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// AuthRequest is a started authorization attempt. Nonce and RequestID must be
// handed back to Complete unchanged.
type AuthRequest struct {
	URL       string
	Nonce     string // OIDC
	RequestID string // SAML AuthnRequest ID
}

// Callback carries whichever response parameter the protocol uses.
type Callback struct {
	Code         string // OIDC authorization code
	SAMLResponse string // base64 POST-bound response
}

type Provider interface {
	Protocol() domain.SSOProtocol

	// BeginAuth builds the IdP redirect for state.
	BeginAuth(ctx context.Context, state string) (AuthRequest, error)

	// Complete validates the callback against the pending request.
	Complete(ctx context.Context, cb Callback, pending AuthRequest) (Identity, error)

	// Metadata returns the SP metadata document. OIDC providers return
	// ErrUnsupportedProtocol.
	Metadata() ([]byte, error)
}

// Source hands out a Provider for a stored config.
type Source interface {
	Provider(ctx context.Context, cfg domain.SSOConfig) (Provider, error)
}

// Decrypter opens vault-sealed secrets.
type Decrypter interface {
	Decrypt(sealed string) (string, error)
}
