// Package federationtest provides a scriptable federation.Provider.
package federationtest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation"
)

// ErrBadCallback is returned when Complete sees an unexpected code or a
// pending request this provider never issued.
var ErrBadCallback = errors.New("federationtest: bad callback")

type Provider struct {
	Proto domain.SSOProtocol

	mu       sync.Mutex
	identity federation.Identity
	err      error
	code     string
	issued   map[string]bool
	begun    int
	complete int
}

var _ federation.Provider = (*Provider)(nil)

// NewProvider completes any callback carrying code with id.
func NewProvider(proto domain.SSOProtocol, code string, id federation.Identity) *Provider {
	return &Provider{Proto: proto, code: code, identity: id, issued: map[string]bool{}}
}

// Fail makes every Complete call return err.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetIdentity replaces what Complete returns.
func (p *Provider) SetIdentity(id federation.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = id
}

func (p *Provider) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete
}

func (p *Provider) Protocol() domain.SSOProtocol { return p.Proto }

func (p *Provider) BeginAuth(_ context.Context, state string) (federation.AuthRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begun++
	corr := fmt.Sprintf("corr-%d", p.begun)
	p.issued[corr] = true

	req := federation.AuthRequest{
		URL: "https://idp.example.test/authorize?state=" + url.QueryEscape(state),
	}
	if p.Proto == domain.ProtocolSAML {
		req.RequestID = corr
	} else {
		req.Nonce = corr
	}
	return req, nil
}

func (p *Provider) Complete(_ context.Context, cb federation.Callback, pending federation.AuthRequest) (federation.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return federation.Identity{}, p.err
	}

	got, corr := cb.Code, pending.Nonce
	if p.Proto == domain.ProtocolSAML {
		got, corr = cb.SAMLResponse, pending.RequestID
	}
	if got != p.code || !p.issued[corr] {
		return federation.Identity{}, ErrBadCallback
	}
	p.complete++
	return p.identity, nil
}

func (p *Provider) Metadata() ([]byte, error) {
	if p.Proto != domain.ProtocolSAML {
		return nil, federation.ErrUnsupportedProtocol
	}
	return []byte(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"/>`), nil
}

// Source serves Providers by config id.
type Source struct {
	mu        sync.Mutex
	providers map[string]*Provider
}

var _ federation.Source = (*Source)(nil)

func NewSource() *Source {
	return &Source{providers: map[string]*Provider{}}
}

func (s *Source) Set(configID string, p *Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[configID] = p
}

func (s *Source) Provider(_ context.Context, cfg domain.SSOConfig) (federation.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("federationtest: no provider for %s", cfg.ID)
	}
	return p, nil
}
