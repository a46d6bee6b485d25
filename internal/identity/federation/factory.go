package federation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultProviderTTL bounds how long a discovered provider is reused.
const DefaultProviderTTL = time.Hour

// Factory builds providers from stored configs, decrypting secrets and
// caching the result per config version so discovery runs once.
type Factory struct {
	Vault      Decrypter
	PublicURL  string
	HTTPClient *http.Client
	SPKeys     SPKeyPair

	cache *cache.Cache
	group singleflight.Group
}

var _ Source = (*Factory)(nil)

func NewFactory(vault Decrypter, publicURL string, hc *http.Client, keys SPKeyPair, ttl time.Duration) *Factory {
	if ttl <= 0 {
		ttl = DefaultProviderTTL
	}
	return &Factory{
		Vault:      vault,
		PublicURL:  strings.TrimRight(publicURL, "/"),
		HTTPClient: hc,
		SPKeys:     keys,
		cache:      cache.New(ttl, 10*time.Minute),
	}
}

// OIDCRedirectURL is where the IdP sends the authorization code.
func (f *Factory) OIDCRedirectURL() string { return f.PublicURL + "/v1/sso/callback/oidc" }

// SAMLACSURL is the assertion consumer service every tenant shares.
func (f *Factory) SAMLACSURL() string { return f.PublicURL + "/v1/sso/callback/saml" }

// SAMLMetadataURL doubles as the SP entity id of a config.
func (f *Factory) SAMLMetadataURL(configID string) string {
	return f.PublicURL + "/v1/sso/" + configID + "/metadata"
}

func (f *Factory) Provider(ctx context.Context, cfg domain.SSOConfig) (Provider, error) {
	key := cfg.VersionKey()
	if p, ok := f.cache.Get(key); ok {
		return p.(Provider), nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		if p, ok := f.cache.Get(key); ok {
			return p, nil
		}
		p, err := f.build(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		f.cache.SetDefault(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Forget drops cached providers of a config after it is edited or deleted.
func (f *Factory) Forget(configID string) {
	for k := range f.cache.Items() {
		if strings.HasPrefix(k, configID+"@") {
			f.cache.Delete(k)
		}
	}
}

func (f *Factory) build(ctx context.Context, cfg domain.SSOConfig) (Provider, error) {
	switch cfg.Protocol {
	case domain.ProtocolOIDC:
		secret := ""
		if cfg.ClientSecretEnc != "" {
			s, err := f.Vault.Decrypt(cfg.ClientSecretEnc)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt client secret: %w", err)
			}
			secret = s
		}
		return NewOIDC(ctx, cfg, secret, f.OIDCRedirectURL(), f.HTTPClient)
	case domain.ProtocolSAML:
		return NewSAML(cfg, f.SPKeys, f.SAMLMetadataURL(cfg.ID), f.SAMLACSURL(), f.HTTPClient)
	default:
		return nil, ErrUnsupportedProtocol
	}
}
