package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// ProviderCache drops a cached IdP adapter after its config changed.
type ProviderCache interface {
	Forget(configID string)
}

// SSOConfigInput is the admin-editable part of an SSOConfig. A nil
// ClientSecret keeps the stored one on update.
type SSOConfigInput struct {
	CompanyID   string
	Enabled     bool
	Protocol    domain.SSOProtocol
	DisplayName string

	IssuerURL    string
	ClientID     string
	ClientSecret *string
	Scopes       []string

	IDPEntityID    string
	IDPSSOURL      string
	IDPCertificate string

	AutoProvision  bool
	DefaultRole    domain.Role
	AllowedDomains []string
}

type SSOConfigService struct {
	Configs store.SSOConfigs
	Tenants store.Tenants
	Vault   SecretBox
	Cache   ProviderCache
	Clock   clockwork.Clock
}

func (s *SSOConfigService) Create(ctx context.Context, actor Actor, in SSOConfigInput) (domain.SSOConfig, error) {
	if err := authorizeTenant(ctx, s.Tenants, actor, in.CompanyID); err != nil {
		return domain.SSOConfig{}, err
	}
	if _, err := s.Tenants.GetCompany(ctx, in.CompanyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SSOConfig{}, fmt.Errorf("%w: unknown company", ErrInvalidConfig)
		}
		return domain.SSOConfig{}, fmt.Errorf("failed to read company: %w", err)
	}

	now := s.Clock.Now()
	cfg := domain.SSOConfig{
		ID:        idx.New().String(),
		CompanyID: in.CompanyID,
		CreatedAt: now,
	}
	if err := s.apply(&cfg, in, now); err != nil {
		return domain.SSOConfig{}, err
	}

	if err := s.Configs.CreateSSOConfig(ctx, cfg); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.SSOConfig{}, ErrDuplicateConfigForTenant
		}
		return domain.SSOConfig{}, fmt.Errorf("failed to create sso config: %w", err)
	}

	slogx.FromContext(ctx).Info("sso config created",
		slog.String("config_id", cfg.ID),
		slog.String("company_id", cfg.CompanyID),
		slog.String("protocol", cfg.Protocol.String()),
		slog.String("actor", actor.UserID))
	return cfg, nil
}

func (s *SSOConfigService) Get(ctx context.Context, actor Actor, id string) (domain.SSOConfig, error) {
	cfg, err := s.Configs.GetSSOConfig(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SSOConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.SSOConfig{}, fmt.Errorf("failed to read sso config: %w", err)
	}
	if err := authorizeTenant(ctx, s.Tenants, actor, cfg.CompanyID); err != nil {
		return domain.SSOConfig{}, err
	}
	return cfg, nil
}

func (s *SSOConfigService) GetForCompany(ctx context.Context, actor Actor, companyID string) (domain.SSOConfig, error) {
	if err := authorizeTenant(ctx, s.Tenants, actor, companyID); err != nil {
		return domain.SSOConfig{}, err
	}
	cfg, err := s.Configs.GetSSOConfigByCompany(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SSOConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.SSOConfig{}, fmt.Errorf("failed to read sso config: %w", err)
	}
	return cfg, nil
}

func (s *SSOConfigService) Update(ctx context.Context, actor Actor, id string, in SSOConfigInput) (domain.SSOConfig, error) {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.SSOConfig{}, err
	}
	in.CompanyID = cfg.CompanyID

	if err := s.apply(&cfg, in, s.Clock.Now()); err != nil {
		return domain.SSOConfig{}, err
	}
	if err := s.Configs.UpdateSSOConfig(ctx, cfg); err != nil {
		return domain.SSOConfig{}, fmt.Errorf("failed to update sso config: %w", err)
	}
	s.forget(cfg.ID)

	slogx.FromContext(ctx).Info("sso config updated",
		slog.String("config_id", cfg.ID),
		slog.Bool("enabled", cfg.Enabled),
		slog.String("actor", actor.UserID))
	return cfg, nil
}

func (s *SSOConfigService) Delete(ctx context.Context, actor Actor, id string) error {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Configs.DeleteSSOConfig(ctx, cfg.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete sso config: %w", err)
	}
	s.forget(cfg.ID)
	slogx.FromContext(ctx).Info("sso config deleted",
		slog.String("config_id", cfg.ID),
		slog.String("actor", actor.UserID))
	return nil
}

func (s *SSOConfigService) forget(id string) {
	if s.Cache != nil {
		s.Cache.Forget(id)
	}
}

func (s *SSOConfigService) apply(cfg *domain.SSOConfig, in SSOConfigInput, now time.Time) error {
	cfg.Enabled = in.Enabled
	cfg.Protocol = in.Protocol
	cfg.DisplayName = strings.TrimSpace(in.DisplayName)
	cfg.IssuerURL = strings.TrimRight(strings.TrimSpace(in.IssuerURL), "/")
	cfg.ClientID = strings.TrimSpace(in.ClientID)
	cfg.Scopes = normalizeList(in.Scopes, false)
	cfg.IDPEntityID = strings.TrimSpace(in.IDPEntityID)
	cfg.IDPSSOURL = strings.TrimSpace(in.IDPSSOURL)
	cfg.IDPCertificate = strings.TrimSpace(in.IDPCertificate)
	cfg.AutoProvision = in.AutoProvision
	cfg.DefaultRole = in.DefaultRole
	if cfg.DefaultRole == domain.RoleUnknown {
		cfg.DefaultRole = domain.RoleUser
	}
	cfg.AllowedDomains = normalizeList(in.AllowedDomains, true)
	cfg.UpdatedAt = now

	if in.ClientSecret != nil {
		if *in.ClientSecret == "" {
			cfg.ClientSecretEnc = ""
		} else {
			sealed, err := s.Vault.Encrypt(*in.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to encrypt client secret: %w", err)
			}
			cfg.ClientSecretEnc = sealed
		}
	}
	return validateSSOConfig(*cfg)
}

func validateSSOConfig(c domain.SSOConfig) error {
	if c.DisplayName == "" {
		return fmt.Errorf("%w: display_name is required", ErrInvalidConfig)
	}
	if !c.DefaultRole.DirectoryAssignable() {
		return fmt.Errorf("%w: default role %s cannot be provisioned by sso", ErrInvalidConfig, c.DefaultRole)
	}
	switch c.Protocol {
	case domain.ProtocolOIDC:
		if err := validateURL("issuer_url", c.IssuerURL); err != nil {
			return err
		}
		if c.ClientID == "" {
			return fmt.Errorf("%w: client_id is required", ErrInvalidConfig)
		}
	case domain.ProtocolSAML:
		if err := validateURL("idp_sso_url", c.IDPSSOURL); err != nil {
			return err
		}
		if c.IDPCertificate == "" {
			return fmt.Errorf("%w: idp_certificate is required", ErrInvalidConfig)
		}
	case domain.ProtocolUnknown:
		return fmt.Errorf("%w: protocol must be oidc or saml", ErrInvalidConfig)
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: %s must be an absolute http(s) url", ErrInvalidConfig, field)
	}
	return nil
}

// normalizeList trims, drops empties and duplicates. Domains are also
// lower-cased and stripped of a leading "@".
func normalizeList(in []string, domains bool) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if domains {
			v = strings.ToLower(strings.TrimPrefix(v, "@"))
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
