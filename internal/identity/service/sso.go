package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/kvx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// DefaultSSOStateTTL bounds how long an SSO redirect may take to come back.
const DefaultSSOStateTTL = 10 * time.Minute

const ssoStatePrefix = "sso:state:"

// Discovery tells the login page whether an email should go through SSO.
type Discovery struct {
	HasSSO      bool
	ConfigID    string
	Protocol    domain.SSOProtocol
	DisplayName string
}

// pendingAuth is the correlation record stored under a state token.
type pendingAuth struct {
	ConfigID  string    `json:"config_id"`
	CreatedAt time.Time `json:"created_at"`
	Nonce     string    `json:"nonce,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// SSOService runs the redirect/callback flow and JIT provisioning.
type SSOService struct {
	Configs   store.SSOConfigs
	Users     store.Users
	Tenants   store.Tenants
	Providers federation.Source
	State     kvx.Store
	Clock     clockwork.Clock
	Metrics   *Metrics

	// StateTTL defaults to DefaultSSOStateTTL.
	StateTTL time.Duration
}

func (s *SSOService) stateTTL() time.Duration {
	if s.StateTTL > 0 {
		return s.StateTTL
	}
	return DefaultSSOStateTTL
}

// Discover finds the enabled SSO config for email. An existing user's
// tenant wins over allowed-domain matching.
func (s *SSOService) Discover(ctx context.Context, email string) (Discovery, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return Discovery{}, nil
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		cfg, err := s.Configs.GetSSOConfigByCompany(ctx, u.CompanyID)
		if err == nil && cfg.Enabled {
			return discoveryFor(cfg), nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Discovery{}, fmt.Errorf("failed to read sso config: %w", err)
		}
		return Discovery{}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Discovery{}, fmt.Errorf("failed to look up user: %w", err)
	}

	d := domain.EmailDomain(email)
	if d == "" {
		return Discovery{}, nil
	}
	configs, err := s.Configs.ListEnabledSSOConfigs(ctx)
	if err != nil {
		return Discovery{}, fmt.Errorf("failed to list sso configs: %w", err)
	}
	for _, cfg := range configs {
		if slices.Contains(cfg.AllowedDomains, d) {
			return discoveryFor(cfg), nil
		}
	}
	return Discovery{}, nil
}

func discoveryFor(cfg domain.SSOConfig) Discovery {
	return Discovery{HasSSO: true, ConfigID: cfg.ID, Protocol: cfg.Protocol, DisplayName: cfg.DisplayName}
}

// BuildAuthorizationURL mints a state token for configID and returns the
// IdP redirect.
func (s *SSOService) BuildAuthorizationURL(ctx context.Context, configID string) (string, error) {
	log := slogx.FromContext(ctx)

	cfg, err := s.enabledConfig(ctx, configID)
	if err != nil {
		return "", err
	}
	p, err := s.provider(ctx, cfg)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	req, err := p.BeginAuth(ctx, state)
	if err != nil {
		log.Error("failed to start sso authorization",
			slog.String("config_id", cfg.ID),
			slog.Any("error", err))
		return "", ErrSSOUnavailable
	}

	payload, err := json.Marshal(pendingAuth{
		ConfigID:  cfg.ID,
		CreatedAt: s.Clock.Now().UTC(),
		Nonce:     req.Nonce,
		RequestID: req.RequestID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sso state: %w", err)
	}
	if err := s.State.Put(ctx, ssoStatePrefix+state, payload, s.stateTTL()); err != nil {
		return "", fmt.Errorf("failed to store sso state: %w", err)
	}

	log.Info("sso authorization started",
		slog.String("config_id", cfg.ID),
		slog.String("protocol", cfg.Protocol.String()),
		slog.String("state_fp", cryptox.FingerprintToken(state)))
	return req.URL, nil
}

// HandleOIDCCallback consumes state, exchanges code and resolves the user.
func (s *SSOService) HandleOIDCCallback(ctx context.Context, code, state string) (domain.User, error) {
	return s.complete(ctx, domain.ProtocolOIDC, state, federation.Callback{Code: code})
}

// HandleSAMLCallback consumes relayState, validates the POSTed response and
// resolves the user.
func (s *SSOService) HandleSAMLCallback(ctx context.Context, samlResponse, relayState string) (domain.User, error) {
	return s.complete(ctx, domain.ProtocolSAML, relayState, federation.Callback{SAMLResponse: samlResponse})
}

func (s *SSOService) complete(ctx context.Context, proto domain.SSOProtocol, state string, cb federation.Callback) (domain.User, error) {
	u, err := s.completeCallback(ctx, proto, state, cb)
	s.Metrics.ssoCallback(proto.String(), callbackOutcome(err))
	return u, err
}

func (s *SSOService) completeCallback(ctx context.Context, proto domain.SSOProtocol, state string, cb federation.Callback) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// The state is consumed before anything else, so a failed callback
	// cannot be replayed either.
	pending, err := s.takeState(ctx, state)
	if err != nil {
		return domain.User{}, err
	}

	cfg, err := s.enabledConfig(ctx, pending.ConfigID)
	if err != nil {
		return domain.User{}, err
	}
	if cfg.Protocol != proto {
		return domain.User{}, ErrProtocolMismatch
	}
	p, err := s.provider(ctx, cfg)
	if err != nil {
		return domain.User{}, err
	}

	id, err := p.Complete(ctx, cb, federation.AuthRequest{Nonce: pending.Nonce, RequestID: pending.RequestID})
	if err != nil {
		log.Warn("sso callback rejected",
			slog.String("config_id", cfg.ID),
			slog.String("protocol", proto.String()),
			slog.Any("error", err))
		return domain.User{}, ErrInvalidCredentials
	}

	email := domain.NormalizeEmail(id.Email)
	if email == "" {
		log.Warn("identity provider released no email", slog.String("config_id", cfg.ID))
		return domain.User{}, ErrEmailClaimMissing
	}

	u, err := s.FindOrCreateUser(ctx, email, id.Name, id.Subject, cfg)
	if err != nil {
		return domain.User{}, err
	}
	if !u.IsActive {
		return domain.User{}, ErrAccountDisabled
	}
	return u, nil
}

func (s *SSOService) takeState(ctx context.Context, state string) (pendingAuth, error) {
	if state == "" {
		return pendingAuth{}, ErrInvalidOrExpiredState
	}
	raw, err := s.State.TakeOnce(ctx, ssoStatePrefix+state)
	if errors.Is(err, kvx.ErrNotFound) {
		return pendingAuth{}, ErrInvalidOrExpiredState
	}
	if err != nil {
		return pendingAuth{}, fmt.Errorf("failed to read sso state: %w", err)
	}

	var p pendingAuth
	if err := json.Unmarshal(raw, &p); err != nil {
		return pendingAuth{}, ErrInvalidOrExpiredState
	}
	// The backend TTL is coarse; the recorded age is authoritative.
	if s.Clock.Now().Sub(p.CreatedAt) > s.stateTTL() {
		return pendingAuth{}, ErrInvalidOrExpiredState
	}
	return p, nil
}

// FindOrCreateUser resolves an asserted identity to a local user: an already
// linked subject first, then a same-tenant email match which gets linked,
// then JIT creation when the config allows it.
func (s *SSOService) FindOrCreateUser(ctx context.Context, email, name, subjectID string, cfg domain.SSOConfig) (domain.User, error) {
	log := slogx.FromContext(ctx)
	email = domain.NormalizeEmail(email)
	if subjectID == "" {
		subjectID = email
	}

	u, err := s.Users.GetUserBySSOSubject(ctx, cfg.ID, subjectID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("failed to look up sso subject: %w", err)
	}

	now := s.Clock.Now()
	u, err = s.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if u.CompanyID != cfg.CompanyID {
			log.Warn("sso email belongs to another tenant",
				slog.String("config_id", cfg.ID),
				slog.String("user_id", u.ID))
			return domain.User{}, ErrCrossTenantEmailCollision
		}
		// Nothing is written for an account that cannot log in.
		if !u.IsActive {
			return domain.User{}, ErrAccountDisabled
		}
		// Park and platform admins sit above the tenant that owns the IdP.
		if !u.Role.DirectoryAssignable() {
			log.Warn("sso refused to link an elevated account",
				slog.String("config_id", cfg.ID),
				slog.String("user_id", u.ID),
				slog.String("role", u.Role.String()))
			return domain.User{}, ErrElevatedAccountLink
		}
		u.SSOSubjectID = domain.Ptr(subjectID)
		u.SSOProviderID = domain.Ptr(cfg.ID)
		u.AuthSource = cfg.Protocol.AuthSource()
		u.PasswordHash = ""
		u.UpdatedAt = now
		if err := s.Users.UpdateUser(ctx, u); err != nil {
			return domain.User{}, fmt.Errorf("failed to link sso identity: %w", err)
		}
		log.Info("linked sso identity to existing user",
			slog.String("config_id", cfg.ID),
			slog.String("user_id", u.ID))
		return u, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if !cfg.AutoProvision {
		return domain.User{}, ErrAutoProvisioningDisabled
	}
	if !cfg.DomainAllowed(email) {
		return domain.User{}, ErrEmailDomainNotAllowed
	}

	company, err := s.Tenants.GetCompany(ctx, cfg.CompanyID)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to read company: %w", err)
	}

	role := cfg.DefaultRole
	if !role.DirectoryAssignable() {
		role = domain.RoleUser
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}
	nu := domain.User{
		ID:            idx.New().String(),
		Email:         email,
		Name:          name,
		Role:          role,
		CompanyID:     cfg.CompanyID,
		AuthSource:    cfg.Protocol.AuthSource(),
		SSOSubjectID:  domain.Ptr(subjectID),
		SSOProviderID: domain.Ptr(cfg.ID),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if company.ParkID != "" {
		nu.ParkID = domain.Ptr(company.ParkID)
	}

	if err := s.Users.CreateUser(ctx, nu); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// A concurrent callback for the same subject won the insert.
			if u, gerr := s.Users.GetUserBySSOSubject(ctx, cfg.ID, subjectID); gerr == nil {
				return u, nil
			}
		}
		return domain.User{}, fmt.Errorf("failed to create sso user: %w", err)
	}
	log.Info("provisioned sso user",
		slog.String("config_id", cfg.ID),
		slog.String("user_id", nu.ID))
	return nu, nil
}

// Metadata returns the SP metadata document of a SAML config.
func (s *SSOService) Metadata(ctx context.Context, configID string) ([]byte, error) {
	cfg, err := s.config(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Protocol != domain.ProtocolSAML {
		return nil, ErrProtocolMismatch
	}
	p, err := s.provider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return p.Metadata()
}

func (s *SSOService) config(ctx context.Context, id string) (domain.SSOConfig, error) {
	cfg, err := s.Configs.GetSSOConfig(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SSOConfig{}, ErrSSOConfigNotFound
	}
	if err != nil {
		return domain.SSOConfig{}, fmt.Errorf("failed to read sso config: %w", err)
	}
	return cfg, nil
}

func (s *SSOService) enabledConfig(ctx context.Context, id string) (domain.SSOConfig, error) {
	cfg, err := s.config(ctx, id)
	if err != nil {
		return domain.SSOConfig{}, err
	}
	if !cfg.Enabled {
		return domain.SSOConfig{}, ErrSSOConfigNotFound
	}
	return cfg, nil
}

func (s *SSOService) provider(ctx context.Context, cfg domain.SSOConfig) (federation.Provider, error) {
	p, err := s.Providers.Provider(ctx, cfg)
	if err != nil {
		slogx.FromContext(ctx).Error("identity provider unavailable",
			slog.String("config_id", cfg.ID),
			slog.String("protocol", cfg.Protocol.String()),
			slog.Any("error", err))
		return nil, ErrSSOUnavailable
	}
	return p, nil
}

func callbackOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidOrExpiredState):
		return "invalid_state"
	case errors.Is(err, ErrSSOUnavailable):
		return "unavailable"
	case errors.Is(err, ErrCrossTenantEmailCollision),
		errors.Is(err, ErrElevatedAccountLink),
		errors.Is(err, ErrAutoProvisioningDisabled),
		errors.Is(err, ErrEmailDomainNotAllowed),
		errors.Is(err, ErrEmailClaimMissing):
		return "provisioning_denied"
	default:
		return "rejected"
	}
}
