package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/directory"
	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// SecretBox seals the credentials stored in config rows.
type SecretBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(sealed string) (string, error)
}

// DirectoryAuthenticator checks a password against a tenant's directory.
type DirectoryAuthenticator interface {
	AuthenticateUser(ctx context.Context, email, password, tenantID string) (directory.Identity, error)
}

// ConnectionTest is the outcome of probing a directory config.
type ConnectionTest struct {
	Success   bool
	Message   string
	UserCount int
}

// DirectoryService authenticates users against tenant directories and
// reconciles directory users into the local user table.
type DirectoryService struct {
	Configs store.DirectoryConfigs
	Users   store.Users
	Tenants store.Tenants
	Vault   SecretBox
	Client  *directory.Client
	Clock   clockwork.Clock
	Metrics *Metrics

	// Timeout bounds every directory connection. Zero uses directory.DefaultTimeout.
	Timeout time.Duration
}

func (s *DirectoryService) params(cfg domain.DirectoryConfig) (directory.Params, error) {
	if !cfg.Complete() {
		return directory.Params{}, ErrDirectoryConfigIncomplete
	}
	pw, err := s.Vault.Decrypt(cfg.BindPasswordEnc)
	if err != nil {
		return directory.Params{}, fmt.Errorf("failed to decrypt bind password: %w", err)
	}
	return directory.ParamsFor(cfg, pw, s.Timeout), nil
}

// TestConnection binds with the stored service account and counts the users
// the config would sync. Connectivity problems are reported in the result,
// not as an error.
func (s *DirectoryService) TestConnection(ctx context.Context, configID string) (ConnectionTest, error) {
	log := slogx.FromContext(ctx)

	cfg, err := s.Configs.GetDirectoryConfig(ctx, configID)
	if errors.Is(err, store.ErrNotFound) {
		return ConnectionTest{}, ErrNotFound
	}
	if err != nil {
		return ConnectionTest{}, fmt.Errorf("failed to read directory config: %w", err)
	}

	p, err := s.params(cfg)
	if errors.Is(err, ErrDirectoryConfigIncomplete) {
		return ConnectionTest{Message: "Directory config is incomplete."}, nil
	}
	if err != nil {
		return ConnectionTest{}, err
	}

	n, err := s.Client.TestConnection(ctx, p)
	if err != nil {
		log.Error("directory connection test failed",
			slog.String("config_id", cfg.ID),
			slog.String("url", p.URL),
			slog.Any("error", err))
		return ConnectionTest{Message: "Could not connect to the directory with these settings."}, nil
	}
	return ConnectionTest{
		Success:   true,
		Message:   fmt.Sprintf("Connected. %d users match the user filter.", n),
		UserCount: n,
	}, nil
}

// AuthenticateUser verifies email/password against the tenant's directory.
// Unknown users and wrong passwords both come back as ErrInvalidCredentials.
func (s *DirectoryService) AuthenticateUser(ctx context.Context, email, password, tenantID string) (directory.Identity, error) {
	log := slogx.FromContext(ctx)

	cfg, err := s.Configs.GetDirectoryConfigByCompany(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return directory.Identity{}, ErrDirectoryConfigIncomplete
	}
	if err != nil {
		return directory.Identity{}, fmt.Errorf("failed to read directory config: %w", err)
	}
	if !cfg.Enabled {
		return directory.Identity{}, ErrDirectoryConfigIncomplete
	}

	p, err := s.params(cfg)
	if err != nil {
		return directory.Identity{}, err
	}

	switch out := s.Client.VerifyPassword(ctx, p, email, password).(type) {
	case directory.Verified:
		return out.Identity, nil
	case directory.NotFound:
		log.Debug("directory user not found", slog.String("company_id", tenantID))
		return directory.Identity{}, ErrInvalidCredentials
	case directory.WrongPassword:
		return directory.Identity{}, ErrInvalidCredentials
	case directory.Unreachable:
		log.Error("directory unreachable during login",
			slog.String("company_id", tenantID),
			slog.String("url", p.URL),
			slog.Any("error", out.Err))
		return directory.Identity{}, ErrDirectoryUnavailable
	default:
		return directory.Identity{}, fmt.Errorf("unexpected directory outcome %T", out)
	}
}

// SyncTenant reconciles the tenant's directory into the user table. Per-user
// problems land in SyncResult.Errors; only an unusable config or an
// unreachable directory aborts the run.
func (s *DirectoryService) SyncTenant(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	log := slogx.FromContext(ctx).With(slog.String("company_id", tenantID))
	started := s.Clock.Now()

	cfg, err := s.Configs.GetDirectoryConfigByCompany(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SyncResult{}, ErrNotFound
	}
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("failed to read directory config: %w", err)
	}
	cfg = cfg.WithDefaults()

	res, err := s.syncTenant(ctx, log, cfg)
	took := s.Clock.Now().Sub(started)
	if err != nil {
		s.Metrics.syncRun(domain.SyncError.String(), took)
		msg := "Sync failed: directory unavailable."
		if errors.Is(err, ErrDirectoryConfigIncomplete) {
			msg = "Sync failed: directory config incomplete."
		}
		if serr := s.Configs.UpdateSyncStatus(ctx, cfg.ID, domain.SyncError, s.Clock.Now(), msg, 0); serr != nil {
			log.Error("failed to record sync status", slog.Any("error", serr))
		}
		return res, err
	}

	status := res.Status()
	if err := s.Configs.UpdateSyncStatus(ctx, cfg.ID, status, s.Clock.Now(), res.Summary(), res.TotalDirectoryUsers); err != nil {
		return res, fmt.Errorf("failed to record sync status: %w", err)
	}

	s.Metrics.syncRun(status.String(), took)
	s.Metrics.syncUsers("created", res.Created)
	s.Metrics.syncUsers("updated", res.Updated)
	s.Metrics.syncUsers("disabled", res.Disabled)
	s.Metrics.syncUsers("reactivated", res.Reactivated)

	log.Info("directory sync finished",
		slog.String("status", status.String()),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("disabled", res.Disabled),
		slog.Int("reactivated", res.Reactivated),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("took", took))
	return res, nil
}

func (s *DirectoryService) syncTenant(ctx context.Context, log *slog.Logger, cfg domain.DirectoryConfig) (domain.SyncResult, error) {
	var res domain.SyncResult

	p, err := s.params(cfg)
	if err != nil {
		log.Warn("directory sync skipped", slog.Any("error", err))
		return res, err
	}

	entries, err := s.Client.SearchUsers(ctx, p)
	if err != nil {
		log.Error("directory user search failed", slog.String("url", p.URL), slog.Any("error", err))
		return res, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	res.TotalDirectoryUsers = len(entries)

	memberOf := map[string][]string{}
	if cfg.GroupMappingEnabled() {
		groups, err := s.Client.SearchGroups(ctx, p)
		if err != nil {
			log.Error("directory group search failed", slog.String("url", p.URL), slog.Any("error", err))
			return res, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
		for _, g := range groups {
			for _, m := range g.Values(p.GroupMemberAttr) {
				key := strings.ToLower(m)
				memberOf[key] = append(memberOf[key], g.DN)
			}
		}
	}

	company, err := s.Tenants.GetCompany(ctx, cfg.CompanyID)
	if err != nil {
		return res, fmt.Errorf("failed to read company: %w", err)
	}

	existing, err := s.Users.ListDirectoryUsers(ctx, cfg.CompanyID)
	if err != nil {
		return res, fmt.Errorf("failed to list directory users: %w", err)
	}

	seenDNs := make(map[string]bool, len(entries))
	seenIDs := make(map[string]bool, len(entries))

	for _, e := range entries {
		key := strings.ToLower(e.DN)
		// Mark first so a user that fails below is not also deactivated.
		seenDNs[key] = true

		id, err := s.syncEntry(ctx, cfg, company, e, memberOf[key], &res)
		if id != "" {
			seenIDs[id] = true
		}
		if err != nil {
			log.Warn("directory user not synced", slog.String("dn", e.DN), slog.Any("error", err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.DN, err))
		}
	}

	now := s.Clock.Now()
	for _, u := range existing {
		if !u.IsActive || seenIDs[u.ID] || seenDNs[strings.ToLower(domain.Deref(u.DirectoryDN))] {
			continue
		}
		if err := s.Users.SetUserActive(ctx, u.ID, false, now); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: failed to deactivate: %v", domain.Deref(u.DirectoryDN), err))
			continue
		}
		res.Disabled++
	}

	return res, nil
}

// syncEntry creates or updates the user behind one directory entry and
// returns its id when a local user was matched or created.
func (s *DirectoryService) syncEntry(
	ctx context.Context,
	cfg domain.DirectoryConfig,
	company domain.Company,
	e directory.Entry,
	groups []string,
	res *domain.SyncResult,
) (string, error) {
	email := domain.NormalizeEmail(e.First(cfg.EmailAttr))
	if email == "" {
		return "", fmt.Errorf("entry has no %s attribute", cfg.EmailAttr)
	}
	name := strings.TrimSpace(e.First(cfg.NameAttr))
	if name == "" {
		name = email
	}
	role := resolveDirectoryRole(cfg, groups)
	now := s.Clock.Now()

	u, err := s.Users.GetUserByDirectoryDN(ctx, cfg.CompanyID, e.DN)
	if errors.Is(err, store.ErrNotFound) {
		u, err = s.Users.GetUserByEmail(ctx, email)
		if err == nil && u.CompanyID != cfg.CompanyID {
			return "", ErrCrossTenantEmailCollision
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		nu := domain.User{
			ID:          idx.New().String(),
			Email:       email,
			Name:        name,
			Role:        role,
			CompanyID:   cfg.CompanyID,
			AuthSource:  domain.AuthSourceDirectory,
			DirectoryDN: domain.Ptr(e.DN),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if company.ParkID != "" {
			nu.ParkID = domain.Ptr(company.ParkID)
		}
		if err := s.Users.CreateUser(ctx, nu); err != nil {
			return "", fmt.Errorf("failed to create user: %w", err)
		}
		res.Created++
		return nu.ID, nil
	case err != nil:
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	changed := false
	if u.Email != email {
		u.Email, changed = email, true
	}
	if u.Name != name {
		u.Name, changed = name, true
	}
	if domain.Deref(u.DirectoryDN) != e.DN {
		u.DirectoryDN, changed = domain.Ptr(e.DN), true
	}
	// Park and platform admins are managed by hand.
	if u.Role.DirectoryAssignable() && u.Role != role {
		u.Role, changed = role, true
	}
	if u.AuthSource == domain.AuthSourceLocal {
		u.AuthSource, u.PasswordHash, changed = domain.AuthSourceDirectory, "", true
	}
	reactivated := !u.IsActive
	if !changed && !reactivated {
		return u.ID, nil
	}

	u.IsActive = true
	u.UpdatedAt = now
	if err := s.Users.UpdateUser(ctx, u); err != nil {
		return u.ID, fmt.Errorf("failed to update user: %w", err)
	}
	if changed {
		res.Updated++
	}
	if reactivated {
		res.Reactivated++
	}
	return u.ID, nil
}

// resolveDirectoryRole picks the highest directory-assignable role mapped to
// any of groups, falling back to the config default.
func resolveDirectoryRole(cfg domain.DirectoryConfig, groups []string) domain.Role {
	best := domain.RoleUnknown
	for _, m := range cfg.RoleMappings {
		if !m.Role.DirectoryAssignable() || m.Role.Rank() <= best.Rank() {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(g, m.GroupDN) {
				best = m.Role
				break
			}
		}
	}
	if best != domain.RoleUnknown {
		return best
	}
	if cfg.DefaultRole.DirectoryAssignable() {
		return cfg.DefaultRole
	}
	return domain.RoleUser
}
