package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/go-ldap/ldap/v3"
	"github.com/jonboulle/clockwork"
)

// TenantScheduler is the part of SyncScheduler config changes drive.
type TenantScheduler interface {
	ScheduleTenant(tenantID string, intervalHours int)
	UnscheduleTenant(tenantID string)
	TriggerSync(ctx context.Context, tenantID string) (domain.SyncResult, error)
}

// MaxSyncIntervalHours caps the sync interval at 30 days.
const MaxSyncIntervalHours = 24 * 30

// DirectoryConfigInput is the admin-editable part of a DirectoryConfig.
// A nil BindPassword keeps the stored one on update.
type DirectoryConfigInput struct {
	CompanyID string
	Enabled   bool

	Host               string
	Port               int
	TLSMode            domain.TLSMode
	InsecureSkipVerify bool

	BindDN       string
	BindPassword *string

	BaseDN     string
	UserFilter string
	EmailAttr  string
	NameAttr   string

	GroupBaseDN     string
	GroupFilter     string
	GroupMemberAttr string

	RoleMappings []domain.RoleMapping
	DefaultRole  domain.Role

	SyncIntervalHours int
}

// SyncStatus is the last recorded sync run for a config.
type SyncStatus struct {
	Status  domain.SyncStatus
	At      *time.Time
	Message string
	Count   int
}

// DirectoryConfigService is tenant-scoped administration of directory
// configs. Enabling a config schedules its tenant for sync.
type DirectoryConfigService struct {
	Configs   store.DirectoryConfigs
	Tenants   store.Tenants
	Vault     SecretBox
	Directory *DirectoryService
	Scheduler TenantScheduler
	Clock     clockwork.Clock
}

func (s *DirectoryConfigService) Create(ctx context.Context, actor Actor, in DirectoryConfigInput) (domain.DirectoryConfig, error) {
	log := slogx.FromContext(ctx)

	if err := authorizeTenant(ctx, s.Tenants, actor, in.CompanyID); err != nil {
		return domain.DirectoryConfig{}, err
	}
	if err := validateDirectoryInput(in); err != nil {
		return domain.DirectoryConfig{}, err
	}
	if _, err := s.Tenants.GetCompany(ctx, in.CompanyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DirectoryConfig{}, fmt.Errorf("%w: unknown company", ErrInvalidConfig)
		}
		return domain.DirectoryConfig{}, fmt.Errorf("failed to read company: %w", err)
	}

	now := s.Clock.Now()
	cfg := domain.DirectoryConfig{
		ID:        idx.New().String(),
		CompanyID: in.CompanyID,
		CreatedAt: now,
	}
	if err := s.apply(&cfg, in, now); err != nil {
		return domain.DirectoryConfig{}, err
	}

	if err := s.Configs.CreateDirectoryConfig(ctx, cfg); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.DirectoryConfig{}, ErrDuplicateConfigForTenant
		}
		return domain.DirectoryConfig{}, fmt.Errorf("failed to create directory config: %w", err)
	}

	s.schedule(cfg)
	log.Info("directory config created",
		slog.String("config_id", cfg.ID),
		slog.String("company_id", cfg.CompanyID),
		slog.String("actor", actor.UserID))
	return cfg, nil
}

func (s *DirectoryConfigService) Get(ctx context.Context, actor Actor, id string) (domain.DirectoryConfig, error) {
	cfg, err := s.Configs.GetDirectoryConfig(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DirectoryConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.DirectoryConfig{}, fmt.Errorf("failed to read directory config: %w", err)
	}
	if err := authorizeTenant(ctx, s.Tenants, actor, cfg.CompanyID); err != nil {
		return domain.DirectoryConfig{}, err
	}
	return cfg, nil
}

func (s *DirectoryConfigService) GetForCompany(ctx context.Context, actor Actor, companyID string) (domain.DirectoryConfig, error) {
	if err := authorizeTenant(ctx, s.Tenants, actor, companyID); err != nil {
		return domain.DirectoryConfig{}, err
	}
	cfg, err := s.Configs.GetDirectoryConfigByCompany(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DirectoryConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.DirectoryConfig{}, fmt.Errorf("failed to read directory config: %w", err)
	}
	return cfg, nil
}

// Update replaces the editable fields. The owning company cannot change.
func (s *DirectoryConfigService) Update(ctx context.Context, actor Actor, id string, in DirectoryConfigInput) (domain.DirectoryConfig, error) {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.DirectoryConfig{}, err
	}
	in.CompanyID = cfg.CompanyID
	if err := validateDirectoryInput(in); err != nil {
		return domain.DirectoryConfig{}, err
	}

	if err := s.apply(&cfg, in, s.Clock.Now()); err != nil {
		return domain.DirectoryConfig{}, err
	}
	if err := s.Configs.UpdateDirectoryConfig(ctx, cfg); err != nil {
		return domain.DirectoryConfig{}, fmt.Errorf("failed to update directory config: %w", err)
	}

	s.schedule(cfg)
	slogx.FromContext(ctx).Info("directory config updated",
		slog.String("config_id", cfg.ID),
		slog.Bool("enabled", cfg.Enabled),
		slog.String("actor", actor.UserID))
	return cfg, nil
}

func (s *DirectoryConfigService) Delete(ctx context.Context, actor Actor, id string) error {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Configs.DeleteDirectoryConfig(ctx, cfg.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete directory config: %w", err)
	}
	s.Scheduler.UnscheduleTenant(cfg.CompanyID)
	slogx.FromContext(ctx).Info("directory config deleted",
		slog.String("config_id", cfg.ID),
		slog.String("actor", actor.UserID))
	return nil
}

func (s *DirectoryConfigService) Test(ctx context.Context, actor Actor, id string) (ConnectionTest, error) {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return ConnectionTest{}, err
	}
	return s.Directory.TestConnection(ctx, cfg.ID)
}

// Sync runs a manual sync. It shares the scheduler's tenant lease.
func (s *DirectoryConfigService) Sync(ctx context.Context, actor Actor, id string) (domain.SyncResult, error) {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if !cfg.Enabled {
		return domain.SyncResult{}, fmt.Errorf("%w: directory config is disabled", ErrInvalidConfig)
	}
	return s.Scheduler.TriggerSync(ctx, cfg.CompanyID)
}

func (s *DirectoryConfigService) SyncStatus(ctx context.Context, actor Actor, id string) (SyncStatus, error) {
	cfg, err := s.Get(ctx, actor, id)
	if err != nil {
		return SyncStatus{}, err
	}
	return SyncStatus{
		Status:  cfg.LastSyncStatus,
		At:      cfg.LastSyncAt,
		Message: cfg.LastSyncMessage,
		Count:   cfg.LastSyncCount,
	}, nil
}

func (s *DirectoryConfigService) schedule(cfg domain.DirectoryConfig) {
	if cfg.Enabled && cfg.SyncIntervalHours > 0 {
		s.Scheduler.ScheduleTenant(cfg.CompanyID, cfg.SyncIntervalHours)
		return
	}
	s.Scheduler.UnscheduleTenant(cfg.CompanyID)
}

func (s *DirectoryConfigService) apply(cfg *domain.DirectoryConfig, in DirectoryConfigInput, now time.Time) error {
	cfg.Enabled = in.Enabled
	cfg.Host = strings.TrimSpace(in.Host)
	cfg.Port = in.Port
	cfg.TLSMode = in.TLSMode
	cfg.InsecureSkipVerify = in.InsecureSkipVerify
	cfg.BindDN = strings.TrimSpace(in.BindDN)
	cfg.BaseDN = strings.TrimSpace(in.BaseDN)
	cfg.UserFilter = strings.TrimSpace(in.UserFilter)
	cfg.EmailAttr = strings.TrimSpace(in.EmailAttr)
	cfg.NameAttr = strings.TrimSpace(in.NameAttr)
	cfg.GroupBaseDN = strings.TrimSpace(in.GroupBaseDN)
	cfg.GroupFilter = strings.TrimSpace(in.GroupFilter)
	cfg.GroupMemberAttr = strings.TrimSpace(in.GroupMemberAttr)
	cfg.RoleMappings = append([]domain.RoleMapping(nil), in.RoleMappings...)
	cfg.DefaultRole = in.DefaultRole
	cfg.SyncIntervalHours = in.SyncIntervalHours
	cfg.UpdatedAt = now

	if in.BindPassword != nil {
		if *in.BindPassword == "" {
			cfg.BindPasswordEnc = ""
		} else {
			sealed, err := s.Vault.Encrypt(*in.BindPassword)
			if err != nil {
				return fmt.Errorf("failed to encrypt bind password: %w", err)
			}
			cfg.BindPasswordEnc = sealed
		}
	}

	*cfg = cfg.WithDefaults()
	if cfg.Enabled && !cfg.Complete() {
		return ErrDirectoryConfigIncomplete
	}
	return nil
}

func validateDirectoryInput(in DirectoryConfigInput) error {
	if in.CompanyID == "" {
		return fmt.Errorf("%w: company_id is required", ErrInvalidConfig)
	}
	if in.Port < 0 || in.Port > 65535 {
		return fmt.Errorf("%w: port out of range", ErrInvalidConfig)
	}
	if in.SyncIntervalHours < 0 || in.SyncIntervalHours > MaxSyncIntervalHours {
		return fmt.Errorf("%w: sync interval must be between 0 and %d hours", ErrInvalidConfig, MaxSyncIntervalHours)
	}
	if in.DefaultRole != domain.RoleUnknown && !in.DefaultRole.DirectoryAssignable() {
		return fmt.Errorf("%w: default role %s cannot be assigned by a directory", ErrInvalidConfig, in.DefaultRole)
	}
	for i, m := range in.RoleMappings {
		if strings.TrimSpace(m.GroupDN) == "" {
			return fmt.Errorf("%w: role mapping %d has no group dn", ErrInvalidConfig, i)
		}
		if !m.Role.DirectoryAssignable() {
			return fmt.Errorf("%w: role mapping %d: role %s cannot be assigned by a directory", ErrInvalidConfig, i, m.Role)
		}
	}
	for _, f := range []string{in.UserFilter, in.GroupFilter} {
		if f == "" {
			continue
		}
		if _, err := ldap.CompileFilter(f); err != nil {
			return fmt.Errorf("%w: filter %q: %v", ErrInvalidConfig, f, err)
		}
	}
	return nil
}
