package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// ErrBootstrapUnauthorized is returned for a missing or wrong bootstrap token.
var ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")

type BootstrapRequest struct {
	ParkName      string
	CompanyName   string
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

type BootstrapResult struct {
	ParkID    string
	CompanyID string
	AdminID   string
}

// BootstrapService seeds the first park, company and super admin.
type BootstrapService struct {
	Store store.Store
	Token string // pre-configured bootstrap token
	Clock clockwork.Clock
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	n, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (BootstrapResult, error) {
	l := slogx.FromContext(ctx)

	// 1. Validate provided token
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt", slog.String("token_fp", cryptox.FingerprintToken(token)))
		return BootstrapResult{}, ErrBootstrapUnauthorized
	}

	email := domain.NormalizeEmail(req.AdminEmail)
	if email == "" || domain.EmailDomain(email) == "" || req.AdminPassword == "" ||
		strings.TrimSpace(req.ParkName) == "" || strings.TrimSpace(req.CompanyName) == "" {
		return BootstrapResult{}, fmt.Errorf("%w: park, company, admin email and password are required", ErrInvalidConfig)
	}

	// 2. Hash password
	passHash, err := cryptox.HashPassword(req.AdminPassword)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return BootstrapResult{}, fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := s.Clock.Now()
	res := BootstrapResult{
		ParkID:    idx.New().String(),
		CompanyID: idx.New().String(),
		AdminID:   idx.New().String(),
	}
	name := strings.TrimSpace(req.AdminName)
	if name == "" {
		name = email
	}

	// 3. Create park, company and admin in a transaction. The user count is
	// checked inside it so two racing bootstraps cannot both win.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		if n > 0 {
			return ErrAlreadySetup
		}

		if err := tx.Tenants().CreatePark(ctx, domain.Park{
			ID:               res.ParkID,
			Name:             strings.TrimSpace(req.ParkName),
			TwoFAEnforcement: domain.LevelInherit,
			CreatedAt:        now,
		}); err != nil {
			return fmt.Errorf("failed to create park: %w", err)
		}
		if err := tx.Tenants().CreateCompany(ctx, domain.Company{
			ID:               res.CompanyID,
			ParkID:           res.ParkID,
			Name:             strings.TrimSpace(req.CompanyName),
			TwoFAEnforcement: domain.LevelInherit,
			CreatedAt:        now,
		}); err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:           res.AdminID,
			Email:        email,
			Name:         name,
			Role:         domain.RoleSuperAdmin,
			CompanyID:    res.CompanyID,
			ParkID:       domain.Ptr(res.ParkID),
			AuthSource:   domain.AuthSourceLocal,
			PasswordHash: passHash,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			l.Error("failed to create admin user",
				slog.String("admin_user_id", res.AdminID),
				slog.Any("error", err),
			)
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadySetup) {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return BootstrapResult{}, err
	}
	if err != nil {
		return BootstrapResult{}, err
	}

	l.Info("successfully bootstrapped system",
		slog.String("admin_user_id", res.AdminID),
		slog.String("company_id", res.CompanyID),
	)
	return res, nil
}
