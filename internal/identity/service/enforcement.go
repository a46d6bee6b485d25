package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

// ResolveEnforcement cascades the three policy levels. System required or
// disabled wins outright. Under an optional system, a required park wins
// without consulting the company; otherwise the company may override the
// park, and inherit falls through to the level above.
func ResolveEnforcement(system domain.Enforcement, park, company domain.LevelEnforcement) domain.Enforcement {
	switch system {
	case domain.EnforcementRequired:
		return domain.EnforcementRequired
	case domain.EnforcementDisabled:
		return domain.EnforcementDisabled
	case domain.EnforcementOptional, domain.EnforcementUnknown:
	}

	var resolvedPark domain.Enforcement
	switch park {
	case domain.LevelRequired:
		return domain.EnforcementRequired
	case domain.LevelOptional:
		resolvedPark = domain.EnforcementOptional
	case domain.LevelInherit, domain.LevelUnknown:
		resolvedPark = domain.EnforcementOptional
	}

	switch company {
	case domain.LevelRequired:
		return domain.EnforcementRequired
	case domain.LevelOptional:
		return domain.EnforcementOptional
	case domain.LevelInherit, domain.LevelUnknown:
	}
	return resolvedPark
}

// EnforcementResolver reads the stored levels for ResolveEnforcement.
type EnforcementResolver struct {
	Settings store.Settings
	Tenants  store.Tenants
}

// Resolve returns the effective 2FA policy for a user in companyID. A
// missing park or company counts as inherit.
func (r *EnforcementResolver) Resolve(ctx context.Context, parkID *string, companyID string) (domain.Enforcement, error) {
	settings, err := r.Settings.GetSettings(ctx)
	if err != nil {
		return domain.EnforcementUnknown, fmt.Errorf("failed to read settings: %w", err)
	}

	// Short-circuit before touching tenant rows.
	if settings.TwoFAEnforcement == domain.EnforcementRequired || settings.TwoFAEnforcement == domain.EnforcementDisabled {
		return ResolveEnforcement(settings.TwoFAEnforcement, domain.LevelInherit, domain.LevelInherit), nil
	}

	companyLevel := domain.LevelInherit
	parkRef := domain.Deref(parkID)
	if companyID != "" {
		co, err := r.Tenants.GetCompany(ctx, companyID)
		switch {
		case err == nil:
			companyLevel = co.TwoFAEnforcement
			if parkRef == "" {
				parkRef = co.ParkID
			}
		case !errors.Is(err, store.ErrNotFound):
			return domain.EnforcementUnknown, fmt.Errorf("failed to read company: %w", err)
		}
	}

	parkLevel := domain.LevelInherit
	if parkRef != "" {
		p, err := r.Tenants.GetPark(ctx, parkRef)
		switch {
		case err == nil:
			parkLevel = p.TwoFAEnforcement
		case !errors.Is(err, store.ErrNotFound):
			return domain.EnforcementUnknown, fmt.Errorf("failed to read park: %w", err)
		}
	}

	return ResolveEnforcement(settings.TwoFAEnforcement, parkLevel, companyLevel), nil
}
