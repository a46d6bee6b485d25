package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
)

// Actor is the authenticated administrator behind a config request.
type Actor struct {
	UserID    string
	Role      domain.Role
	CompanyID string
	ParkID    string
}

// ActorFromClaims maps a full session onto an Actor. Unknown roles become
// RoleUnknown and are refused everything.
func ActorFromClaims(c jwtx.Claims) Actor {
	role, _ := domain.ParseRole(c.Role)
	return Actor{UserID: c.Subject(), Role: role, CompanyID: c.CompanyID, ParkID: c.ParkID}
}

// authorizeTenant allows super admins anywhere, park admins on companies in
// their park and company admins on their own company.
func authorizeTenant(ctx context.Context, tenants store.Tenants, a Actor, companyID string) error {
	switch a.Role {
	case domain.RoleSuperAdmin:
		return nil
	case domain.RoleCompanyAdmin:
		if a.CompanyID != "" && a.CompanyID == companyID {
			return nil
		}
		return ErrForbidden
	case domain.RoleParkAdmin:
		if a.ParkID == "" {
			return ErrForbidden
		}
		co, err := tenants.GetCompany(ctx, companyID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return fmt.Errorf("failed to read company: %w", err)
		}
		if co.ParkID != a.ParkID {
			return ErrForbidden
		}
		return nil
	case domain.RoleUser, domain.RoleUnknown:
	}
	return ErrForbidden
}
