package domain_test

import (
	"testing"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestRoleRoundTrip(t *testing.T) {
	for _, r := range []domain.Role{domain.RoleUser, domain.RoleCompanyAdmin, domain.RoleParkAdmin, domain.RoleSuperAdmin} {
		got, err := domain.ParseRole(r.String())
		require.NoError(t, err)
		require.Equal(t, r, got)
	}

	_, err := domain.ParseRole("root")
	require.ErrorIs(t, err, domain.ErrInvalidEnum)
}

func TestRoleDirectoryAssignable(t *testing.T) {
	require.True(t, domain.RoleUser.DirectoryAssignable())
	require.True(t, domain.RoleCompanyAdmin.DirectoryAssignable())
	require.False(t, domain.RoleParkAdmin.DirectoryAssignable())
	require.False(t, domain.RoleSuperAdmin.DirectoryAssignable())
	require.Greater(t, domain.RoleCompanyAdmin.Rank(), domain.RoleUser.Rank())
}

func TestParseLevelEnforcement(t *testing.T) {
	tests := map[string]domain.LevelEnforcement{
		"":         domain.LevelInherit,
		"inherit":  domain.LevelInherit,
		"Optional": domain.LevelOptional,
		"required": domain.LevelRequired,
	}
	for in, want := range tests {
		got, err := domain.ParseLevelEnforcement(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := domain.ParseLevelEnforcement("disabled")
	require.ErrorIs(t, err, domain.ErrInvalidEnum, "disabled is only valid at system level")
}

func TestDomainAllowed(t *testing.T) {
	cfg := domain.SSOConfig{AllowedDomains: []string{"corp.test", "@sub.corp.test"}}

	require.True(t, cfg.DomainAllowed("a@corp.test"))
	require.True(t, cfg.DomainAllowed("a@SUB.corp.test"))
	require.False(t, cfg.DomainAllowed("a@evil.test"))
	require.False(t, cfg.DomainAllowed("nobody"))

	require.True(t, domain.SSOConfig{}.DomainAllowed("anyone@anywhere.test"))
}

func TestDirectoryConfigURL(t *testing.T) {
	require.Equal(t, "ldap://dir.test:389", domain.DirectoryConfig{Host: "dir.test"}.URL())
	require.Equal(t, "ldaps://dir.test:636", domain.DirectoryConfig{Host: "dir.test", TLSMode: domain.TLSLDAPS}.URL())
	require.Equal(t, "ldap://dir.test:10389", domain.DirectoryConfig{Host: "dir.test", Port: 10389}.URL())
}
