package service

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestTrustedDevices(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice := h.addLocalUser(testCompany, "alice@example.com", "pw")
	bob := h.addLocalUser(testCompany, "bob@example.com", "pw")

	token, d, err := h.devices.Trust(h.ctx, alice.ID, DeviceMeta{UserAgent: strings.Repeat("x", 600), IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, d.UserAgent, 512)
	require.Equal(t, cryptox.FingerprintToken(token), d.TokenHash)
	require.NotEqual(t, token, d.TokenHash, "only the fingerprint is stored")
	require.Equal(t, testEpoch.Add(time.Duration(domain.DefaultTrustedDeviceDays)*24*time.Hour), d.ExpiresAt)

	ok, err := h.devices.IsTrusted(h.ctx, alice.ID, token)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.devices.IsTrusted(h.ctx, bob.ID, token)
	require.NoError(t, err)
	require.False(t, ok, "a token is bound to its user")

	ok, err = h.devices.IsTrusted(h.ctx, alice.ID, "")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.devices.IsTrusted(h.ctx, alice.ID, "not-a-token")
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("switched off system-wide", func(t *testing.T) {
		h.setSettings(func(s *domain.SystemSettings) { s.TrustedDevicesEnabled = false })
		t.Cleanup(func() {
			h.setSettings(func(s *domain.SystemSettings) { s.TrustedDevicesEnabled = true })
		})

		ok, err := h.devices.IsTrusted(h.ctx, alice.ID, token)
		require.NoError(t, err)
		require.False(t, ok)

		_, _, err = h.devices.Trust(h.ctx, alice.ID, DeviceMeta{})
		require.ErrorIs(t, err, ErrTrustedDevicesOff)
	})

	t.Run("list and revoke", func(t *testing.T) {
		_, second, err := h.devices.Trust(h.ctx, alice.ID, DeviceMeta{UserAgent: "phone"})
		require.NoError(t, err)

		devices, err := h.devices.List(h.ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, devices, 2)

		require.ErrorIs(t, h.devices.Revoke(h.ctx, bob.ID, second.ID), ErrNotFound, "cannot revoke another user's device")
		require.NoError(t, h.devices.Revoke(h.ctx, alice.ID, second.ID))
		require.ErrorIs(t, h.devices.Revoke(h.ctx, alice.ID, second.ID), ErrNotFound)
	})

	t.Run("expiry", func(t *testing.T) {
		h.clock.Advance(time.Duration(domain.DefaultTrustedDeviceDays+1) * 24 * time.Hour)

		ok, err := h.devices.IsTrusted(h.ctx, alice.ID, token)
		require.NoError(t, err)
		require.False(t, ok)

		devices, err := h.devices.List(h.ctx, alice.ID)
		require.NoError(t, err)
		require.Empty(t, devices, "expired rows are dropped")
	})

	t.Run("revoke all", func(t *testing.T) {
		for range 3 {
			_, _, err := h.devices.Trust(h.ctx, bob.ID, DeviceMeta{})
			require.NoError(t, err)
		}
		n, err := h.devices.RevokeAll(h.ctx, bob.ID)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abcd", 2))

	// "é" is two bytes; cutting inside it backs off to the rune start.
	got := truncate("aé", 2)
	require.Equal(t, "a", got)
	require.True(t, utf8.ValidString(got))

	long := strings.Repeat("日本", 200)
	got = truncate(long, 512)
	require.True(t, utf8.ValidString(got))
	require.LessOrEqual(t, len(got), 512)
	require.Equal(t, 510, len(got), "170 three-byte runes fit")
}
