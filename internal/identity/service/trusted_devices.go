package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// DeviceMeta describes the client asking to be trusted.
type DeviceMeta struct {
	UserAgent string
	IP        string
}

// TrustedDeviceService issues and checks the bearer tokens that let a device
// skip 2FA. Only token fingerprints are stored.
type TrustedDeviceService struct {
	Devices  store.TrustedDevices
	Settings store.Settings
	Clock    clockwork.Clock
}

// Trust mints a device token for userID. The plaintext token is returned
// once and never stored.
func (s *TrustedDeviceService) Trust(ctx context.Context, userID string, meta DeviceMeta) (string, domain.TrustedDevice, error) {
	settings, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return "", domain.TrustedDevice{}, fmt.Errorf("failed to read settings: %w", err)
	}
	if !settings.TrustedDevicesEnabled {
		return "", domain.TrustedDevice{}, ErrTrustedDevicesOff
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.TrustedDevice{}, fmt.Errorf("failed to generate device token: %w", err)
	}

	now := s.Clock.Now()
	d := domain.TrustedDevice{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
		UserAgent: truncate(meta.UserAgent, 512),
		IP:        meta.IP,
		ExpiresAt: now.Add(settings.TrustedDeviceTTL()),
		CreatedAt: now,
	}
	if err := s.Devices.CreateTrustedDevice(ctx, d); err != nil {
		return "", domain.TrustedDevice{}, fmt.Errorf("failed to store trusted device: %w", err)
	}

	slogx.FromContext(ctx).Info("device trusted",
		slog.String("user_id", userID),
		slog.String("device_id", d.ID),
		slog.Time("expires_at", d.ExpiresAt))
	return token, d, nil
}

// IsTrusted reports whether token is a live device token of userID. Expired
// rows are deleted on the way.
func (s *TrustedDeviceService) IsTrusted(ctx context.Context, userID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	settings, err := s.Settings.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read settings: %w", err)
	}
	if !settings.TrustedDevicesEnabled {
		return false, nil
	}

	d, err := s.Devices.GetTrustedDeviceByHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read trusted device: %w", err)
	}

	now := s.Clock.Now()
	if d.UserID != userID {
		slogx.FromContext(ctx).Warn("device token presented for another user",
			slog.String("user_id", userID),
			slog.String("device_id", d.ID))
		return false, nil
	}
	if !d.ValidFor(userID, now) {
		if err := s.Devices.DeleteTrustedDevice(ctx, d.UserID, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("failed to delete expired device: %w", err)
		}
		return false, nil
	}

	if err := s.Devices.TouchTrustedDevice(ctx, d.ID, now); err != nil {
		slogx.FromContext(ctx).Warn("failed to touch trusted device", slog.Any("error", err))
	}
	return true, nil
}

// List returns the user's unexpired devices, dropping expired ones.
func (s *TrustedDeviceService) List(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	devices, err := s.Devices.ListUserTrustedDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	now := s.Clock.Now()
	out := devices[:0]
	for _, d := range devices {
		if d.ValidFor(userID, now) {
			out = append(out, d)
			continue
		}
		if err := s.Devices.DeleteTrustedDevice(ctx, userID, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to delete expired device: %w", err)
		}
	}
	return out, nil
}

func (s *TrustedDeviceService) Revoke(ctx context.Context, userID, deviceID string) error {
	err := s.Devices.DeleteTrustedDevice(ctx, userID, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to revoke trusted device: %w", err)
	}
	slogx.FromContext(ctx).Info("trusted device revoked",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID))
	return nil
}

// RevokeAll removes every device of userID and returns how many there were.
func (s *TrustedDeviceService) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := s.Devices.DeleteUserTrustedDevices(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke trusted devices: %w", err)
	}
	slogx.FromContext(ctx).Info("trusted devices revoked",
		slog.String("user_id", userID),
		slog.Int("count", n))
	return n, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
