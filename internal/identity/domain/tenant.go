package domain

import "time"

// Company is the tenant. Every user, directory config and SSO config hangs
// off one.
type Company struct {
	ID               string
	ParkID           string
	Name             string
	TwoFAEnforcement LevelEnforcement
	CreatedAt        time.Time
}

type Park struct {
	ID               string
	Name             string
	TwoFAEnforcement LevelEnforcement
	CreatedAt        time.Time
}

// DefaultTrustedDeviceDays applies when the setting is unset or invalid.
const DefaultTrustedDeviceDays = 30

type SystemSettings struct {
	TwoFAEnforcement      Enforcement
	TrustedDevicesEnabled bool
	TrustedDeviceDays     int
	UpdatedAt             time.Time
}

// TrustedDeviceTTL converts the day count into a duration.
func (s SystemSettings) TrustedDeviceTTL() time.Duration {
	days := s.TrustedDeviceDays
	if days <= 0 {
		days = DefaultTrustedDeviceDays
	}
	return time.Duration(days) * 24 * time.Hour
}
