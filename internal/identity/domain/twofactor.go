package domain

import "time"

// BackupCodeCount is the size of every generated batch.
const BackupCodeCount = 10

type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string // argon2
	CreatedAt time.Time
}

// TrustedDevice lets a browser skip the second factor until ExpiresAt. Only
// the fingerprint of the bearer token is kept.
type TrustedDevice struct {
	ID         string
	UserID     string
	TokenHash  string
	UserAgent  string
	IP         string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// ValidFor implements the bypass rule: right owner, not yet expired.
func (d TrustedDevice) ValidFor(userID string, now time.Time) bool {
	return d.UserID == userID && now.Before(d.ExpiresAt)
}
