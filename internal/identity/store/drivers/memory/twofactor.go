package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

type backupCodesRepo struct{ db *db }

func (r *backupCodesRepo) CreateBackupCode(_ context.Context, c domain.BackupCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.codes[c.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.db.d.codes[c.ID] = c
	return nil
}

func (r *backupCodesRepo) ListBackupCodes(_ context.Context, userID string) ([]domain.BackupCode, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.BackupCode
	for _, c := range r.db.d.codes {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.BackupCode) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *backupCodesRepo) DeleteBackupCode(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.codes[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.d.codes, id)
	return nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, c := range r.db.d.codes {
		if c.UserID == userID {
			delete(r.db.d.codes, id)
		}
	}
	return nil
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	codes, err := r.ListBackupCodes(ctx, userID)
	return len(codes), err
}

type trustedDevicesRepo struct{ db *db }

func (r *trustedDevicesRepo) CreateTrustedDevice(_ context.Context, d domain.TrustedDevice) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.d.devices {
		if other.ID == d.ID || other.TokenHash == d.TokenHash {
			return store.ErrAlreadyExists
		}
	}
	r.db.d.devices[d.ID] = d
	return nil
}

func (r *trustedDevicesRepo) GetTrustedDeviceByHash(_ context.Context, hash string) (domain.TrustedDevice, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, d := range r.db.d.devices {
		if d.TokenHash == hash {
			return d, nil
		}
	}
	return domain.TrustedDevice{}, store.ErrNotFound
}

func (r *trustedDevicesRepo) ListUserTrustedDevices(_ context.Context, userID string) ([]domain.TrustedDevice, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.TrustedDevice
	for _, d := range r.db.d.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b domain.TrustedDevice) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *trustedDevicesRepo) TouchTrustedDevice(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.d.devices[id]
	if !ok {
		return store.ErrNotFound
	}
	d.LastUsedAt = &at
	r.db.d.devices[id] = d
	return nil
}

func (r *trustedDevicesRepo) DeleteTrustedDevice(_ context.Context, userID, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.d.devices[id]
	if !ok || d.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.db.d.devices, id)
	return nil
}

func (r *trustedDevicesRepo) DeleteUserTrustedDevices(_ context.Context, userID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for id, d := range r.db.d.devices {
		if d.UserID == userID {
			delete(r.db.d.devices, id)
			n++
		}
	}
	return n, nil
}
