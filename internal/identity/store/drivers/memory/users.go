package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

type usersRepo struct{ db *db }

func (r *usersRepo) find(match func(domain.User) bool) (domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.d.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (r *usersRepo) GetUserByID(_ context.Context, id string) (domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.d.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *usersRepo) GetUserByDirectoryDN(_ context.Context, companyID, dn string) (domain.User, error) {
	return r.find(func(u domain.User) bool {
		return u.CompanyID == companyID && u.DirectoryDN != nil && strings.EqualFold(*u.DirectoryDN, dn)
	})
}

func (r *usersRepo) GetUserBySSOSubject(_ context.Context, providerID, subject string) (domain.User, error) {
	return r.find(func(u domain.User) bool {
		return domain.Deref(u.SSOProviderID) == providerID && domain.Deref(u.SSOSubjectID) == subject
	})
}

func (r *usersRepo) ListDirectoryUsers(_ context.Context, companyID string) ([]domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.User
	for _, u := range r.db.d.users {
		if u.CompanyID == companyID && u.AuthSource == domain.AuthSourceDirectory {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b domain.User) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// conflicts checks the unique constraints the sqlite schema enforces.
func (r *usersRepo) conflicts(u domain.User) bool {
	for id, other := range r.db.d.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return true
		}
		if u.SSOSubjectID != nil && u.SSOProviderID != nil &&
			domain.Deref(other.SSOSubjectID) == *u.SSOSubjectID &&
			domain.Deref(other.SSOProviderID) == *u.SSOProviderID {
			return true
		}
	}
	return false
}

func (r *usersRepo) CreateUser(_ context.Context, u domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u.Email = domain.NormalizeEmail(u.Email)
	if _, ok := r.db.d.users[u.ID]; ok || r.conflicts(u) {
		return store.ErrAlreadyExists
	}
	r.db.d.users[u.ID] = u
	return nil
}

func (r *usersRepo) UpdateUser(_ context.Context, u domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.d.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	u.Email = domain.NormalizeEmail(u.Email)
	if r.conflicts(u) {
		return store.ErrAlreadyExists
	}

	u.TwoFAEnabled = cur.TwoFAEnabled
	u.TwoFASecret = cur.TwoFASecret
	u.CreatedAt = cur.CreatedAt
	r.db.d.users[u.ID] = u
	return nil
}

func (r *usersRepo) mutate(id string, fn func(*domain.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	r.db.d.users[id] = u
	return nil
}

func (r *usersRepo) SetUserActive(_ context.Context, id string, active bool, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.IsActive = active
		u.UpdatedAt = at
	})
}

func (r *usersRepo) SetTwoFASecret(_ context.Context, id, sealed string, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.TwoFASecret = domain.Ptr(sealed)
		u.UpdatedAt = at
	})
}

func (r *usersRepo) EnableTwoFA(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.TwoFAEnabled = true
		u.UpdatedAt = at
	})
}

func (r *usersRepo) DisableTwoFA(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.TwoFAEnabled = false
		u.TwoFASecret = nil
		u.UpdatedAt = at
	})
}

func (r *usersRepo) CountUsers(context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.d.users), nil
}
