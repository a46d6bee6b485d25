package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

type directoryConfigsRepo struct{ db *db }

func cloneDirectoryConfig(c domain.DirectoryConfig) domain.DirectoryConfig {
	c.RoleMappings = slices.Clone(c.RoleMappings)
	if c.LastSyncAt != nil {
		at := *c.LastSyncAt
		c.LastSyncAt = &at
	}
	return c
}

func (r *directoryConfigsRepo) CreateDirectoryConfig(_ context.Context, c domain.DirectoryConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.d.dirs {
		if other.ID == c.ID || other.CompanyID == c.CompanyID {
			return store.ErrAlreadyExists
		}
	}
	r.db.d.dirs[c.ID] = cloneDirectoryConfig(c)
	return nil
}

func (r *directoryConfigsRepo) GetDirectoryConfig(_ context.Context, id string) (domain.DirectoryConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.d.dirs[id]
	if !ok {
		return domain.DirectoryConfig{}, store.ErrNotFound
	}
	return cloneDirectoryConfig(c), nil
}

func (r *directoryConfigsRepo) GetDirectoryConfigByCompany(_ context.Context, companyID string) (domain.DirectoryConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, c := range r.db.d.dirs {
		if c.CompanyID == companyID {
			return cloneDirectoryConfig(c), nil
		}
	}
	return domain.DirectoryConfig{}, store.ErrNotFound
}

func (r *directoryConfigsRepo) ListEnabledDirectoryConfigs(context.Context) ([]domain.DirectoryConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []domain.DirectoryConfig
	for _, c := range r.db.d.dirs {
		if c.Enabled {
			out = append(out, cloneDirectoryConfig(c))
		}
	}
	slices.SortFunc(out, func(a, b domain.DirectoryConfig) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *directoryConfigsRepo) UpdateDirectoryConfig(_ context.Context, c domain.DirectoryConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.d.dirs[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	// sync status is owned by UpdateSyncStatus
	c.LastSyncStatus = cur.LastSyncStatus
	c.LastSyncAt = cur.LastSyncAt
	c.LastSyncMessage = cur.LastSyncMessage
	c.LastSyncCount = cur.LastSyncCount
	c.CompanyID = cur.CompanyID
	c.CreatedAt = cur.CreatedAt
	r.db.d.dirs[c.ID] = cloneDirectoryConfig(c)
	return nil
}

func (r *directoryConfigsRepo) UpdateSyncStatus(_ context.Context, id string, status domain.SyncStatus, at time.Time, message string, count int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.d.dirs[id]
	if !ok {
		return store.ErrNotFound
	}
	c.LastSyncStatus = status
	c.LastSyncAt = &at
	c.LastSyncMessage = message
	c.LastSyncCount = count
	r.db.d.dirs[id] = c
	return nil
}

func (r *directoryConfigsRepo) DeleteDirectoryConfig(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.dirs[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.d.dirs, id)
	return nil
}

type ssoConfigsRepo struct{ db *db }

func cloneSSOConfig(c domain.SSOConfig) domain.SSOConfig {
	c.Scopes = slices.Clone(c.Scopes)
	c.AllowedDomains = slices.Clone(c.AllowedDomains)
	return c
}

func (r *ssoConfigsRepo) CreateSSOConfig(_ context.Context, c domain.SSOConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.d.ssos {
		if other.ID == c.ID || other.CompanyID == c.CompanyID {
			return store.ErrAlreadyExists
		}
	}
	r.db.d.ssos[c.ID] = cloneSSOConfig(c)
	return nil
}

func (r *ssoConfigsRepo) GetSSOConfig(_ context.Context, id string) (domain.SSOConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.d.ssos[id]
	if !ok {
		return domain.SSOConfig{}, store.ErrNotFound
	}
	return cloneSSOConfig(c), nil
}

func (r *ssoConfigsRepo) GetSSOConfigByCompany(_ context.Context, companyID string) (domain.SSOConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, c := range r.db.d.ssos {
		if c.CompanyID == companyID {
			return cloneSSOConfig(c), nil
		}
	}
	return domain.SSOConfig{}, store.ErrNotFound
}

func (r *ssoConfigsRepo) ListEnabledSSOConfigs(context.Context) ([]domain.SSOConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []domain.SSOConfig
	for _, c := range r.db.d.ssos {
		if c.Enabled {
			out = append(out, cloneSSOConfig(c))
		}
	}
	slices.SortFunc(out, func(a, b domain.SSOConfig) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *ssoConfigsRepo) UpdateSSOConfig(_ context.Context, c domain.SSOConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.d.ssos[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	c.CompanyID = cur.CompanyID
	c.CreatedAt = cur.CreatedAt
	r.db.d.ssos[c.ID] = cloneSSOConfig(c)
	return nil
}

func (r *ssoConfigsRepo) DeleteSSOConfig(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.ssos[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.d.ssos, id)
	return nil
}
