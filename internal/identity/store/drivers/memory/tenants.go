package memory

import (
	"context"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

type tenantsRepo struct{ db *db }

func (r *tenantsRepo) GetCompany(_ context.Context, id string) (domain.Company, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.d.companies[id]
	if !ok {
		return domain.Company{}, store.ErrNotFound
	}
	return c, nil
}

func (r *tenantsRepo) GetPark(_ context.Context, id string) (domain.Park, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.d.parks[id]
	if !ok {
		return domain.Park{}, store.ErrNotFound
	}
	return p, nil
}

func (r *tenantsRepo) CreateCompany(_ context.Context, c domain.Company) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.companies[c.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.db.d.companies[c.ID] = c
	return nil
}

func (r *tenantsRepo) CreatePark(_ context.Context, p domain.Park) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.d.parks[p.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.db.d.parks[p.ID] = p
	return nil
}

type settingsRepo struct{ db *db }

func (r *settingsRepo) GetSettings(context.Context) (domain.SystemSettings, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if r.db.d.settings == nil {
		return store.DefaultSettings(), nil
	}
	return *r.db.d.settings, nil
}

func (r *settingsRepo) UpdateSettings(_ context.Context, s domain.SystemSettings) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.d.settings = &s
	return nil
}
