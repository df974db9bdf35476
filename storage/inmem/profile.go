// Package inmem provides an in-memory profile repository for development and
// tests.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/uniteams/uniteams/core/profile"
)

type profileRepository struct {
	mu    sync.RWMutex
	table map[string]*profile.Profile

	nowFunc func() time.Time
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository() *profileRepository {
	return &profileRepository{
		table:   make(map[string]*profile.Profile),
		nowFunc: time.Now,
	}
}

func (repo *profileRepository) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	prof, ok := repo.table[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return *prof, nil
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, prof profile.Profile) (profile.Profile, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := repo.nowFunc().UTC()
	if existing, ok := repo.table[prof.ID]; ok {
		prof.CreatedAt = existing.CreatedAt
	} else if prof.CreatedAt.IsZero() {
		prof.CreatedAt = now
	}
	prof.UpdatedAt = now
	prof.Synthesized = false

	cp := prof
	repo.table[prof.ID] = &cp
	return prof, nil
}

func (repo *profileRepository) UpdateOwnProfile(ctx context.Context, id string, upd profile.Update) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	prof, ok := repo.table[id]
	if !ok {
		return profile.ErrNotFound
	}
	updated := upd.ApplyTo(*prof)
	updated.UpdatedAt = repo.nowFunc().UTC()
	repo.table[id] = &updated
	return nil
}
