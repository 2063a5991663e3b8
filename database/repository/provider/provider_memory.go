package providerRepo

import (
	"context"
	"sync"
	"time"

	"escrowbook/models"
	"escrowbook/services/availability"
)

// MemoryProviderRepo is an in-process provider directory for development and tests.
type MemoryProviderRepo struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
}

func NewMemoryProviderRepo(seed ...models.Provider) *MemoryProviderRepo {
	r := &MemoryProviderRepo{providers: make(map[string]models.Provider)}
	for _, p := range seed {
		r.providers[p.ID] = p
	}
	return r
}

func (r *MemoryProviderRepo) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, models.NewNotFoundError("provider", id)
	}
	return &p, nil
}

func (r *MemoryProviderRepo) Save(ctx context.Context, provider *models.Provider) error {
	if err := validate(provider); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now
	r.providers[provider.ID] = *provider
	return nil
}

func (r *MemoryProviderRepo) SetBufferHours(ctx context.Context, id string, hours int) (*models.Provider, error) {
	if err := availability.ValidateBufferHours(hours); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, models.NewNotFoundError("provider", id)
	}
	h := hours
	p.BufferHours = &h
	p.UpdatedAt = time.Now().UTC()
	r.providers[id] = p
	return &p, nil
}
