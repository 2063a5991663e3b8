package providerRepo

import (
	"context"

	"escrowbook/models"
)

// ProviderRepository exposes the provider snapshot the arbiter reads at booking time.
type ProviderRepository interface {
	// GetByID retrieves a provider by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	// Save inserts or replaces a provider after validating its weekly availability.
	Save(ctx context.Context, provider *models.Provider) error
	// SetBufferHours updates only the provider's booking buffer.
	SetBufferHours(ctx context.Context, id string, hours int) (*models.Provider, error)
}
