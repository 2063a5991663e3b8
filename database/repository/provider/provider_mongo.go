package providerRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"escrowbook/models"
	"escrowbook/services/availability"
)

// MongoProviderRepo implements ProviderRepository using MongoDB.
type MongoProviderRepo struct {
	coll *mongo.Collection
}

// NewMongoProviderRepo creates a ProviderRepository over the "providers" collection.
func NewMongoProviderRepo(db *mongo.Database) *MongoProviderRepo {
	return &MongoProviderRepo{coll: db.Collection("providers")}
}

func (r *MongoProviderRepo) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var provider models.Provider
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&provider); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("provider", id)
		}
		return nil, fmt.Errorf("failed to fetch provider with id %s: %w", id, err)
	}
	return &provider, nil
}

func (r *MongoProviderRepo) Save(ctx context.Context, provider *models.Provider) error {
	if err := validate(provider); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"id": provider.ID}, provider, opts); err != nil {
		return fmt.Errorf("failed to save provider %s: %w", provider.ID, err)
	}
	return nil
}

func (r *MongoProviderRepo) SetBufferHours(ctx context.Context, id string, hours int) (*models.Provider, error) {
	if err := availability.ValidateBufferHours(hours); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"bufferHours": hours, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var provider models.Provider
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"id": id}, update, opts).Decode(&provider); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("provider", id)
		}
		return nil, fmt.Errorf("failed to update buffer for provider %s: %w", id, err)
	}
	return &provider, nil
}

func validate(provider *models.Provider) error {
	if provider.ID == "" {
		return models.NewValidationError("id", "provider id is required")
	}
	if provider.BufferHours != nil {
		if err := availability.ValidateBufferHours(*provider.BufferHours); err != nil {
			return err
		}
	}
	return availability.ValidateSchedule(provider.Availability)
}
