package catalogRepo

import (
	"context"

	"salonflow/database"
	"salonflow/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository exposes the providers and services the salon offers.
type CatalogRepository interface {
	// ListServices returns every active service.
	ListServices(ctx context.Context) ([]models.Service, error)
	// FindServiceByName matches a service by (case-insensitive) name fragment.
	FindServiceByName(ctx context.Context, name string) (*models.Service, error)
	// ListProviders returns every active provider.
	ListProviders(ctx context.Context) ([]models.Provider, error)
	// GetProviderByID returns a provider by its unique ID.
	GetProviderByID(ctx context.Context, id string) (*models.Provider, error)
	// FindProviderByName matches a provider by (case-insensitive) name fragment.
	FindProviderByName(ctx context.Context, name string) (*models.Provider, error)
	// GetInfo returns the salon identity record, or nil when none is seeded.
	GetInfo(ctx context.Context) (*models.SalonInfo, error)
	// SeedService and SeedProvider upsert catalog entries (operator API).
	SeedService(ctx context.Context, service *models.Service) error
	SeedProvider(ctx context.Context, provider *models.Provider) error
}

type mongoCatalogRepo struct {
	services  *mongo.Collection
	providers *mongo.Collection
	info      *mongo.Collection
}

// NewMongoCatalogRepo returns a CatalogRepository backed by MongoDB.
func NewMongoCatalogRepo() CatalogRepository {
	db := database.DB()
	return &mongoCatalogRepo{
		services:  db.Collection("services"),
		providers: db.Collection("providers"),
		info:      db.Collection("salon_info"),
	}
}
