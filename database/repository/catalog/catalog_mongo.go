package catalogRepo

import (
	"context"
	"errors"
	"regexp"

	"salonflow/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no catalog entry matches the query.
var ErrNotFound = errors.New("catalog entry not found")

func nameRegex(name string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(name), Options: "i"}
}

func (r *mongoCatalogRepo) ListServices(ctx context.Context) ([]models.Service, error) {
	cursor, err := r.services.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var services []models.Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (r *mongoCatalogRepo) FindServiceByName(ctx context.Context, name string) (*models.Service, error) {
	var service models.Service
	err := r.services.FindOne(ctx, bson.M{"name": nameRegex(name), "active": true}).Decode(&service)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *mongoCatalogRepo) ListProviders(ctx context.Context) ([]models.Provider, error) {
	cursor, err := r.providers.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var providers []models.Provider
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *mongoCatalogRepo) GetProviderByID(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	err := r.providers.FindOne(ctx, bson.M{"id": id}).Decode(&provider)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *mongoCatalogRepo) FindProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	var provider models.Provider
	err := r.providers.FindOne(ctx, bson.M{"name": nameRegex(name), "active": true}).Decode(&provider)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *mongoCatalogRepo) GetInfo(ctx context.Context) (*models.SalonInfo, error) {
	var info models.SalonInfo
	err := r.info.FindOne(ctx, bson.M{}).Decode(&info)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *mongoCatalogRepo) SeedService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.New().String()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.services.ReplaceOne(ctx, bson.M{"id": service.ID}, service, opts)
	return err
}

func (r *mongoCatalogRepo) SeedProvider(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		provider.ID = uuid.New().String()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.providers.ReplaceOne(ctx, bson.M{"id": provider.ID}, provider, opts)
	return err
}
