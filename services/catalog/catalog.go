package catalog

import (
	"context"
	"encoding/json"
	"time"

	"salonflow/models"

	catalogRepo "salonflow/database/repository/catalog"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	servicesKey  = "catalog:services"
	providersKey = "catalog:providers"
	infoKey      = "catalog:info"
	catalogTTL   = 10 * time.Minute
)

// Service reads the salon catalog through a Redis cache. The catalog
// changes rarely; a short TTL keeps operator edits visible without a
// database round trip on every turn.
type Service struct {
	repo   catalogRepo.CatalogRepository
	cache  *redis.Client
	logger *zap.Logger
}

func NewService(repo catalogRepo.CatalogRepository, cache *redis.Client, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) ListServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	if s.readCached(ctx, servicesKey, &services) {
		return services, nil
	}
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCached(ctx, servicesKey, services)
	return services, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if s.readCached(ctx, providersKey, &providers) {
		return providers, nil
	}
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCached(ctx, providersKey, providers)
	return providers, nil
}

func (s *Service) Info(ctx context.Context) (*models.SalonInfo, error) {
	var info models.SalonInfo
	if s.readCached(ctx, infoKey, &info) {
		return &info, nil
	}
	stored, err := s.repo.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.writeCached(ctx, infoKey, stored)
	}
	return stored, nil
}

// FindServiceByName resolves a service by name, preferring the cached list
// before falling back to the repository's fuzzy match.
func (s *Service) FindServiceByName(ctx context.Context, name string) (*models.Service, error) {
	services, err := s.ListServices(ctx)
	if err == nil {
		if svc := matchService(services, name); svc != nil {
			return svc, nil
		}
	}
	return s.repo.FindServiceByName(ctx, name)
}

func (s *Service) FindProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	providers, err := s.ListProviders(ctx)
	if err == nil {
		if p := matchProvider(providers, name); p != nil {
			return p, nil
		}
	}
	return s.repo.FindProviderByName(ctx, name)
}

func (s *Service) GetProviderByID(ctx context.Context, id string) (*models.Provider, error) {
	providers, err := s.ListProviders(ctx)
	if err == nil {
		for i := range providers {
			if providers[i].ID == id {
				return &providers[i], nil
			}
		}
	}
	return s.repo.GetProviderByID(ctx, id)
}

// Seed upserts catalog entries and drops the cached lists.
func (s *Service) SeedService(ctx context.Context, service *models.Service) error {
	if err := s.repo.SeedService(ctx, service); err != nil {
		return err
	}
	s.invalidate(ctx, servicesKey)
	return nil
}

func (s *Service) SeedProvider(ctx context.Context, provider *models.Provider) error {
	if err := s.repo.SeedProvider(ctx, provider); err != nil {
		return err
	}
	s.invalidate(ctx, providersKey)
	return nil
}

func (s *Service) readCached(ctx context.Context, key string, out interface{}) bool {
	raw, err := s.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("corrupt catalog cache entry dropped", zap.Error(err))
		return false
	}
	return true
}

func (s *Service) writeCached(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, catalogTTL).Err(); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}
