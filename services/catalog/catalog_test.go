package catalog

import (
	"context"
	"testing"

	"salonflow/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type fakeCatalogRepo struct {
	services  []models.Service
	providers []models.Provider
	info      *models.SalonInfo
	listCalls int
}

func (f *fakeCatalogRepo) ListServices(ctx context.Context) ([]models.Service, error) {
	f.listCalls++
	return f.services, nil
}

func (f *fakeCatalogRepo) FindServiceByName(ctx context.Context, name string) (*models.Service, error) {
	return matchService(f.services, name), nil
}

func (f *fakeCatalogRepo) ListProviders(ctx context.Context) ([]models.Provider, error) {
	return f.providers, nil
}

func (f *fakeCatalogRepo) GetProviderByID(ctx context.Context, id string) (*models.Provider, error) {
	for i := range f.providers {
		if f.providers[i].ID == id {
			return &f.providers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeCatalogRepo) FindProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	return matchProvider(f.providers, name), nil
}

func (f *fakeCatalogRepo) GetInfo(ctx context.Context) (*models.SalonInfo, error) {
	return f.info, nil
}

func (f *fakeCatalogRepo) SeedService(ctx context.Context, service *models.Service) error {
	f.services = append(f.services, *service)
	return nil
}

func (f *fakeCatalogRepo) SeedProvider(ctx context.Context, provider *models.Provider) error {
	f.providers = append(f.providers, *provider)
	return nil
}

func newTestCatalog(t *testing.T) (*Service, *fakeCatalogRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &fakeCatalogRepo{
		services: []models.Service{
			{ID: "svc-1", Name: "Corte de cabello", Price: 300, DurationMinutes: 30, Active: true},
			{ID: "svc-2", Name: "Tinte", Price: 900, DurationMinutes: 90, Active: true},
		},
		providers: []models.Provider{
			{ID: "prov-1", Name: "Lucia", Active: true},
		},
	}
	return NewService(repo, cache, zap.NewNop()), repo
}

func TestListServicesIsCached(t *testing.T) {
	svc, repo := newTestCatalog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		services, err := svc.ListServices(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(services) != 2 {
			t.Fatalf("services = %d, want 2", len(services))
		}
	}
	if repo.listCalls != 1 {
		t.Fatalf("repo list calls = %d, want 1", repo.listCalls)
	}
}

func TestSeedServiceInvalidatesCache(t *testing.T) {
	svc, _ := newTestCatalog(t)
	ctx := context.Background()

	if _, err := svc.ListServices(ctx); err != nil {
		t.Fatalf("warm list: %v", err)
	}
	if err := svc.SeedService(ctx, &models.Service{ID: "svc-3", Name: "Manicure", Active: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	services, err := svc.ListServices(ctx)
	if err != nil {
		t.Fatalf("list after seed: %v", err)
	}
	if len(services) != 3 {
		t.Fatalf("services = %d, want 3 after seed", len(services))
	}
}

func TestFindServiceByNameMatching(t *testing.T) {
	svc, _ := newTestCatalog(t)
	ctx := context.Background()

	cases := []struct {
		query string
		want  string
	}{
		{"Tinte", "svc-2"},
		{"tinte", "svc-2"},
		{"corte", "svc-1"},
		{"CORTE DE CABELLO", "svc-1"},
	}
	for _, tc := range cases {
		found, err := svc.FindServiceByName(ctx, tc.query)
		if err != nil {
			t.Fatalf("%q: %v", tc.query, err)
		}
		if found == nil || found.ID != tc.want {
			t.Errorf("%q matched %v, want %s", tc.query, found, tc.want)
		}
	}

	missing, err := svc.FindServiceByName(ctx, "masaje")
	if err != nil {
		t.Fatalf("missing lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown service, got %+v", missing)
	}
}
