package catalog

import (
	"strings"

	"salonflow/models"
)

// matchService matches case-insensitively, exact name first, then substring.
func matchService(services []models.Service, name string) *models.Service {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range services {
		if strings.ToLower(services[i].Name) == needle {
			return &services[i]
		}
	}
	for i := range services {
		if strings.Contains(strings.ToLower(services[i].Name), needle) {
			return &services[i]
		}
	}
	return nil
}

func matchProvider(providers []models.Provider, name string) *models.Provider {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range providers {
		if strings.ToLower(providers[i].Name) == needle {
			return &providers[i]
		}
	}
	for i := range providers {
		if strings.Contains(strings.ToLower(providers[i].Name), needle) {
			return &providers[i]
		}
	}
	return nil
}
