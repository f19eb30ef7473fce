package handlers

import (
	"net/http"
	"time"

	"salonflow/models"
	"salonflow/services/catalog"
	"salonflow/services/gate"
	"salonflow/utils"

	statsRepo "salonflow/database/repository/stats"

	"github.com/gin-gonic/gin"
)

// PauseConversationHandler hands a conversation to a human from the
// operator API.
func PauseConversationHandler(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := g.Pause(c.Request.Context(), id, models.PauseReasonHumanReply, "admin"); err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to pause conversation", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": id, "control_state": models.ControlPaused})
	}
}

// ResumeConversationHandler returns a conversation to the assistant.
func ResumeConversationHandler(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := g.Resolve(c.Request.Context(), id); err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to resume conversation", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": id, "control_state": models.ControlAutomated})
	}
}

// StatsHandler returns the daily counters for the requested window,
// defaulting to the last seven days.
func StatsHandler(repo statsRepo.StatsRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		to := time.Now()
		from := to.AddDate(0, 0, -7)
		if raw := c.Query("from"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				utils.JSONError(c, http.StatusBadRequest, "invalid from date", raw)
				return
			}
			from = parsed
		}
		if raw := c.Query("to"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				utils.JSONError(c, http.StatusBadRequest, "invalid to date", raw)
				return
			}
			to = parsed
		}

		rows, err := repo.Range(c.Request.Context(), from, to)
		if err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to load stats", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "days": rows})
	}
}

// ListServicesHandler returns the catalog services.
func ListServicesHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		services, err := cat.ListServices(c.Request.Context())
		if err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to list services", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"services": services})
	}
}

// ListProvidersHandler returns the catalog providers.
func ListProvidersHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		providers, err := cat.ListProviders(c.Request.Context())
		if err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to list providers", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": providers})
	}
}

// SeedServiceHandler upserts a catalog service.
func SeedServiceHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var svc models.Service
		if err := c.ShouldBindJSON(&svc); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid service payload", err.Error())
			return
		}
		if svc.ID == "" || svc.Name == "" {
			utils.JSONError(c, http.StatusBadRequest, "service id and name are required", "")
			return
		}
		if err := cat.SeedService(c.Request.Context(), &svc); err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to seed service", err.Error())
			return
		}
		c.JSON(http.StatusOK, svc)
	}
}

// SeedProviderHandler upserts a catalog provider.
func SeedProviderHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var provider models.Provider
		if err := c.ShouldBindJSON(&provider); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid provider payload", err.Error())
			return
		}
		if provider.ID == "" || provider.Name == "" {
			utils.JSONError(c, http.StatusBadRequest, "provider id and name are required", "")
			return
		}
		if err := cat.SeedProvider(c.Request.Context(), &provider); err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "failed to seed provider", err.Error())
			return
		}
		c.JSON(http.StatusOK, provider)
	}
}
