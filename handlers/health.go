package handlers

import (
	"context"
	"net/http"
	"time"

	"salonflow/database"
	"salonflow/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness of the process and its two stores.
func HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	mongoStatus := "ok"
	if err := database.MongoClient.Ping(ctx, nil); err != nil {
		mongoStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	redisStatus := "ok"
	if err := utils.GetCacheClient().Ping(ctx).Err(); err != nil {
		redisStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"mongo":  mongoStatus,
		"redis":  redisStatus,
	})
}
