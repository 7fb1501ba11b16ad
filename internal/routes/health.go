package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"logi-track/internal/utils"
)

func Health(r *gin.RouterGroup) {
	r.GET("/health", func(c *gin.Context) {
		env := getEnv(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		database := "ok"
		if err := env.Storage.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			database = "unavailable"
		}

		c.JSON(status, gin.H{"data": gin.H{
			"status":   http.StatusText(status),
			"database": database,
			"version":  utils.GetVersion(),
			"email":    env.Dispatcher.Configured(),
			"tms":      env.TMS.Configured(),
		}})
	})
}
