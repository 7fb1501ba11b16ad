package routes

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
	"logi-track/internal/tms"
)

const TMS_SIGNATURE_HEADER = "x-tms-signature"

type syncBody struct {
	ClientID     string `json:"clientId"`
	UpdatedSince string `json:"updatedSince"`
}

func TMSRoutes(r *gin.RouterGroup) {
	r.POST("/sync", RequireAuth(), RequirePermission(access.SyncTMS), func(c *gin.Context) {
		var body syncBody
		// Empty body syncs everything
		if c.Request.ContentLength != 0 {
			if !bindJSON(c, &body) {
				return
			}
		}

		filter := tms.Filter{
			ClientID:     strings.TrimSpace(body.ClientID),
			UpdatedSince: strings.TrimSpace(body.UpdatedSince),
		}
		result, err := getEnv(c).TMS.Sync(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("TMS sync finished", "by", GetPrincipal(c).ID, "synced", result.Synced, "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
		ok(c, result)
	})

	// Called by the TMS itself, authenticated by the shared secret only
	r.POST("/webhook", func(c *gin.Context) {
		service := getEnv(c).TMS
		if err := service.VerifySignature(c.GetHeader(TMS_SIGNATURE_HEADER)); err != nil {
			AbortWithError(c, err)
			return
		}

		var event tms.WebhookEvent
		if !bindJSON(c, &event) {
			return
		}
		result, err := service.HandleWebhook(c.Request.Context(), &event)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("TMS webhook applied", "event", event.Event, "created", result.Created, "updated", result.Updated, "events", result.Events)
		ok(c, result)
	})
}
