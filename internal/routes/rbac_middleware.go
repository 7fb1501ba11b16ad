package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
)

// RequirePermission creates middleware that checks a role permission that
// does not depend on resource ownership.
func RequirePermission(action access.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, action, "") {
			return
		}
		slog.Debug("Permission granted", "userID", GetPrincipal(c).ID, "action", action.String())
		c.Next()
	}
}

// authorize runs the guard for the current principal and aborts the
// request when it denies. owner is the id of the resource's owning client.
func authorize(c *gin.Context, action access.Action, owner string) bool {
	p := GetPrincipal(c)
	if err := getEnv(c).Guard.Authorize(p, action, owner); err != nil {
		if p != nil {
			slog.Warn("Permission denied", "userID", p.ID, "role", p.Role, "action", action.String(), "reason", err)
		}
		AbortWithError(c, err)
		return false
	}
	return true
}
