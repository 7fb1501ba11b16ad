package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
	"logi-track/internal/blobstore"
	"logi-track/internal/config"
	"logi-track/internal/email"
	"logi-track/internal/jwt"
	"logi-track/internal/storage"
	"logi-track/internal/tms"
)

const ENV_KEY = "env"

// Env carries the request handlers' collaborators.
type Env struct {
	Config     *config.Config
	Storage    storage.Provider
	Guard      *access.Guard
	Tokens     *jwt.Issuer
	Dispatcher *email.Dispatcher
	Blobs      blobstore.Store
	TMS        *tms.Service
}

// Inject makes env available to handlers through the gin context.
func Inject(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ENV_KEY, env)
		c.Next()
	}
}

func getEnv(c *gin.Context) *Env {
	return c.MustGet(ENV_KEY).(*Env)
}

// respond writes a success envelope.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func ok(c *gin.Context, data any) {
	respond(c, http.StatusOK, data)
}

// bindJSON decodes the request body or aborts with a 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithHTTPError(c, http.StatusBadRequest, err, "Invalid request body")
		return false
	}
	return true
}
