package routes

import "github.com/gin-gonic/gin"

// RegisterRoutes installs the request middleware and every API route.
func RegisterRoutes(r *gin.Engine, env *Env) {
	r.Use(Inject(env), ErrorHandler(), SessionMiddleware())

	Health(&r.RouterGroup)

	AuthRoutes(r.Group("/auth"))
	AccessRequestRoutes(r.Group("/access-requests"))
	ShipmentRoutes(r.Group("/shipments"))
	DocumentRoutes(r.Group("/documents"))
	AdminRoutes(r.Group("/admin"))
	TMSRoutes(r.Group("/tms"))
}
