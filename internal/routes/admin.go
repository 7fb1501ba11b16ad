package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"logi-track/internal/access"
	"logi-track/internal/importer"
	"logi-track/internal/storage"
)

type roleBody struct {
	Role string `json:"role"`
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Rows     int `json:"rows"`
}

// requireClient checks that id names an existing account.
func requireClient(c *gin.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "client_id is required")
		return false
	}
	if _, err := getEnv(c).Storage.GetUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrInvalidParameter, "Unknown client_id")
			return false
		}
		AbortWithError(c, err)
		return false
	}
	return true
}

// AdminRoutes are the administrator only routes.
func AdminRoutes(r *gin.RouterGroup) {
	r.Use(RequireAuth())

	shipments := r.Group("/shipments", RequirePermission(access.ManageShipments))

	shipments.GET("", func(c *gin.Context) {
		filter, err := shipmentFilter(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.ClientID = c.Query("client_id")

		list, err := getEnv(c).Storage.ListShipments(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, list)
	})

	shipments.POST("", func(c *gin.Context) {
		var body shipmentBody
		if !bindJSON(c, &body) {
			return
		}
		if !requireClient(c, body.ClientID) {
			return
		}
		s, err := newShipment(&body, body.ClientID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := getEnv(c).Storage.CreateShipment(c.Request.Context(), s); err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("Shipment created", "id", s.ID, "clientID", s.ClientID, "by", GetPrincipal(c).ID)
		respond(c, http.StatusCreated, s)
	})

	shipments.POST("/import", RequirePermission(access.ImportShipments), func(c *gin.Context) {
		env := getEnv(c)
		clientID := c.PostForm("client_id")
		if !requireClient(c, clientID) {
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "A CSV file is required")
			return
		}
		if limit := env.Config.Documents.MaxSize; limit > 0 && header.Size > limit {
			AbortWithError(c, ErrFileTooLarge)
			return
		}
		file, err := header.Open()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer file.Close()

		text, err := importer.Decode(file)
		if err != nil {
			AbortWithHTTPError(c, http.StatusBadRequest, err, "Could not read the uploaded file")
			return
		}
		result, err := importer.Parse(text, clientID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := env.Storage.CreateShipments(c.Request.Context(), result.Shipments); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				AbortWithHTTPError(c, http.StatusBadRequest, err, "The file contains tracking numbers that already exist")
				return
			}
			AbortWithError(c, err)
			return
		}

		slog.Info("Shipments imported", "clientID", clientID, "imported", len(result.Shipments), "skipped", result.Skipped, "file", header.Filename)
		ok(c, importResponse{
			Imported: len(result.Shipments),
			Skipped:  result.Skipped,
			Rows:     len(result.Shipments) + result.Skipped,
		})
	})

	users := r.Group("/users")

	users.GET("", RequirePermission(access.ListUsers), func(c *gin.Context) {
		list, err := getEnv(c).Storage.ListUsers(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, list)
	})

	users.GET("/:id", RequirePermission(access.ListUsers), func(c *gin.Context) {
		user, err := getEnv(c).Storage.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, user)
	})

	users.PATCH("/:id", RequirePermission(access.UpdateUser), func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()

		var body roleBody
		if !bindJSON(c, &body) {
			return
		}
		role := strings.ToLower(strings.TrimSpace(body.Role))
		if !storage.ValidRole(role) {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrInvalidParameter, "Role must be user or admin")
			return
		}

		id := c.Param("id")
		if err := env.Storage.UpdateUserRole(ctx, id, role); err != nil {
			AbortWithError(c, err)
			return
		}
		user, err := env.Storage.GetUser(ctx, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		slog.Info("User role changed", "userID", id, "role", role, "by", GetPrincipal(c).ID)
		ok(c, user)
	})
}
