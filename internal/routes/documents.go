package routes

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"logi-track/internal/access"
	"logi-track/internal/blobstore"
	"logi-track/internal/storage"
)

const defaultContentType = "application/octet-stream"

func documentFileURL(id string) string {
	return "/documents/" + id + "/file"
}

// uploadContentType prefers the type sent by the client and falls back to
// the file extension.
func uploadContentType(header string, fileName string) string {
	if ct := strings.TrimSpace(header); ct != "" && ct != defaultContentType {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); ct != "" {
		return ct
	}
	return defaultContentType
}

func loadDocument(c *gin.Context, action access.Action) (*storage.Document, bool) {
	doc, err := getEnv(c).Storage.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !authorize(c, action, doc.ClientID) {
		return nil, false
	}
	return doc, true
}

func DocumentRoutes(r *gin.RouterGroup) {
	r.Use(RequireAuth())

	r.GET("", RequirePermission(access.ListDocuments), func(c *gin.Context) {
		filter := storage.DocumentFilter{ShipmentID: c.Query("shipment_id")}
		if p := GetPrincipal(c); !access.IsAdmin(p) {
			filter.ClientID = p.ID
		}
		docs, err := getEnv(c).Storage.ListDocuments(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, docs)
	})

	r.POST("", func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()

		shipmentID := strings.TrimSpace(c.PostForm("shipment_id"))
		if shipmentID == "" {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "shipment_id is required")
			return
		}
		shipment, err := env.Storage.GetShipment(ctx, shipmentID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !authorize(c, access.CreateDocument, shipment.ClientID) {
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "A file is required")
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

		fileName := filepath.Base(header.Filename)
		contentType := uploadContentType(header.Header.Get("Content-Type"), fileName)
		key := blobstore.Key(shipment.ID, fileName)
		if err := env.Blobs.Put(ctx, key, file, header.Size, contentType); err != nil {
			AbortWithError(c, err)
			return
		}

		doc := &storage.Document{
			ID:         uuid.NewString(),
			ShipmentID: shipment.ID,
			FileName:   fileName,
			FileType:   contentType,
			FileSize:   header.Size,
			StorageKey: key,
		}
		doc.FileURL = documentFileURL(doc.ID)
		if err := env.Storage.CreateDocument(ctx, doc); err != nil {
			if delErr := env.Blobs.Delete(ctx, key); delErr != nil {
				slog.Error("Failed to remove orphaned blob", "key", key, "error", delErr)
			}
			AbortWithError(c, err)
			return
		}
		slog.Info("Document uploaded", "id", doc.ID, "shipmentID", shipment.ID, "size", doc.FileSize)
		respond(c, http.StatusCreated, doc)
	})

	r.DELETE("/:id", func(c *gin.Context) {
		env := getEnv(c)
		doc, allowed := loadDocument(c, access.DeleteDocument)
		if !allowed {
			return
		}
		if err := env.Storage.DeleteDocument(c.Request.Context(), doc.ID); err != nil {
			AbortWithError(c, err)
			return
		}
		if err := env.Blobs.Delete(c.Request.Context(), doc.StorageKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			slog.Warn("Failed to delete document blob", "id", doc.ID, "key", doc.StorageKey, "error", err)
		}
		slog.Info("Document deleted", "id", doc.ID, "by", GetPrincipal(c).ID)
		ok(c, gin.H{"id": doc.ID})
	})

	r.GET("/:id/file", func(c *gin.Context) {
		env := getEnv(c)
		ctx := c.Request.Context()
		doc, allowed := loadDocument(c, access.ReadDocument)
		if !allowed {
			return
		}

		url, err := env.Blobs.URL(ctx, doc.StorageKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if url != "" {
			c.Redirect(http.StatusFound, url)
			return
		}

		blob, err := env.Blobs.Open(ctx, doc.StorageKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer blob.Close()

		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
		c.DataFromReader(http.StatusOK, doc.FileSize, doc.FileType, blob, nil)
	})
}
