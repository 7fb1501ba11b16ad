package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"logi-track/internal/access"
	"logi-track/internal/config"
	"logi-track/internal/importer"
	"logi-track/internal/storage"
	"logi-track/internal/utils"
)

type shipmentBody struct {
	ClientID          string                 `json:"client_id"`
	TrackingNumber    string                 `json:"tracking_number"`
	Origin            string                 `json:"origin"`
	Destination       string                 `json:"destination"`
	Status            storage.ShipmentStatus `json:"status"`
	EstimatedDelivery *string                `json:"estimated_delivery"`
	ActualDelivery    *string                `json:"actual_delivery"`
}

// Pointer fields distinguish "not sent" from "set to empty".
type shipmentPatch struct {
	TrackingNumber    *string                 `json:"tracking_number"`
	Origin            *string                 `json:"origin"`
	Destination       *string                 `json:"destination"`
	Status            *storage.ShipmentStatus `json:"status"`
	EstimatedDelivery *string                 `json:"estimated_delivery"`
	ActualDelivery    *string                 `json:"actual_delivery"`
}

type timelineBody struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp"`
	Location  *string    `json:"location"`
	Notes     *string    `json:"notes"`
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// optionalDate normalizes a date field; unparseable dates become null.
func optionalDate(s *string) *string {
	if s == nil {
		return nil
	}
	return importer.ParseDate(*s)
}

// newShipment validates a create body. Missing required fields are a 400.
func newShipment(body *shipmentBody, clientID string) (*storage.Shipment, error) {
	s := &storage.Shipment{
		ClientID:          clientID,
		TrackingNumber:    strings.TrimSpace(body.TrackingNumber),
		Origin:            strings.TrimSpace(body.Origin),
		Destination:       strings.TrimSpace(body.Destination),
		Status:            body.Status,
		EstimatedDelivery: optionalDate(body.EstimatedDelivery),
		ActualDelivery:    optionalDate(body.ActualDelivery),
	}
	if s.TrackingNumber == "" || s.Origin == "" || s.Destination == "" {
		return nil, NewHTTPError(http.StatusBadRequest, ErrMissingParameter, "Tracking number, origin, and destination are required")
	}
	if s.Status == "" {
		s.Status = storage.ShipmentPending
	} else if !s.Status.Valid() {
		return nil, NewHTTPError(http.StatusBadRequest, ErrInvalidParameter, "Invalid shipment status")
	}
	return s, nil
}

func (p *shipmentPatch) apply(s *storage.Shipment) error {
	if p.TrackingNumber != nil {
		s.TrackingNumber = strings.TrimSpace(*p.TrackingNumber)
	}
	if p.Origin != nil {
		s.Origin = strings.TrimSpace(*p.Origin)
	}
	if p.Destination != nil {
		s.Destination = strings.TrimSpace(*p.Destination)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return NewHTTPError(http.StatusBadRequest, ErrInvalidParameter, "Invalid shipment status")
		}
		s.Status = *p.Status
	}
	if p.EstimatedDelivery != nil {
		s.EstimatedDelivery = optionalDate(p.EstimatedDelivery)
	}
	if p.ActualDelivery != nil {
		s.ActualDelivery = optionalDate(p.ActualDelivery)
	}
	if s.TrackingNumber == "" || s.Origin == "" || s.Destination == "" {
		return NewHTTPError(http.StatusBadRequest, ErrMissingParameter, "Tracking number, origin, and destination cannot be empty")
	}
	return nil
}

func shipmentFilter(c *gin.Context) (storage.ShipmentFilter, error) {
	filter := storage.ShipmentFilter{
		Status:         storage.ShipmentStatus(c.Query("status")),
		TrackingNumber: strings.TrimSpace(c.Query("tracking_number")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, NewHTTPError(http.StatusBadRequest, ErrInvalidParameter, "Invalid status filter")
	}
	return filter, nil
}

// loadShipment fetches the shipment named by the :id parameter and runs
// the guard against its owner. Missing and foreign shipments are both 404.
func loadShipment(c *gin.Context, action access.Action) (*storage.Shipment, bool) {
	s, err := getEnv(c).Storage.GetShipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !authorize(c, action, s.ClientID) {
		return nil, false
	}
	return s, true
}

// ShipmentRoutes are the client facing shipment routes. Non-admins only
// see their own shipments.
func ShipmentRoutes(r *gin.RouterGroup) {
	r.Use(RequireAuth())

	r.GET("", RequirePermission(access.ListShipments), func(c *gin.Context) {
		filter, err := shipmentFilter(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if p := GetPrincipal(c); !access.IsAdmin(p) {
			filter.ClientID = p.ID
		}

		shipments, err := getEnv(c).Storage.ListShipments(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, shipments)
	})

	r.POST("", RequirePermission(access.CreateShipment), func(c *gin.Context) {
		var body shipmentBody
		if !bindJSON(c, &body) {
			return
		}
		s, err := newShipment(&body, GetPrincipal(c).ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := getEnv(c).Storage.CreateShipment(c.Request.Context(), s); err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusCreated, s)
	})

	r.GET("/:id", func(c *gin.Context) {
		s, allowed := loadShipment(c, access.ReadShipment)
		if !allowed {
			return
		}
		ok(c, s)
	})

	r.PATCH("/:id", func(c *gin.Context) {
		s, allowed := loadShipment(c, access.UpdateShipment)
		if !allowed {
			return
		}
		var patch shipmentPatch
		if !bindJSON(c, &patch) {
			return
		}
		if err := patch.apply(s); err != nil {
			AbortWithError(c, err)
			return
		}
		if err := getEnv(c).Storage.UpdateShipment(c.Request.Context(), s); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				AbortWithHTTPError(c, http.StatusBadRequest, err, "Tracking number is already in use")
				return
			}
			AbortWithError(c, err)
			return
		}
		ok(c, s)
	})

	r.GET("/:id/timeline", func(c *gin.Context) {
		s, allowed := loadShipment(c, access.ReadTimeline)
		if !allowed {
			return
		}
		events, err := getEnv(c).Storage.ListTimeline(c.Request.Context(), s.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ok(c, events)
	})

	r.POST("/:id/timeline", func(c *gin.Context) {
		s, allowed := loadShipment(c, access.CreateTimeline)
		if !allowed {
			return
		}
		var body timelineBody
		if !bindJSON(c, &body) {
			return
		}
		status := strings.TrimSpace(body.Status)
		if status == "" {
			AbortWithHTTPError(c, http.StatusBadRequest, ErrMissingParameter, "Status is required")
			return
		}

		event := &storage.TimelineEvent{
			ShipmentID: s.ID,
			Status:     status,
			Location:   optionalString(body.Location),
			Notes:      optionalString(body.Notes),
		}
		if body.Timestamp != nil {
			event.Timestamp = *body.Timestamp
		}
		if err := getEnv(c).Storage.CreateTimelineEvent(c.Request.Context(), event); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				AbortWithHTTPError(c, http.StatusBadRequest, err, "Timeline event already exists")
				return
			}
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusCreated, event)
	})

	// PNG label linking to the shipment in the portal
	r.GET("/:id/qr.png", func(c *gin.Context) {
		s, allowed := loadShipment(c, access.ReadShipment)
		if !allowed {
			return
		}
		url := utils.UrlFor(c, getEnv(c).Config.BaseURL, "/shipments/"+s.ID)
		png, err := qrcode.Encode(url, qrcode.Medium, config.QR_IMAGE_SIZE)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", `inline; filename="`+s.TrackingNumber+`.png"`)
		c.Data(http.StatusOK, "image/png", png)
	})
}
