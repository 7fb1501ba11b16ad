package tms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"logi-track/internal/importer"
	"logi-track/internal/storage"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// NormalizeStatus maps a TMS status onto the shipment status enum.
// Unknown values fall back to pending.
func NormalizeStatus(status string) storage.ShipmentStatus {
	normalized := storage.ShipmentStatus(reWhitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(status)), "_"))
	if normalized.Valid() {
		return normalized
	}
	return storage.ShipmentPending
}

func MapShipment(remote *Shipment, clientID string) storage.Shipment {
	return storage.Shipment{
		ClientID:          clientID,
		TrackingNumber:    strings.TrimSpace(remote.TrackingNumber),
		Origin:            strings.TrimSpace(remote.Origin),
		Destination:       strings.TrimSpace(remote.Destination),
		Status:            NormalizeStatus(remote.Status),
		EstimatedDelivery: importer.ParseDate(remote.EstimatedDelivery),
		ActualDelivery:    importer.ParseDate(remote.ActualDelivery),
	}
}

// MapTimelineEvent converts a remote event. The timestamp must be RFC 3339;
// it is stored in UTC so repeated syncs produce identical rows.
func MapTimelineEvent(remote *TimelineEvent, shipmentID string) (storage.TimelineEvent, error) {
	status := strings.TrimSpace(remote.Status)
	if status == "" {
		return storage.TimelineEvent{}, errors.New("timeline event has no status")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(remote.Timestamp))
	if err != nil {
		return storage.TimelineEvent{}, fmt.Errorf("invalid timeline timestamp %q: %w", remote.Timestamp, err)
	}

	return storage.TimelineEvent{
		ShipmentID: shipmentID,
		Status:     status,
		Timestamp:  ts.UTC(),
		Location:   optional(remote.Location),
		Notes:      optional(remote.Notes),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
