package importer

import (
	"strings"

	"logi-track/internal/storage"
)

// Result is the outcome of building an import batch.
type Result struct {
	Shipments []storage.Shipment
	Skipped   int
}

// NormalizeStatus maps a CSV status cell onto the shipment status enum.
// Absent or unknown values become pending.
func NormalizeStatus(s string) storage.ShipmentStatus {
	status := storage.ShipmentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return storage.ShipmentPending
	}
	return status
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// BuildShipments validates parsed rows (header first) and returns the
// shipments to insert for clientID. Rows missing a required field are
// skipped and counted.
func BuildShipments(rows [][]string, clientID string) (*Result, error) {
	if len(rows) < 2 {
		return nil, ErrNoDataRows
	}

	cols, err := LocateColumns(rows[0])
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, row := range rows[1:] {
		trackingNumber := cell(row, cols.TrackingNumber)
		origin := cell(row, cols.Origin)
		destination := cell(row, cols.Destination)
		if trackingNumber == "" || origin == "" || destination == "" {
			result.Skipped++
			continue
		}

		result.Shipments = append(result.Shipments, storage.Shipment{
			ClientID:          strings.TrimSpace(clientID),
			TrackingNumber:    trackingNumber,
			Origin:            origin,
			Destination:       destination,
			Status:            NormalizeStatus(cell(row, cols.Status)),
			EstimatedDelivery: ParseDate(cell(row, cols.EstimatedDelivery)),
			ActualDelivery:    ParseDate(cell(row, cols.ActualDelivery)),
		})
	}

	if len(result.Shipments) == 0 {
		return nil, ErrNoValidRows
	}
	return result, nil
}

// Parse parses and validates decoded text in one step.
func Parse(text string, clientID string) (*Result, error) {
	return BuildShipments(ParseCSV(text), clientID)
}
