package importer

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrMissingColumns = errors.New("CSV must include columns: tracking_number, origin, destination (status, estimated_delivery, actual_delivery are optional)")
	ErrNoDataRows     = errors.New("CSV must have a header row and at least one data row")
	ErrNoValidRows    = errors.New("no valid rows to import (need tracking_number, origin, destination)")
)

var reWhitespace = regexp.MustCompile(`\s+`)

// NormalizeHeader lower-cases a header cell and replaces whitespace runs with "_".
func NormalizeHeader(h string) string {
	return reWhitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_")
}

// Columns holds the index of each known column, -1 when absent.
type Columns struct {
	TrackingNumber    int
	Origin            int
	Destination       int
	Status            int
	EstimatedDelivery int
	ActualDelivery    int
}

var columnAliases = map[string][]string{
	"tracking_number":    {"tracking_number", "trackingnumber"},
	"origin":             {"origin"},
	"destination":        {"destination"},
	"status":             {"status"},
	"estimated_delivery": {"estimated_delivery", "estimateddelivery"},
	"actual_delivery":    {"actual_delivery", "actualdelivery"},
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		for _, alias := range columnAliases[name] {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

// LocateColumns finds the known columns in a header row, independent of order.
func LocateColumns(headerRow []string) (Columns, error) {
	header := make([]string, len(headerRow))
	for i, h := range headerRow {
		header[i] = NormalizeHeader(h)
	}

	cols := Columns{
		TrackingNumber:    findColumn(header, "tracking_number"),
		Origin:            findColumn(header, "origin"),
		Destination:       findColumn(header, "destination"),
		Status:            findColumn(header, "status"),
		EstimatedDelivery: findColumn(header, "estimated_delivery"),
		ActualDelivery:    findColumn(header, "actual_delivery"),
	}
	if cols.TrackingNumber == -1 || cols.Origin == -1 || cols.Destination == -1 {
		return cols, ErrMissingColumns
	}
	return cols, nil
}
