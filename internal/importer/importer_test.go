package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"logi-track/internal/storage"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [][]string
	}{
		{
			name: "LF and trimming",
			in:   "a, b ,c\n1,2,3\n",
			want: [][]string{{"a", "b", "c"}, {"1", "2", "3"}},
		},
		{
			name: "CRLF, CR and blank lines",
			in:   "a,b\r\n\r\n1,2\r3,4\n   \n",
			want: [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}},
		},
		{
			name: "semicolon delimiter",
			in:   "a;b\n1;2",
			want: [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name: "quoted delimiters and newline",
			in:   "a,b\n\"Oslo, NO\",\"line1\nline2; x\"",
			want: [][]string{{"a", "b"}, {"Oslo, NO", "line1\nline2; x"}},
		},
		{
			name: "empty input",
			in:   "",
			want: [][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCSV(tt.in))
		})
	}
}

func TestDecode(t *testing.T) {
	text, err := Decode(strings.NewReader("\xEF\xBB\xBFtracking_number"))
	require.NoError(t, err)
	assert.Equal(t, "tracking_number", text)

	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	utf16, err := encoder.Bytes([]byte("origin,destination\nÅre,Malmö"))
	require.NoError(t, err)

	text, err = Decode(bytes.NewReader(utf16))
	require.NoError(t, err)
	assert.Equal(t, "origin,destination\nÅre,Malmö", text)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "tracking_number", NormalizeHeader(" Tracking   Number "))
	assert.Equal(t, "estimated_delivery", NormalizeHeader("Estimated\tDelivery"))
	assert.Equal(t, "origin", NormalizeHeader("ORIGIN"))
}

func TestLocateColumns(t *testing.T) {
	cols, err := LocateColumns([]string{"Destination", "TrackingNumber", "status", "Origin", "ActualDelivery"})
	require.NoError(t, err)
	assert.Equal(t, 1, cols.TrackingNumber)
	assert.Equal(t, 3, cols.Origin)
	assert.Equal(t, 0, cols.Destination)
	assert.Equal(t, 2, cols.Status)
	assert.Equal(t, -1, cols.EstimatedDelivery)
	assert.Equal(t, 4, cols.ActualDelivery)

	_, err = LocateColumns([]string{"tracking_number", "origin"})
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestParseDate(t *testing.T) {
	tests := map[string]string{
		"2025-02-15":           "2025-02-15",
		"2025-02-15T00:00:00Z": "2025-02-15",
		" 2025-02-15 10:30 ":   "2025-02-15",
		"2025/02/15":           "2025-02-15",
		"02/15/2025":           "2025-02-15",
		"15.02.2025":           "2025-02-15",
		"Feb 15, 2025":         "2025-02-15",
		"15 February 2025":     "2025-02-15",
	}
	for in, want := range tests {
		got := ParseDate(in)
		if assert.NotNil(t, got, in) {
			assert.Equal(t, want, *got, in)
		}
	}

	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("   "))
	assert.Nil(t, ParseDate("next tuesday"))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, storage.ShipmentDelivered, NormalizeStatus("delivered"))
	assert.Equal(t, storage.ShipmentInTransit, NormalizeStatus(" In_Transit "))
	for _, bad := range []string{"", "lost", "in transit", "shipped"} {
		assert.Equal(t, storage.ShipmentPending, NormalizeStatus(bad), bad)
	}
}

func TestBuildShipments_SkipsRowsMissingRequiredFields(t *testing.T) {
	text := strings.Join([]string{
		"Tracking Number,Origin,Destination,Status,Estimated Delivery",
		"TN-1,Oslo,Rome,in_transit,2025-02-15",
		"TN-2,,Rome,delivered,",
		",Oslo,Rome,pending,",
		"TN-3,Oslo,Paris,bogus,not a date",
		"TN-4,Oslo",
	}, "\n")

	result, err := Parse(text, " client-1 ")
	require.NoError(t, err)

	require.Len(t, result.Shipments, 2)
	assert.Equal(t, 3, result.Skipped)

	first := result.Shipments[0]
	assert.Equal(t, "client-1", first.ClientID)
	assert.Equal(t, "TN-1", first.TrackingNumber)
	assert.Equal(t, storage.ShipmentInTransit, first.Status)
	require.NotNil(t, first.EstimatedDelivery)
	assert.Equal(t, "2025-02-15", *first.EstimatedDelivery)
	assert.Nil(t, first.ActualDelivery)

	second := result.Shipments[1]
	assert.Equal(t, storage.ShipmentPending, second.Status, "unknown status falls back to pending")
	assert.Nil(t, second.EstimatedDelivery)
}

func TestBuildShipments_Errors(t *testing.T) {
	_, err := Parse("tracking_number,origin,destination\n", "c")
	assert.ErrorIs(t, err, ErrNoDataRows)

	_, err = Parse("tracking_number,origin\nTN-1,Oslo", "c")
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, err = Parse("tracking_number,origin,destination\n,,\nTN-1,,", "c")
	assert.ErrorIs(t, err, ErrNoValidRows)
}
