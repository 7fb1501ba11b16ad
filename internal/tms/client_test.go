package tms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logi-track/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.TMSConfig{URL: srv.URL + "/", APIKey: "key", Timeout: 5})
	require.NoError(t, err)
	return client
}

func TestNewClientNotConfigured(t *testing.T) {
	_, err := NewClient(config.TMSConfig{URL: "http://tms"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetShipmentsBareArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "c1", r.URL.Query().Get("client_id"))
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("updated_since"))
		assert.False(t, r.URL.Query().Has("status"))
		w.Write([]byte(`[{"trackingNumber":"TN1","origin":"A","destination":"B","status":"In Transit"}]`))
	})

	shipments, err := client.GetShipments(context.Background(), Filter{ClientID: "c1", UpdatedSince: "2025-01-01"})
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "TN1", shipments[0].TrackingNumber)
	assert.Equal(t, "In Transit", shipments[0].Status)
}

func TestGetShipmentsWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shipments":[{"trackingNumber":"TN1"},{"trackingNumber":"TN2"}]}`))
	})
	shipments, err := client.GetShipments(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, shipments, 2)

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	shipments, err = empty.GetShipments(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, shipments)
}

func TestGetShipmentsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := client.GetShipments(context.Background(), Filter{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Body)
}

func TestGetShipmentNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shipments/TN1" {
			w.Write([]byte(`{"trackingNumber":"TN1","origin":"A"}`))
			return
		}
		http.NotFound(w, r)
	})

	s, err := client.GetShipment(context.Background(), "TN1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "A", s.Origin)

	s, err = client.GetShipment(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetTimelineEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments/TN1/timeline", r.URL.Path)
		w.Write([]byte(`{"events":[{"status":"picked_up","timestamp":"2025-02-15T10:00:00Z"}]}`))
	})
	events, err := client.GetTimelineEvents(context.Background(), "TN1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "picked_up", events[0].Status)
}
