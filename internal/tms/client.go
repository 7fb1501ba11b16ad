// Package tms mirrors shipments and timeline events from an external
// transportation management system.
package tms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"logi-track/internal/config"
)

var ErrNotConfigured = errors.New("TMS API is not configured")

// Shipment as returned by the TMS API.
type Shipment struct {
	ID                string          `json:"id"`
	TrackingNumber    string          `json:"trackingNumber"`
	Origin            string          `json:"origin"`
	Destination       string          `json:"destination"`
	Status            string          `json:"status"`
	EstimatedDelivery string          `json:"estimatedDelivery,omitempty"`
	ActualDelivery    string          `json:"actualDelivery,omitempty"`
	ClientEmail       string          `json:"clientEmail,omitempty"`
	ClientID          string          `json:"clientId,omitempty"`
	UpdatedAt         string          `json:"updatedAt,omitempty"`
	Timeline          []TimelineEvent `json:"timeline,omitempty"` // webhook payloads only
}

type TimelineEvent struct {
	ShipmentID string `json:"shipmentId,omitempty"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Location   string `json:"location,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Filter narrows a shipment listing. Empty fields are not sent.
type Filter struct {
	ClientID     string `json:"clientId,omitempty"`
	Status       string `json:"status,omitempty"`
	UpdatedSince string `json:"updatedSince,omitempty"`
}

// TimelineSource provides remote timeline events for a tracking number.
type TimelineSource interface {
	GetTimelineEvents(ctx context.Context, trackingNumber string) ([]TimelineEvent, error)
}

// APIError is a non-2xx answer from the TMS API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMS API error: %d - %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns ErrNotConfigured unless both URL and API key are set.
func NewClient(cfg config.TMSConfig) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.With("component", "tms-client"),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("TMS request", "url", u)
	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under key.
func decodeList[T any](r io.Reader, key string) ([]T, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []T
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	list := []T{}
	if inner, ok := wrapped[key]; ok && string(inner) != "null" {
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (c *Client) GetShipments(ctx context.Context, filter Filter) ([]Shipment, error) {
	query := url.Values{}
	if filter.ClientID != "" {
		query.Set("client_id", filter.ClientID)
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.UpdatedSince != "" {
		query.Set("updated_since", filter.UpdatedSince)
	}

	resp, err := c.get(ctx, "/shipments", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return decodeList[Shipment](resp.Body, "shipments")
}

// GetShipment returns nil without error when the TMS does not know the
// tracking number.
func (c *Client) GetShipment(ctx context.Context, trackingNumber string) (*Shipment, error) {
	resp, err := c.get(ctx, "/shipments/"+url.PathEscape(trackingNumber), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var s Shipment
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetTimelineEvents(ctx context.Context, trackingNumber string) ([]TimelineEvent, error) {
	resp, err := c.get(ctx, "/shipments/"+url.PathEscape(trackingNumber)+"/timeline", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return decodeList[TimelineEvent](resp.Body, "events")
}
