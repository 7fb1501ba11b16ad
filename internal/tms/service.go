package tms

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"logi-track/internal/config"
	"logi-track/internal/storage"
)

var (
	ErrWebhookNotConfigured = errors.New("TMS webhook secret is not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrUnknownEvent         = errors.New("unknown event type")
	ErrShipmentNotFound     = errors.New("shipment not found")
)

const (
	EventShipmentCreated = "shipment.created"
	EventShipmentUpdated = "shipment.updated"
	EventTimelineUpdated = "timeline.updated"
)

// Service ties the TMS client to the reconciler. The client is optional:
// webhooks work without it, pull syncs do not.
type Service struct {
	client        *Client
	reconciler    *Reconciler
	webhookSecret string
	logger        *slog.Logger
}

func NewService(cfg config.TMSConfig, provider storage.Provider) *Service {
	s := &Service{
		reconciler:    NewReconciler(provider, cfg.Concurrency),
		webhookSecret: cfg.WebhookSecret,
		logger:        slog.With("component", "tms"),
	}
	client, err := NewClient(cfg)
	if err != nil {
		s.logger.Info("TMS pull sync disabled", "reason", err)
	} else {
		s.client = client
	}
	return s
}

func (s *Service) Configured() bool {
	return s != nil && s.client != nil
}

// Sync pulls shipments matching filter and reconciles them.
func (s *Service) Sync(ctx context.Context, filter Filter) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	remote, err := s.client.GetShipments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shipments: %w", err)
	}
	s.logger.Info("Fetched TMS shipments", "count", len(remote), "client_id", filter.ClientID, "updated_since", filter.UpdatedSince)

	return s.reconciler.Reconcile(ctx, remote, s.client)
}

// VerifySignature compares the x-tms-signature header with the configured
// secret in constant time.
func (s *Service) VerifySignature(signature string) error {
	if s == nil || s.webhookSecret == "" {
		return ErrWebhookNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(s.webhookSecret)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type timelinePayload struct {
	TrackingNumber string          `json:"trackingNumber"`
	Events         []TimelineEvent `json:"events"`
}

// HandleWebhook applies a pushed event. The fetch step is skipped; any
// timeline comes from the payload.
func (s *Service) HandleWebhook(ctx context.Context, ev *WebhookEvent) (*Result, error) {
	if ev == nil || ev.Event == "" || len(ev.Data) == 0 || string(ev.Data) == "null" {
		return nil, ErrInvalidPayload
	}

	switch ev.Event {
	case EventShipmentCreated, EventShipmentUpdated:
		var remote Shipment
		if err := json.Unmarshal(ev.Data, &remote); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s.applyShipment(ctx, &remote)

	case EventTimelineUpdated:
		var payload timelinePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s.applyTimeline(ctx, &payload)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Event)
	}
}

func (s *Service) applyShipment(ctx context.Context, remote *Shipment) (*Result, error) {
	if strings.TrimSpace(remote.TrackingNumber) == "" || strings.TrimSpace(remote.Origin) == "" || strings.TrimSpace(remote.Destination) == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidPayload)
	}

	owners, err := s.reconciler.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := owners.resolve(remote); !ok {
		return nil, ErrClientNotFound
	}

	created, events, err := s.reconciler.apply(ctx, owners, remote, staticTimeline(remote.Timeline))
	if err != nil {
		return nil, err
	}

	result := &Result{Synced: 1, Events: events}
	if created {
		result.Created = 1
	} else {
		result.Updated = 1
	}
	return result, nil
}

func (s *Service) applyTimeline(ctx context.Context, payload *timelinePayload) (*Result, error) {
	if strings.TrimSpace(payload.TrackingNumber) == "" || payload.Events == nil {
		return nil, fmt.Errorf("%w: invalid timeline data", ErrInvalidPayload)
	}

	trackingNumber := strings.TrimSpace(payload.TrackingNumber)
	shipment, err := s.reconciler.storage.GetShipmentByTrackingNumber(ctx, trackingNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return s.fetchMissing(ctx, trackingNumber, payload.Events)
	} else if err != nil {
		return nil, err
	}

	inserted, err := s.reconciler.MergeTimeline(ctx, shipment.ID, payload.Events)
	if err != nil {
		return nil, err
	}
	return &Result{Synced: 1, Updated: 1, Events: inserted}, nil
}

// fetchMissing imports a shipment whose timeline arrived before the
// shipment itself. Without a TMS client the event is rejected.
func (s *Service) fetchMissing(ctx context.Context, trackingNumber string, events []TimelineEvent) (*Result, error) {
	if !s.Configured() {
		return nil, ErrShipmentNotFound
	}
	remote, err := s.client.GetShipment(ctx, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shipment: %w", err)
	}
	if remote == nil {
		return nil, ErrShipmentNotFound
	}
	if remote.TrackingNumber == "" {
		remote.TrackingNumber = trackingNumber
	}
	remote.Timeline = events

	s.logger.Info("Fetched unknown shipment for timeline event", "tracking_number", trackingNumber)
	return s.applyShipment(ctx, remote)
}
