package tms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"logi-track/internal/storage"
)

var ErrClientNotFound = errors.New("client not found")

// Result of a reconciliation run.
type Result struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Events  int `json:"events"`
}

// owners is a snapshot of known users taken once per run.
type owners struct {
	ids     map[string]struct{}
	byEmail map[string]string
}

func (o *owners) resolve(remote *Shipment) (string, bool) {
	if remote.ClientID != "" {
		_, ok := o.ids[remote.ClientID]
		return remote.ClientID, ok
	}
	if email := strings.ToLower(strings.TrimSpace(remote.ClientEmail)); email != "" {
		id, ok := o.byEmail[email]
		return id, ok
	}
	return "", false
}

// Reconciler merges remote shipments into local storage keyed on
// tracking number.
type Reconciler struct {
	storage     storage.Provider
	concurrency int
	logger      *slog.Logger
}

func NewReconciler(provider storage.Provider, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		storage:     provider,
		concurrency: concurrency,
		logger:      slog.With("component", "reconciler"),
	}
}

func (r *Reconciler) snapshot(ctx context.Context) (*owners, error) {
	users, err := r.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	o := &owners{
		ids:     make(map[string]struct{}, len(users)),
		byEmail: make(map[string]string, len(users)),
	}
	for _, u := range users {
		o.ids[u.ID] = struct{}{}
		o.byEmail[strings.ToLower(u.Email)] = u.ID
	}
	return o, nil
}

// Reconcile upserts every remote shipment and merges its timeline from src.
// A nil src skips timeline merging. Per-record failures are logged and
// counted as skipped; only a failure before the loop is returned.
func (r *Reconciler) Reconcile(ctx context.Context, remote []Shipment, src TimelineSource) (*Result, error) {
	result := &Result{Synced: len(remote)}
	if len(remote) == 0 {
		return result, nil
	}

	owners, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range remote {
		record := &remote[i]
		g.Go(func() error {
			created, events, err := r.apply(gctx, owners, record, src)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Skipped++
			case created:
				result.Created++
			default:
				result.Updated++
			}
			result.Events += events
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	r.logger.Info("Reconciliation finished",
		"synced", result.Synced,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"events", result.Events,
	)
	return result, nil
}

// apply reconciles a single record. It reports whether the shipment was
// created and how many timeline events were inserted.
func (r *Reconciler) apply(ctx context.Context, owners *owners, remote *Shipment, src TimelineSource) (bool, int, error) {
	logger := r.logger.With("tracking_number", remote.TrackingNumber)

	if strings.TrimSpace(remote.TrackingNumber) == "" {
		logger.Warn("Skipping shipment without tracking number")
		return false, 0, errors.New("missing tracking number")
	}

	clientID, ok := owners.resolve(remote)
	if !ok {
		logger.Warn("Skipping shipment: client not found", "client_id", remote.ClientID, "client_email", remote.ClientEmail)
		return false, 0, ErrClientNotFound
	}

	shipment := MapShipment(remote, clientID)
	created, err := r.storage.UpsertShipment(ctx, &shipment)
	if err != nil {
		logger.Error("Failed to upsert shipment", "error", err)
		return false, 0, err
	}

	if src == nil {
		return created, 0, nil
	}

	// A timeline failure leaves the shipment in place; the next run merges
	// the missing events.
	events, err := src.GetTimelineEvents(ctx, remote.TrackingNumber)
	if err != nil {
		logger.Warn("Failed to fetch timeline", "error", err)
		return created, 0, nil
	}
	inserted, err := r.MergeTimeline(ctx, shipment.ID, events)
	if err != nil {
		logger.Warn("Failed to merge timeline", "error", err)
		return created, 0, nil
	}
	return created, inserted, nil
}

// MergeTimeline inserts remote events that do not exist locally yet.
// Events that fail to map are logged and dropped.
func (r *Reconciler) MergeTimeline(ctx context.Context, shipmentID string, remote []TimelineEvent) (int, error) {
	events := make([]storage.TimelineEvent, 0, len(remote))
	for i := range remote {
		ev, err := MapTimelineEvent(&remote[i], shipmentID)
		if err != nil {
			r.logger.Warn("Dropping timeline event", "shipment_id", shipmentID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return r.storage.InsertTimelineEvents(ctx, events)
}

// staticTimeline serves events embedded in a webhook payload.
type staticTimeline []TimelineEvent

func (s staticTimeline) GetTimelineEvents(context.Context, string) ([]TimelineEvent, error) {
	return s, nil
}
