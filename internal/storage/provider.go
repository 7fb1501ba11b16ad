package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"logi-track/internal/config"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)

type Provider interface {
	Close() error
	Ping(ctx context.Context) error
	GetSchemaVersion(ctx context.Context) (int, error)
	Migrate(ctx context.Context, target int) error

	// User methods. Email lookups are case-insensitive.
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserRole(ctx context.Context, id string, role string) error
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	TouchUserSignIn(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	// Access request methods
	CreateAccessRequest(ctx context.Context, req *AccessRequest) error
	GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error)
	ListAccessRequests(ctx context.Context, status AccessRequestStatus) ([]AccessRequest, error)
	// TransitionAccessRequest moves a pending request to status. Any other
	// transition returns ErrInvalidTransition.
	TransitionAccessRequest(ctx context.Context, id string, status AccessRequestStatus) (*AccessRequest, error)

	// Shipment methods
	CreateShipment(ctx context.Context, shipment *Shipment) error
	CreateShipments(ctx context.Context, shipments []Shipment) error
	GetShipment(ctx context.Context, id string) (*Shipment, error)
	GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipment, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
	UpdateShipment(ctx context.Context, shipment *Shipment) error
	// UpsertShipment inserts or updates by tracking number. It reports
	// whether a new row was created and fills in the id.
	UpsertShipment(ctx context.Context, shipment *Shipment) (bool, error)

	// Timeline methods
	ListTimeline(ctx context.Context, shipmentID string) ([]TimelineEvent, error)
	CreateTimelineEvent(ctx context.Context, event *TimelineEvent) error
	// InsertTimelineEvents skips events whose (shipment, status, timestamp)
	// already exists and returns the number inserted.
	InsertTimelineEvents(ctx context.Context, events []TimelineEvent) (int, error)

	// Document methods
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Nonce-related methods
	CreateNonce(ctx context.Context, nonce string, expiresAt time.Time) error
	ExistsNonce(ctx context.Context, nonce string) (bool, error)
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
	ExpireNonces(ctx context.Context, now time.Time) error
}

// NewProvider opens the configured database and migrates it to the latest schema.
func NewProvider(ctx context.Context, cfg *config.Storage) (Provider, error) {
	var provider Provider
	var err error

	switch cfg.Type {
	case "", "sqlite", "sqlite3":
		provider, err = NewSQLiteProvider(cfg)
	case "postgres", "postgresql":
		provider, err = NewPostgresProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := provider.Migrate(ctx, -1); err != nil {
		provider.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, err
	}
	return provider, nil
}
