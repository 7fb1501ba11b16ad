package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"logi-track/internal/config"
)

// SQLProvider implements Provider over sqlx. Queries are written with ?
// placeholders and rebound for the driver.
type SQLProvider struct {
	db     *sqlx.DB
	driver string

	config *config.Storage

	// Driver specific unique constraint detection
	isUniqueViolation func(error) bool

	logger *slog.Logger
}

func NewSQLProvider(cfg *config.Storage, driverName string, dataSource string) (*SQLProvider, error) {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}

	return &SQLProvider{
		db:                db,
		driver:            driverName,
		config:            cfg,
		isUniqueViolation: func(error) bool { return false },
		logger:            slog.With("component", "storage", "driver", driverName),
	}, nil
}

func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *SQLProvider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *SQLProvider) GetSchemaVersion(ctx context.Context) (int, error) {
	return NewMigrationRunner(p.db, p.driver).CurrentVersion(ctx)
}

func (p *SQLProvider) Migrate(ctx context.Context, target int) error {
	return NewMigrationRunner(p.db, p.driver).Run(ctx, target)
}

func (p *SQLProvider) q(query string) string {
	return p.db.Rebind(query)
}

// translate maps driver errors onto storage errors.
func (p *SQLProvider) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case p.isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

func newID() string {
	return uuid.NewString()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = "id, email, password_hash, role, created_at, last_sign_in_at"

func (p *SQLProvider) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	user.Email = strings.TrimSpace(user.Email)

	_, err := p.db.ExecContext(ctx, p.q(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.LastSignInAt)
	return p.translate(err)
}

func (p *SQLProvider) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := p.db.GetContext(ctx, &user, p.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, p.translate(err)
	}
	return &user, nil
}

func (p *SQLProvider) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := p.db.GetContext(ctx, &user, p.q(`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`), strings.TrimSpace(email))
	if err != nil {
		return nil, p.translate(err)
	}
	return &user, nil
}

func (p *SQLProvider) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := p.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	return users, p.translate(err)
}

func (p *SQLProvider) UpdateUserRole(ctx context.Context, id string, role string) error {
	return p.execOne(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
}

func (p *SQLProvider) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	return p.execOne(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

func (p *SQLProvider) TouchUserSignIn(ctx context.Context, id string, at time.Time) error {
	return p.execOne(ctx, `UPDATE users SET last_sign_in_at = ? WHERE id = ?`, at.UTC(), id)
}

func (p *SQLProvider) DeleteUser(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM users WHERE id = ?`, id)
}

// execOne runs a statement that must affect exactly one row.
func (p *SQLProvider) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, p.q(query), args...)
	if err != nil {
		return p.translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Access requests
// ---------------------------------------------------------------------------

const accessRequestColumns = "id, email, company_name, message, status, created_at, updated_at"

func (p *SQLProvider) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	if req.ID == "" {
		req.ID = newID()
	}
	req.Status = AccessRequestPending
	req.CreatedAt = now()
	req.UpdatedAt = req.CreatedAt

	_, err := p.db.ExecContext(ctx, p.q(`INSERT INTO access_requests (`+accessRequestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		req.ID, req.Email, req.CompanyName, req.Message, req.Status, req.CreatedAt, req.UpdatedAt)
	return p.translate(err)
}

func (p *SQLProvider) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	var req AccessRequest
	err := p.db.GetContext(ctx, &req, p.q(`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = ?`), id)
	if err != nil {
		return nil, p.translate(err)
	}
	return &req, nil
}

func (p *SQLProvider) ListAccessRequests(ctx context.Context, status AccessRequestStatus) ([]AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	reqs := []AccessRequest{}
	err := p.db.SelectContext(ctx, &reqs, p.q(query), args...)
	return reqs, p.translate(err)
}

func (p *SQLProvider) TransitionAccessRequest(ctx context.Context, id string, status AccessRequestStatus) (*AccessRequest, error) {
	if status == AccessRequestPending || !status.Valid() {
		return nil, ErrInvalidTransition
	}

	// The status guard in WHERE makes the transition a compare-and-set.
	res, err := p.db.ExecContext(ctx, p.q(`UPDATE access_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		status, now(), id, AccessRequestPending)
	if err != nil {
		return nil, p.translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	req, err := p.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrInvalidTransition
	}
	return req, nil
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

const shipmentColumns = "id, client_id, tracking_number, origin, destination, status, estimated_delivery, actual_delivery, created_at, updated_at"

func prepareShipment(s *Shipment) {
	if s.ID == "" {
		s.ID = newID()
	}
	if s.Status == "" {
		s.Status = ShipmentPending
	}
	ts := now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = ts
	}
	s.UpdatedAt = ts
}

func shipmentArgs(s *Shipment) []any {
	return []any{s.ID, s.ClientID, s.TrackingNumber, s.Origin, s.Destination, s.Status,
		s.EstimatedDelivery, s.ActualDelivery, s.CreatedAt, s.UpdatedAt}
}

const insertShipment = `INSERT INTO shipments (` + shipmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (p *SQLProvider) CreateShipment(ctx context.Context, shipment *Shipment) error {
	prepareShipment(shipment)
	_, err := p.db.ExecContext(ctx, p.q(insertShipment), shipmentArgs(shipment)...)
	return p.translate(err)
}

// CreateShipments inserts all shipments in a single transaction.
func (p *SQLProvider) CreateShipments(ctx context.Context, shipments []Shipment) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertShipment))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range shipments {
		prepareShipment(&shipments[i])
		if _, err := stmt.ExecContext(ctx, shipmentArgs(&shipments[i])...); err != nil {
			return fmt.Errorf("shipment %q: %w", shipments[i].TrackingNumber, p.translate(err))
		}
	}
	return tx.Commit()
}

func (p *SQLProvider) GetShipment(ctx context.Context, id string) (*Shipment, error) {
	var s Shipment
	err := p.db.GetContext(ctx, &s, p.q(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`), id)
	if err != nil {
		return nil, p.translate(err)
	}
	return &s, nil
}

func (p *SQLProvider) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipment, error) {
	var s Shipment
	err := p.db.GetContext(ctx, &s, p.q(`SELECT `+shipmentColumns+` FROM shipments WHERE tracking_number = ?`), trackingNumber)
	if err != nil {
		return nil, p.translate(err)
	}
	return &s, nil
}

func (p *SQLProvider) ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error) {
	var where []string
	var args []any
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.TrackingNumber != "" {
		where = append(where, "lower(tracking_number) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.TrackingNumber)+"%")
	}

	query := `SELECT ` + shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	shipments := []Shipment{}
	err := p.db.SelectContext(ctx, &shipments, p.q(query), args...)
	return shipments, p.translate(err)
}

func (p *SQLProvider) UpdateShipment(ctx context.Context, s *Shipment) error {
	s.UpdatedAt = now()
	return p.execOne(ctx, `UPDATE shipments SET client_id = ?, tracking_number = ?, origin = ?, destination = ?, status = ?,
		estimated_delivery = ?, actual_delivery = ?, updated_at = ? WHERE id = ?`,
		s.ClientID, s.TrackingNumber, s.Origin, s.Destination, s.Status, s.EstimatedDelivery, s.ActualDelivery, s.UpdatedAt, s.ID)
}

func (p *SQLProvider) UpsertShipment(ctx context.Context, s *Shipment) (bool, error) {
	prepareShipment(s)

	var id string
	err := p.db.QueryRowxContext(ctx, p.q(insertShipment+` ON CONFLICT (tracking_number) DO NOTHING RETURNING id`), shipmentArgs(s)...).Scan(&id)
	if err == nil {
		s.ID = id
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, p.translate(err)
	}

	// Row exists: update mapped fields in place.
	err = p.db.QueryRowxContext(ctx, p.q(`UPDATE shipments SET client_id = ?, origin = ?, destination = ?, status = ?,
		estimated_delivery = ?, actual_delivery = ?, updated_at = ? WHERE tracking_number = ? RETURNING id`),
		s.ClientID, s.Origin, s.Destination, s.Status, s.EstimatedDelivery, s.ActualDelivery, s.UpdatedAt, s.TrackingNumber,
	).Scan(&s.ID)
	if err != nil {
		return false, p.translate(err)
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Timeline
// ---------------------------------------------------------------------------

const timelineColumns = "id, shipment_id, status, timestamp, location, notes"

func (p *SQLProvider) ListTimeline(ctx context.Context, shipmentID string) ([]TimelineEvent, error) {
	events := []TimelineEvent{}
	err := p.db.SelectContext(ctx, &events, p.q(`SELECT `+timelineColumns+` FROM shipment_timeline WHERE shipment_id = ? ORDER BY timestamp ASC`), shipmentID)
	return events, p.translate(err)
}

func prepareEvent(e *TimelineEvent) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}
	e.Timestamp = e.Timestamp.UTC()
}

func (p *SQLProvider) CreateTimelineEvent(ctx context.Context, e *TimelineEvent) error {
	prepareEvent(e)
	_, err := p.db.ExecContext(ctx, p.q(`INSERT INTO shipment_timeline (`+timelineColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.ShipmentID, e.Status, e.Timestamp, e.Location, e.Notes)
	return p.translate(err)
}

func (p *SQLProvider) InsertTimelineEvents(ctx context.Context, events []TimelineEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO shipment_timeline (`+timelineColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (shipment_id, status, timestamp) DO NOTHING`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for i := range events {
		e := &events[i]
		prepareEvent(e)
		res, err := stmt.ExecContext(ctx, e.ID, e.ShipmentID, e.Status, e.Timestamp, e.Location, e.Notes)
		if err != nil {
			return 0, p.translate(err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

const documentColumns = "d.id, d.shipment_id, d.file_name, d.file_url, d.file_type, d.file_size, d.storage_key, d.uploaded_at, s.client_id"

func (p *SQLProvider) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now()
	}
	_, err := p.db.ExecContext(ctx, p.q(`INSERT INTO documents (id, shipment_id, file_name, file_url, file_type, file_size, storage_key, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.ShipmentID, doc.FileName, doc.FileURL, doc.FileType, doc.FileSize, doc.StorageKey, doc.UploadedAt)
	return p.translate(err)
}

func (p *SQLProvider) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := p.db.GetContext(ctx, &doc, p.q(`SELECT `+documentColumns+` FROM documents d
		JOIN shipments s ON s.id = d.shipment_id WHERE d.id = ?`), id)
	if err != nil {
		return nil, p.translate(err)
	}
	return &doc, nil
}

func (p *SQLProvider) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var where []string
	var args []any
	if filter.ShipmentID != "" {
		where = append(where, "d.shipment_id = ?")
		args = append(args, filter.ShipmentID)
	}
	if filter.ClientID != "" {
		where = append(where, "s.client_id = ?")
		args = append(args, filter.ClientID)
	}

	query := `SELECT ` + documentColumns + ` FROM documents d JOIN shipments s ON s.id = d.shipment_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.uploaded_at DESC`

	docs := []Document{}
	err := p.db.SelectContext(ctx, &docs, p.q(query), args...)
	return docs, p.translate(err)
}

func (p *SQLProvider) DeleteDocument(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM documents WHERE id = ?`, id)
}

// ---------------------------------------------------------------------------
// Nonces
// ---------------------------------------------------------------------------

func (p *SQLProvider) CreateNonce(ctx context.Context, nonce string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, p.q(`INSERT INTO nonces (nonce, expires_at) VALUES (?, ?)`), nonce, expiresAt.UTC())
	return p.translate(err)
}

func (p *SQLProvider) ExistsNonce(ctx context.Context, nonce string) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count, p.q(`SELECT COUNT(*) FROM nonces WHERE nonce = ? AND expires_at > ?`), nonce, now())
	if err != nil {
		return false, p.translate(err)
	}
	return count > 0, nil
}

func (p *SQLProvider) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	res, err := p.db.ExecContext(ctx, p.q(`DELETE FROM nonces WHERE nonce = ? AND expires_at > ?`), nonce, now())
	if err != nil {
		return false, p.translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *SQLProvider) ExpireNonces(ctx context.Context, at time.Time) error {
	res, err := p.db.ExecContext(ctx, p.q(`DELETE FROM nonces WHERE expires_at <= ?`), at.UTC())
	if err != nil {
		return p.translate(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		p.logger.Debug("Expired nonces", "count", n)
	}
	return nil
}
