package storage

import (
	"slices"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var Roles = []string{RoleUser, RoleAdmin}

func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastSignInAt *time.Time `db:"last_sign_in_at" json:"last_sign_in_at"`
}

type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "pending"
	AccessRequestApproved AccessRequestStatus = "approved"
	AccessRequestRejected AccessRequestStatus = "rejected"
)

func (s AccessRequestStatus) Valid() bool {
	switch s {
	case AccessRequestPending, AccessRequestApproved, AccessRequestRejected:
		return true
	}
	return false
}

type AccessRequest struct {
	ID          string              `db:"id" json:"id"`
	Email       string              `db:"email" json:"email"`
	CompanyName string              `db:"company_name" json:"company_name"`
	Message     *string             `db:"message" json:"message"`
	Status      AccessRequestStatus `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

var ShipmentStatuses = []ShipmentStatus{ShipmentPending, ShipmentInTransit, ShipmentDelivered, ShipmentCancelled}

func (s ShipmentStatus) Valid() bool {
	return slices.Contains(ShipmentStatuses, s)
}

// Shipment dates are kept as YYYY-MM-DD strings.
type Shipment struct {
	ID                string         `db:"id" json:"id"`
	ClientID          string         `db:"client_id" json:"client_id"`
	TrackingNumber    string         `db:"tracking_number" json:"tracking_number"`
	Origin            string         `db:"origin" json:"origin"`
	Destination       string         `db:"destination" json:"destination"`
	Status            ShipmentStatus `db:"status" json:"status"`
	EstimatedDelivery *string        `db:"estimated_delivery" json:"estimated_delivery"`
	ActualDelivery    *string        `db:"actual_delivery" json:"actual_delivery"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

type ShipmentFilter struct {
	ClientID string
	Status   ShipmentStatus
	// Case-insensitive substring match
	TrackingNumber string
}

type TimelineEvent struct {
	ID         string    `db:"id" json:"id"`
	ShipmentID string    `db:"shipment_id" json:"shipment_id"`
	Status     string    `db:"status" json:"status"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Location   *string   `db:"location" json:"location"`
	Notes      *string   `db:"notes" json:"notes"`
}

type Document struct {
	ID         string    `db:"id" json:"id"`
	ShipmentID string    `db:"shipment_id" json:"shipment_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	FileURL    string    `db:"file_url" json:"file_url"`
	FileType   string    `db:"file_type" json:"file_type"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	StorageKey string    `db:"storage_key" json:"-"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`

	// Owner of the parent shipment. Filled by reads only.
	ClientID string `db:"client_id" json:"-"`
}

type DocumentFilter struct {
	ShipmentID string
	ClientID   string
}
