package access

import (
	"errors"
	"log/slog"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	// Ownership mismatches look like missing resources to the caller.
	ErrNotFound = errors.New("not found")
)

// Principal is the authenticated identity making a request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Action names an RBAC resource:verb pair. Owned actions also require the
// principal to own the addressed resource unless it is an admin.
type Action struct {
	Resource string
	Verb     string
	Owned    bool
}

func (a Action) String() string {
	return a.Resource + ":" + a.Verb
}

var (
	ReadShipment   = Action{Resource: "shipments", Verb: "read", Owned: true}
	ListShipments  = Action{Resource: "shipments", Verb: "read"}
	CreateShipment = Action{Resource: "shipments", Verb: "create"}
	UpdateShipment = Action{Resource: "shipments", Verb: "update", Owned: true}
	// Admin surface
	ManageShipments = Action{Resource: "shipments", Verb: "manage"}
	ImportShipments = Action{Resource: "shipments", Verb: "import"}

	ReadTimeline   = Action{Resource: "timeline", Verb: "read", Owned: true}
	CreateTimeline = Action{Resource: "timeline", Verb: "create", Owned: true}

	ReadDocument   = Action{Resource: "documents", Verb: "read", Owned: true}
	ListDocuments  = Action{Resource: "documents", Verb: "read"}
	CreateDocument = Action{Resource: "documents", Verb: "create", Owned: true}
	DeleteDocument = Action{Resource: "documents", Verb: "delete", Owned: true}

	ListAccessRequests   = Action{Resource: "access_requests", Verb: "read"}
	ReviewAccessRequests = Action{Resource: "access_requests", Verb: "review"}

	ListUsers  = Action{Resource: "users", Verb: "read"}
	UpdateUser = Action{Resource: "users", Verb: "update"}

	SyncTMS = Action{Resource: "tms", Verb: "sync"}
)

func IsAuthenticated(p *Principal) bool {
	return p != nil && p.ID != ""
}

func IsAdmin(p *Principal) bool {
	return IsAuthenticated(p) && p.Role == RoleAdmin
}

func OwnsResource(p *Principal, ownerID string) bool {
	return IsAuthenticated(p) && ownerID != "" && p.ID == ownerID
}

// Guard decides per request whether a principal may perform an action.
type Guard struct {
	rbac *RBAC
}

func NewGuard(rbac *RBAC) *Guard {
	return &Guard{rbac: rbac}
}

// Authorize returns nil when p may perform action on a resource owned by
// owner, otherwise ErrUnauthenticated, ErrForbidden or ErrNotFound.
// owner is ignored for actions that are not Owned.
func (g *Guard) Authorize(p *Principal, action Action, owner string) error {
	if !IsAuthenticated(p) {
		return ErrUnauthenticated
	}

	if !g.rbac.Can(p.Role, action.Resource, action.Verb) {
		slog.Debug("Permission denied", "userID", p.ID, "role", p.Role, "action", action.String())
		return ErrForbidden
	}

	if action.Owned && !IsAdmin(p) && !OwnsResource(p, owner) {
		return ErrNotFound
	}

	return nil
}
