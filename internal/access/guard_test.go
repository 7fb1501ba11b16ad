package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	guard := NewGuard(NewDefaultRBAC())

	client := &Principal{ID: "client-1", Email: "c@example.com", Role: RoleUser}
	other := &Principal{ID: "client-2", Email: "o@example.com", Role: RoleUser}
	admin := &Principal{ID: "admin-1", Email: "a@example.com", Role: RoleAdmin}

	tests := []struct {
		name      string
		principal *Principal
		action    Action
		owner     string
		want      error
	}{
		{"anonymous", nil, ReadShipment, "client-1", ErrUnauthenticated},
		{"empty principal", &Principal{}, ListShipments, "", ErrUnauthenticated},
		{"owner reads", client, ReadShipment, "client-1", nil},
		{"other tenant gets not found", other, ReadShipment, "client-1", ErrNotFound},
		{"other tenant cannot delete document", other, DeleteDocument, "client-1", ErrNotFound},
		{"admin reads any", admin, ReadShipment, "client-1", nil},
		{"client lists own", client, ListShipments, "", nil},
		{"client cannot import", client, ImportShipments, "", ErrForbidden},
		{"client cannot list users", client, ListUsers, "", ErrForbidden},
		{"client cannot review requests", client, ReviewAccessRequests, "", ErrForbidden},
		{"client cannot sync", client, SyncTMS, "", ErrForbidden},
		{"client can list requests", client, ListAccessRequests, "", nil},
		{"admin syncs", admin, SyncTMS, "", nil},
		{"unknown role", &Principal{ID: "x", Role: "ghost"}, ListShipments, "", ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Authorize(tt.principal, tt.action, tt.owner)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	p := &Principal{ID: "u1", Role: RoleUser}

	assert.False(t, IsAuthenticated(nil))
	assert.True(t, IsAuthenticated(p))
	assert.False(t, IsAdmin(p))
	assert.True(t, IsAdmin(&Principal{ID: "a", Role: RoleAdmin}))
	assert.True(t, OwnsResource(p, "u1"))
	assert.False(t, OwnsResource(p, "u2"))
	assert.False(t, OwnsResource(p, ""))
}
