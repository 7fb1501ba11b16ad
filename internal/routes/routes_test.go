package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logi-track/internal/access"
	"logi-track/internal/blobstore"
	"logi-track/internal/config"
	"logi-track/internal/email"
	"logi-track/internal/jwt"
	"logi-track/internal/nonce"
	"logi-track/internal/storage"
	"logi-track/internal/tms"
)

const (
	testPassword      = "correct horse battery"
	testWebhookSecret = "webhook-secret"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*email.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	env    *Env
	mailer *fakeMailer
}

func newTestServer(t *testing.T, webhookSecret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	provider, err := storage.NewProvider(ctx, &config.Storage{
		Type:   "sqlite",
		SQLite: config.SQLiteStorage{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	nonces := nonce.NewMemoryStore()
	t.Cleanup(func() { nonces.Close() })

	blobs, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Secret:       "test-secret",
		UserAuthTTL:  8,
		MagicLinkTTL: 24,
		BaseURL:      "http://portal.test",
		Documents:    config.Documents{MaxSize: 1 << 20},
		TMS:          config.TMSConfig{WebhookSecret: webhookSecret, Concurrency: 2},
	}

	mailer := &fakeMailer{}
	env := &Env{
		Config:     cfg,
		Storage:    provider,
		Guard:      access.NewGuard(access.NewDefaultRBAC()),
		Tokens:     jwt.NewIssuer(cfg.Secret, nonces),
		Dispatcher: email.NewDispatcher(mailer),
		Blobs:      blobs,
		TMS:        tms.NewService(cfg.TMS, provider),
	}

	r := gin.New()
	RegisterRoutes(r, env)
	return &testServer{t: t, router: r, env: env, mailer: mailer}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (s *testServer) send(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, cookie)
}

func (s *testServer) multipart(path string, fields map[string]string, fileName string, content []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(s.t, err)
		_, err = part.Write(content)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.send(req, cookie)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), rec.Body.String())
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

func (s *testServer) createUser(address, role string) *storage.User {
	s.t.Helper()
	hash, err := access.HashPassword(testPassword)
	require.NoError(s.t, err)
	u := &storage.User{Email: address, PasswordHash: hash, Role: role}
	require.NoError(s.t, s.env.Storage.CreateUser(context.Background(), u))
	return u
}

func (s *testServer) login(address string) *http.Cookie {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", loginRequest{Email: address, Password: testPassword}, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return authCookie(s.t, rec)
}

func authCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == AUTH_COOKIE_NAME && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", AUTH_COOKIE_NAME)
	return nil
}

func (s *testServer) createShipment(clientID, trackingNumber string) *storage.Shipment {
	s.t.Helper()
	sh := &storage.Shipment{
		ClientID:       clientID,
		TrackingNumber: trackingNumber,
		Origin:         "Helsinki",
		Destination:    "Oulu",
		Status:         storage.ShipmentPending,
	}
	require.NoError(s.t, s.env.Storage.CreateShipment(context.Background(), sh))
	return sh
}

func TestAccessRequestApprovalFlow(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")

	rec := s.do(http.MethodPost, "/access-requests", gin.H{"email": "a@b.com", "company_name": "Acme"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[storage.AccessRequest](t, rec)
	assert.Equal(t, storage.AccessRequestPending, created.Status)
	assert.Equal(t, "a@b.com", created.Email)

	rec = s.do(http.MethodPatch, "/access-requests/"+created.ID, gin.H{"status": "approved"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[storage.AccessRequest](t, rec)
	assert.Equal(t, storage.AccessRequestApproved, approved.Status)

	user, err := s.env.Storage.GetUserByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, storage.RoleUser, user.Role)
	assert.NotEmpty(t, user.PasswordHash)

	require.Len(t, s.mailer.sent, 1)
	msg := s.mailer.sent[0]
	assert.Equal(t, []string{"a@b.com"}, msg.To)
	assert.Contains(t, msg.HTML, "http://portal.test/auth/magic/")

	// Reviewing twice is rejected
	rec = s.do(http.MethodPatch, "/access-requests/"+created.ID, gin.H{"status": "rejected"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, s.mailer.sent, 1)
}

func TestAccessRequestRejectedCannotBeApproved(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")

	rec := s.do(http.MethodPost, "/access-requests", gin.H{"email": "a@b.com", "company_name": "Acme"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[storage.AccessRequest](t, rec)

	rec = s.do(http.MethodPatch, "/access-requests/"+created.ID, gin.H{"status": "rejected"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, storage.AccessRequestRejected, decode[storage.AccessRequest](t, rec).Status)

	rec = s.do(http.MethodPatch, "/access-requests/"+created.ID, gin.H{"status": "approved"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Access request is already rejected", errorMessage(t, rec))

	_, err := s.env.Storage.GetUserByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, s.mailer.sent)
}

func TestAccessRequestEmailFailureRollsBack(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")
	s.mailer.err = errors.New("smtp down")

	rec := s.do(http.MethodPost, "/access-requests", gin.H{"email": "a@b.com", "company_name": "Acme"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[storage.AccessRequest](t, rec)

	rec = s.do(http.MethodPatch, "/access-requests/"+created.ID, gin.H{"status": "approved"}, admin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Failed to send access email", errorMessage(t, rec))

	_, err := s.env.Storage.GetUserByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	req, err := s.env.Storage.GetAccessRequest(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.AccessRequestPending, req.Status)
}

func TestAccessRequestValidation(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/access-requests", gin.H{"email": "a@b.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/access-requests", gin.H{"email": "not-an-email", "company_name": "Acme"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Listing needs a session, reviewing needs admin
	rec = s.do(http.MethodGet, "/access-requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.createUser("client@example.com", storage.RoleUser)
	client := s.login("client@example.com")
	rec = s.do(http.MethodGet, "/access-requests?status=pending", nil, client)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPatch, "/access-requests/whatever", gin.H{"status": "approved"}, client)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("Client@Example.com", storage.RoleUser)

	rec := s.do(http.MethodPost, "/auth/login", loginRequest{Email: "client@example.com", Password: "wrong password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", errorMessage(t, rec))

	cookie := s.login("CLIENT@example.com")
	rec = s.do(http.MethodGet, "/auth/status", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[access.Principal](t, rec)
	assert.Equal(t, storage.RoleUser, p.Role)

	rec = s.do(http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/auth/status", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMagicLinkIsSingleUse(t *testing.T) {
	s := newTestServer(t, "")
	user := s.createUser("client@example.com", storage.RoleUser)

	token, err := s.env.Tokens.NewMagicLink(context.Background(), user.ID, magicLinkTTL(s.env))
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/auth/magic/"+token, nil, nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "http://portal.test/", rec.Header().Get("Location"))
	cookie := authCookie(t, rec)

	rec = s.do(http.MethodGet, "/auth/status", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/auth/magic/"+token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("client@example.com", storage.RoleUser)

	rec := s.do(http.MethodPost, "/auth/forgot-password", emailRequest{Email: "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.mailer.sent)

	rec = s.do(http.MethodPost, "/auth/forgot-password", emailRequest{Email: "client@example.com"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.mailer.sent, 1)
	assert.Contains(t, s.mailer.sent[0].HTML, "/auth/magic/")
}

func TestShipmentOwnership(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.createUser("alice@example.com", storage.RoleUser)
	bob := s.createUser("bob@example.com", storage.RoleUser)
	s.createUser("admin@example.com", storage.RoleAdmin)

	aliceShipment := s.createShipment(alice.ID, "TN-A")
	s.createShipment(bob.ID, "TN-B")

	aliceCookie := s.login("alice@example.com")
	bobCookie := s.login("bob@example.com")
	adminCookie := s.login("admin@example.com")

	// Foreign shipments look missing
	rec := s.do(http.MethodGet, "/shipments/"+aliceShipment.ID, nil, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPatch, "/shipments/"+aliceShipment.ID, gin.H{"status": "delivered"}, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/shipments/"+aliceShipment.ID+"/timeline", nil, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/shipments/"+aliceShipment.ID, nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TN-A", decode[storage.Shipment](t, rec).TrackingNumber)

	rec = s.do(http.MethodGet, "/shipments/"+aliceShipment.ID, nil, adminCookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/shipments", nil, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]storage.Shipment](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "TN-B", list[0].TrackingNumber)

	rec = s.do(http.MethodGet, "/shipments", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.Shipment](t, rec), 2)

	rec = s.do(http.MethodGet, "/shipments/"+aliceShipment.ID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShipmentCreateUpdateAndTimeline(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.createUser("alice@example.com", storage.RoleUser)
	cookie := s.login("alice@example.com")
	s.createShipment(alice.ID, "TN-TAKEN")

	rec := s.do(http.MethodPost, "/shipments", gin.H{"tracking_number": "TN-1", "origin": "Turku"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/shipments", gin.H{
		"client_id":          "someone-else",
		"tracking_number":    "TN-1",
		"origin":             "Turku",
		"destination":        "Tampere",
		"estimated_delivery": "2024-05-01T10:00:00Z",
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[storage.Shipment](t, rec)
	assert.Equal(t, alice.ID, created.ClientID)
	assert.Equal(t, storage.ShipmentPending, created.Status)
	require.NotNil(t, created.EstimatedDelivery)
	assert.Equal(t, "2024-05-01", *created.EstimatedDelivery)

	rec = s.do(http.MethodPatch, "/shipments/"+created.ID, gin.H{"status": "lost"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/shipments/"+created.ID, gin.H{"tracking_number": "TN-TAKEN"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/shipments/"+created.ID, gin.H{"status": "in_transit"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, storage.ShipmentInTransit, decode[storage.Shipment](t, rec).Status)

	rec = s.do(http.MethodPost, "/shipments/"+created.ID+"/timeline", gin.H{"location": "Turku"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/shipments/"+created.ID+"/timeline", gin.H{"status": "Picked up", "location": "Turku"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[storage.TimelineEvent](t, rec)
	assert.False(t, event.Timestamp.IsZero())

	rec = s.do(http.MethodGet, "/shipments/"+created.ID+"/timeline", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]storage.TimelineEvent](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "Picked up", events[0].Status)
}

func TestShipmentQRCode(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.createUser("alice@example.com", storage.RoleUser)
	shipment := s.createShipment(alice.ID, "TN-QR")

	rec := s.do(http.MethodGet, "/shipments/"+shipment.ID+"/qr.png", nil, s.login("alice@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestAdminImportCSV(t *testing.T) {
	s := newTestServer(t, "")
	client := s.createUser("client@example.com", storage.RoleUser)
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")

	csv := "Tracking Number;Origin;Destination;Status;Estimated Delivery\r\n" +
		"TN1;Helsinki;Oulu;In_Transit;2024-03-01\r\n" +
		";Nowhere;Oulu;pending;\r\n" +
		"TN2;\"Turku, FI\";Tampere;bogus;not a date\r\n"

	rec := s.multipart("/admin/shipments/import", map[string]string{"client_id": client.ID}, "shipments.csv", []byte(csv), admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[importResponse](t, rec)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.Rows)

	list, err := s.env.Storage.ListShipments(context.Background(), storage.ShipmentFilter{ClientID: client.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	byTN := map[string]storage.Shipment{}
	for _, sh := range list {
		byTN[sh.TrackingNumber] = sh
	}
	assert.Equal(t, storage.ShipmentInTransit, byTN["TN1"].Status)
	assert.Equal(t, storage.ShipmentPending, byTN["TN2"].Status)
	assert.Equal(t, "Turku, FI", byTN["TN2"].Origin)
	assert.Nil(t, byTN["TN2"].EstimatedDelivery)

	// Nothing importable is a client error
	rec = s.multipart("/admin/shipments/import", map[string]string{"client_id": client.ID}, "empty.csv",
		[]byte("tracking_number,origin,destination\n,,\n"), admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.multipart("/admin/shipments/import", map[string]string{"client_id": "missing"}, "shipments.csv", []byte(csv), admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.multipart("/admin/shipments/import", map[string]string{"client_id": client.ID}, "", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.multipart("/admin/shipments/import", map[string]string{"client_id": client.ID}, "shipments.csv", []byte(csv), s.login("client@example.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUsers(t *testing.T) {
	s := newTestServer(t, "")
	client := s.createUser("client@example.com", storage.RoleUser)
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")
	clientCookie := s.login("client@example.com")

	rec := s.do(http.MethodGet, "/admin/users", nil, clientCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/admin/users", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.User](t, rec), 2)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(http.MethodPatch, "/admin/users/"+client.ID, gin.H{"role": "superuser"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/admin/users/missing", gin.H{"role": "admin"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPatch, "/admin/users/"+client.ID, gin.H{"role": "admin"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.RoleAdmin, decode[storage.User](t, rec).Role)

	// The promoted session is renewed with the new role on its next request
	rec = s.do(http.MethodGet, "/admin/users/"+client.ID, nil, clientCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/auth/status", nil, authCookie(t, rec))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.RoleAdmin, decode[access.Principal](t, rec).Role)
}

func TestDemotedAdminLosesAccess(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("root@example.com", storage.RoleAdmin)
	other := s.createUser("other@example.com", storage.RoleAdmin)
	root := s.login("root@example.com")
	otherCookie := s.login("other@example.com")

	rec := s.do(http.MethodGet, "/admin/users", nil, otherCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPatch, "/admin/users/"+other.ID, gin.H{"role": "user"}, root)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/admin/users", nil, otherCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The old token was replaced by one carrying the new role
	renewed := authCookie(t, rec)
	rec = s.do(http.MethodGet, "/auth/status", nil, renewed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.RoleUser, decode[access.Principal](t, rec).Role)

	rec = s.do(http.MethodGet, "/auth/status", nil, otherCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeletedAccountLosesSession(t *testing.T) {
	s := newTestServer(t, "")
	admin := s.createUser("admin@example.com", storage.RoleAdmin)
	cookie := s.login("admin@example.com")

	require.NoError(t, s.env.Storage.DeleteUser(context.Background(), admin.ID))

	rec := s.do(http.MethodGet, "/admin/users", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/auth/status", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateShipment(t *testing.T) {
	s := newTestServer(t, "")
	client := s.createUser("client@example.com", storage.RoleUser)
	s.createUser("admin@example.com", storage.RoleAdmin)
	admin := s.login("admin@example.com")

	body := gin.H{"client_id": client.ID, "tracking_number": "TN-ADM", "origin": "Oslo", "destination": "Bergen", "status": "delivered"}
	rec := s.do(http.MethodPost, "/admin/shipments", body, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[storage.Shipment](t, rec)
	assert.Equal(t, client.ID, created.ClientID)
	assert.Equal(t, storage.ShipmentDelivered, created.Status)

	rec = s.do(http.MethodPost, "/admin/shipments", body, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/admin/shipments?client_id="+client.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.Shipment](t, rec), 1)
}

func TestDocuments(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.createUser("alice@example.com", storage.RoleUser)
	s.createUser("bob@example.com", storage.RoleUser)
	shipment := s.createShipment(alice.ID, "TN-DOC")
	aliceCookie := s.login("alice@example.com")
	bobCookie := s.login("bob@example.com")

	content := []byte("%PDF-1.4 bill of lading")
	fields := map[string]string{"shipment_id": shipment.ID}

	rec := s.multipart("/documents", fields, "bol.pdf", content, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.multipart("/documents", fields, "bol.pdf", content, aliceCookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[storage.Document](t, rec)
	assert.Equal(t, "bol.pdf", doc.FileName)
	assert.Equal(t, int64(len(content)), doc.FileSize)
	assert.Equal(t, "/documents/"+doc.ID+"/file", doc.FileURL)

	rec = s.do(http.MethodGet, "/documents?shipment_id="+shipment.ID, nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.Document](t, rec), 1)

	rec = s.do(http.MethodGet, "/documents", nil, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]storage.Document](t, rec))

	rec = s.do(http.MethodGet, "/documents/"+doc.ID+"/file", nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"))

	rec = s.do(http.MethodDelete, "/documents/"+doc.ID, nil, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/documents/"+doc.ID, nil, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/documents/"+doc.ID+"/file", nil, aliceCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	large := bytes.Repeat([]byte("x"), int(s.env.Config.Documents.MaxSize)+1)
	rec = s.multipart("/documents", fields, "big.bin", large, aliceCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequiresSecret(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/tms/webhook", strings.NewReader(`{"event":"shipment.created","data":{}}`))
	req.Header.Set(TMS_SIGNATURE_HEADER, "anything")
	rec := s.send(req, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook(t *testing.T) {
	s := newTestServer(t, testWebhookSecret)
	client := s.createUser("client@example.com", storage.RoleUser)

	post := func(signature, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/tms/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(TMS_SIGNATURE_HEADER, signature)
		}
		return s.send(req, nil)
	}

	created := `{"event":"shipment.created","data":{"trackingNumber":"TMS-1","origin":"Espoo","destination":"Vaasa","status":"In Transit","clientEmail":"CLIENT@example.com",
		"timeline":[{"status":"Picked up","timestamp":"2024-01-02T08:00:00Z","location":"Espoo"}]}}`

	rec := post("", created)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = post("wrong", created)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(testWebhookSecret, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[tms.Result](t, rec)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Events)

	shipment, err := s.env.Storage.GetShipmentByTrackingNumber(context.Background(), "TMS-1")
	require.NoError(t, err)
	assert.Equal(t, client.ID, shipment.ClientID)
	assert.Equal(t, storage.ShipmentInTransit, shipment.Status)

	// Replaying the same event changes nothing
	rec = post(testWebhookSecret, created)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[tms.Result](t, rec)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Events)

	rec = post(testWebhookSecret, `{"event":"timeline.updated","data":{"trackingNumber":"TMS-1","events":[{"status":"Delivered","timestamp":"2024-01-03T12:00:00Z"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events, err := s.env.Storage.ListTimeline(context.Background(), shipment.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	rec = post(testWebhookSecret, `{"event":"timeline.updated","data":{"trackingNumber":"UNKNOWN","events":[]}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(testWebhookSecret, `{"event":"shipment.updated","data":{"trackingNumber":"TMS-2","origin":"A","destination":"B","clientEmail":"nobody@example.com"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(testWebhookSecret, `{"event":"shipment.created","data":{"trackingNumber":"TMS-3"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(testWebhookSecret, `{"event":"shipment.deleted","data":{"trackingNumber":"TMS-1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTMSSyncNotConfigured(t *testing.T) {
	s := newTestServer(t, "")
	s.createUser("admin@example.com", storage.RoleAdmin)
	s.createUser("client@example.com", storage.RoleUser)

	rec := s.do(http.MethodPost, "/tms/sync", gin.H{}, s.login("client@example.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/tms/sync", gin.H{"clientId": "x"}, s.login("admin@example.com"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, true, body["email"])
	assert.Equal(t, false, body["tms"])
}
