package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arnavshah/volunteer-portal-go/pkg/auth"
	"github.com/arnavshah/volunteer-portal-go/pkg/config"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/proofs"
	"github.com/arnavshah/volunteer-portal-go/pkg/testutil"
)

func init() {
	auth.PasswordCost = bcrypt.MinCost
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxUploadMB: 1},
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret",
			TokenTTL:           time.Hour,
			VerificationSecret: "verify-secret",
			AdminName:          "Administrator",
			AdminUsername:      "admin",
			AdminEmail:         "admin@volunteer.local",
			AdminPassword:      "admin123",
		},
		Storage: config.StorageConfig{Driver: "local", Dir: t.TempDir()},
		App:     config.AppConfig{Environment: "test", EnforceCapacity: true, BaseURL: "http://portal.test"},
	}
}

type client struct {
	t      *testing.T
	router *gin.Engine
}

func (c *client) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c *client) upload(path, token, filename string, data []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(c.t, err)
	_, err = fw.Write(data)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func newTestApp(t *testing.T) (*App, *client) {
	t.Helper()
	a, err := NewWithDB(context.Background(), testConfig(t), testutil.NewDB(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, &client{t: t, router: a.Router()}
}

func TestNewWithDB_SeedsCoordinatorOnce(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testConfig(t)

	for i := 0; i < 2; i++ {
		a, err := NewWithDB(context.Background(), cfg, db, zap.NewNop())
		require.NoError(t, err)
		a.Close()
	}

	var count int64
	require.NoError(t, db.Model(&database.Coordinator{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNewWithDB_QueueIssuesCertificates(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testConfig(t)
	cfg.App.CertWorkers = 2

	a, err := NewWithDB(context.Background(), cfg, db, zap.NewNop())
	require.NoError(t, err)

	coord := testutil.CreateCoordinator(t, db, "Cole")
	vol := testutil.CreateVolunteer(t, db, "Ana")
	event := testutil.CreateEvent(t, db, coord.ID, "Beach Cleanup", 40)
	testutil.Register(t, db, vol.ID, event.ID)

	ctx := context.Background()
	require.NotNil(t, a.queue)
	proof, err := a.Proofs.Submit(ctx, vol.ID, event.ID, proofs.Evidence{Data: []byte("jpeg"), Filename: "photo.jpg"})
	require.NoError(t, err)
	_, err = a.Proofs.Approve(ctx, proof.ID, coord.ID)
	require.NoError(t, err)

	// Close drains pending jobs
	a.Close()

	cert, err := a.Certificates.ForProof(ctx, proof.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cert.CertificateID, "CERT-"))
}

func TestRouter_ProofLifecycle(t *testing.T) {
	_, c := newTestApp(t)

	w := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	coordToken := decode[map[string]any](t, w)["token"].(string)

	w = c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ana Ruiz", "username": "ana", "email": "ana@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	signup := decode[map[string]any](t, w)
	assert.Equal(t, "VOLUNTEER", signup["role"])
	volToken := signup["token"].(string)

	w = c.do(http.MethodPost, "/api/admin/events", coordToken, map[string]any{
		"title":          "Tree Planting",
		"description":    "Plant saplings in the park",
		"event_date":     time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"points":         50,
		"max_volunteers": 5,
		"category":       "Community Service",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	eventID := uint(decode[map[string]any](t, w)["id"].(float64))

	w = c.do(http.MethodPost, fmt.Sprintf("/api/events/register/%d", eventID), volToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do(http.MethodPost, fmt.Sprintf("/api/events/register/%d", eventID), volToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.upload(fmt.Sprintf("/api/proof/upload/%d", eventID), volToken, "photo.jpg", []byte("jpeg bytes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	proof := decode[map[string]any](t, w)
	assert.Equal(t, "PENDING", proof["status"])
	proofID := uint(proof["id"].(float64))

	w = c.do(http.MethodPut, fmt.Sprintf("/api/admin/proofs/%d/reject", proofID), coordToken, map[string]string{"reason": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPut, fmt.Sprintf("/api/admin/proofs/%d/approve", proofID), coordToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", decode[map[string]any](t, w)["status"])

	w = c.do(http.MethodPut, fmt.Sprintf("/api/admin/proofs/%d/approve", proofID), coordToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[[]map[string]any](t, w)
	require.Len(t, board, 1)
	assert.Equal(t, float64(1), board[0]["position"])
	assert.Equal(t, float64(50), board[0]["points"])

	w = c.do(http.MethodGet, "/api/user/dashboard", volToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), stats["completed_events"])
	assert.Equal(t, float64(50), stats["total_points"])

	w = c.do(http.MethodGet, "/api/proof/user", volToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]map[string]any](t, w)
	require.Len(t, mine, 1)
	certID, _ := mine[0]["certificate_id"].(string)
	require.NotEmpty(t, certID)

	download := "/api/certificates/download/" + certID
	w = c.do(http.MethodGet, download, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodGet, download, volToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), certID+".pdf")
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = c.do(http.MethodGet, download, coordToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ben Okafor", "username": "ben", "email": "ben@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = c.do(http.MethodGet, download, decode[map[string]any](t, w)["token"].(string), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodGet, "/api/certificates/verify/NOT-A-CODE", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())

	w = c.do(http.MethodDelete, fmt.Sprintf("/api/events/unregister/%d", eventID), volToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodDelete, fmt.Sprintf("/api/admin/events/%d", eventID), coordToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_AccessControl(t *testing.T) {
	_, c := newTestApp(t)

	w := c.do(http.MethodGet, "/api/proof/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodGet, "/api/proof/user", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ana", "username": "ana", "email": "ana@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	volToken := decode[map[string]any](t, w)["token"].(string)

	w = c.do(http.MethodGet, "/api/admin/proofs", volToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPost, "/api/leaderboard/recalculate", volToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodPost, "/api/events/register/abc", volToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/events/register/999", volToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UploadRequiresRegistration(t *testing.T) {
	a, c := newTestApp(t)

	coord := testutil.CreateCoordinator(t, a.DB, "Cole")
	event := testutil.CreateEvent(t, a.DB, coord.ID, "Food Drive", 20)

	w := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ben", "username": "ben", "email": "ben@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	volToken := decode[map[string]any](t, w)["token"].(string)

	w = c.upload(fmt.Sprintf("/api/proof/upload/%d", event.ID), volToken, "photo.jpg", []byte("jpeg"))
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = c.upload(fmt.Sprintf("/api/proof/upload/%d", event.ID), volToken, "big.jpg", bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_PublicCatalog(t *testing.T) {
	a, c := newTestApp(t)

	coord := testutil.CreateCoordinator(t, a.DB, "Cole")
	testutil.CreateEvent(t, a.DB, coord.ID, "Food Drive", 20)

	w := c.do(http.MethodGet, "/api/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = c.do(http.MethodGet, "/api/events/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[[]string](t, w), "Community Service")

	w = c.do(http.MethodGet, "/api/events/category/Community%20Service", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = c.do(http.MethodGet, "/api/events/12345", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
