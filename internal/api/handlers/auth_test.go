package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/handlers"
	"github.com/calderasec/lurelab/internal/auth"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/testutil"
)

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	authService := auth.NewService(tc.DB, tc.JWTService)
	handler := handlers.NewAuthHandler(authService)

	r := chi.NewRouter()
	r.Post("/api/v1/auth/register", handler.Register)
	r.Post("/api/v1/auth/login", handler.Login)

	return r, tc
}

func TestAuthHandler_Register(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	body := map[string]interface{}{
		"email":    "owner@clinic.example.com",
		"password": "correct-horse-battery",
		"name":     "Dana Osei",
		"org_name": "Riverside Clinic",
		"org_type": "CLINIC",
	}

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/register", body, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "owner@clinic.example.com", resp.User.Email)
	assert.Equal(t, string(models.RoleOwner), resp.Role)
	assert.Equal(t, string(models.TierFreeTrial), resp.Organization.SubscriptionTier)

	// The OWNER membership exists
	var membership models.Membership
	require.NoError(t, tc.DB.Where("role = ?", models.RoleOwner).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("users.email = ?", "owner@clinic.example.com").
		First(&membership).Error)

	// Registering the same email again conflicts
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/register", body, ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing email", map[string]interface{}{"password": "longenough", "name": "A", "org_name": "B"}},
		{"bad email", map[string]interface{}{"email": "nope", "password": "longenough", "name": "A", "org_name": "B"}},
		{"short password", map[string]interface{}{"email": "a@b.co", "password": "short", "name": "A", "org_name": "B"}},
		{"missing org", map[string]interface{}{"email": "a@b.co", "password": "longenough", "name": "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/register", tt.body, "")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	// tc.User was created with the testutil password
	body := map[string]interface{}{
		"email":    tc.User.Email,
		"password": "testpassword123",
	}
	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/login", body, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, tc.Org.ID.String(), resp.Organization.ID)

	// Wrong password
	body["password"] = "wrong"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/login", body, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown user gets the same response as a bad password
	body = map[string]interface{}{"email": "ghost@example.com", "password": "whatever1"}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/auth/login", body, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
