package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/handlers"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/testutil"
)

func setupEmployeeTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	handler := handlers.NewEmployeeHandler(tc.DB, access.NewChecker(tc.DB))

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Route("/api/v1/employees", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Post("/import", handler.Import)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})

	return r, tc
}

func TestEmployeeHandler_Create(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	body := map[string]interface{}{
		"first_name": "Jordan",
		"last_name":  "Lee",
		"email":      "Jordan.Lee@clinic.example.com",
		"position":   "Nurse",
	}
	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/employees", body, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var employee models.Employee
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &employee))
	assert.Equal(t, "jordan.lee@clinic.example.com", employee.Email)

	// Same email again conflicts
	req = testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/employees", body, tc.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEmployeeHandler_MemberCannotCreate(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	member, membership := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	token := testutil.GenerateTestToken(t, tc.JWTService, member, membership)

	body := map[string]interface{}{
		"first_name": "Jordan", "last_name": "Lee", "email": "jl@clinic.example.com",
	}
	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/employees", body, token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// But listing the roster is allowed for any active member
	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/employees", nil, token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmployeeHandler_Import(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	existing := testutil.CreateTestEmployee(t, tc.DB, tc.Org)

	csvBody := strings.Join([]string{
		"first_name,last_name,email,position",
		"Sam,Okafor,sam.okafor@clinic.example.com,Physician",
		"Dana,Wu,dana.wu@clinic.example.com,Admin",
		"," + "Nolast," + "bad-email,Role",
		"Dup,Licate," + existing.Email + ",Tech",
	}, "\n")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/employees/import", strings.NewReader(csvBody))
	req.Header.Set("Authorization", "Bearer "+tc.Token)
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result handlers.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "line 4")

	var count int64
	tc.DB.Model(&models.Employee{}).Where("organization_id = ?", tc.Org.ID).Count(&count)
	assert.EqualValues(t, 3, count)
}

func TestEmployeeHandler_ListPagination(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	for i := 0; i < 5; i++ {
		testutil.CreateTestEmployee(t, tc.DB, tc.Org)
	}

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/employees?page=2&per_page=3", nil, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data       []models.Employee `json:"data"`
		Total      int64             `json:"total"`
		TotalPages int               `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestEmployeeHandler_Import_MissingColumn(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/employees/import",
		strings.NewReader("first_name,last_name\nSam,Okafor"))
	req.Header.Set("Authorization", "Bearer "+tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmployeeHandler_Delete(t *testing.T) {
	router, tc := setupEmployeeTestRouter(t)
	defer tc.Cleanup()

	employee := testutil.CreateTestEmployee(t, tc.DB, tc.Org)

	req := testutil.AuthenticatedRequest(t, http.MethodDelete,
		"/api/v1/employees/"+employee.ID.String(), nil, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Gone on the second attempt
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutil.AuthenticatedRequest(t, http.MethodDelete,
		"/api/v1/employees/"+employee.ID.String(), nil, tc.Token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
