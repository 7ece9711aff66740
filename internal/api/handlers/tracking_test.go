package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderasec/lurelab/internal/api/handlers"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/testutil"
	"github.com/calderasec/lurelab/internal/tracking"
	"github.com/calderasec/lurelab/internal/web"
)

func setupTrackingTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup, *models.Target) {
	tc := testutil.NewTestContext(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	templates, err := web.LoadTemplates()
	require.NoError(t, err)

	campaign := testutil.CreateTestCampaign(t, tc.DB, tc.Org, tc.User, nil)
	employee := testutil.CreateTestEmployee(t, tc.DB, tc.Org)
	target := testutil.CreateTestTarget(t, tc.DB, campaign, employee)
	require.NoError(t, tc.DB.Model(target).Updates(map[string]interface{}{
		"sent_at": time.Now(),
		"status":  models.TargetStatusSent,
	}).Error)

	handler := handlers.NewTrackingHandler(tracking.NewService(tc.DB, logger), templates, logger)

	r := chi.NewRouter()
	r.Route("/t/{token}", func(r chi.Router) {
		r.Get("/", handler.Click)
		r.Get("/open.gif", handler.Open)
		r.Post("/remediation", handler.Remediation)
		r.Post("/report", handler.Report)
	})

	return r, tc, target
}

func TestTrackingHandler_Click(t *testing.T) {
	router, tc, target := setupTrackingTestRouter(t)
	defer tc.Cleanup()

	req := httptest.NewRequest(http.MethodGet, "/t/"+target.Token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "phishing simulation")
	assert.Contains(t, rec.Body.String(), "Pat")

	var fresh models.Target
	require.NoError(t, tc.DB.First(&fresh, "id = ?", target.ID).Error)
	assert.Equal(t, models.TargetStatusClicked, fresh.Status)
	assert.NotNil(t, fresh.RemediationAssignedAt)
}

func TestTrackingHandler_UnknownToken(t *testing.T) {
	router, tc, target := setupTrackingTestRouter(t)
	defer tc.Cleanup()

	// Malformed and unknown tokens get the same 404 page
	for _, token := range []string{"garbage", "ffffffffffffffffffffffffffffffff"} {
		req := httptest.NewRequest(http.MethodGet, "/t/"+token, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	// No state was touched on the real target
	var fresh models.Target
	require.NoError(t, tc.DB.First(&fresh, "id = ?", target.ID).Error)
	assert.Nil(t, fresh.LinkClickedAt)
}

func TestTrackingHandler_OpenPixel(t *testing.T) {
	router, tc, target := setupTrackingTestRouter(t)
	defer tc.Cleanup()

	req := httptest.NewRequest(http.MethodGet, "/t/"+target.Token+"/open.gif", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))

	var fresh models.Target
	require.NoError(t, tc.DB.First(&fresh, "id = ?", target.ID).Error)
	assert.NotNil(t, fresh.EmailOpenedAt)

	// The pixel comes back even for a dead token
	req = httptest.NewRequest(http.MethodGet, "/t/deadbeef/open.gif", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
}

func TestTrackingHandler_RemediationFlow(t *testing.T) {
	router, tc, target := setupTrackingTestRouter(t)
	defer tc.Cleanup()

	// Click first to get remediation assigned
	req := httptest.NewRequest(http.MethodGet, "/t/"+target.Token, nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	// Unacknowledged form is rejected
	form := url.Values{}
	req = httptest.NewRequest(http.MethodPost, "/t/"+target.Token+"/remediation", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Acknowledged completes the training
	form.Set("acknowledged", "true")
	req = httptest.NewRequest(http.MethodPost, "/t/"+target.Token+"/remediation", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Training complete")

	var fresh models.Target
	require.NoError(t, tc.DB.First(&fresh, "id = ?", target.ID).Error)
	assert.NotNil(t, fresh.RemediationCompletedAt)
}

func TestTrackingHandler_Report(t *testing.T) {
	router, tc, target := setupTrackingTestRouter(t)
	defer tc.Cleanup()

	req := httptest.NewRequest(http.MethodPost, "/t/"+target.Token+"/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Well spotted")

	var fresh models.Target
	require.NoError(t, tc.DB.First(&fresh, "id = ?", target.ID).Error)
	assert.Equal(t, models.TargetStatusReported, fresh.Status)
}
