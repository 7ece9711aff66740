package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/calderasec/lurelab/internal/tasks"
)

type ReportHandler struct {
	reports     *report.Service
	asynqClient *asynq.Client
}

func NewReportHandler(reports *report.Service, asynqClient *asynq.Client) *ReportHandler {
	return &ReportHandler{reports: reports, asynqClient: asynqClient}
}

type GenerateReportRequest struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	// Async pushes rendering to the worker. Useful for wide date ranges.
	Async bool `json:"async"`
}

// Generate handles POST /api/v1/reports
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.Async && h.asynqClient != nil {
		task, err := tasks.NewReportGenerateTask(tasks.ReportGeneratePayload{
			OrganizationID: orgID,
			RequestedByID:  userID,
			PeriodStart:    req.PeriodStart,
			PeriodEnd:      req.PeriodEnd,
		})
		if err == nil {
			if _, err := h.asynqClient.Enqueue(task); err == nil {
				writeJSON(w, http.StatusAccepted, dto.SuccessResponse{Message: "Report generation queued"})
				return
			}
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to queue report"})
		return
	}

	generated, err := h.reports.Generate(r.Context(), userID, orgID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, generated)
}

// List handles GET /api/v1/reports
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	reports, err := h.reports.List(r.Context(), userID, orgID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

// Download handles GET /api/v1/reports/{id}/download
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Report not found"})
		return
	}

	rep, data, err := h.reports.Download(r.Context(), userID, orgID, reportID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	filename := "compliance-report-" + rep.PeriodStart.Format("2006-01-02") +
		"-" + rep.PeriodEnd.Format("2006-01-02") + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}

// Delete handles DELETE /api/v1/reports/{id}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Report not found"})
		return
	}

	if err := h.reports.Delete(r.Context(), userID, orgID, reportID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Report deleted"})
}

func (h *ReportHandler) writeError(w http.ResponseWriter, err error) {
	switch err {
	case access.ErrPermissionDenied:
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
	case report.ErrNotFound:
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Report not found"})
	case report.ErrInvalidRange:
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid report period"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal error"})
	}
}
