package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/campaign"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/entitlement"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/tasks"
)

type CampaignHandler struct {
	campaigns   *campaign.Service
	engine      *dispatch.Engine
	aggregator  *metrics.Aggregator
	asynqClient *asynq.Client
}

func NewCampaignHandler(campaigns *campaign.Service, engine *dispatch.Engine, aggregator *metrics.Aggregator, asynqClient *asynq.Client) *CampaignHandler {
	return &CampaignHandler{
		campaigns:   campaigns,
		engine:      engine,
		aggregator:  aggregator,
		asynqClient: asynqClient,
	}
}

// CreateCampaignRequest represents the request to create a campaign
type CreateCampaignRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	EmailTemplateID string   `json:"email_template_id"`
	EmployeeIDs     []string `json:"employee_ids"`
}

func (r CreateCampaignRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if len(r.EmployeeIDs) == 0 {
		errors["employee_ids"] = "At least one employee is required"
	}
	for _, id := range r.EmployeeIDs {
		if _, err := uuid.Parse(id); err != nil {
			errors["employee_ids"] = "Invalid employee ID"
			break
		}
	}
	if r.EmailTemplateID != "" {
		if _, err := uuid.Parse(r.EmailTemplateID); err != nil {
			errors["email_template_id"] = "Invalid template ID"
		}
	}
	return errors
}

type ScheduleCampaignRequest struct {
	SendAt time.Time `json:"send_at"`
}

type AddTargetsRequest struct {
	EmployeeIDs []string `json:"employee_ids"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Status          string          `json:"status"`
	EmailTemplateID string          `json:"email_template_id,omitempty"`
	ScheduledSendAt string          `json:"scheduled_send_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
	Stats           *metrics.Stats  `json:"stats,omitempty"`
}

func campaignToResponse(c *models.Campaign) CampaignResponse {
	resp := CampaignResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		Description: c.Description,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
	if c.EmailTemplateID != nil {
		resp.EmailTemplateID = c.EmailTemplateID.String()
	}
	if c.ScheduledSendAt != nil {
		resp.ScheduledSendAt = c.ScheduledSendAt.Format(time.RFC3339)
	}
	return resp
}

type TargetResponse struct {
	ID                     string     `json:"id"`
	EmployeeID             string     `json:"employee_id"`
	EmployeeName           string     `json:"employee_name,omitempty"`
	EmployeeEmail          string     `json:"employee_email,omitempty"`
	Status                 string     `json:"status"`
	SentAt                 *time.Time `json:"sent_at,omitempty"`
	EmailOpenedAt          *time.Time `json:"email_opened_at,omitempty"`
	LinkClickedAt          *time.Time `json:"link_clicked_at,omitempty"`
	RemediationAssignedAt  *time.Time `json:"remediation_assigned_at,omitempty"`
	RemediationCompletedAt *time.Time `json:"remediation_completed_at,omitempty"`
	ReportedAt             *time.Time `json:"reported_at,omitempty"`
}

func targetToResponse(t *models.Target) TargetResponse {
	resp := TargetResponse{
		ID:                     t.ID.String(),
		EmployeeID:             t.EmployeeID.String(),
		Status:                 string(t.Status),
		SentAt:                 t.SentAt,
		EmailOpenedAt:          t.EmailOpenedAt,
		LinkClickedAt:          t.LinkClickedAt,
		RemediationAssignedAt:  t.RemediationAssignedAt,
		RemediationCompletedAt: t.RemediationCompletedAt,
		ReportedAt:             t.ReportedAt,
	}
	if t.Employee != nil {
		resp.EmployeeName = t.Employee.FirstName + " " + t.Employee.LastName
		resp.EmployeeEmail = t.Employee.Email
	}
	return resp
}

// List handles GET /api/v1/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	campaigns, total, err := h.campaigns.List(r.Context(), userID, orgID, pagination.Offset(), pagination.PerPage)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := make([]CampaignResponse, len(campaigns))
	for i := range campaigns {
		response[i] = campaignToResponse(&campaigns[i])
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// Create handles POST /api/v1/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	employeeIDs := make([]uuid.UUID, len(req.EmployeeIDs))
	for i, id := range req.EmployeeIDs {
		employeeIDs[i], _ = uuid.Parse(id)
	}

	var templateID *uuid.UUID
	if req.EmailTemplateID != "" {
		id, _ := uuid.Parse(req.EmailTemplateID)
		templateID = &id
	}

	created, err := h.campaigns.Create(r.Context(), campaign.CreateInput{
		OrganizationID: orgID,
		CreatorID:      userID,
		Name:           req.Name,
		Description:    req.Description,
		TemplateID:     templateID,
		EmployeeIDs:    employeeIDs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, campaignToResponse(created))
}

// Get handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	found, _, err := h.campaigns.Get(r.Context(), userID, campaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := campaignToResponse(found)
	if stats, err := h.aggregator.ForCampaign(r.Context(), found.ID); err == nil {
		resp.Stats = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/campaigns/{id}/send. Dispatch runs synchronously
// so the caller gets the per-target outcome in the response.
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	found, membership, err := h.campaigns.Get(r.Context(), userID, campaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !membership.CanManageCampaigns() {
		h.writeError(w, access.ErrPermissionDenied)
		return
	}
	if found.Status == models.CampaignStatusCompleted {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Campaign is already completed"})
		return
	}

	result, err := h.engine.Send(r.Context(), found)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Schedule handles POST /api/v1/campaigns/{id}/schedule
func (h *CampaignHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	// The server runs without a queue client when Redis is unreachable at
	// startup. Refuse before touching campaign state.
	if h.asynqClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{
			Error: "Scheduled sends are unavailable",
		})
		return
	}

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	var req ScheduleCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.SendAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed",
			Details: map[string]string{"send_at": "Send time is required"}})
		return
	}

	scheduled, err := h.campaigns.Schedule(r.Context(), userID, campaignID, req.SendAt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	task, err := tasks.NewCampaignDispatchTask(tasks.CampaignDispatchPayload{
		CampaignID:     scheduled.ID,
		OrganizationID: orgID,
	}, req.SendAt)
	if err != nil {
		_ = h.campaigns.Unschedule(r.Context(), scheduled.ID)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to queue dispatch"})
		return
	}

	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		// Without a queued task the SCHEDULED status would never fire.
		_ = h.campaigns.Unschedule(r.Context(), scheduled.ID)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to queue dispatch"})
		return
	}

	if err := h.campaigns.SetTaskID(r.Context(), scheduled.ID, info.ID); err == nil {
		scheduled.TaskID = info.ID
	}

	writeJSON(w, http.StatusOK, campaignToResponse(scheduled))
}

// Complete handles POST /api/v1/campaigns/{id}/complete
func (h *CampaignHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	completed, err := h.campaigns.Complete(r.Context(), userID, campaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, campaignToResponse(completed))
}

// Targets handles GET /api/v1/campaigns/{id}/targets
func (h *CampaignHandler) Targets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	targets, err := h.campaigns.Targets(r.Context(), userID, campaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := make([]TargetResponse, len(targets))
	for i := range targets {
		response[i] = targetToResponse(&targets[i])
	}

	writeJSON(w, http.StatusOK, response)
}

// AddTargets handles POST /api/v1/campaigns/{id}/targets
func (h *CampaignHandler) AddTargets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
		return
	}

	var req AddTargetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	employeeIDs := make([]uuid.UUID, 0, len(req.EmployeeIDs))
	for _, id := range req.EmployeeIDs {
		parsed, err := uuid.Parse(id)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed",
				Details: map[string]string{"employee_ids": "Invalid employee ID"}})
			return
		}
		employeeIDs = append(employeeIDs, parsed)
	}

	if err := h.campaigns.AddTargets(r.Context(), userID, campaignID, employeeIDs); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Targets added"})
}

// writeError maps campaign domain errors onto HTTP statuses. Permission
// denials on campaign routes render as not-found so membership of another
// organization cannot probe for campaign existence.
func (h *CampaignHandler) writeError(w http.ResponseWriter, err error) {
	if limitErr, ok := entitlement.AsLimitError(err); ok {
		writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{
			Error:   "Subscription does not allow this",
			Details: map[string]string{"reason": string(limitErr.Reason)},
		})
		return
	}

	switch err {
	case access.ErrPermissionDenied, campaign.ErrNotFound:
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Campaign not found"})
	case campaign.ErrNoEmployees:
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "At least one employee is required"})
	case campaign.ErrUnknownEmployee:
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "One or more employees not found"})
	case campaign.ErrNotDraft:
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Campaign is no longer a draft"})
	case campaign.ErrNotActive:
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Campaign is not active"})
	case campaign.ErrScheduleInPast:
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Send time must be in the future"})
	case dispatch.ErrNoTemplate:
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Campaign has no email template"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal error"})
	}
}
