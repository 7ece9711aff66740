package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/pkg/crypto"
)

type OrganizationHandler struct {
	db        *gorm.DB
	checker   *access.Checker
	encryptor *crypto.Encryptor
}

func NewOrganizationHandler(db *gorm.DB, checker *access.Checker, encryptor *crypto.Encryptor) *OrganizationHandler {
	return &OrganizationHandler{db: db, checker: checker, encryptor: encryptor}
}

// Get handles GET /api/v1/organization
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	if _, err := h.checker.ResolveMembership(r.Context(), userID, orgID); err != nil {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var org models.Organization
	if err := h.db.WithContext(r.Context()).First(&org, "id = ?", orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Organization not found"})
		return
	}

	writeJSON(w, http.StatusOK, org)
}

type UpdateOrganizationRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Website    string `json:"website"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (r UpdateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Type != "" && !validOrgType(models.OrganizationType(r.Type)) {
		errors["type"] = "Invalid organization type"
	}
	return errors
}

func validOrgType(t models.OrganizationType) bool {
	switch t {
	case models.OrgTypeHospital, models.OrgTypeClinic, models.OrgTypePharmacy,
		models.OrgTypeLaboratory, models.OrgTypeOther:
		return true
	}
	return false
}

// Update handles PUT /api/v1/organization
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var req UpdateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"website":     req.Website,
		"city":        req.City,
		"region":      req.Region,
		"postal_code": req.PostalCode,
		"country":     req.Country,
	}
	if req.Type != "" {
		updates["type"] = req.Type
	}

	if err := h.db.WithContext(r.Context()).
		Model(&models.Organization{}).
		Where("id = ?", orgID).
		Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update organization"})
		return
	}

	var org models.Organization
	if err := h.db.WithContext(r.Context()).First(&org, "id = ?", orgID).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load organization"})
		return
	}

	writeJSON(w, http.StatusOK, org)
}

type MemberResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// ListMembers handles GET /api/v1/organization/members
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	if _, err := h.checker.ResolveMembership(r.Context(), userID, orgID); err != nil {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var memberships []models.Membership
	if err := h.db.WithContext(r.Context()).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list members"})
		return
	}

	response := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		response[i] = MemberResponse{
			ID:       m.ID.String(),
			UserID:   m.UserID.String(),
			Role:     string(m.Role),
			IsActive: m.IsActive,
		}
		if m.User != nil {
			response[i].Email = m.User.Email
			response[i].Name = m.User.Name
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole handles PUT /api/v1/organization/members/{id}/role
func (h *OrganizationHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	caller, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !caller.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	memberID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		return
	}

	var req UpdateMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	role := models.Role(req.Role)
	if !role.Valid() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed",
			Details: map[string]string{"role": "Invalid role"}})
		return
	}

	var member models.Membership
	if err := h.db.WithContext(r.Context()).
		First(&member, "id = ? AND organization_id = ?", memberID, orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		return
	}

	// An organization must always retain at least one active OWNER.
	if member.IsOwner() && role != models.RoleOwner {
		if h.isLastOwner(r, orgID, member.ID) {
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Organization must keep at least one owner"})
			return
		}
	}

	if err := h.db.WithContext(r.Context()).
		Model(&member).Update("role", role).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update member"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Role updated"})
}

// DeactivateMember handles POST /api/v1/organization/members/{id}/deactivate
func (h *OrganizationHandler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	caller, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !caller.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	memberID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		return
	}

	var member models.Membership
	if err := h.db.WithContext(r.Context()).
		First(&member, "id = ? AND organization_id = ?", memberID, orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		return
	}

	if member.IsOwner() && h.isLastOwner(r, orgID, member.ID) {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Organization must keep at least one owner"})
		return
	}

	if err := h.db.WithContext(r.Context()).
		Model(&member).Update("is_active", false).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to deactivate member"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member deactivated"})
}

func (h *OrganizationHandler) isLastOwner(r *http.Request, orgID, excludeID uuid.UUID) bool {
	var count int64
	h.db.WithContext(r.Context()).
		Model(&models.Membership{}).
		Where("organization_id = ? AND role = ? AND is_active = ? AND id != ?",
			orgID, models.RoleOwner, true, excludeID).
		Count(&count)
	return count == 0
}

type SMTPSettingsRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r SMTPSettingsRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Host != "" {
		if r.Port <= 0 || r.Port > 65535 {
			errors["port"] = "Must be a valid port"
		}
	}
	return errors
}

// UpdateSMTP handles PUT /api/v1/organization/smtp. An empty host clears the
// override and the organization falls back to the platform relay. The
// password is age-encrypted before it touches the database.
func (h *OrganizationHandler) UpdateSMTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var req SMTPSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	updates := map[string]interface{}{
		"smtp_host":     strings.TrimSpace(req.Host),
		"smtp_port":     req.Port,
		"smtp_username": req.Username,
	}

	if req.Host == "" {
		updates["smtp_port"] = 0
		updates["smtp_username"] = ""
		updates["smtp_password_encrypted"] = ""
	} else if req.Password != "" {
		encrypted, err := h.encryptor.EncryptString(req.Password)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to store credentials"})
			return
		}
		updates["smtp_password_encrypted"] = encrypted
	}

	if err := h.db.WithContext(r.Context()).
		Model(&models.Organization{}).
		Where("id = ?", orgID).
		Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update SMTP settings"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "SMTP settings updated"})
}
