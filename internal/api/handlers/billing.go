package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/entitlement"
)

type BillingHandler struct {
	db      *gorm.DB
	checker *access.Checker
	gate    *entitlement.Gate
}

func NewBillingHandler(db *gorm.DB, checker *access.Checker, gate *entitlement.Gate) *BillingHandler {
	return &BillingHandler{db: db, checker: checker, gate: gate}
}

type SubscriptionResponse struct {
	Tier               string `json:"tier"`
	Status             string `json:"status"`
	TrialCampaignsUsed int    `json:"trial_campaigns_used"`
	TrialExpired       bool   `json:"trial_expired"`
	RequiresUpgrade    bool   `json:"requires_upgrade"`
	CanCreateCampaign  bool   `json:"can_create_campaign"`
	LimitReason        string `json:"limit_reason,omitempty"`
}

// Subscription handles GET /api/v1/billing
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageBilling() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var org models.Organization
	if err := h.db.WithContext(r.Context()).First(&org, "id = ?", orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Organization not found"})
		return
	}

	resp := SubscriptionResponse{
		Tier:               string(org.SubscriptionTier),
		Status:             string(org.SubscriptionStatus),
		TrialCampaignsUsed: org.TrialCampaignsUsed,
		TrialExpired:       h.gate.IsTrialExpired(&org),
		RequiresUpgrade:    h.gate.RequiresUpgrade(&org),
		CanCreateCampaign:  true,
	}
	if err := h.gate.CanCreateCampaign(&org); err != nil {
		resp.CanCreateCampaign = false
		if limitErr, ok := entitlement.AsLimitError(err); ok {
			resp.LimitReason = string(limitErr.Reason)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
