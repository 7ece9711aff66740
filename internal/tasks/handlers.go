package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type Handler struct {
	db      *gorm.DB
	logger  *slog.Logger
	engine  *dispatch.Engine
	reports *report.Service
}

func NewHandler(db *gorm.DB, logger *slog.Logger, engine *dispatch.Engine, reports *report.Service) *Handler {
	return &Handler{db: db, logger: logger, engine: engine, reports: reports}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCampaignDispatch, h.HandleCampaignDispatch)
	mux.HandleFunc(TypeReportGenerate, h.HandleReportGenerate)
}

// HandleCampaignDispatch sends a campaign at its scheduled time. Campaigns
// that were canceled back to draft or already sent manually are skipped.
func (h *Handler) HandleCampaignDispatch(ctx context.Context, t *asynq.Task) error {
	var payload CampaignDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var campaign models.Campaign
	if err := h.db.WithContext(ctx).First(&campaign, "id = ?", payload.CampaignID).Error; err != nil {
		return fmt.Errorf("loading campaign: %w", err)
	}

	if campaign.Status != models.CampaignStatusScheduled {
		h.logger.Info("skipping dispatch, campaign not scheduled",
			"campaign_id", campaign.ID,
			"status", campaign.Status,
		)
		return nil
	}

	result, err := h.engine.Send(ctx, &campaign)
	if err != nil {
		return fmt.Errorf("dispatching campaign %s: %w", campaign.ID, err)
	}

	h.logger.Info("scheduled dispatch complete",
		"campaign_id", campaign.ID,
		"sent", result.SentCount,
		"failed", len(result.Failures),
	)
	return nil
}

func (h *Handler) HandleReportGenerate(ctx context.Context, t *asynq.Task) error {
	var payload ReportGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rep, err := h.reports.Generate(ctx, payload.RequestedByID, payload.OrganizationID, payload.PeriodStart, payload.PeriodEnd)
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	h.logger.Info("background report generated", "report_id", rep.ID)
	return nil
}
