// Package campaign owns the campaign lifecycle: creation with per-employee
// targets, scheduling, and completion. Dispatch itself lives in
// internal/dispatch.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/entitlement"
	"github.com/calderasec/lurelab/pkg/crypto"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound         = errors.New("campaign not found")
	ErrNoEmployees      = errors.New("campaign requires at least one employee")
	ErrUnknownEmployee  = errors.New("employee does not belong to this organization")
	ErrNotDraft         = errors.New("campaign is not in draft")
	ErrNotActive        = errors.New("campaign is not active")
	ErrScheduleInPast   = errors.New("scheduled send time is in the past")
)

type Service struct {
	db      *gorm.DB
	checker *access.Checker
	gate    *entitlement.Gate
	logger  *slog.Logger
}

func NewService(db *gorm.DB, checker *access.Checker, gate *entitlement.Gate, logger *slog.Logger) *Service {
	return &Service{db: db, checker: checker, gate: gate, logger: logger}
}

type CreateInput struct {
	OrganizationID uuid.UUID
	CreatorID      uuid.UUID
	Name           string
	Description    string
	TemplateID     *uuid.UUID
	EmployeeIDs    []uuid.UUID
}

// Create builds a DRAFT campaign with one PENDING target per employee.
// The caller needs the manage-campaigns permission and the organization's
// subscription must allow another campaign. Campaign and targets are created
// in one transaction; the trial counter is recorded only after they are
// durable, so a failed creation never consumes the trial slot.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Campaign, error) {
	membership, err := s.checker.ResolveMembership(ctx, input.CreatorID, input.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !membership.CanManageCampaigns() {
		return nil, access.ErrPermissionDenied
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", input.OrganizationID).Error; err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if err := s.gate.CanCreateCampaign(&org); err != nil {
		return nil, err
	}

	employeeIDs := dedupe(input.EmployeeIDs)
	if len(employeeIDs) == 0 {
		return nil, ErrNoEmployees
	}

	// Every employee must belong to the organization.
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id IN ? AND organization_id = ?", employeeIDs, input.OrganizationID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("verifying employees: %w", err)
	}
	if count != int64(len(employeeIDs)) {
		return nil, ErrUnknownEmployee
	}

	campaign := models.Campaign{
		OrganizationID:  input.OrganizationID,
		Name:            input.Name,
		Description:     input.Description,
		Status:          models.CampaignStatusDraft,
		EmailTemplateID: input.TemplateID,
		CreatedByID:     input.CreatorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return fmt.Errorf("creating campaign: %w", err)
		}
		return createTargets(tx, campaign.ID, employeeIDs)
	})
	if err != nil {
		return nil, err
	}

	if err := s.gate.RecordCampaignCreated(ctx, &org); err != nil {
		// A concurrent creation consumed the trial slot between our gate
		// check and the commit. Roll the campaign back so the lifetime limit
		// holds.
		if _, ok := entitlement.AsLimitError(err); ok {
			s.rollbackCreate(ctx, campaign.ID)
		}
		return nil, err
	}

	s.logger.Info("campaign created",
		"campaign_id", campaign.ID,
		"org_id", input.OrganizationID,
		"targets", len(employeeIDs),
	)

	return &campaign, nil
}

// createTargets inserts one PENDING target per employee with a fresh token.
// Duplicate campaign×employee rows are dropped by the unique constraint
// (ON CONFLICT DO NOTHING) so re-submission with overlapping employees is
// idempotent rather than an error.
func createTargets(tx *gorm.DB, campaignID uuid.UUID, employeeIDs []uuid.UUID) error {
	for _, employeeID := range employeeIDs {
		token, err := crypto.GenerateTrackingToken()
		if err != nil {
			return err
		}
		target := models.Target{
			CampaignID: campaignID,
			EmployeeID: employeeID,
			Token:      token,
			Status:     models.TargetStatusPending,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&target).Error; err != nil {
			return fmt.Errorf("creating target: %w", err)
		}
	}
	return nil
}

func (s *Service) rollbackCreate(ctx context.Context, campaignID uuid.UUID) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.Target{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Campaign{}, "id = ?", campaignID).Error
	})
	if err != nil {
		s.logger.Error("failed to roll back over-limit campaign", "campaign_id", campaignID, "error", err)
	}
}

// Get returns the campaign after verifying the user is an active member of
// its organization.
func (s *Service) Get(ctx context.Context, userID, campaignID uuid.UUID) (*models.Campaign, *models.Membership, error) {
	campaign, membership, err := s.checker.RequireCampaignAccess(ctx, userID, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if campaign.EmailTemplateID != nil {
		if err := s.db.WithContext(ctx).Preload("EmailTemplate").First(campaign, "id = ?", campaign.ID).Error; err != nil {
			return nil, nil, fmt.Errorf("loading template: %w", err)
		}
	}
	return campaign, membership, nil
}

// List returns a page of the organization's campaigns, newest first, with
// the total count. Any active member may list.
func (s *Service) List(ctx context.Context, userID, orgID uuid.UUID, offset, limit int) ([]models.Campaign, int64, error) {
	if _, err := s.checker.RequireRole(ctx, userID, orgID); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting campaigns: %w", err)
	}

	var campaigns []models.Campaign
	if err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&campaigns).Error; err != nil {
		return nil, 0, fmt.Errorf("listing campaigns: %w", err)
	}
	return campaigns, total, nil
}

// Targets returns the campaign's targets with employees preloaded.
func (s *Service) Targets(ctx context.Context, userID, campaignID uuid.UUID) ([]models.Target, error) {
	if _, _, err := s.checker.RequireCampaignAccess(ctx, userID, campaignID); err != nil {
		return nil, err
	}

	var targets []models.Target
	if err := s.db.WithContext(ctx).
		Preload("Employee").
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	return targets, nil
}

// AddTargets extends a DRAFT campaign with more employees. Employees already
// targeted are skipped.
func (s *Service) AddTargets(ctx context.Context, userID, campaignID uuid.UUID, employeeIDs []uuid.UUID) error {
	campaign, membership, err := s.checker.RequireCampaignAccess(ctx, userID, campaignID)
	if err != nil {
		return err
	}
	if !membership.CanManageCampaigns() {
		return access.ErrPermissionDenied
	}
	if campaign.Status != models.CampaignStatusDraft {
		return ErrNotDraft
	}

	employeeIDs = dedupe(employeeIDs)
	if len(employeeIDs) == 0 {
		return ErrNoEmployees
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id IN ? AND organization_id = ?", employeeIDs, campaign.OrganizationID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("verifying employees: %w", err)
	}
	if count != int64(len(employeeIDs)) {
		return ErrUnknownEmployee
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createTargets(tx, campaign.ID, employeeIDs)
	})
}

// Schedule marks a DRAFT campaign for a future automatic send.
func (s *Service) Schedule(ctx context.Context, userID, campaignID uuid.UUID, at time.Time) (*models.Campaign, error) {
	campaign, membership, err := s.checker.RequireCampaignAccess(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !membership.CanManageCampaigns() {
		return nil, access.ErrPermissionDenied
	}
	if campaign.Status != models.CampaignStatusDraft {
		return nil, ErrNotDraft
	}
	if at.Before(time.Now()) {
		return nil, ErrScheduleInPast
	}

	updates := map[string]interface{}{
		"status":            models.CampaignStatusScheduled,
		"scheduled_send_at": at,
	}
	if err := s.db.WithContext(ctx).Model(campaign).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("scheduling campaign: %w", err)
	}

	campaign.Status = models.CampaignStatusScheduled
	campaign.ScheduledSendAt = &at
	return campaign, nil
}

// Unschedule reverts a SCHEDULED campaign to DRAFT. Used when the dispatch
// task could not be queued after the status flip, so the campaign stays
// schedulable instead of stranded.
func (s *Service) Unschedule(ctx context.Context, campaignID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignStatusScheduled).
		Updates(map[string]interface{}{
			"status":            models.CampaignStatusDraft,
			"scheduled_send_at": nil,
			"task_id":           "",
		}).Error
}

// SetTaskID records the queued dispatch task for a scheduled campaign.
func (s *Service) SetTaskID(ctx context.Context, campaignID uuid.UUID, taskID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("task_id", taskID).Error
}

// Complete closes out an ACTIVE campaign.
func (s *Service) Complete(ctx context.Context, userID, campaignID uuid.UUID) (*models.Campaign, error) {
	campaign, membership, err := s.checker.RequireCampaignAccess(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !membership.CanManageCampaigns() {
		return nil, access.ErrPermissionDenied
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, ErrNotActive
	}

	if err := s.db.WithContext(ctx).Model(campaign).
		Update("status", models.CampaignStatusCompleted).Error; err != nil {
		return nil, fmt.Errorf("completing campaign: %w", err)
	}

	campaign.Status = models.CampaignStatusCompleted
	return campaign, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
