// Package report generates, stores, and serves compliance reports: a
// point-in-time PDF snapshot of an organization's phishing-awareness metrics
// over a date range.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("report not found")
	ErrInvalidRange = errors.New("invalid report date range")
)

type Service struct {
	db         *gorm.DB
	checker    *access.Checker
	aggregator *metrics.Aggregator
	store      FileStore
	logger     *slog.Logger
}

func NewService(db *gorm.DB, checker *access.Checker, aggregator *metrics.Aggregator, store FileStore, logger *slog.Logger) *Service {
	return &Service{db: db, checker: checker, aggregator: aggregator, store: store, logger: logger}
}

// Generate renders and stores a compliance report over campaigns created in
// [from, to]. Requires the export-reports permission.
func (s *Service) Generate(ctx context.Context, userID, orgID uuid.UUID, from, to time.Time) (*models.ComplianceReport, error) {
	membership, err := s.checker.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if !membership.CanExportReports() {
		return nil, access.ErrPermissionDenied
	}

	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, ErrInvalidRange
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	stats, err := s.aggregator.ForOrganization(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}

	pdfBytes, err := renderPDF(&org, stats, from, to)
	if err != nil {
		return nil, err
	}

	report := models.ComplianceReport{
		OrganizationID:       orgID,
		GeneratedByID:        userID,
		PeriodStart:          from,
		PeriodEnd:            to,
		CampaignCount:        stats.CampaignCount,
		TargetCount:          stats.TargetCount,
		SentCount:            stats.SentCount,
		ClickedCount:         stats.ClickedCount,
		RemediationAssigned:  stats.RemediationAssigned,
		RemediationCompleted: stats.RemediationCompleted,
		EmployeesTrained:     stats.EmployeesTrained,
		CampaignIDs:          stats.CampaignIDs,
	}
	report.ID = uuid.New()
	report.FilePath = fmt.Sprintf("%s/%s.pdf", orgID, report.ID)

	if err := s.store.Put(ctx, report.FilePath, pdfBytes); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		// Best effort: don't leave an orphaned file behind.
		_ = s.store.Delete(ctx, report.FilePath)
		return nil, fmt.Errorf("saving report: %w", err)
	}

	s.logger.Info("compliance report generated",
		"report_id", report.ID,
		"org_id", orgID,
		"campaigns", stats.CampaignCount,
	)

	return &report, nil
}

// List returns the organization's reports, newest first.
func (s *Service) List(ctx context.Context, userID, orgID uuid.UUID) ([]models.ComplianceReport, error) {
	membership, err := s.checker.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if !membership.CanExportReports() {
		return nil, access.ErrPermissionDenied
	}

	var reports []models.ComplianceReport
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// Download returns the stored PDF bytes.
func (s *Service) Download(ctx context.Context, userID, orgID, reportID uuid.UUID) (*models.ComplianceReport, []byte, error) {
	report, err := s.get(ctx, userID, orgID, reportID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.store.Get(ctx, report.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return report, data, nil
}

// Delete removes the report row and its stored file.
func (s *Service) Delete(ctx context.Context, userID, orgID, reportID uuid.UUID) error {
	report, err := s.get(ctx, userID, orgID, reportID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(report).Error; err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	return s.store.Delete(ctx, report.FilePath)
}

func (s *Service) get(ctx context.Context, userID, orgID, reportID uuid.UUID) (*models.ComplianceReport, error) {
	membership, err := s.checker.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if !membership.CanExportReports() {
		return nil, access.ErrPermissionDenied
	}

	var report models.ComplianceReport
	err = s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", reportID, orgID).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading report: %w", err)
	}
	return &report, nil
}
