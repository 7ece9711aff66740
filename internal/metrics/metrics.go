// Package metrics computes click-rate and remediation statistics for
// dashboards and compliance reports. Ratios carry full precision; rounding
// happens once, at the presentation boundary.
package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClickRate is the percentage of sent emails whose link was clicked.
func ClickRate(clickedCount, sentCount int) float64 {
	return pct(clickedCount, sentCount)
}

// RemediationAssignedPct is the share of clickers that had remediation
// assigned.
func RemediationAssignedPct(assignedCount, clickedCount int) float64 {
	return pct(assignedCount, clickedCount)
}

// RemediationCompletionRate is the share of assigned remediations that were
// completed.
func RemediationCompletionRate(completedCount, assignedCount int) float64 {
	return pct(completedCount, assignedCount)
}

// RemediationPendingPct is the share of assigned remediations still open.
func RemediationPendingPct(completedCount, assignedCount int) float64 {
	if assignedCount == 0 {
		return 0.0
	}
	return pct(assignedCount-completedCount, assignedCount)
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100
}

// Round2 rounds to two decimals for display. Never feed its output back into
// another ratio.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stats are the aggregate counts and derived rates over a target set.
type Stats struct {
	TargetCount          int     `json:"target_count"`
	SentCount            int     `json:"sent_count"`
	OpenedCount          int     `json:"opened_count"`
	ClickedCount         int     `json:"clicked_count"`
	ReportedCount        int     `json:"reported_count"`
	RemediationAssigned  int     `json:"remediation_assigned"`
	RemediationCompleted int     `json:"remediation_completed"`
	ClickRate            float64 `json:"click_rate"`
	AssignedRate         float64 `json:"remediation_assigned_pct"`
	RemediationRate      float64 `json:"remediation_completion_rate"`
	PendingRate          float64 `json:"remediation_pending_pct"`
}

// OrgStats extends Stats with the campaign window and the number of
// distinct employees touched.
type OrgStats struct {
	Stats
	CampaignCount    int         `json:"campaign_count"`
	CampaignIDs      []uuid.UUID `json:"campaign_ids"`
	EmployeesTrained int         `json:"employees_trained"`
}

type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// ForCampaign computes stats over all targets of one campaign.
func (a *Aggregator) ForCampaign(ctx context.Context, campaignID uuid.UUID) (*Stats, error) {
	stats, err := a.targetStats(ctx, a.db.WithContext(ctx).
		Model(&models.Target{}).
		Where("campaign_id = ?", campaignID))
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ForOrganization computes stats across every campaign of the organization
// created within [from, to], plus the count of distinct employees targeted.
func (a *Aggregator) ForOrganization(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*OrgStats, error) {
	var campaignIDs []uuid.UUID
	err := a.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("organization_id = ? AND created_at >= ? AND created_at <= ?", orgID, from, to).
		Pluck("id", &campaignIDs).Error
	if err != nil {
		return nil, fmt.Errorf("selecting campaigns: %w", err)
	}

	out := &OrgStats{
		CampaignCount: len(campaignIDs),
		CampaignIDs:   campaignIDs,
	}
	if len(campaignIDs) == 0 {
		return out, nil
	}

	stats, err := a.targetStats(ctx, a.db.WithContext(ctx).
		Model(&models.Target{}).
		Where("campaign_id IN ?", campaignIDs))
	if err != nil {
		return nil, err
	}
	out.Stats = *stats

	// Employees trained counts people, not target rows: one employee hit by
	// three campaigns is still one employee.
	var trained int64
	err = a.db.WithContext(ctx).
		Model(&models.Target{}).
		Where("campaign_id IN ?", campaignIDs).
		Distinct("employee_id").
		Count(&trained).Error
	if err != nil {
		return nil, fmt.Errorf("counting distinct employees: %w", err)
	}
	out.EmployeesTrained = int(trained)

	return out, nil
}

func (a *Aggregator) targetStats(ctx context.Context, base *gorm.DB) (*Stats, error) {
	count := func(q *gorm.DB) (int, error) {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, fmt.Errorf("aggregating targets: %w", err)
		}
		return int(n), nil
	}

	stats := &Stats{}
	var err error
	if stats.TargetCount, err = count(base.Session(&gorm.Session{})); err != nil {
		return nil, err
	}
	if stats.SentCount, err = count(base.Session(&gorm.Session{}).Where("sent_at IS NOT NULL")); err != nil {
		return nil, err
	}
	if stats.OpenedCount, err = count(base.Session(&gorm.Session{}).Where("email_opened_at IS NOT NULL")); err != nil {
		return nil, err
	}
	if stats.ClickedCount, err = count(base.Session(&gorm.Session{}).Where("link_clicked_at IS NOT NULL")); err != nil {
		return nil, err
	}
	if stats.ReportedCount, err = count(base.Session(&gorm.Session{}).Where("reported_at IS NOT NULL")); err != nil {
		return nil, err
	}
	if stats.RemediationAssigned, err = count(base.Session(&gorm.Session{}).Where("remediation_assigned_at IS NOT NULL")); err != nil {
		return nil, err
	}
	if stats.RemediationCompleted, err = count(base.Session(&gorm.Session{}).Where("remediation_completed_at IS NOT NULL")); err != nil {
		return nil, err
	}

	stats.ClickRate = ClickRate(stats.ClickedCount, stats.SentCount)
	stats.AssignedRate = RemediationAssignedPct(stats.RemediationAssigned, stats.ClickedCount)
	stats.RemediationRate = RemediationCompletionRate(stats.RemediationCompleted, stats.RemediationAssigned)
	stats.PendingRate = RemediationPendingPct(stats.RemediationCompleted, stats.RemediationAssigned)

	return stats, nil
}
