// Package dispatch sends a campaign's pending emails. Delivery is
// at-least-once: each target is committed individually the moment its send
// succeeds, so a crash mid-batch leaves every processed target correctly
// marked and re-invocation retries only what is still PENDING.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/mailer"
	"gorm.io/gorm"
)

var ErrNoTemplate = errors.New("campaign has no email template")

// MailerSource resolves the mail transport for an organization, honoring
// any per-org SMTP override.
type MailerSource interface {
	ForOrganization(org *models.Organization) (mailer.Mailer, error)
}

// Failure records one target the mail relay rejected. The target stays
// PENDING and is retried on the next send.
type Failure struct {
	TargetID      string `json:"target_id"`
	EmployeeEmail string `json:"employee_email"`
	Reason        string `json:"reason"`
}

// Result summarizes one dispatch pass.
type Result struct {
	SentCount int       `json:"sent_count"`
	Failures  []Failure `json:"failures,omitempty"`
}

type Engine struct {
	db      *gorm.DB
	mailers MailerSource
	baseURL string
	logger  *slog.Logger
}

func NewEngine(db *gorm.DB, mailers MailerSource, trackingBaseURL string, logger *slog.Logger) *Engine {
	return &Engine{
		db:      db,
		mailers: mailers,
		baseURL: strings.TrimRight(trackingBaseURL, "/"),
		logger:  logger,
	}
}

// TrackingURL builds the public click URL for a target token.
func (e *Engine) TrackingURL(token string) string {
	return e.baseURL + "/t/" + token
}

// OpenPixelURL builds the public open-tracking pixel URL for a target token.
func (e *Engine) OpenPixelURL(token string) string {
	return e.baseURL + "/t/" + token + "/open.gif"
}

// Send dispatches every PENDING target of the campaign. Targets already sent
// are never resent. One recipient's failure does not abort the batch; it is
// recorded in the result instead. The campaign transitions to ACTIVE when at
// least one email went out.
//
// If the relay accepts a message it later bounces, the target is still
// marked SENT; there is no reconciliation path for asynchronous bounces.
func (e *Engine) Send(ctx context.Context, campaign *models.Campaign) (*Result, error) {
	if campaign.EmailTemplateID == nil {
		return nil, ErrNoTemplate
	}

	var template models.EmailTemplate
	if err := e.db.WithContext(ctx).First(&template, "id = ?", *campaign.EmailTemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoTemplate
		}
		return nil, fmt.Errorf("loading template: %w", err)
	}

	var org models.Organization
	if err := e.db.WithContext(ctx).First(&org, "id = ?", campaign.OrganizationID).Error; err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	m, err := e.mailers.ForOrganization(&org)
	if err != nil {
		return nil, err
	}

	var targets []models.Target
	if err := e.db.WithContext(ctx).
		Preload("Employee").
		Where("campaign_id = ? AND status = ?", campaign.ID, models.TargetStatusPending).
		Order("created_at ASC").
		Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("loading pending targets: %w", err)
	}

	result := &Result{}
	for i := range targets {
		target := &targets[i]
		if target.Employee == nil {
			result.Failures = append(result.Failures, Failure{
				TargetID: target.ID.String(),
				Reason:   "target has no employee",
			})
			continue
		}

		body := e.renderBody(&template, target)
		msg := mailer.Message{
			Subject:     template.Subject,
			HTMLBody:    body,
			FromName:    template.SenderName,
			FromAddress: template.SenderEmail,
			ToAddress:   target.Employee.Email,
		}

		if err := m.Send(ctx, msg); err != nil {
			e.logger.Warn("send failed",
				"campaign_id", campaign.ID,
				"target_id", target.ID,
				"error", err,
			)
			result.Failures = append(result.Failures, Failure{
				TargetID:      target.ID.String(),
				EmployeeEmail: target.Employee.Email,
				Reason:        err.Error(),
			})
			continue
		}

		// Persist immediately so a crash mid-loop cannot lose the fact that
		// this email went out.
		now := time.Now()
		if err := e.db.WithContext(ctx).Model(target).Updates(map[string]interface{}{
			"sent_at": now,
			"status":  models.TargetStatusSent,
		}).Error; err != nil {
			return result, fmt.Errorf("marking target sent: %w", err)
		}
		target.SentAt = &now
		target.Status = models.TargetStatusSent
		result.SentCount++
	}

	if result.SentCount > 0 {
		// Idempotent promotion; already-ACTIVE stays ACTIVE.
		if err := e.db.WithContext(ctx).Model(&models.Campaign{}).
			Where("id = ? AND status IN ?", campaign.ID,
				[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusActive}).
			Update("status", models.CampaignStatusActive).Error; err != nil {
			return result, fmt.Errorf("activating campaign: %w", err)
		}
		campaign.Status = models.CampaignStatusActive
	}

	e.logger.Info("campaign dispatched",
		"campaign_id", campaign.ID,
		"sent", result.SentCount,
		"failed", len(result.Failures),
	)

	return result, nil
}

// renderBody substitutes the tracking placeholder with the per-target URL
// and appends the invisible open pixel.
func (e *Engine) renderBody(template *models.EmailTemplate, target *models.Target) string {
	body := strings.ReplaceAll(template.BodyHTML, models.TrackingLinkPlaceholder, e.TrackingURL(target.Token))
	pixel := fmt.Sprintf(`<img src=%q width="1" height="1" alt="" style="display:none">`, e.OpenPixelURL(target.Token))
	return body + pixel
}
