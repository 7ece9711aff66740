// Package entitlement decides whether an organization's subscription allows
// metered actions. Campaign creation is the only metered action today.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/calderasec/lurelab/internal/database/models"
	"gorm.io/gorm"
)

// LimitReason distinguishes why campaign creation was denied so the caller
// can present a precise upgrade or billing message.
type LimitReason string

const (
	ReasonTrialExhausted  LimitReason = "trial-exhausted"
	ReasonBillingInactive LimitReason = "billing-inactive"
	ReasonTierLimit       LimitReason = "tier-limit"
)

// LimitError is returned when the subscription blocks campaign creation.
type LimitError struct {
	Reason LimitReason
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("subscription limit exceeded: %s", e.Reason)
}

// AsLimitError unwraps err into a *LimitError if it is one.
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// trialCampaignLimit is lifetime, not per-period.
const trialCampaignLimit = 1

// Gate answers entitlement questions for an organization.
type Gate struct {
	db *gorm.DB
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db}
}

// CanCreateCampaign returns nil if the org may create a campaign, or a
// *LimitError with the specific denial reason.
func (g *Gate) CanCreateCampaign(org *models.Organization) error {
	switch org.SubscriptionTier {
	case models.TierFreeTrial:
		if org.TrialCampaignsUsed >= trialCampaignLimit {
			return &LimitError{Reason: ReasonTrialExhausted}
		}
		return nil
	case models.TierProfessional, models.TierEnterprise:
		if org.SubscriptionStatus != models.SubscriptionActive {
			return &LimitError{Reason: ReasonBillingInactive}
		}
		return nil
	}
	return &LimitError{Reason: ReasonTierLimit}
}

// RecordCampaignCreated meters a successful creation. Only the free trial is
// metered; paid tiers are gated by subscription status alone. The increment
// is a conditional update so two concurrent creations cannot both consume
// the same trial slot.
func (g *Gate) RecordCampaignCreated(ctx context.Context, org *models.Organization) error {
	if org.SubscriptionTier != models.TierFreeTrial {
		return nil
	}

	res := g.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ? AND trial_campaigns_used = ?", org.ID, org.TrialCampaignsUsed).
		Update("trial_campaigns_used", org.TrialCampaignsUsed+1)
	if res.Error != nil {
		return fmt.Errorf("recording trial campaign use: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent creation.
		return &LimitError{Reason: ReasonTrialExhausted}
	}

	org.TrialCampaignsUsed++
	return nil
}

// IsTrialExpired reports whether a free-trial org has used up its campaign.
func (g *Gate) IsTrialExpired(org *models.Organization) bool {
	return org.SubscriptionTier == models.TierFreeTrial &&
		org.TrialCampaignsUsed >= trialCampaignLimit
}

// RequiresUpgrade reports whether the org should be shown the upgrade or
// billing prompt.
func (g *Gate) RequiresUpgrade(org *models.Organization) bool {
	if g.IsTrialExpired(org) {
		return true
	}
	switch org.SubscriptionStatus {
	case models.SubscriptionCanceled, models.SubscriptionPastDue:
		return true
	}
	return false
}
