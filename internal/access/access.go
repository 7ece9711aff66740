// Package access resolves user/organization memberships and enforces
// role-gated operations. Guards are composed explicitly at call sites and
// return the resolved membership so downstream checks reuse it instead of
// re-querying.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPermissionDenied is returned whenever the caller lacks access. It never
// distinguishes "no such resource" from "not yours", so probing reveals
// nothing.
var ErrPermissionDenied = errors.New("permission denied")

type Checker struct {
	db *gorm.DB
}

func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// ResolveMembership returns the active membership for (user, org), or
// ErrPermissionDenied if there is none.
func (c *Checker) ResolveMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ? AND is_active = ?", userID, orgID, true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("resolving membership: %w", err)
	}
	return &m, nil
}

// RequireRole enforces that the user holds one of the allowed roles in the
// organization. An empty role list means any active member qualifies.
func (c *Checker) RequireRole(ctx context.Context, userID, orgID uuid.UUID, roles ...models.Role) (*models.Membership, error) {
	m, err := c.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return m, nil
	}
	for _, r := range roles {
		if m.Role == r {
			return m, nil
		}
	}
	return nil, ErrPermissionDenied
}

// RequireCampaignAccess resolves the campaign's organization and requires an
// active membership of any role. Operations needing more than read access
// check the returned membership's predicates.
func (c *Checker) RequireCampaignAccess(ctx context.Context, userID, campaignID uuid.UUID) (*models.Campaign, *models.Membership, error) {
	var campaign models.Campaign
	err := c.db.WithContext(ctx).First(&campaign, "id = ?", campaignID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrPermissionDenied
		}
		return nil, nil, fmt.Errorf("loading campaign: %w", err)
	}

	m, err := c.ResolveMembership(ctx, userID, campaign.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return &campaign, m, nil
}
