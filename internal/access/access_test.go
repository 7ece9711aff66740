package access_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/testutil"
)

func TestChecker_ResolveMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	checker := access.NewChecker(db)
	ctx := context.Background()

	org := testutil.CreateTestOrg(t, db)
	user, _ := testutil.CreateTestUser(t, db, org, models.RoleAdmin)

	m, err := checker.ResolveMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, m.Role)

	// Unknown user
	_, err = checker.ResolveMembership(ctx, uuid.New(), org.ID)
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	// Deactivated membership resolves to the same denial
	require.NoError(t, db.Model(&models.Membership{}).
		Where("user_id = ?", user.ID).
		Update("is_active", false).Error)
	_, err = checker.ResolveMembership(ctx, user.ID, org.ID)
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestChecker_RequireRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	checker := access.NewChecker(db)
	ctx := context.Background()

	org := testutil.CreateTestOrg(t, db)
	member, _ := testutil.CreateTestUser(t, db, org, models.RoleMember)

	// Empty role list admits any active member
	_, err := checker.RequireRole(ctx, member.ID, org.ID)
	assert.NoError(t, err)

	// Role list is enforced
	_, err = checker.RequireRole(ctx, member.ID, org.ID, models.RoleOwner, models.RoleAdmin)
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	_, err = checker.RequireRole(ctx, member.ID, org.ID, models.RoleMember)
	assert.NoError(t, err)
}

func TestChecker_RequireCampaignAccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	checker := access.NewChecker(db)
	ctx := context.Background()

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, nil)

	// Member of the owning org gets the campaign and their membership
	got, m, err := checker.RequireCampaignAccess(ctx, owner.ID, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.ID, got.ID)
	assert.Equal(t, models.RoleOwner, m.Role)

	// A user from a different org is denied identically to a missing campaign
	otherOrg := testutil.CreateTestOrg(t, db)
	outsider, _ := testutil.CreateTestUser(t, db, otherOrg, models.RoleOwner)

	_, _, errForeign := checker.RequireCampaignAccess(ctx, outsider.ID, campaign.ID)
	_, _, errMissing := checker.RequireCampaignAccess(ctx, owner.ID, uuid.New())
	assert.ErrorIs(t, errForeign, access.ErrPermissionDenied)
	assert.ErrorIs(t, errMissing, access.ErrPermissionDenied)
	assert.Equal(t, errMissing, errForeign)
}

func TestMembership_PermissionMatrix(t *testing.T) {
	tests := []struct {
		role      models.Role
		campaigns bool
		settings  bool
		billing   bool
		reports   bool
	}{
		{models.RoleOwner, true, true, true, true},
		{models.RoleAdmin, true, true, false, true},
		{models.RoleMember, false, false, false, false},
		{models.RoleBilling, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			m := &models.Membership{Role: tt.role, IsActive: true}
			assert.Equal(t, tt.campaigns, m.CanManageCampaigns())
			assert.Equal(t, tt.settings, m.CanManageSettings())
			assert.Equal(t, tt.billing, m.CanManageBilling())
			assert.Equal(t, tt.reports, m.CanExportReports())

			// Deactivation revokes everything
			m.IsActive = false
			assert.False(t, m.CanManageCampaigns())
			assert.False(t, m.CanManageSettings())
			assert.False(t, m.CanManageBilling())
			assert.False(t, m.CanExportReports())
		})
	}
}
