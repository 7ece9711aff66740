package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/testutil"
)

func TestClickRate(t *testing.T) {
	tests := []struct {
		clicked, sent int
		want          float64
	}{
		{0, 0, 0},   // no division by zero
		{0, 10, 0},
		{5, 10, 50},
		{10, 10, 100},
		{1, 3, 100.0 / 3},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, metrics.ClickRate(tt.clicked, tt.sent), 1e-9)
	}
}

func TestRemediationRates(t *testing.T) {
	assert.Equal(t, 0.0, metrics.RemediationCompletionRate(0, 0))
	assert.InDelta(t, 50, metrics.RemediationCompletionRate(1, 2), 1e-9)
	assert.InDelta(t, 50, metrics.RemediationPendingPct(1, 2), 1e-9)
	assert.Equal(t, 0.0, metrics.RemediationPendingPct(0, 0))

	// Assignment share is measured against clickers, not sends
	assert.InDelta(t, 100, metrics.RemediationAssignedPct(4, 4), 1e-9)
	assert.InDelta(t, 50, metrics.RemediationAssignedPct(2, 4), 1e-9)
	assert.Equal(t, 0.0, metrics.RemediationAssignedPct(0, 0))

	// Pending and completed shares always add up to the whole
	completed, assigned := 3, 7
	sum := metrics.RemediationCompletionRate(completed, assigned) +
		metrics.RemediationPendingPct(completed, assigned)
	assert.InDelta(t, 100, sum, 1e-9)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, metrics.Round2(100.0/3))
	assert.Equal(t, 66.67, metrics.Round2(200.0/3))
	assert.Equal(t, 0.0, metrics.Round2(0))
}

// seedTarget writes a target at a given progression stage.
func seedTarget(t *testing.T, db *gorm.DB, campaign *models.Campaign, employee *models.Employee, clicked, completed bool) {
	t.Helper()
	target := testutil.CreateTestTarget(t, db, campaign, employee)

	now := time.Now()
	updates := map[string]interface{}{"sent_at": now, "status": models.TargetStatusSent}
	if clicked {
		updates["link_clicked_at"] = now
		updates["remediation_assigned_at"] = now
		updates["status"] = models.TargetStatusClicked
	}
	if completed {
		updates["remediation_completed_at"] = now
	}
	require.NoError(t, db.Model(target).Updates(updates).Error)
}

func TestAggregator_ForCampaign(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, nil)

	// 4 targets: 2 clicked, 1 of those completed remediation
	seedTarget(t, db, campaign, testutil.CreateTestEmployee(t, db, org), true, true)
	seedTarget(t, db, campaign, testutil.CreateTestEmployee(t, db, org), true, false)
	seedTarget(t, db, campaign, testutil.CreateTestEmployee(t, db, org), false, false)
	seedTarget(t, db, campaign, testutil.CreateTestEmployee(t, db, org), false, false)

	stats, err := metrics.NewAggregator(db).ForCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TargetCount)
	assert.Equal(t, 4, stats.SentCount)
	assert.Equal(t, 2, stats.ClickedCount)
	assert.Equal(t, 2, stats.RemediationAssigned)
	assert.Equal(t, 1, stats.RemediationCompleted)
	assert.InDelta(t, 50, stats.ClickRate, 1e-9)
	// Both clickers got remediation assigned, half completed it
	assert.InDelta(t, 100, stats.AssignedRate, 1e-9)
	assert.InDelta(t, 50, stats.RemediationRate, 1e-9)
	assert.InDelta(t, 50, stats.PendingRate, 1e-9)
}

func TestAggregator_ForOrganization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)

	first := testutil.CreateTestCampaign(t, db, org, owner, nil)
	second := testutil.CreateTestCampaign(t, db, org, owner, nil)

	// The same employee appears in both campaigns
	shared := testutil.CreateTestEmployee(t, db, org)
	other := testutil.CreateTestEmployee(t, db, org)
	seedTarget(t, db, first, shared, true, false)
	seedTarget(t, db, first, other, false, false)
	seedTarget(t, db, second, shared, false, false)

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	stats, err := metrics.NewAggregator(db).ForOrganization(context.Background(), org.ID, from, to)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.CampaignCount)
	assert.Equal(t, 3, stats.TargetCount)
	// Distinct people, not target rows
	assert.Equal(t, 2, stats.EmployeesTrained)

	// An empty window yields zeroes, not an error
	empty, err := metrics.NewAggregator(db).ForOrganization(context.Background(), org.ID,
		from.Add(-48*time.Hour), from.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.CampaignCount)
	assert.Equal(t, 0, empty.TargetCount)
	assert.Equal(t, 0, empty.EmployeesTrained)
}
