package tracking_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/testutil"
	"github.com/calderasec/lurelab/internal/tracking"
)

type fixture struct {
	db      *gorm.DB
	svc     *tracking.Service
	target  *models.Target
	ctx     context.Context
	cleanup func()
}

func setup(t *testing.T) *fixture {
	db := testutil.SetupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, nil)
	employee := testutil.CreateTestEmployee(t, db, org)
	target := testutil.CreateTestTarget(t, db, campaign, employee)

	return &fixture{
		db:      db,
		svc:     tracking.NewService(db, logger),
		target:  target,
		ctx:     context.Background(),
		cleanup: func() { testutil.CleanupTestDB(t, db) },
	}
}

func (f *fixture) markSent(t *testing.T) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.db.Model(f.target).Updates(map[string]interface{}{
		"sent_at": now,
		"status":  models.TargetStatusSent,
	}).Error)
}

func (f *fixture) reload(t *testing.T) *models.Target {
	t.Helper()
	var fresh models.Target
	require.NoError(t, f.db.First(&fresh, "id = ?", f.target.ID).Error)
	return &fresh
}

func TestRecordClick_AssignsRemediation(t *testing.T) {
	f := setup(t)
	defer f.cleanup()
	f.markSent(t)

	event, err := f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)
	assert.Equal(t, "Pat", event.EmployeeFirstName)
	assert.Equal(t, "Q1 Awareness", event.CampaignName)
	require.NotNil(t, event.RemediationAssignedAt)
	assert.Nil(t, event.RemediationCompletedAt)

	fresh := f.reload(t)
	assert.Equal(t, models.TargetStatusClicked, fresh.Status)
	require.NotNil(t, fresh.LinkClickedAt)
	require.NotNil(t, fresh.RemediationAssignedAt)
	assert.True(t, fresh.RemediationPending())
}

func TestRecordClick_Idempotent(t *testing.T) {
	f := setup(t)
	defer f.cleanup()
	f.markSent(t)

	_, err := f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)

	first := f.reload(t)

	// Replays succeed and keep the original timestamps
	_, err = f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)

	second := f.reload(t)
	assert.Equal(t, first.LinkClickedAt.UnixNano(), second.LinkClickedAt.UnixNano())
	assert.Equal(t, first.RemediationAssignedAt.UnixNano(), second.RemediationAssignedAt.UnixNano())
}

func TestRecordOpen(t *testing.T) {
	f := setup(t)
	defer f.cleanup()
	f.markSent(t)

	_, err := f.svc.RecordOpen(f.ctx, f.target.Token)
	require.NoError(t, err)

	fresh := f.reload(t)
	assert.Equal(t, models.TargetStatusOpened, fresh.Status)
	require.NotNil(t, fresh.EmailOpenedAt)
	assert.Nil(t, fresh.LinkClickedAt)

	// An open after a click must not regress the status
	_, err = f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)
	_, err = f.svc.RecordOpen(f.ctx, f.target.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusClicked, f.reload(t).Status)
}

func TestCompleteRemediation(t *testing.T) {
	f := setup(t)
	defer f.cleanup()
	f.markSent(t)

	// Completion requires a prior assignment
	_, err := f.svc.CompleteRemediation(f.ctx, f.target.Token, true)
	assert.ErrorIs(t, err, tracking.ErrNotAssigned)

	_, err = f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)

	// And an explicit acknowledgment
	_, err = f.svc.CompleteRemediation(f.ctx, f.target.Token, false)
	assert.ErrorIs(t, err, tracking.ErrNotAcknowledged)

	event, err := f.svc.CompleteRemediation(f.ctx, f.target.Token, true)
	require.NoError(t, err)
	require.NotNil(t, event.RemediationCompletedAt)

	// Repeat completion keeps the first timestamp
	first := f.reload(t)
	_, err = f.svc.CompleteRemediation(f.ctx, f.target.Token, true)
	require.NoError(t, err)
	second := f.reload(t)
	assert.Equal(t, first.RemediationCompletedAt.UnixNano(), second.RemediationCompletedAt.UnixNano())
	assert.False(t, second.RemediationPending())
}

func TestReportPhish(t *testing.T) {
	f := setup(t)
	defer f.cleanup()

	// Reporting before the email went out is rejected
	_, err := f.svc.ReportPhish(f.ctx, f.target.Token)
	assert.ErrorIs(t, err, tracking.ErrNotSent)

	f.markSent(t)
	_, err = f.svc.ReportPhish(f.ctx, f.target.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusReported, f.reload(t).Status)

	// A report outranks a later click in the cached status
	_, err = f.svc.RecordClick(f.ctx, f.target.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TargetStatusReported, f.reload(t).Status)
}

func TestUnknownToken(t *testing.T) {
	f := setup(t)
	defer f.cleanup()
	f.markSent(t)

	// Garbage and well-formed-but-unknown tokens are indistinguishable
	for _, token := range []string{"not-a-token", "00000000000000000000000000000000", ""} {
		_, err := f.svc.RecordClick(f.ctx, token)
		assert.ErrorIs(t, err, tracking.ErrNotFound)

		_, err = f.svc.RecordOpen(f.ctx, token)
		assert.ErrorIs(t, err, tracking.ErrNotFound)

		_, err = f.svc.CompleteRemediation(f.ctx, token, true)
		assert.ErrorIs(t, err, tracking.ErrNotFound)

		_, err = f.svc.ReportPhish(f.ctx, token)
		assert.ErrorIs(t, err, tracking.ErrNotFound)
	}

	// And nothing about the real target moved
	fresh := f.reload(t)
	assert.Equal(t, models.TargetStatusSent, fresh.Status)
	assert.Nil(t, fresh.LinkClickedAt)
	assert.Nil(t, fresh.EmailOpenedAt)
	assert.Nil(t, fresh.ReportedAt)
}

func TestComputedStatusOrdering(t *testing.T) {
	now := time.Now()
	target := &models.Target{}
	assert.Equal(t, models.TargetStatusPending, target.ComputedStatus())

	target.SentAt = &now
	assert.Equal(t, models.TargetStatusSent, target.ComputedStatus())

	target.EmailOpenedAt = &now
	assert.Equal(t, models.TargetStatusOpened, target.ComputedStatus())

	target.LinkClickedAt = &now
	assert.Equal(t, models.TargetStatusClicked, target.ComputedStatus())

	target.ReportedAt = &now
	assert.Equal(t, models.TargetStatusReported, target.ComputedStatus())
}
