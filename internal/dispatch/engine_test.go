package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/dispatch"
	"github.com/calderasec/lurelab/internal/mailer"
	"github.com/calderasec/lurelab/internal/testutil"
)

// fakeMailer records sent messages and fails addresses on its blocklist.
type fakeMailer struct {
	sent    []mailer.Message
	failing map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.failing[msg.ToAddress] {
		return errors.New("relay rejected recipient")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSource struct {
	mailer *fakeMailer
}

func (f *fakeSource) ForOrganization(_ *models.Organization) (mailer.Mailer, error) {
	return f.mailer, nil
}

func newEngine(db *gorm.DB, fm *fakeMailer) *dispatch.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return dispatch.NewEngine(db, &fakeSource{mailer: fm}, "https://t.example.com", logger)
}

func TestEngine_Send(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	template := testutil.CreateTestTemplate(t, db)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, template)

	employee := testutil.CreateTestEmployee(t, db, org)
	target := testutil.CreateTestTarget(t, db, campaign, employee)

	fm := &fakeMailer{failing: map[string]bool{}}
	engine := newEngine(db, fm)

	result, err := engine.Send(context.Background(), campaign)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SentCount)
	assert.Empty(t, result.Failures)

	// Rendered body carries the tracking link and the open pixel
	require.Len(t, fm.sent, 1)
	body := fm.sent[0].HTMLBody
	assert.Contains(t, body, "https://t.example.com/t/"+target.Token)
	assert.Contains(t, body, "/t/"+target.Token+"/open.gif")
	assert.False(t, strings.Contains(body, models.TrackingLinkPlaceholder))

	// Target marked, campaign promoted
	var fresh models.Target
	require.NoError(t, db.First(&fresh, "id = ?", target.ID).Error)
	assert.Equal(t, models.TargetStatusSent, fresh.Status)
	assert.NotNil(t, fresh.SentAt)

	var freshCampaign models.Campaign
	require.NoError(t, db.First(&freshCampaign, "id = ?", campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusActive, freshCampaign.Status)
}

func TestEngine_Send_PartialFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	template := testutil.CreateTestTemplate(t, db)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, template)

	var employees []*models.Employee
	for i := 0; i < 3; i++ {
		employee := testutil.CreateTestEmployee(t, db, org)
		employees = append(employees, employee)
		testutil.CreateTestTarget(t, db, campaign, employee)
	}

	// Second recipient bounces at the relay
	fm := &fakeMailer{failing: map[string]bool{employees[1].Email: true}}
	engine := newEngine(db, fm)

	result, err := engine.Send(context.Background(), campaign)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SentCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, employees[1].Email, result.Failures[0].EmployeeEmail)

	// Failed target stays PENDING for the next pass
	var pending int64
	require.NoError(t, db.Model(&models.Target{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.TargetStatusPending).
		Count(&pending).Error)
	assert.EqualValues(t, 1, pending)

	// Partial success still activates the campaign
	var freshCampaign models.Campaign
	require.NoError(t, db.First(&freshCampaign, "id = ?", campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusActive, freshCampaign.Status)

	// A retry only touches the still-pending target
	fm.failing = map[string]bool{}
	retry, err := engine.Send(context.Background(), campaign)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.SentCount)
	assert.Empty(t, retry.Failures)
}

func TestEngine_Send_NoTemplate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, nil)

	engine := newEngine(db, &fakeMailer{failing: map[string]bool{}})

	_, err := engine.Send(context.Background(), campaign)
	assert.ErrorIs(t, err, dispatch.ErrNoTemplate)

	// Status untouched
	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusDraft, fresh.Status)
}

func TestEngine_Send_AllFailuresDoNotActivate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	owner, _ := testutil.CreateTestUser(t, db, org, models.RoleOwner)
	template := testutil.CreateTestTemplate(t, db)
	campaign := testutil.CreateTestCampaign(t, db, org, owner, template)
	employee := testutil.CreateTestEmployee(t, db, org)
	testutil.CreateTestTarget(t, db, campaign, employee)

	fm := &fakeMailer{failing: map[string]bool{employee.Email: true}}
	engine := newEngine(db, fm)

	result, err := engine.Send(context.Background(), campaign)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SentCount)
	require.Len(t, result.Failures, 1)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusDraft, fresh.Status)
}
