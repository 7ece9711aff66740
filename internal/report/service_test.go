package report_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/calderasec/lurelab/internal/report"
	"github.com/calderasec/lurelab/internal/testutil"
)

func newService(t *testing.T) (*report.Service, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := report.NewService(
		tc.DB,
		access.NewChecker(tc.DB),
		metrics.NewAggregator(tc.DB),
		report.NewLocalStore(t.TempDir()),
		logger,
	)
	return svc, tc
}

func TestService_Generate_InvalidRange(t *testing.T) {
	svc, tc := newService(t)
	defer tc.Cleanup()
	ctx := context.Background()

	now := time.Now()
	tests := []struct {
		name string
		from time.Time
		to   time.Time
	}{
		{"zero from", time.Time{}, now},
		{"zero to", now, time.Time{}},
		{"reversed", now, now.AddDate(0, -1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, tc.User.ID, tc.Org.ID, tt.from, tt.to)
			assert.ErrorIs(t, err, report.ErrInvalidRange)
		})
	}
}

func TestService_Generate_PermissionDenied(t *testing.T) {
	svc, tc := newService(t)
	defer tc.Cleanup()
	ctx := context.Background()

	member, _ := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

	_, err := svc.Generate(ctx, member.ID, tc.Org.ID, time.Now().AddDate(0, -1, 0), time.Now())
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestService_GenerateListDownloadDelete(t *testing.T) {
	svc, tc := newService(t)
	defer tc.Cleanup()
	ctx := context.Background()

	campaign := testutil.CreateTestCampaign(t, tc.DB, tc.Org, tc.User, nil)
	employee := testutil.CreateTestEmployee(t, tc.DB, tc.Org)
	target := testutil.CreateTestTarget(t, tc.DB, campaign, employee)
	now := time.Now()
	require.NoError(t, tc.DB.Model(target).Updates(map[string]interface{}{
		"sent_at":         now,
		"link_clicked_at": now,
		"status":          models.TargetStatusClicked,
	}).Error)

	rep, err := svc.Generate(ctx, tc.User.ID, tc.Org.ID, now.AddDate(0, -1, 0), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.CampaignCount)
	assert.Equal(t, 1, rep.TargetCount)
	assert.Equal(t, 1, rep.ClickedCount)
	assert.NotEmpty(t, rep.FilePath)

	reports, err := svc.List(ctx, tc.User.ID, tc.Org.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	got, data, err := svc.Download(ctx, tc.User.ID, tc.Org.ID, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, got.ID)
	// PDF files start with the %PDF magic
	require.True(t, len(data) > 4)
	assert.Equal(t, "%PDF", string(data[:4]))

	require.NoError(t, svc.Delete(ctx, tc.User.ID, tc.Org.ID, rep.ID))

	_, _, err = svc.Download(ctx, tc.User.ID, tc.Org.ID, rep.ID)
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestService_Download_OtherOrgReport(t *testing.T) {
	svc, tc := newService(t)
	defer tc.Cleanup()
	ctx := context.Background()

	now := time.Now()
	rep, err := svc.Generate(ctx, tc.User.ID, tc.Org.ID, now.AddDate(0, -1, 0), now)
	require.NoError(t, err)

	other := testutil.CreateTestOrg(t, tc.DB)
	outsider, _ := testutil.CreateTestUser(t, tc.DB, other, models.RoleOwner)

	_, _, err = svc.Download(ctx, outsider.ID, other.ID, rep.ID)
	assert.ErrorIs(t, err, report.ErrNotFound)
}
