package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calderasec/lurelab/internal/auth"
	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/pkg/crypto"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Membership{},
		&models.Employee{},
		&models.EmailTemplate{},
		&models.Campaign{},
		&models.Target{},
		&models.ComplianceReport{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a test organization on the free trial
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:               "Test Clinic",
		Type:               models.OrgTypeClinic,
		SubscriptionTier:   models.TierFreeTrial,
		SubscriptionStatus: models.SubscriptionTrial,
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestUser creates a test user with a membership in the organization
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization, role models.Role) (*models.User, *models.Membership) {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	membership := &models.Membership{
		UserID:         user.ID,
		OrganizationID: org.ID,
		Role:           role,
		IsActive:       true,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed to create test membership: %v", err)
	}

	return user, membership
}

// CreateTestEmployee adds an employee to the organization's roster
func CreateTestEmployee(t *testing.T, db *gorm.DB, org *models.Organization) *models.Employee {
	t.Helper()

	employee := &models.Employee{
		OrganizationID: org.ID,
		FirstName:      "Pat",
		LastName:       "Rivera",
		Email:          "employee-" + uuid.New().String()[:8] + "@example.com",
		Position:       "Nurse",
	}
	if err := db.Create(employee).Error; err != nil {
		t.Fatalf("failed to create test employee: %v", err)
	}

	return employee
}

// CreateTestTemplate creates an email template with the tracking placeholder
func CreateTestTemplate(t *testing.T, db *gorm.DB) *models.EmailTemplate {
	t.Helper()

	template := &models.EmailTemplate{
		Name:        "Password Reset",
		Subject:     "Action required: reset your password",
		BodyHTML:    `<p>Your password expires today. <a href="{{tracking_link}}">Reset now</a></p>`,
		SenderName:  "IT Support",
		SenderEmail: "it-support@example.com",
		Difficulty:  models.DifficultyEasy,
	}
	if err := db.Create(template).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}

	return template
}

// CreateTestCampaign creates a DRAFT campaign
func CreateTestCampaign(t *testing.T, db *gorm.DB, org *models.Organization, creator *models.User, template *models.EmailTemplate) *models.Campaign {
	t.Helper()

	campaign := &models.Campaign{
		OrganizationID: org.ID,
		Name:           "Q1 Awareness",
		Status:         models.CampaignStatusDraft,
		CreatedByID:    creator.ID,
	}
	if template != nil {
		campaign.EmailTemplateID = &template.ID
	}
	if err := db.Create(campaign).Error; err != nil {
		t.Fatalf("failed to create test campaign: %v", err)
	}

	return campaign
}

// CreateTestTarget creates a PENDING target with a fresh tracking token
func CreateTestTarget(t *testing.T, db *gorm.DB, campaign *models.Campaign, employee *models.Employee) *models.Target {
	t.Helper()

	token, err := crypto.GenerateTrackingToken()
	if err != nil {
		t.Fatalf("failed to generate tracking token: %v", err)
	}

	target := &models.Target{
		CampaignID: campaign.ID,
		EmployeeID: employee.ID,
		Token:      token,
		Status:     models.TargetStatusPending,
	}
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("failed to create test target: %v", err)
	}

	return target
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, membership *models.Membership) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, membership.OrganizationID, user.Email, membership.Role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// Context returns a background context for service-level tests
func Context() context.Context {
	return context.Background()
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	User       *models.User
	Membership *models.Membership
	Token      string
}

// NewTestContext creates a complete test setup with DB, org, owner, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	user, membership := CreateTestUser(t, db, org, models.RoleOwner)
	token := GenerateTestToken(t, jwtService, user, membership)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		User:       user,
		Membership: membership,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
