package auth

import (
	"context"
	"errors"
	"time"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrNoMembership       = errors.New("user has no active organization membership")
)

type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	OrgName  string
	OrgType  models.OrganizationType
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token        string             `json:"token"`
	User         *models.User       `json:"user"`
	Organization *models.Organization `json:"organization"`
	Role         models.Role        `json:"role"`
}

// Register creates the user, their organization, and the OWNER membership in
// one transaction. New organizations start on the free trial tier.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	orgType := input.OrgType
	if !validOrgType(orgType) {
		orgType = models.OrgTypeOther
	}
	orgName := input.OrgName
	if orgName == "" {
		orgName = input.Name + "'s Organization"
	}

	org := models.Organization{
		Name:               orgName,
		Type:               orgType,
		SubscriptionTier:   models.TierFreeTrial,
		SubscriptionStatus: models.SubscriptionTrial,
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		user = models.User{
			Email:        input.Email,
			PasswordHash: hash,
			Name:         input.Name,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		now := time.Now()
		membership := models.Membership{
			UserID:         user.ID,
			OrganizationID: org.ID,
			Role:           models.RoleOwner,
			IsActive:       true,
			InvitedAt:      &now,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user.ID, org.ID, user.Email, models.RoleOwner)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:        token,
		User:         &user,
		Organization: &org,
		Role:         models.RoleOwner,
	}, nil
}

// Login authenticates the user and issues a token scoped to their active
// organization membership.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", input.Email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	var membership models.Membership
	if err := s.db.WithContext(ctx).
		Preload("Organization").
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Order("created_at ASC").
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoMembership
		}
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user.ID, membership.OrganizationID, user.Email, membership.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:        token,
		User:         &user,
		Organization: membership.Organization,
		Role:         membership.Role,
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func validOrgType(t models.OrganizationType) bool {
	switch t {
	case models.OrgTypeHospital, models.OrgTypeClinic, models.OrgTypePharmacy,
		models.OrgTypeLaboratory, models.OrgTypeOther:
		return true
	}
	return false
}
