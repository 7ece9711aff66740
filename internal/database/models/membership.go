package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of membership roles. Permission checks switch
// exhaustively over this type so adding a role forces every call site to be
// reconsidered.
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleMember  Role = "MEMBER"
	RoleBilling Role = "BILLING"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleBilling:
		return true
	}
	return false
}

// Membership links a user to an organization with a role. At most one
// membership exists per (user, organization) pair; an organization gets its
// OWNER membership atomically at creation.
type Membership struct {
	Base
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_org" json:"user_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_org;index" json:"organization_id"`
	Role           Role      `gorm:"not null;default:'MEMBER'" json:"role"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`

	// Invitation audit trail
	InvitedByID *uuid.UUID `gorm:"type:uuid" json:"invited_by_id,omitempty"`
	InvitedAt   *time.Time `json:"invited_at,omitempty"`

	// Relationships
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Membership) TableName() string {
	return "memberships"
}

// CanManageCampaigns reports whether the member may create, edit, and send
// campaigns.
func (m *Membership) CanManageCampaigns() bool {
	if !m.IsActive {
		return false
	}
	switch m.Role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember, RoleBilling:
		return false
	}
	return false
}

// CanManageSettings reports whether the member may modify organization
// settings, including the employee roster and SMTP configuration.
func (m *Membership) CanManageSettings() bool {
	if !m.IsActive {
		return false
	}
	switch m.Role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember, RoleBilling:
		return false
	}
	return false
}

// CanManageBilling reports whether the member may view and change the
// subscription.
func (m *Membership) CanManageBilling() bool {
	if !m.IsActive {
		return false
	}
	switch m.Role {
	case RoleOwner, RoleBilling:
		return true
	case RoleAdmin, RoleMember:
		return false
	}
	return false
}

// CanExportReports reports whether the member may generate and download
// compliance reports.
func (m *Membership) CanExportReports() bool {
	if !m.IsActive {
		return false
	}
	switch m.Role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember, RoleBilling:
		return false
	}
	return false
}

// IsOwner reports whether the member is the active organization owner.
func (m *Membership) IsOwner() bool {
	return m.IsActive && m.Role == RoleOwner
}
