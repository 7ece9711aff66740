package models

import (
	"time"

	"github.com/google/uuid"
)

type TargetStatus string

const (
	TargetStatusPending  TargetStatus = "PENDING"
	TargetStatusSent     TargetStatus = "SENT"
	TargetStatusOpened   TargetStatus = "OPENED"
	TargetStatusClicked  TargetStatus = "CLICKED"
	TargetStatusReported TargetStatus = "REPORTED"
)

// Target tracks one employee's participation in one campaign. The tracking
// token is the sole external identifier on the public endpoints; the row ID
// never appears in a URL.
type Target struct {
	Base
	CampaignID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_targets_campaign_employee;index" json:"campaign_id"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_targets_campaign_employee" json:"employee_id"`
	Token      string    `gorm:"uniqueIndex;not null" json:"-"`

	SentAt                 *time.Time `json:"sent_at,omitempty"`
	EmailOpenedAt          *time.Time `json:"email_opened_at,omitempty"`
	LinkClickedAt          *time.Time `json:"link_clicked_at,omitempty"`
	RemediationAssignedAt  *time.Time `json:"remediation_assigned_at,omitempty"`
	RemediationCompletedAt *time.Time `json:"remediation_completed_at,omitempty"`
	ReportedAt             *time.Time `json:"reported_at,omitempty"`

	// Status is a cache of ComputedStatus, recomputed on every mutation.
	// The timestamps are authoritative.
	Status TargetStatus `gorm:"not null;index;default:'PENDING'" json:"status"`

	// Relationships
	Campaign *Campaign `gorm:"foreignKey:CampaignID" json:"-"`
	Employee *Employee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
}

func (Target) TableName() string {
	return "campaign_targets"
}

// ComputedStatus derives the coarse status from the timestamps. The most
// advanced timestamp present wins; a report takes precedence once filed.
func (t *Target) ComputedStatus() TargetStatus {
	switch {
	case t.ReportedAt != nil:
		return TargetStatusReported
	case t.LinkClickedAt != nil:
		return TargetStatusClicked
	case t.EmailOpenedAt != nil:
		return TargetStatusOpened
	case t.SentAt != nil:
		return TargetStatusSent
	}
	return TargetStatusPending
}

// RemediationPending reports whether training was assigned but not completed.
func (t *Target) RemediationPending() bool {
	return t.RemediationAssignedAt != nil && t.RemediationCompletedAt == nil
}
