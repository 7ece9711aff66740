package models

import (
	"time"

	"github.com/google/uuid"
)

// ComplianceReport is a generated point-in-time snapshot of an organization's
// phishing-awareness metrics over a date range, stored as a rendered PDF.
type ComplianceReport struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	GeneratedByID  uuid.UUID `gorm:"type:uuid;not null" json:"generated_by_id"`

	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`

	// Snapshot counters, frozen at generation time
	CampaignCount        int `gorm:"default:0" json:"campaign_count"`
	TargetCount          int `gorm:"default:0" json:"target_count"`
	SentCount            int `gorm:"default:0" json:"sent_count"`
	ClickedCount         int `gorm:"default:0" json:"clicked_count"`
	RemediationAssigned  int `gorm:"default:0" json:"remediation_assigned"`
	RemediationCompleted int `gorm:"default:0" json:"remediation_completed"`
	EmployeesTrained     int `gorm:"default:0" json:"employees_trained"`

	// Campaigns included in the snapshot
	CampaignIDs UUIDArray `gorm:"type:uuid[];serializer:json" json:"campaign_ids,omitempty"`

	// Path of the rendered PDF in the configured file store
	FilePath string `gorm:"not null" json:"file_path"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	GeneratedBy  *User         `gorm:"foreignKey:GeneratedByID" json:"-"`
}

func (ComplianceReport) TableName() string {
	return "compliance_reports"
}
