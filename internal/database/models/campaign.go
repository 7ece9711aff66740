package models

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
)

// Campaign is one phishing simulation run against a set of employees. It
// reaches ACTIVE only after at least one target has been dispatched.
type Campaign struct {
	Base
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string         `gorm:"not null" json:"name"`
	Description    string         `json:"description,omitempty"`
	Status         CampaignStatus `gorm:"not null;index;default:'DRAFT'" json:"status"`

	// Template is nullable: deleting a template must not delete campaigns
	// that used it.
	EmailTemplateID *uuid.UUID `gorm:"type:uuid" json:"email_template_id,omitempty"`

	ScheduledSendAt *time.Time `json:"scheduled_send_at,omitempty"`
	CreatedByID     uuid.UUID  `gorm:"type:uuid;not null" json:"created_by_id"`

	// Asynq task ID when a scheduled dispatch is queued
	TaskID string `gorm:"index" json:"task_id,omitempty"`

	// Relationships
	Organization  *Organization  `gorm:"foreignKey:OrganizationID" json:"-"`
	EmailTemplate *EmailTemplate `gorm:"foreignKey:EmailTemplateID" json:"email_template,omitempty"`
	CreatedBy     *User          `gorm:"foreignKey:CreatedByID" json:"-"`
	Targets       []Target       `gorm:"foreignKey:CampaignID" json:"-"`
}

func (Campaign) TableName() string {
	return "campaigns"
}
