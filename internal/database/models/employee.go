package models

import "github.com/google/uuid"

// Employee is a member of an organization's staff who receives simulated
// phishing emails. Employees are not users of the platform.
type Employee struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_employees_org_email" json:"organization_id"`
	FirstName      string    `gorm:"not null" json:"first_name"`
	LastName       string    `gorm:"not null" json:"last_name"`
	Email          string    `gorm:"not null;uniqueIndex:idx_employees_org_email" json:"email"`
	Position       string    `json:"position,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Employee) TableName() string {
	return "employees"
}
