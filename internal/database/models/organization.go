package models

// SubscriptionTier is the plan an organization is on.
type SubscriptionTier string

const (
	TierFreeTrial    SubscriptionTier = "FREE_TRIAL"
	TierProfessional SubscriptionTier = "PROFESSIONAL"
	TierEnterprise   SubscriptionTier = "ENTERPRISE"
)

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionTrial      SubscriptionStatus = "TRIAL"
	SubscriptionActive     SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled   SubscriptionStatus = "CANCELED"
	SubscriptionIncomplete SubscriptionStatus = "INCOMPLETE"
)

// OrganizationType categorizes the healthcare organizations we onboard.
type OrganizationType string

const (
	OrgTypeHospital   OrganizationType = "HOSPITAL"
	OrgTypeClinic     OrganizationType = "CLINIC"
	OrgTypePharmacy   OrganizationType = "PHARMACY"
	OrgTypeLaboratory OrganizationType = "LABORATORY"
	OrgTypeOther      OrganizationType = "OTHER"
)

// Organization is the tenant boundary. Subscription fields are mutated only
// by the billing integration and the trial counter increment in the
// entitlement gate.
type Organization struct {
	Base
	Name string           `gorm:"not null" json:"name"`
	Type OrganizationType `gorm:"not null;default:'OTHER'" json:"type"`

	SubscriptionTier   SubscriptionTier   `gorm:"not null;default:'FREE_TRIAL'" json:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `gorm:"not null;default:'TRIAL'" json:"subscription_status"`
	// Lifetime count, not per-period. A FREE_TRIAL org gets exactly one campaign.
	TrialCampaignsUsed int `gorm:"not null;default:0" json:"trial_campaigns_used"`

	Website    string `json:"website,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `gorm:"default:'United States'" json:"country,omitempty"`

	// Optional per-org SMTP override. Password is age-encrypted at rest.
	SMTPHost              string `json:"-"`
	SMTPPort              int    `json:"-"`
	SMTPUsername          string `json:"-"`
	SMTPPasswordEncrypted string `json:"-"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:OrganizationID" json:"-"`
	Employees   []Employee   `gorm:"foreignKey:OrganizationID" json:"-"`
	Campaigns   []Campaign   `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// HasCustomSMTP reports whether the org configured its own mail relay.
func (o *Organization) HasCustomSMTP() bool {
	return o.SMTPHost != "" && o.SMTPPort > 0
}
