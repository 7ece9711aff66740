package models

// TrackingLinkPlaceholder is the literal token in a template body that the
// dispatch engine replaces with the per-target tracking URL.
const TrackingLinkPlaceholder = "{{tracking_link}}"

type TemplateDifficulty string

const (
	DifficultyEasy   TemplateDifficulty = "EASY"
	DifficultyMedium TemplateDifficulty = "MEDIUM"
	DifficultyHard   TemplateDifficulty = "HARD"
)

// EmailTemplate is a reusable phishing email template. BodyHTML contains the
// {{tracking_link}} placeholder.
type EmailTemplate struct {
	Base
	Name               string             `gorm:"not null" json:"name"`
	Subject            string             `gorm:"not null" json:"subject"`
	BodyHTML           string             `gorm:"not null" json:"body_html"`
	SenderName         string             `gorm:"not null" json:"sender_name"`
	SenderEmail        string             `gorm:"not null" json:"sender_email"`
	PhishingIndicators string             `json:"phishing_indicators,omitempty"`
	Difficulty         TemplateDifficulty `gorm:"default:'MEDIUM'" json:"difficulty"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}
