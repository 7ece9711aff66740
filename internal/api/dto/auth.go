package dto

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	OrgName  string `json:"org_name" validate:"required"`
	OrgType  string `json:"org_type" validate:"omitempty,oneof=HOSPITAL CLINIC PHARMACY LABORATORY OTHER"`
}

func (r RegisterRequest) Validate() map[string]string {
	return validateStruct(r)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r LoginRequest) Validate() map[string]string {
	return validateStruct(r)
}

type AuthResponse struct {
	Token        string          `json:"token"`
	User         UserDTO         `json:"user"`
	Organization OrganizationDTO `json:"organization"`
	Role         string          `json:"role"`
}

type UserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type OrganizationDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	SubscriptionTier   string `json:"subscription_tier"`
	SubscriptionStatus string `json:"subscription_status"`
}
