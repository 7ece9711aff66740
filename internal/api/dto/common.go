package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the tag-based rules and flattens failures into the
// field map carried by ErrorResponse.Details. Keys come from the json tag.
func validateStruct(s interface{}) map[string]string {
	errors := make(map[string]string)

	err := validate.Struct(s)
	if err == nil {
		return errors
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errors["_"] = "Invalid request"
		return errors
	}

	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Must be a valid email address"
		case "min":
			errors[field] = "Must be at least " + fe.Param() + " characters"
		case "max":
			errors[field] = "Must be at most " + fe.Param() + " characters"
		case "oneof":
			errors[field] = "Must be one of: " + fe.Param()
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
