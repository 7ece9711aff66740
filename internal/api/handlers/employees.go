package handlers

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/calderasec/lurelab/internal/access"
	"github.com/calderasec/lurelab/internal/api/dto"
	"github.com/calderasec/lurelab/internal/api/middleware"
	"github.com/calderasec/lurelab/internal/database/models"
)

type EmployeeHandler struct {
	db      *gorm.DB
	checker *access.Checker
}

func NewEmployeeHandler(db *gorm.DB, checker *access.Checker) *EmployeeHandler {
	return &EmployeeHandler{db: db, checker: checker}
}

type EmployeeRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Position  string `json:"position"`
}

func (r EmployeeRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.FirstName == "" {
		errors["first_name"] = "First name is required"
	}
	if r.LastName == "" {
		errors["last_name"] = "Last name is required"
	}
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !strings.Contains(r.Email, "@") {
		errors["email"] = "Must be a valid email address"
	}
	return errors
}

// List handles GET /api/v1/employees
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	if _, err := h.checker.ResolveMembership(r.Context(), userID, orgID); err != nil {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.WithContext(r.Context()).
		Model(&models.Employee{}).
		Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count employees"})
		return
	}

	var employees []models.Employee
	if err := query.
		Order("last_name ASC, first_name ASC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&employees).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list employees"})
		return
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       employees,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// Create handles POST /api/v1/employees
func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	var req EmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	employee := models.Employee{
		OrganizationID: orgID,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Position:       strings.TrimSpace(req.Position),
	}

	if err := h.db.WithContext(r.Context()).Create(&employee).Error; err != nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Employee with this email already exists"})
		return
	}

	writeJSON(w, http.StatusCreated, employee)
}

// Update handles PUT /api/v1/employees/{id}
func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	employeeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Employee not found"})
		return
	}

	var employee models.Employee
	if err := h.db.WithContext(r.Context()).
		First(&employee, "id = ? AND organization_id = ?", employeeID, orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Employee not found"})
		return
	}

	var req EmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	employee.FirstName = strings.TrimSpace(req.FirstName)
	employee.LastName = strings.TrimSpace(req.LastName)
	employee.Email = strings.ToLower(strings.TrimSpace(req.Email))
	employee.Position = strings.TrimSpace(req.Position)

	if err := h.db.WithContext(r.Context()).Save(&employee).Error; err != nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Employee with this email already exists"})
		return
	}

	writeJSON(w, http.StatusOK, employee)
}

// Delete handles DELETE /api/v1/employees/{id}
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	employeeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Employee not found"})
		return
	}

	result := h.db.WithContext(r.Context()).
		Where("id = ? AND organization_id = ?", employeeID, orgID).
		Delete(&models.Employee{})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete employee"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Employee not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Employee deleted"})
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Import handles POST /api/v1/employees/import. The body is a CSV with a
// header row of first_name,last_name,email[,position]. Rows whose email
// already exists in the roster are skipped, not overwritten.
func (h *EmployeeHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := middleware.GetOrganizationID(r.Context())

	membership, err := h.checker.ResolveMembership(r.Context(), userID, orgID)
	if err != nil || !membership.CanManageSettings() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
		return
	}

	reader := csv.NewReader(r.Body)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid CSV"})
		return
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"first_name", "last_name", "email"} {
		if _, ok := cols[required]; !ok {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: "Missing required column: " + required,
			})
			return
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var result ImportResult
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": malformed row")
			result.Skipped++
			continue
		}

		employee := models.Employee{
			OrganizationID: orgID,
			FirstName:      field(record, "first_name"),
			LastName:       field(record, "last_name"),
			Email:          strings.ToLower(field(record, "email")),
			Position:       field(record, "position"),
		}
		if employee.FirstName == "" || employee.LastName == "" || !strings.Contains(employee.Email, "@") {
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": missing name or invalid email")
			result.Skipped++
			continue
		}

		res := h.db.WithContext(r.Context()).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&employee)
		if res.Error != nil {
			result.Errors = append(result.Errors, "line "+strconv.Itoa(line)+": "+res.Error.Error())
			result.Skipped++
			continue
		}
		if res.RowsAffected == 0 {
			result.Skipped++
			continue
		}
		result.Imported++
	}

	writeJSON(w, http.StatusOK, result)
}

