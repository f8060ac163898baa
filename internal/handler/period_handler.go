package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/krs-admission-api/internal/models"
	"github.com/noah-isme/krs-admission-api/internal/service"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/response"
)

type eligibilityService interface {
	ListPeriods() []models.RegistrationPeriod
	GetPeriod(id string) (*models.RegistrationPeriod, error)
	CreatePeriod(ctx context.Context, req service.CreatePeriodRequest) (*models.RegistrationPeriod, error)
	UpdatePeriod(ctx context.Context, id string, req service.UpdatePeriodRequest) (*models.RegistrationPeriod, error)
	DeletePeriod(ctx context.Context, id string) error
	CreateWindow(ctx context.Context, periodID string, req service.CreateWindowRequest) (*models.RegistrationWindow, error)
	ListWindows(periodID, studentID string) ([]models.RegistrationWindow, error)
	DeleteWindow(ctx context.Context, id string) error
	RefreshStatus(ctx context.Context) ([]string, error)
	CanRegister(studentID, courseGroupID string) models.EligibilityDecision
}

// PeriodHandler exposes registration periods, windows and eligibility checks.
type PeriodHandler struct {
	service eligibilityService
}

// NewPeriodHandler constructs the handler.
func NewPeriodHandler(svc eligibilityService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// List godoc
// @Summary List registration periods
// @Tags Registration Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registration-periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	periods := h.service.ListPeriods()
	response.JSON(c, http.StatusOK, periods, map[string]interface{}{"total": len(periods)})
}

// Get godoc
// @Summary Get a registration period
// @Tags Registration Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registration-periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.service.GetPeriod(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period)
}

// Create godoc
// @Summary Create a registration period
// @Tags Registration Periods
// @Accept json
// @Produce json
// @Param payload body service.CreatePeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registration-periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req service.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period payload"))
		return
	}
	period, err := h.service.CreatePeriod(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Update godoc
// @Summary Update a registration period
// @Description Status is recomputed from the new time range.
// @Tags Registration Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body service.UpdatePeriodRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /registration-periods/{id} [put]
func (h *PeriodHandler) Update(c *gin.Context) {
	var req service.UpdatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period payload"))
		return
	}
	period, err := h.service.UpdatePeriod(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period)
}

// Delete godoc
// @Summary Delete a registration period and its windows
// @Tags Registration Periods
// @Param id path string true "Period ID"
// @Success 204
// @Router /registration-periods/{id} [delete]
func (h *PeriodHandler) Delete(c *gin.Context) {
	if err := h.service.DeletePeriod(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateWindow godoc
// @Summary Open a registration window for a student
// @Tags Registration Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body service.CreateWindowRequest true "Window payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registration-periods/{id}/windows [post]
func (h *PeriodHandler) CreateWindow(c *gin.Context) {
	var req service.CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid window payload"))
		return
	}
	window, err := h.service.CreateWindow(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// ListWindows godoc
// @Summary List windows of a period
// @Tags Registration Periods
// @Produce json
// @Param id path string true "Period ID"
// @Param student_id query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Router /registration-periods/{id}/windows [get]
func (h *PeriodHandler) ListWindows(c *gin.Context) {
	windows, err := h.service.ListWindows(c.Param("id"), strings.TrimSpace(c.Query("student_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows)
}

// DeleteWindow godoc
// @Summary Delete a registration window
// @Tags Registration Periods
// @Param id path string true "Period ID"
// @Param windowId path string true "Window ID"
// @Success 204
// @Router /registration-periods/{id}/windows/{windowId} [delete]
func (h *PeriodHandler) DeleteWindow(c *gin.Context) {
	if err := h.service.DeleteWindow(c.Request.Context(), c.Param("windowId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Refresh godoc
// @Summary Recompute period statuses from the clock
// @Tags Registration Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registration-periods/refresh [post]
func (h *PeriodHandler) Refresh(c *gin.Context) {
	changed, err := h.service.RefreshStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	response.JSON(c, http.StatusOK, gin.H{"changed": changed})
}

// Eligibility godoc
// @Summary Check whether a student may register for a course group now
// @Tags Registration Periods
// @Produce json
// @Param student_id query string true "Student ID"
// @Param course_group_id query string true "Course group ID"
// @Success 200 {object} response.Envelope
// @Router /eligibility [get]
func (h *PeriodHandler) Eligibility(c *gin.Context) {
	studentID := strings.TrimSpace(c.Query("student_id"))
	groupID := strings.TrimSpace(c.Query("course_group_id"))
	if studentID == "" || groupID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id and course_group_id are required"))
		return
	}
	response.JSON(c, http.StatusOK, h.service.CanRegister(studentID, groupID))
}
