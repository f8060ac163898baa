package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/krs-admission-api/internal/dto"
	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/response"
)

type scheduleService interface {
	CheckProposal(proposed, existing []models.ScheduledClass) []models.ClassConflict
	DailySchedule(classes []models.ScheduledClass) models.DaySchedule
	BreaksBetweenClasses(schedule models.DaySchedule) []models.Break
	ValidateBalance(classes []models.ScheduledClass) models.BalanceReport
	CalculateScheduleQuality(classes []models.ScheduledClass) models.QualityReport
	GenerateAlternatives(ctx context.Context, periodID string, proposed, existing []models.ScheduledClass) ([]models.AlternativeSchedule, error)
}

// ScheduleHandler exposes the conflict and optimisation engine.
type ScheduleHandler struct {
	service   scheduleService
	validator *validator.Validate
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(svc scheduleService, validate *validator.Validate) *ScheduleHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ScheduleHandler{service: svc, validator: validate}
}

// Conflicts godoc
// @Summary Detect time conflicts between proposed and existing classes
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Proposal"
// @Success 200 {object} response.Envelope
// @Router /schedules/conflicts [post]
func (h *ScheduleHandler) Conflicts(c *gin.Context) {
	var req dto.ConflictCheckRequest
	if !h.bind(c, &req) {
		return
	}
	conflicts := h.service.CheckProposal(req.Proposed, req.Existing)
	if conflicts == nil {
		conflicts = []models.ClassConflict{}
	}
	response.JSON(c, http.StatusOK, dto.ConflictCheckResponse{HasConflicts: len(conflicts) > 0, Conflicts: conflicts})
}

// Daily godoc
// @Summary Bucket classes by weekday and list the breaks between them
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ClassSetRequest true "Classes"
// @Success 200 {object} response.Envelope
// @Router /schedules/daily [post]
func (h *ScheduleHandler) Daily(c *gin.Context) {
	var req dto.ClassSetRequest
	if !h.bind(c, &req) {
		return
	}
	schedule := h.service.DailySchedule(req.Classes)
	response.JSON(c, http.StatusOK, dto.NewDailyScheduleResponse(schedule, h.service.BreaksBetweenClasses(schedule)))
}

// Balance godoc
// @Summary Validate the weekly load balance of a schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ClassSetRequest true "Classes"
// @Success 200 {object} response.Envelope
// @Router /schedules/balance [post]
func (h *ScheduleHandler) Balance(c *gin.Context) {
	var req dto.ClassSetRequest
	if !h.bind(c, &req) {
		return
	}
	response.JSON(c, http.StatusOK, h.service.ValidateBalance(req.Classes))
}

// Quality godoc
// @Summary Score a schedule between 0 and 100
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ClassSetRequest true "Classes"
// @Success 200 {object} response.Envelope
// @Router /schedules/quality [post]
func (h *ScheduleHandler) Quality(c *gin.Context) {
	var req dto.ClassSetRequest
	if !h.bind(c, &req) {
		return
	}
	response.JSON(c, http.StatusOK, h.service.CalculateScheduleQuality(req.Classes))
}

// Alternatives godoc
// @Summary Suggest up to three balanced conflict-free alternatives
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.AlternativesRequest true "Proposal"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/alternatives [post]
func (h *ScheduleHandler) Alternatives(c *gin.Context) {
	var req dto.AlternativesRequest
	if !h.bind(c, &req) {
		return
	}
	alternatives, err := h.service.GenerateAlternatives(c.Request.Context(), req.PeriodID, req.Proposed, req.Existing)
	if err != nil {
		response.Error(c, err)
		return
	}
	if alternatives == nil {
		alternatives = []models.AlternativeSchedule{}
	}
	response.JSON(c, http.StatusOK, alternatives, map[string]interface{}{"total": len(alternatives)})
}

func (h *ScheduleHandler) bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return false
	}
	return true
}
