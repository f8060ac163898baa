package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/krs-admission-api/internal/dto"
	"github.com/noah-isme/krs-admission-api/internal/models"
	"github.com/noah-isme/krs-admission-api/internal/service"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/jobs"
	"github.com/noah-isme/krs-admission-api/pkg/response"
)

type registrationService interface {
	Submit(ctx context.Context, req service.RegistrationRequest) (*models.RegistrationOutcome, error)
	Drop(ctx context.Context, req service.DropRequest) (*models.RegistrationOutcome, error)
	Cancel(ticketID string) bool
	QueueStats() jobs.Stats
	Configure(update jobs.ConfigUpdate) jobs.QueueConfig
}

// RegistrationHandler admits enrolment and withdrawal requests.
type RegistrationHandler struct {
	service   registrationService
	validator *validator.Validate
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService, validate *validator.Validate) *RegistrationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &RegistrationHandler{service: svc, validator: validate}
}

// Submit godoc
// @Summary Submit a registration
// @Description Returns 202 with a ticket when queued, 200 with alternatives when the proposal conflicts, and 200 with results when wait is true.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.RegistrationRequest true "Registration payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req service.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	outcome, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOutcome(c, outcome, req.Wait)
}

// Drop godoc
// @Summary Withdraw from classes
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.DropRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /registrations/drop [post]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	var req service.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid drop payload"))
		return
	}
	outcome, err := h.service.Drop(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOutcome(c, outcome, req.Wait)
}

// Cancel godoc
// @Summary Cancel a queued registration that has not started
// @Tags Registrations
// @Param id path string true "Ticket ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /registrations/queue/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	if !h.service.Cancel(c.Param("id")) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "ticket is not pending"))
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Admission queue statistics
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrations/queue/stats [get]
func (h *RegistrationHandler) Stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.NewQueueStatsResponse(h.service.QueueStats()))
}

// Configure godoc
// @Summary Adjust admission queue limits at runtime
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.QueueConfigRequest true "Queue limits"
// @Success 200 {object} response.Envelope
// @Router /registrations/queue/config [put]
func (h *RegistrationHandler) Configure(c *gin.Context) {
	var req dto.QueueConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid queue config payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid queue config payload"))
		return
	}
	update, err := req.ToUpdate()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	response.JSON(c, http.StatusOK, dto.NewQueueConfigResponse(h.service.Configure(update)))
}

func respondOutcome(c *gin.Context, outcome *models.RegistrationOutcome, waited bool) {
	if outcome.TicketID == "" || waited {
		response.JSON(c, http.StatusOK, outcome)
		return
	}
	response.Accepted(c, outcome)
}
