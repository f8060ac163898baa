package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/krs-admission-api/internal/dto"
	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/response"
)

type sectionService interface {
	Upsert(ctx context.Context, sections []models.Section) ([]models.Section, error)
	List(ctx context.Context, periodID, courseID string) ([]models.Section, error)
}

// SectionHandler manages the section catalogue.
type SectionHandler struct {
	service   sectionService
	validator *validator.Validate
}

// NewSectionHandler constructs the handler.
func NewSectionHandler(svc sectionService, validate *validator.Validate) *SectionHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SectionHandler{service: svc, validator: validate}
}

// Upsert godoc
// @Summary Create or update class sections
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body dto.UpsertSectionsRequest true "Sections"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections [put]
func (h *SectionHandler) Upsert(c *gin.Context) {
	var req dto.UpsertSectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}
	sections, err := req.ToModels()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}
	stored, err := h.service.Upsert(c.Request.Context(), sections)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stored, map[string]interface{}{"total": len(stored)})
}

// List godoc
// @Summary List the sections of a registration period
// @Tags Sections
// @Produce json
// @Param period_id query string true "Period ID"
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	periodID := strings.TrimSpace(c.Query("period_id"))
	if periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "period_id is required"))
		return
	}
	sections, err := h.service.List(c.Request.Context(), periodID, strings.TrimSpace(c.Query("course_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, map[string]interface{}{"total": len(sections)})
}
