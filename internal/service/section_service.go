package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type sectionCatalog interface {
	UpsertSection(ctx context.Context, section models.Section) (models.Section, error)
	ListSections(ctx context.Context, periodID, courseID string) ([]models.Section, error)
}

type periodLookup interface {
	GetPeriod(id string) (*models.RegistrationPeriod, error)
}

// SectionService maintains the section catalogue that seats are reserved against.
type SectionService struct {
	catalog sectionCatalog
	periods periodLookup
	cache   *CacheService
	logger  *zap.Logger
}

// NewSectionService constructs the service.
func NewSectionService(catalog sectionCatalog, periods periodLookup, cache *CacheService, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{catalog: catalog, periods: periods, cache: cache, logger: logger.Named("sections")}
}

// Upsert stores each section after checking its period exists and its slots decode to valid time slots.
// Cached alternatives for the affected courses are dropped.
func (s *SectionService) Upsert(ctx context.Context, sections []models.Section) ([]models.Section, error) {
	for _, section := range sections {
		if err := s.check(section); err != nil {
			return nil, err
		}
	}

	stored := make([]models.Section, 0, len(sections))
	for _, section := range sections {
		saved, err := s.catalog.UpsertSection(ctx, section)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store section")
		}
		stored = append(stored, saved)
		if err := s.cache.ClearByPrefix(ctx, fmt.Sprintf("%s:%s:", section.PeriodID, section.CourseID)); err != nil {
			s.logger.Debug("stale alternatives kept", zap.String("course_id", section.CourseID), zap.Error(err))
		}
	}
	s.logger.Info("sections stored", zap.Int("count", len(stored)))
	return stored, nil
}

// List returns the sections of a period, optionally narrowed to one course.
func (s *SectionService) List(ctx context.Context, periodID, courseID string) ([]models.Section, error) {
	if _, err := s.periods.GetPeriod(periodID); err != nil {
		return nil, err
	}
	sections, err := s.catalog.ListSections(ctx, periodID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

func (s *SectionService) check(section models.Section) error {
	if _, err := s.periods.GetPeriod(section.PeriodID); err != nil {
		return err
	}
	class, err := section.ScheduledClass()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section slots")
	}
	for _, slot := range class.Slots {
		if !slot.Valid() {
			return appErrors.WithDetails(appErrors.ErrValidation, map[string]any{
				"class_id": section.ID,
				"slot":     slot,
			})
		}
	}
	return nil
}
