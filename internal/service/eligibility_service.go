package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type periodRepository interface {
	ListPeriods(ctx context.Context) ([]models.RegistrationPeriod, error)
	ListWindows(ctx context.Context) ([]models.RegistrationWindow, error)
	UpsertPeriod(ctx context.Context, period *models.RegistrationPeriod) error
	UpdateStatuses(ctx context.Context, statuses map[string]models.PeriodStatus) error
	DeletePeriod(ctx context.Context, id string) error
	InsertWindow(ctx context.Context, window *models.RegistrationWindow) error
	DeleteWindow(ctx context.Context, id string) error
}

// CreatePeriodRequest describes an administrative period creation.
type CreatePeriodRequest struct {
	Name                           string    `json:"name" validate:"required"`
	StartTime                      time.Time `json:"start_time" validate:"required"`
	EndTime                        time.Time `json:"end_time" validate:"required"`
	EligibleGroups                 []string  `json:"eligible_groups" validate:"required,min=1,dive,required"`
	MaxConcurrentWindowsPerStudent int       `json:"max_concurrent_windows_per_student" validate:"gte=0"`
}

// UpdatePeriodRequest replaces the provided fields; nil fields are kept.
type UpdatePeriodRequest struct {
	Name                           *string    `json:"name" validate:"omitempty,min=1"`
	StartTime                      *time.Time `json:"start_time"`
	EndTime                        *time.Time `json:"end_time"`
	EligibleGroups                 []string   `json:"eligible_groups" validate:"omitempty,min=1,dive,required"`
	MaxConcurrentWindowsPerStudent *int       `json:"max_concurrent_windows_per_student" validate:"omitempty,gte=1"`
}

// CreateWindowRequest assigns a student a registration slice inside a period.
type CreateWindowRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

// EligibilityService owns registration periods and per-student windows and answers
// whether a student may act at the current instant. It is the single writer of this state.
type EligibilityService struct {
	mu      sync.RWMutex
	periods map[string]*models.RegistrationPeriod
	windows map[string]*models.RegistrationWindow

	repo      periodRepository
	cache     *CacheService
	clock     clock.PassiveClock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEligibilityService constructs the service. repo may be nil for a purely in-memory authority.
func NewEligibilityService(repo periodRepository, cache *CacheService, clk clock.PassiveClock, validate *validator.Validate, logger *zap.Logger) *EligibilityService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		periods:   make(map[string]*models.RegistrationPeriod),
		windows:   make(map[string]*models.RegistrationWindow),
		repo:      repo,
		cache:     cache,
		clock:     clk,
		validator: validate,
		logger:    logger.Named("eligibility"),
	}
}

// Load replaces in-memory state with the persisted periods and windows.
func (s *EligibilityService) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	periods, err := s.repo.ListPeriods(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration periods")
	}
	windows, err := s.repo.ListWindows(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration windows")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = make(map[string]*models.RegistrationPeriod, len(periods))
	for i := range periods {
		p := periods[i]
		s.periods[p.ID] = &p
	}
	s.windows = make(map[string]*models.RegistrationWindow, len(windows))
	for i := range windows {
		w := windows[i]
		if _, ok := s.periods[w.PeriodID]; !ok {
			continue
		}
		s.windows[w.ID] = &w
	}
	s.logger.Info("eligibility state loaded", zap.Int("periods", len(s.periods)), zap.Int("windows", len(s.windows)))
	return nil
}

// RefreshStatus recomputes every period's status from the clock. Status never moves backward.
// It returns the ids of periods whose status changed.
func (s *EligibilityService) RefreshStatus(ctx context.Context) ([]string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	changed := make(map[string]models.PeriodStatus)
	for id, p := range s.periods {
		next := effectiveStatus(*p, now)
		if next != p.Status {
			p.Status = next
			p.UpdatedAt = now
			changed[id] = next
		}
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(changed))
	for id, status := range changed {
		ids = append(ids, id)
		s.logger.Info("period status changed", zap.String("period_id", id), zap.String("status", string(status)))
	}
	sort.Strings(ids)

	if s.repo != nil {
		if err := s.repo.UpdateStatuses(ctx, changed); err != nil {
			return ids, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist period statuses")
		}
	}
	return ids, nil
}

// CanRegister reports whether studentID may register for courseGroupID right now. It has no side effects.
func (s *EligibilityService) CanRegister(studentID, courseGroupID string) models.EligibilityDecision {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.RegistrationPeriod
	for _, p := range s.periods {
		if effectiveStatus(*p, now) == models.PeriodStatusActive && p.HasGroup(courseGroupID) {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return models.EligibilityDecision{Allowed: false, Reason: appErrors.ErrNoActivePeriod.Code}
	}
	sortPeriods(active)

	for _, p := range active {
		for _, w := range s.windows {
			if w.PeriodID == p.ID && w.StudentID == studentID && w.Contains(now) {
				return models.EligibilityDecision{Allowed: true, PeriodID: p.ID, WindowID: w.ID}
			}
		}
	}
	return models.EligibilityDecision{Allowed: false, Reason: appErrors.ErrNoActiveWindow.Code, PeriodID: active[0].ID}
}

// RequireEligible is CanRegister returning the typed denial as an error.
func (s *EligibilityService) RequireEligible(studentID, courseGroupID string) (models.EligibilityDecision, error) {
	decision := s.CanRegister(studentID, courseGroupID)
	if decision.Allowed {
		return decision, nil
	}
	details := map[string]any{"student_id": studentID, "course_group_id": courseGroupID}
	if decision.PeriodID != "" {
		details["period_id"] = decision.PeriodID
	}
	base := appErrors.ErrNoActivePeriod
	if decision.Reason == appErrors.ErrNoActiveWindow.Code {
		base = appErrors.ErrNoActiveWindow
	}
	return decision, appErrors.WithDetails(base, details)
}

// ListPeriods returns all periods ordered by start time.
func (s *EligibilityService) ListPeriods() []models.RegistrationPeriod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*models.RegistrationPeriod, 0, len(s.periods))
	for _, p := range s.periods {
		items = append(items, p)
	}
	sortPeriods(items)
	result := make([]models.RegistrationPeriod, len(items))
	for i, p := range items {
		result[i] = copyPeriod(p)
	}
	return result
}

// GetPeriod returns a period by ID.
func (s *EligibilityService) GetPeriod(id string) (*models.RegistrationPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.periods[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
	}
	cp := copyPeriod(p)
	return &cp, nil
}

// CreatePeriod registers a new period with its status derived from the clock.
func (s *EligibilityService) CreatePeriod(ctx context.Context, req CreatePeriodRequest) (*models.RegistrationPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration period payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	limit := req.MaxConcurrentWindowsPerStudent
	if limit == 0 {
		limit = 1
	}

	now := s.clock.Now()
	period := &models.RegistrationPeriod{
		ID:                             uuid.NewString(),
		Name:                           req.Name,
		StartTime:                      req.StartTime,
		EndTime:                        req.EndTime,
		Status:                         models.StatusAt(req.StartTime, req.EndTime, now),
		EligibleGroups:                 append([]string(nil), req.EligibleGroups...),
		MaxConcurrentWindowsPerStudent: limit,
		CreatedAt:                      now,
		UpdatedAt:                      now,
	}
	if s.repo != nil {
		if err := s.repo.UpsertPeriod(ctx, period); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration period")
		}
	}

	s.mu.Lock()
	s.periods[period.ID] = period
	cp := copyPeriod(period)
	s.mu.Unlock()

	s.logger.Info("registration period created", zap.String("period_id", period.ID), zap.String("status", string(period.Status)))
	return &cp, nil
}

// UpdatePeriod applies req to the period. The status is recomputed from the new times.
func (s *EligibilityService) UpdatePeriod(ctx context.Context, id string, req UpdatePeriodRequest) (*models.RegistrationPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration period payload")
	}

	s.mu.Lock()
	updated, err := s.applyUpdateLocked(ctx, id, req)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.clearPeriodCache(ctx, id)
	return updated, nil
}

// applyUpdateLocked re-reads the period under s.mu so the existence check and the
// write-through cannot interleave with DeletePeriod.
func (s *EligibilityService) applyUpdateLocked(ctx context.Context, id string, req UpdatePeriodRequest) (*models.RegistrationPeriod, error) {
	existing, ok := s.periods[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
	}
	updated := copyPeriod(existing)

	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.StartTime != nil {
		updated.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		updated.EndTime = *req.EndTime
	}
	if req.EligibleGroups != nil {
		updated.EligibleGroups = append([]string(nil), req.EligibleGroups...)
	}
	if req.MaxConcurrentWindowsPerStudent != nil {
		updated.MaxConcurrentWindowsPerStudent = *req.MaxConcurrentWindowsPerStudent
	}
	if !updated.StartTime.Before(updated.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	now := s.clock.Now()
	updated.Status = models.StatusAt(updated.StartTime, updated.EndTime, now)
	updated.UpdatedAt = now

	if s.repo != nil {
		if err := s.repo.UpsertPeriod(ctx, &updated); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration period")
		}
	}
	stored := updated
	s.periods[id] = &stored
	return &updated, nil
}

// DeletePeriod removes the period and every window it owns.
func (s *EligibilityService) DeletePeriod(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.periods[id]; !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
	}
	if s.repo != nil {
		if err := s.repo.DeletePeriod(ctx, id); err != nil {
			s.mu.Unlock()
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete registration period")
		}
	}
	delete(s.periods, id)
	removed := 0
	for wid, w := range s.windows {
		if w.PeriodID == id {
			delete(s.windows, wid)
			removed++
		}
	}
	s.mu.Unlock()

	s.logger.Info("registration period deleted", zap.String("period_id", id), zap.Int("windows_removed", removed))
	s.clearPeriodCache(ctx, id)
	return nil
}

// CreateWindow adds a window for a student, bounded by the period's concurrent window limit.
func (s *EligibilityService) CreateWindow(ctx context.Context, periodID string, req CreateWindowRequest) (*models.RegistrationWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration window payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	window := &models.RegistrationWindow{
		ID:        uuid.NewString(),
		PeriodID:  periodID,
		StudentID: req.StudentID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CreatedAt: s.clock.Now(),
	}

	// The limit check and the insert share one critical section.
	s.mu.Lock()
	defer s.mu.Unlock()

	period, ok := s.periods[periodID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
	}
	overlapping := 0
	for _, w := range s.windows {
		if w.PeriodID == periodID && w.StudentID == req.StudentID && w.Overlaps(*window) {
			overlapping++
		}
	}
	if limit := period.MaxConcurrentWindowsPerStudent; limit > 0 && overlapping >= limit {
		return nil, appErrors.WithDetails(appErrors.ErrWindowLimitExceeded, map[string]any{
			"period_id":  periodID,
			"student_id": req.StudentID,
			"limit":      limit,
		})
	}

	if s.repo != nil {
		if err := s.repo.InsertWindow(ctx, window); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration window")
		}
	}
	s.windows[window.ID] = window
	cp := *window
	return &cp, nil
}

// ListWindows returns the windows of a period, optionally restricted to one student, ordered by start time.
func (s *EligibilityService) ListWindows(periodID, studentID string) ([]models.RegistrationWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.periods[periodID]; !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
	}
	result := make([]models.RegistrationWindow, 0)
	for _, w := range s.windows {
		if w.PeriodID != periodID || (studentID != "" && w.StudentID != studentID) {
			continue
		}
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

// DeleteWindow removes a single window.
func (s *EligibilityService) DeleteWindow(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.windows[id]
	s.mu.RUnlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "registration window not found")
	}
	if s.repo != nil {
		if err := s.repo.DeleteWindow(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete registration window")
		}
	}
	s.mu.Lock()
	delete(s.windows, id)
	s.mu.Unlock()
	return nil
}

func (s *EligibilityService) clearPeriodCache(ctx context.Context, periodID string) {
	if err := s.cache.ClearByPrefix(ctx, periodID); err != nil {
		s.logger.Warn("failed to clear period cache", zap.String("period_id", periodID), zap.Error(err))
	}
}

// effectiveStatus is the later of the stored status and the one derived from now.
func effectiveStatus(p models.RegistrationPeriod, now time.Time) models.PeriodStatus {
	derived := models.StatusAt(p.StartTime, p.EndTime, now)
	if p.Status.Rank() > derived.Rank() {
		return p.Status
	}
	return derived
}

func sortPeriods(items []*models.RegistrationPeriod) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})
}

func copyPeriod(p *models.RegistrationPeriod) models.RegistrationPeriod {
	cp := *p
	cp.EligibleGroups = append([]string(nil), p.EligibleGroups...)
	return cp
}
