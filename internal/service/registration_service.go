package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/jobs"
)

type eligibilityChecker interface {
	RequireEligible(studentID, courseGroupID string) (models.EligibilityDecision, error)
}

type scheduleChecker interface {
	CheckProposal(proposed, existing []models.ScheduledClass) []models.ClassConflict
	GenerateAlternatives(ctx context.Context, periodID string, proposed, existing []models.ScheduledClass) ([]models.AlternativeSchedule, error)
}

type seatExecutor interface {
	Reserve(ctx context.Context, mutation models.SeatMutation) (models.SeatMutationResult, error)
	Release(ctx context.Context, mutation models.SeatMutation) (models.SeatMutationResult, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// PreflightValidator performs checks owned by other systems, such as credit limits or prerequisites.
// It should return CREDIT_LIMIT_EXCEEDED or PREREQUISITES_NOT_MET errors.
type PreflightValidator interface {
	Validate(ctx context.Context, req RegistrationRequest) error
}

// RegistrationRequest proposes adding classes to a student's schedule.
type RegistrationRequest struct {
	StudentID     string                  `json:"student_id" validate:"required"`
	CourseGroupID string                  `json:"course_group_id" validate:"required"`
	Proposed      []models.ScheduledClass `json:"proposed" validate:"required,min=1,dive"`
	Existing      []models.ScheduledClass `json:"existing" validate:"dive"`
	Priority      *int                    `json:"priority"`
	Wait          bool                    `json:"wait"`
}

// DropRequest withdraws a student from classes.
type DropRequest struct {
	StudentID     string   `json:"student_id" validate:"required"`
	CourseGroupID string   `json:"course_group_id" validate:"required"`
	ClassIDs      []string `json:"class_ids" validate:"required,min=1,dive,required"`
	Priority      *int     `json:"priority"`
	Wait          bool     `json:"wait"`
}

// RegistrationService drives a registration attempt through eligibility, conflict checks and the admission queue.
type RegistrationService struct {
	eligibility     eligibilityChecker
	schedule        scheduleChecker
	queue           *jobs.Queue
	executor        seatExecutor
	preflight       PreflightValidator
	publisher       eventPublisher
	cache           *CacheService
	clock           clock.PassiveClock
	validator       *validator.Validate
	logger          *zap.Logger
	defaultPriority int

	watchers sync.WaitGroup
}

// RegistrationOption customises a RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithPreflightValidator installs an external pre-flight check.
func WithPreflightValidator(v PreflightValidator) RegistrationOption {
	return func(s *RegistrationService) { s.preflight = v }
}

// WithSettlementPublisher publishes a settlement event for every settled mutation.
func WithSettlementPublisher(p eventPublisher) RegistrationOption {
	return func(s *RegistrationService) { s.publisher = p }
}

// WithRegistrationClock sets the clock used for settlement timestamps.
func WithRegistrationClock(c clock.PassiveClock) RegistrationOption {
	return func(s *RegistrationService) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewRegistrationService wires the orchestration service.
func NewRegistrationService(eligibility eligibilityChecker, schedule scheduleChecker, queue *jobs.Queue, executor seatExecutor, cache *CacheService, defaultPriority int, logger *zap.Logger, opts ...RegistrationOption) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RegistrationService{
		eligibility:     eligibility,
		schedule:        schedule,
		queue:           queue,
		executor:        executor,
		cache:           cache,
		clock:           clock.RealClock{},
		validator:       validator.New(),
		logger:          logger.Named("registration"),
		defaultPriority: defaultPriority,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and, when admissible, queues the enrollment. A conflicting proposal returns
// alternatives without queueing anything, or SCHEDULE_CONFLICT when none exist.
func (s *RegistrationService) Submit(ctx context.Context, req RegistrationRequest) (*models.RegistrationOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	decision, err := s.eligibility.RequireEligible(req.StudentID, req.CourseGroupID)
	if err != nil {
		return &models.RegistrationOutcome{Eligibility: decision}, err
	}
	outcome := &models.RegistrationOutcome{Eligibility: decision}

	if s.preflight != nil {
		if err := s.preflight.Validate(ctx, req); err != nil {
			return outcome, err
		}
	}

	conflicts := s.schedule.CheckProposal(req.Proposed, req.Existing)
	if len(conflicts) > 0 {
		outcome.Conflicts = conflicts
		alternatives, err := s.schedule.GenerateAlternatives(ctx, decision.PeriodID, req.Proposed, req.Existing)
		if err != nil {
			return outcome, err
		}
		if len(alternatives) == 0 {
			return outcome, appErrors.WithDetails(appErrors.ErrScheduleConflict, map[string]any{
				"student_id": req.StudentID,
				"conflicts":  conflicts,
			})
		}
		outcome.Alternatives = alternatives
		return outcome, nil
	}

	mutations := make([]models.SeatMutation, 0, len(req.Proposed))
	for _, class := range req.Proposed {
		mutations = append(mutations, models.SeatMutation{
			StudentID: req.StudentID,
			ClassID:   class.ClassID,
			CourseID:  class.CourseID,
			PeriodID:  decision.PeriodID,
			Action:    models.RegistrationActionEnroll,
		})
	}
	return s.admit(ctx, outcome, mutations, s.priority(req.Priority), req.Wait)
}

// Drop queues a withdrawal for an eligible student.
func (s *RegistrationService) Drop(ctx context.Context, req DropRequest) (*models.RegistrationOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}
	decision, err := s.eligibility.RequireEligible(req.StudentID, req.CourseGroupID)
	if err != nil {
		return &models.RegistrationOutcome{Eligibility: decision}, err
	}
	mutations := make([]models.SeatMutation, 0, len(req.ClassIDs))
	for _, id := range req.ClassIDs {
		mutations = append(mutations, models.SeatMutation{
			StudentID: req.StudentID,
			ClassID:   id,
			PeriodID:  decision.PeriodID,
			Action:    models.RegistrationActionDrop,
		})
	}
	return s.admit(ctx, &models.RegistrationOutcome{Eligibility: decision}, mutations, s.priority(req.Priority), req.Wait)
}

// Cancel withdraws a queued ticket that has not started.
func (s *RegistrationService) Cancel(ticketID string) bool {
	return s.queue.Cancel(ticketID)
}

// QueueStats reports the admission queue snapshot.
func (s *RegistrationService) QueueStats() jobs.Stats {
	return s.queue.Stats()
}

// Configure adjusts admission limits for work that has not started yet.
func (s *RegistrationService) Configure(update jobs.ConfigUpdate) jobs.QueueConfig {
	cfg := s.queue.Configure(update)
	s.logger.Info("admission limits updated",
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Duration("retry_delay", cfg.RetryDelay))
	return cfg
}

// WaitForSettlements blocks until every settlement notification started so far has been delivered.
func (s *RegistrationService) WaitForSettlements() {
	s.watchers.Wait()
}

func (s *RegistrationService) admit(ctx context.Context, outcome *models.RegistrationOutcome, mutations []models.SeatMutation, priority int, wait bool) (*models.RegistrationOutcome, error) {
	handle, err := s.queue.Enqueue(mutations, priority, func(ctx context.Context, payload any) (any, error) {
		return s.execute(ctx, payload.([]models.SeatMutation))
	})
	if err != nil {
		return outcome, err
	}
	outcome.TicketID = handle.ID()
	s.logger.Info("registration admitted",
		zap.String("ticket_id", handle.ID()),
		zap.String("student_id", mutations[0].StudentID),
		zap.Int("mutations", len(mutations)),
		zap.Int("priority", priority))

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		s.settle(handle, mutations)
	}()

	if !wait {
		return outcome, nil
	}
	value, err := handle.Wait(ctx)
	if err != nil {
		return outcome, err
	}
	results, _ := value.([]models.SeatMutationResult)
	outcome.Results = results
	return outcome, nil
}

// execute applies mutations in order. A failure compensates the mutations already applied so a retry
// starts from a clean slate.
func (s *RegistrationService) execute(ctx context.Context, mutations []models.SeatMutation) ([]models.SeatMutationResult, error) {
	results := make([]models.SeatMutationResult, 0, len(mutations))
	for i, m := range mutations {
		result, err := s.apply(ctx, m, false)
		if err != nil {
			s.compensate(mutations[:i])
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *RegistrationService) apply(ctx context.Context, m models.SeatMutation, reverse bool) (models.SeatMutationResult, error) {
	enroll := m.Action == models.RegistrationActionEnroll
	if reverse {
		enroll = !enroll
	}
	if enroll {
		return s.executor.Reserve(ctx, m)
	}
	return s.executor.Release(ctx, m)
}

func (s *RegistrationService) compensate(applied []models.SeatMutation) {
	// The attempt context may already be done; compensation must still reach the store.
	ctx := context.Background()
	for i := len(applied) - 1; i >= 0; i-- {
		if _, err := s.apply(ctx, applied[i], true); err != nil {
			s.logger.Error("compensation failed",
				zap.String("student_id", applied[i].StudentID),
				zap.String("class_id", applied[i].ClassID),
				zap.Error(err))
		}
	}
}

func (s *RegistrationService) settle(handle *jobs.Handle, mutations []models.SeatMutation) {
	<-handle.Done()
	_, err := handle.Result()

	outcome := models.SettlementFulfilled
	code := ""
	if err != nil {
		outcome = models.SettlementFailed
		code = settlementCode(err)
	}
	now := s.clock.Now()
	ctx := context.Background()

	for _, m := range mutations {
		settlement := models.Settlement{
			TicketID:  handle.ID(),
			StudentID: m.StudentID,
			ClassID:   m.ClassID,
			PeriodID:  m.PeriodID,
			Action:    m.Action,
			Outcome:   outcome,
			ErrorCode: code,
			SettledAt: now,
		}
		if outcome == models.SettlementFulfilled && m.CourseID != "" {
			// Seat counts changed, so cached alternatives for this course are stale.
			if err := s.cache.ClearByPrefix(ctx, fmt.Sprintf("%s:%s:", m.PeriodID, m.CourseID)); err != nil {
				s.logger.Debug("stale alternatives kept", zap.String("course_id", m.CourseID), zap.Error(err))
			}
		}
		if s.publisher == nil {
			continue
		}
		key := fmt.Sprintf("registration.settled.%s", outcome)
		if err := s.publisher.Publish(ctx, key, settlement); err != nil {
			s.logger.Warn("settlement publish failed", zap.String("ticket_id", handle.ID()), zap.Error(err))
		}
	}

	if err != nil {
		s.logger.Warn("registration settled with failure", zap.String("ticket_id", handle.ID()), zap.String("code", code), zap.Error(err))
		return
	}
	s.logger.Info("registration settled", zap.String("ticket_id", handle.ID()))
}

// settlementCode prefers the underlying cause, so a CLASS_FULL that exhausted retries reports CLASS_FULL.
func settlementCode(err error) string {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return appErrors.ErrInternal.Code
	}
	if appErr.Code == appErrors.ErrProcessingFailed.Code && appErr.Err != nil {
		var cause *appErrors.Error
		if errors.As(appErr.Err, &cause) {
			return cause.Code
		}
	}
	return appErr.Code
}

func (s *RegistrationService) priority(requested *int) int {
	if requested != nil {
		return *requested
	}
	return s.defaultPriority
}
