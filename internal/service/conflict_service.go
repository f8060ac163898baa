package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/jobs"
)

const (
	maxClassesPerDay   = 4
	longBreakThreshold = 120 * time.Minute
	longDayStart       = 8 * 60
	longDayEnd         = 17 * 60
	maxAlternatives    = 3
)

type alternativeSource interface {
	ListAlternatives(ctx context.Context, periodID, courseID, excludeClassID string) ([]models.Section, error)
}

// AlternativeQuery identifies one alternative-section lookup.
type AlternativeQuery struct {
	PeriodID       string
	CourseID       string
	ExcludeClassID string
}

func (q AlternativeQuery) cacheKey() string {
	return fmt.Sprintf("alternatives:%s:%s:%s", q.PeriodID, q.CourseID, q.ExcludeClassID)
}

// ScheduleConflictService detects timetable overlaps, scores schedules and searches for substitute sections.
// Alternative lookups are routed through the admission queue.
type ScheduleConflictService struct {
	queue          *jobs.Queue
	source         alternativeSource
	cache          *CacheService
	lookupPriority int
	cacheTTL       time.Duration
	logger         *zap.Logger
}

// NewScheduleConflictService constructs the engine.
func NewScheduleConflictService(queue *jobs.Queue, source alternativeSource, cache *CacheService, lookupPriority int, cacheTTL time.Duration, logger *zap.Logger) *ScheduleConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleConflictService{
		queue:          queue,
		source:         source,
		cache:          cache,
		lookupPriority: lookupPriority,
		cacheTTL:       cacheTTL,
		logger:         logger.Named("schedule"),
	}
}

// FindConflicts cross-checks every slot of proposed against every slot of each existing class,
// grouped by the existing class in input order.
func (s *ScheduleConflictService) FindConflicts(proposed models.ScheduledClass, existing []models.ScheduledClass) []models.ClassConflict {
	var conflicts []models.ClassConflict
	for _, other := range existing {
		var pairs []models.SlotPair
		for _, ps := range proposed.Slots {
			for _, es := range other.Slots {
				if ps.Overlaps(es) {
					pairs = append(pairs, models.SlotPair{Proposed: ps, Existing: es})
				}
			}
		}
		if len(pairs) > 0 {
			conflicts = append(conflicts, models.ClassConflict{
				ProposedClassID: proposed.ClassID,
				Class:           other,
				Pairs:           pairs,
			})
		}
	}
	return conflicts
}

// CheckProposal runs FindConflicts for each proposed class.
func (s *ScheduleConflictService) CheckProposal(proposed, existing []models.ScheduledClass) []models.ClassConflict {
	var conflicts []models.ClassConflict
	for _, class := range proposed {
		conflicts = append(conflicts, s.FindConflicts(class, existing)...)
	}
	return conflicts
}

// DailySchedule buckets classes into Sunday..Saturday, each sorted by start time.
func (s *ScheduleConflictService) DailySchedule(classes []models.ScheduledClass) models.DaySchedule {
	return models.BucketByDay(classes)
}

// BreaksBetweenClasses returns the positive gaps between adjacent classes of each day.
func (s *ScheduleConflictService) BreaksBetweenClasses(schedule models.DaySchedule) []models.Break {
	var breaks []models.Break
	for day, entries := range schedule {
		for i := 1; i < len(entries); i++ {
			prev, next := entries[i-1], entries[i]
			if next.Slot.Start <= prev.Slot.End {
				continue
			}
			breaks = append(breaks, models.Break{
				DayOfWeek: time.Weekday(day),
				Start:     prev.Slot.End,
				End:       next.Slot.Start,
				AfterID:   prev.Class.ClassID,
				BeforeID:  next.Class.ClassID,
			})
		}
	}
	return breaks
}

// ValidateBalance flags overloaded days, long breaks and long days.
func (s *ScheduleConflictService) ValidateBalance(classes []models.ScheduledClass) models.BalanceReport {
	schedule := models.BucketByDay(classes)
	return s.validateSchedule(schedule, s.BreaksBetweenClasses(schedule))
}

func (s *ScheduleConflictService) validateSchedule(schedule models.DaySchedule, breaks []models.Break) models.BalanceReport {
	report := models.BalanceReport{Issues: []models.BalanceIssue{}, Recommendations: []string{}}

	for day, entries := range schedule {
		weekday := time.Weekday(day)
		if len(entries) > maxClassesPerDay {
			report.Issues = append(report.Issues, models.BalanceIssue{
				Type:      models.BalanceIssueOverloadedDay,
				DayOfWeek: weekday,
				Message:   fmt.Sprintf("%s has %d classes", weekday, len(entries)),
			})
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Move some %s classes to a lighter day", weekday))
		}
		if len(entries) == 0 {
			continue
		}
		first := entries[0].Slot.Start
		last := entries[0].Slot.End
		for _, e := range entries[1:] {
			if e.Slot.End > last {
				last = e.Slot.End
			}
		}
		if first <= longDayStart && last >= longDayEnd {
			report.Issues = append(report.Issues, models.BalanceIssue{
				Type:      models.BalanceIssueLongDay,
				DayOfWeek: weekday,
				Message:   fmt.Sprintf("%s runs from %s to %s", weekday, first, last),
			})
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Pick a later section for the first %s class or an earlier one for the last", weekday))
		}
	}

	for _, b := range breaks {
		if b.Duration() > longBreakThreshold {
			report.Issues = append(report.Issues, models.BalanceIssue{
				Type:      models.BalanceIssueLongBreak,
				DayOfWeek: b.DayOfWeek,
				Message:   fmt.Sprintf("%s has a %d minute break from %s to %s", b.DayOfWeek, int(b.Duration().Minutes()), b.Start, b.End),
			})
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Reschedule %s or %s to shorten the %s gap", b.AfterID, b.BeforeID, b.DayOfWeek))
		}
	}

	report.IsBalanced = len(report.Issues) == 0
	return report
}

// GenerateAlternatives looks up substitute sections for every conflicting proposed class and returns
// at most three whole candidate schedules that are conflict-free against existing and balanced.
func (s *ScheduleConflictService) GenerateAlternatives(ctx context.Context, periodID string, proposed, existing []models.ScheduledClass) ([]models.AlternativeSchedule, error) {
	results := make([]models.AlternativeSchedule, 0, maxAlternatives)

	for i, class := range proposed {
		if len(s.FindConflicts(class, existing)) == 0 {
			continue
		}
		candidates, err := s.lookupAlternatives(ctx, AlternativeQuery{
			PeriodID:       periodID,
			CourseID:       class.CourseID,
			ExcludeClassID: class.ClassID,
		})
		if err != nil {
			return nil, err
		}

		for _, alt := range candidates {
			if alt.ClassID == class.ClassID || len(s.FindConflicts(alt, existing)) > 0 {
				continue
			}
			candidate := make([]models.ScheduledClass, len(proposed))
			copy(candidate, proposed)
			candidate[i] = alt

			full := make([]models.ScheduledClass, 0, len(existing)+len(candidate))
			full = append(full, existing...)
			full = append(full, candidate...)
			if !s.ValidateBalance(full).IsBalanced {
				continue
			}

			results = append(results, models.AlternativeSchedule{
				Classes:           candidate,
				ReplacedClassID:   class.ClassID,
				SubstituteClassID: alt.ClassID,
				Quality:           s.CalculateScheduleQuality(full),
			})
			if len(results) == maxAlternatives {
				return results, nil
			}
		}
	}
	return results, nil
}

func (s *ScheduleConflictService) lookupAlternatives(ctx context.Context, query AlternativeQuery) ([]models.ScheduledClass, error) {
	if s.source == nil {
		return nil, nil
	}
	key := query.cacheKey()
	var cached []models.ScheduledClass
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrQueueStopped, "alternative lookups require an admission queue")
	}
	classes, err := jobs.Do(ctx, s.queue, query, s.lookupPriority, s.fetchAlternatives)
	if err != nil {
		s.logger.Warn("alternative lookup failed",
			zap.String("course_id", query.CourseID),
			zap.String("exclude_class_id", query.ExcludeClassID),
			zap.Error(err))
		return nil, err
	}
	if err := s.cache.Set(ctx, key, classes, s.cacheTTL); err != nil {
		s.logger.Debug("alternatives not cached", zap.String("key", key), zap.Error(err))
	}
	return classes, nil
}

func (s *ScheduleConflictService) fetchAlternatives(ctx context.Context, query AlternativeQuery) ([]models.ScheduledClass, error) {
	sections, err := s.source.ListAlternatives(ctx, query.PeriodID, query.CourseID, query.ExcludeClassID)
	if err != nil {
		return nil, err
	}
	classes := make([]models.ScheduledClass, 0, len(sections))
	for _, section := range sections {
		class, err := section.ScheduledClass()
		if err != nil {
			s.logger.Warn("skipping section with unreadable slots", zap.String("class_id", section.ID), zap.Error(err))
			continue
		}
		classes = append(classes, class)
	}
	return classes, nil
}
