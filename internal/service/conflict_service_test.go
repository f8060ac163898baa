package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
	"github.com/noah-isme/krs-admission-api/pkg/jobs"
)

type stubSectionSource struct {
	mu       sync.Mutex
	sections map[string][]models.Section
	err      error
	calls    int
}

func (s *stubSectionSource) ListAlternatives(ctx context.Context, periodID, courseID, excludeClassID string) ([]models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Section
	for _, section := range s.sections[courseID] {
		if section.ID != excludeClassID {
			out = append(out, section)
		}
	}
	return out, nil
}

func (s *stubSectionSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestQueue(t *testing.T, cfg jobs.QueueConfig) *jobs.Queue {
	t.Helper()
	q := jobs.NewQueue("test", cfg, jobs.WithLogger(zap.NewNop()))
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func newConflictFixture(t *testing.T, source alternativeSource) (*ScheduleConflictService, *stubCacheRepo) {
	t.Helper()
	q := newTestQueue(t, jobs.QueueConfig{MaxConcurrent: 2, Timeout: time.Second, MaxAttempts: 1})
	cacheRepo := newStubCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	return NewScheduleConflictService(q, source, cache, 0, time.Minute, zap.NewNop()), cacheRepo
}

func ts(day time.Weekday, start, end string) models.TimeSlot {
	s, err := models.ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e, err := models.ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	return models.TimeSlot{DayOfWeek: day, Start: s, End: e}
}

func class(id, course string, slots ...models.TimeSlot) models.ScheduledClass {
	return models.ScheduledClass{ClassID: id, CourseID: course, RoomID: "R1", BuildingID: "B1", Slots: slots}
}

func sectionOf(c models.ScheduledClass) models.Section {
	raw, err := json.Marshal(c.Slots)
	if err != nil {
		panic(err)
	}
	return models.Section{
		ID:         c.ClassID,
		CourseID:   c.CourseID,
		RoomID:     c.RoomID,
		BuildingID: c.BuildingID,
		Capacity:   40,
		Slots:      types.JSONText(raw),
	}
}

func TestFindConflictsGroupsByExistingClass(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	existing := []models.ScheduledClass{
		class("ALG-A", "ALG", ts(time.Tuesday, "09:00", "10:30")),
		class("DB-A", "DB", ts(time.Tuesday, "10:30", "12:00")),
		class("OS-A", "OS", ts(time.Tuesday, "10:15", "11:00"), ts(time.Thursday, "10:00", "11:00")),
	}
	proposed := class("NET-C", "NET", ts(time.Tuesday, "10:00", "11:00"), ts(time.Thursday, "10:30", "11:30"))

	conflicts := svc.FindConflicts(proposed, existing)

	require.Len(t, conflicts, 3)
	assert.Equal(t, "ALG-A", conflicts[0].Class.ClassID)
	assert.Equal(t, "NET-C", conflicts[0].ProposedClassID)
	require.Len(t, conflicts[0].Pairs, 1)
	assert.Equal(t, ts(time.Tuesday, "10:00", "11:00"), conflicts[0].Pairs[0].Proposed)
	assert.Equal(t, "DB-A", conflicts[1].Class.ClassID)
	assert.Equal(t, "OS-A", conflicts[2].Class.ClassID)
	assert.Len(t, conflicts[2].Pairs, 2)
}

func TestFindConflictsIgnoresTouchingAndOtherDays(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	existing := []models.ScheduledClass{
		class("A", "X", ts(time.Monday, "08:00", "10:00")),
		class("B", "Y", ts(time.Wednesday, "10:00", "11:00")),
	}
	proposed := class("C", "Z", ts(time.Monday, "10:00", "11:00"))

	assert.Empty(t, svc.FindConflicts(proposed, existing))
	assert.Empty(t, svc.CheckProposal([]models.ScheduledClass{proposed}, existing))
}

func TestBreaksBetweenClassesOnlyPositiveGaps(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	schedule := svc.DailySchedule([]models.ScheduledClass{
		class("A", "X", ts(time.Monday, "08:00", "09:00")),
		class("B", "Y", ts(time.Monday, "09:00", "10:00")),
		class("C", "Z", ts(time.Monday, "10:30", "11:00")),
		class("D", "W", ts(time.Friday, "13:00", "14:00")),
	})

	breaks := svc.BreaksBetweenClasses(schedule)

	require.Len(t, breaks, 1)
	assert.Equal(t, time.Monday, breaks[0].DayOfWeek)
	assert.Equal(t, "B", breaks[0].AfterID)
	assert.Equal(t, "C", breaks[0].BeforeID)
	assert.Equal(t, 30*time.Minute, breaks[0].Duration())
}

func dayOfClasses(day time.Weekday, count int) []models.ScheduledClass {
	classes := make([]models.ScheduledClass, 0, count)
	start := models.At(9, 0)
	for i := 0; i < count; i++ {
		s := start + models.TimeOfDay(i*60)
		classes = append(classes, class(fmt.Sprintf("C%d", i), fmt.Sprintf("K%d", i),
			models.TimeSlot{DayOfWeek: day, Start: s, End: s + 50}))
	}
	return classes
}

func issueTypes(report models.BalanceReport) []models.BalanceIssueType {
	types := make([]models.BalanceIssueType, 0, len(report.Issues))
	for _, issue := range report.Issues {
		types = append(types, issue.Type)
	}
	return types
}

func TestValidateBalanceThresholds(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	t.Run("four classes is fine", func(t *testing.T) {
		report := svc.ValidateBalance(dayOfClasses(time.Monday, 4))
		assert.True(t, report.IsBalanced)
		assert.Empty(t, report.Issues)
	})

	t.Run("five classes is overloaded", func(t *testing.T) {
		report := svc.ValidateBalance(dayOfClasses(time.Monday, 5))
		assert.False(t, report.IsBalanced)
		assert.Equal(t, []models.BalanceIssueType{models.BalanceIssueOverloadedDay}, issueTypes(report))
		assert.Len(t, report.Recommendations, 1)
	})

	t.Run("break of exactly 120 minutes", func(t *testing.T) {
		report := svc.ValidateBalance([]models.ScheduledClass{
			class("A", "X", ts(time.Tuesday, "09:00", "10:00")),
			class("B", "Y", ts(time.Tuesday, "12:00", "13:00")),
		})
		assert.True(t, report.IsBalanced)
	})

	t.Run("break of 121 minutes", func(t *testing.T) {
		report := svc.ValidateBalance([]models.ScheduledClass{
			class("A", "X", ts(time.Tuesday, "09:00", "10:00")),
			class("B", "Y", ts(time.Tuesday, "12:01", "13:00")),
		})
		assert.False(t, report.IsBalanced)
		assert.Equal(t, []models.BalanceIssueType{models.BalanceIssueLongBreak}, issueTypes(report))
	})

	t.Run("long day", func(t *testing.T) {
		report := svc.ValidateBalance([]models.ScheduledClass{
			class("A", "X", ts(time.Wednesday, "08:00", "10:00")),
			class("B", "Y", ts(time.Wednesday, "10:00", "12:00")),
			class("C", "Z", ts(time.Wednesday, "12:00", "14:00")),
			class("D", "W", ts(time.Wednesday, "14:00", "17:00")),
		})
		assert.Equal(t, []models.BalanceIssueType{models.BalanceIssueLongDay}, issueTypes(report))
	})

	t.Run("day ending before five is not long", func(t *testing.T) {
		report := svc.ValidateBalance([]models.ScheduledClass{
			class("A", "X", ts(time.Wednesday, "08:00", "10:00")),
			class("B", "Y", ts(time.Wednesday, "10:00", "16:59")),
		})
		assert.True(t, report.IsBalanced)
	})
}

func TestCalculateScheduleQualityBreakdown(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	empty := svc.CalculateScheduleQuality(nil)
	assert.Equal(t, 100.0, empty.Score)

	first := class("A", "X", ts(time.Monday, "07:00", "08:00"))
	second := class("B", "Y", ts(time.Monday, "08:05", "09:00"))
	second.RoomID, second.BuildingID = "R9", "B9"

	report := svc.CalculateScheduleQuality([]models.ScheduledClass{first, second})

	require.Len(t, report.Factors, 4)
	scores := map[string]float64{}
	var weights float64
	for _, f := range report.Factors {
		scores[f.Name] = f.Score
		weights += f.Weight
	}
	assert.InDelta(t, 1.0, weights, 1e-9)
	assert.Equal(t, 90.0, scores["break_distribution"])
	assert.Equal(t, 100.0, scores["daily_load_balance"])
	assert.Equal(t, 85.0, scores["time_preference"])
	assert.Equal(t, 85.0, scores["travel_optimization"])
	assert.InDelta(t, 90.25, report.Score, 1e-9)
}

func TestCalculateScheduleQualityTravelPenalties(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	travel := func(classes ...models.ScheduledClass) float64 {
		for _, f := range svc.CalculateScheduleQuality(classes).Factors {
			if f.Name == "travel_optimization" {
				return f.Score
			}
		}
		t.Fatal("travel factor missing")
		return 0
	}

	first := class("A", "X", ts(time.Monday, "10:00", "11:00"))
	first.RoomID, first.BuildingID = "R1", "B1"

	sameRoom := class("B", "Y", ts(time.Monday, "11:00", "12:00"))
	sameRoom.RoomID, sameRoom.BuildingID = "R1", "B1"
	assert.Equal(t, 100.0, travel(first, sameRoom))

	roomOnly := sameRoom
	roomOnly.RoomID = "R2"
	assert.Equal(t, 95.0, travel(first, roomOnly))

	both := sameRoom
	both.RoomID, both.BuildingID = "R2", "B2"
	assert.Equal(t, 85.0, travel(first, both))
}

func TestCalculateScheduleQualityLoadImbalance(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)

	classes := append(dayOfClasses(time.Monday, 3), class("F", "F", ts(time.Thursday, "10:00", "11:00")))
	report := svc.CalculateScheduleQuality(classes)

	for _, f := range report.Factors {
		if f.Name == "daily_load_balance" {
			// average 2, each day off by one
			assert.Equal(t, 80.0, f.Score)
		}
	}
}

func TestCalculateScheduleQualityStaysInBounds(t *testing.T) {
	svc, _ := newConflictFixture(t, nil)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := rng.Intn(25)
		classes := make([]models.ScheduledClass, 0, n)
		for j := 0; j < n; j++ {
			start := models.TimeOfDay(rng.Intn(23 * 60))
			c := class(fmt.Sprintf("C%d", j), "K", models.TimeSlot{
				DayOfWeek: time.Weekday(rng.Intn(7)),
				Start:     start,
				End:       start + models.TimeOfDay(1+rng.Intn(60)),
			})
			c.RoomID = fmt.Sprintf("R%d", rng.Intn(3))
			c.BuildingID = fmt.Sprintf("B%d", rng.Intn(2))
			classes = append(classes, c)
		}

		report := svc.CalculateScheduleQuality(classes)
		assert.GreaterOrEqual(t, report.Score, 0.0)
		assert.LessOrEqual(t, report.Score, 100.0)
		for _, f := range report.Factors {
			assert.GreaterOrEqual(t, f.Score, 0.0, f.Name)
			assert.LessOrEqual(t, f.Score, 100.0, f.Name)
		}
	}
}

func TestGenerateAlternativesCapsAtThree(t *testing.T) {
	existing := []models.ScheduledClass{class("ALG-A", "ALG", ts(time.Tuesday, "09:00", "10:30"))}
	proposed := []models.ScheduledClass{class("NET-C", "NET", ts(time.Tuesday, "10:00", "11:00"))}

	source := &stubSectionSource{sections: map[string][]models.Section{
		"NET": {
			sectionOf(proposed[0]),
			sectionOf(class("NET-D", "NET", ts(time.Tuesday, "10:30", "11:30"))),
			sectionOf(class("NET-E", "NET", ts(time.Wednesday, "09:00", "10:00"))),
			sectionOf(class("NET-F", "NET", ts(time.Thursday, "09:00", "10:00"))),
			sectionOf(class("NET-G", "NET", ts(time.Friday, "09:00", "10:00"))),
		},
	}}
	svc, cacheRepo := newConflictFixture(t, source)
	ctx := context.Background()

	alternatives, err := svc.GenerateAlternatives(ctx, "period-1", proposed, existing)
	require.NoError(t, err)

	require.Len(t, alternatives, 3)
	assert.Equal(t, "NET-D", alternatives[0].SubstituteClassID)
	assert.Equal(t, "NET-E", alternatives[1].SubstituteClassID)
	assert.Equal(t, "NET-F", alternatives[2].SubstituteClassID)
	for _, alt := range alternatives {
		assert.Equal(t, "NET-C", alt.ReplacedClassID)
		require.Len(t, alt.Classes, 1)
		assert.Empty(t, svc.CheckProposal(alt.Classes, existing))
		assert.GreaterOrEqual(t, alt.Quality.Score, 0.0)
	}
	assert.True(t, cacheRepo.has("alternatives:period-1:NET:NET-C"))

	_, err = svc.GenerateAlternatives(ctx, "period-1", proposed, existing)
	require.NoError(t, err)
	assert.Equal(t, 1, source.callCount(), "second search is served from cache")
}

func TestGenerateAlternativesSurvivesCacheWriteFailure(t *testing.T) {
	existing := []models.ScheduledClass{class("ALG-A", "ALG", ts(time.Tuesday, "09:00", "10:30"))}
	proposed := []models.ScheduledClass{class("NET-C", "NET", ts(time.Tuesday, "10:00", "11:00"))}

	source := &stubSectionSource{sections: map[string][]models.Section{
		"NET": {sectionOf(class("NET-D", "NET", ts(time.Wednesday, "10:00", "11:00")))},
	}}
	svc, cacheRepo := newConflictFixture(t, source)
	cacheRepo.setErr = errors.New("cache unavailable")
	ctx := context.Background()

	alternatives, err := svc.GenerateAlternatives(ctx, "period-1", proposed, existing)
	require.NoError(t, err)
	require.Len(t, alternatives, 1)
	assert.Equal(t, "NET-D", alternatives[0].SubstituteClassID)
	assert.False(t, cacheRepo.has("alternatives:period-1:NET:NET-C"))

	_, err = svc.GenerateAlternatives(ctx, "period-1", proposed, existing)
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount())
}

func TestGenerateAlternativesSkipsUnbalancedCandidates(t *testing.T) {
	existing := []models.ScheduledClass{class("ALG-A", "ALG", ts(time.Tuesday, "09:00", "10:30"))}
	proposed := []models.ScheduledClass{class("NET-C", "NET", ts(time.Tuesday, "10:00", "11:00"))}

	source := &stubSectionSource{sections: map[string][]models.Section{
		"NET": {
			sectionOf(class("NET-LATE", "NET", ts(time.Tuesday, "15:00", "16:00"))),
			sectionOf(class("NET-OK", "NET", ts(time.Tuesday, "11:00", "12:00"))),
		},
	}}
	svc, _ := newConflictFixture(t, source)

	alternatives, err := svc.GenerateAlternatives(context.Background(), "period-1", proposed, existing)
	require.NoError(t, err)
	require.Len(t, alternatives, 1)
	assert.Equal(t, "NET-OK", alternatives[0].SubstituteClassID)
}

func TestGenerateAlternativesWithoutConflictsSkipsLookup(t *testing.T) {
	source := &stubSectionSource{}
	svc, _ := newConflictFixture(t, source)

	alternatives, err := svc.GenerateAlternatives(context.Background(), "p",
		[]models.ScheduledClass{class("X", "X", ts(time.Monday, "09:00", "10:00"))},
		[]models.ScheduledClass{class("Y", "Y", ts(time.Monday, "10:00", "11:00"))})
	require.NoError(t, err)
	assert.Empty(t, alternatives)
	assert.Zero(t, source.callCount())
}

func TestGenerateAlternativesReportsLookupFailure(t *testing.T) {
	source := &stubSectionSource{err: errors.New("catalog unavailable")}
	svc, _ := newConflictFixture(t, source)

	_, err := svc.GenerateAlternatives(context.Background(), "p",
		[]models.ScheduledClass{class("X", "X", ts(time.Monday, "09:00", "10:00"))},
		[]models.ScheduledClass{class("Y", "Y", ts(time.Monday, "09:30", "11:00"))})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
}

func TestGenerateAlternativesRoutesThroughQueue(t *testing.T) {
	source := &stubSectionSource{}
	q := jobs.NewQueue("stopped", jobs.QueueConfig{MaxConcurrent: 1})
	svc := NewScheduleConflictService(q, source, nil, 0, time.Minute, zap.NewNop())

	_, err := svc.GenerateAlternatives(context.Background(), "p",
		[]models.ScheduledClass{class("X", "X", ts(time.Monday, "09:00", "10:00"))},
		[]models.ScheduledClass{class("Y", "Y", ts(time.Monday, "09:30", "11:00"))})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueStopped))
	assert.Zero(t, source.callCount(), "lookups never bypass the queue")
}
