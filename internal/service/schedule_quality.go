package service

import (
	"math"
	"time"

	"github.com/noah-isme/krs-admission-api/internal/models"
)

// Quality factor weights; they sum to 1.0.
const (
	breakDistributionWeight = 0.30
	loadBalanceWeight       = 0.25
	timePreferenceWeight    = 0.25
	travelWeight            = 0.20
)

const (
	shortBreakThreshold = 15 * time.Minute
	earlyStartCutoff    = 7 * 60
	lateStartCutoff     = 17 * 60
	preferredStartFrom  = 9 * 60
	preferredStartUntil = 15 * 60
)

// CalculateScheduleQuality scores classes in [0, 100] and explains the score per factor.
func (s *ScheduleConflictService) CalculateScheduleQuality(classes []models.ScheduledClass) models.QualityReport {
	schedule := models.BucketByDay(classes)
	breaks := s.BreaksBetweenClasses(schedule)

	factors := []models.QualityFactor{
		{Name: "break_distribution", Weight: breakDistributionWeight, Score: breakDistributionScore(breaks)},
		{Name: "daily_load_balance", Weight: loadBalanceWeight, Score: loadBalanceScore(schedule)},
		{Name: "time_preference", Weight: timePreferenceWeight, Score: timePreferenceScore(schedule)},
		{Name: "travel_optimization", Weight: travelWeight, Score: travelScore(schedule)},
	}

	var weighted, totalWeight float64
	for _, f := range factors {
		weighted += f.Score * f.Weight
		totalWeight += f.Weight
	}
	score := 0.0
	if totalWeight > 0 {
		score = clampScore(weighted / totalWeight)
	}
	return models.QualityReport{Score: math.Round(score*100) / 100, Factors: factors}
}

func breakDistributionScore(breaks []models.Break) float64 {
	score := 100.0
	for _, b := range breaks {
		switch d := b.Duration(); {
		case d < shortBreakThreshold:
			score -= 10
		case d > longBreakThreshold:
			score -= 15
		}
	}
	return math.Max(score, 0)
}

func loadBalanceScore(schedule models.DaySchedule) float64 {
	total, days := 0, 0
	for _, entries := range schedule {
		if len(entries) > 0 {
			total += len(entries)
			days++
		}
	}
	if days == 0 {
		return 100
	}
	avg := float64(total) / float64(days)
	score := 100.0
	for _, entries := range schedule {
		if len(entries) > 0 {
			score -= 10 * math.Abs(float64(len(entries))-avg)
		}
	}
	return clampScore(score)
}

// timePreferenceScore averages a per-day score over the days that have classes.
func timePreferenceScore(schedule models.DaySchedule) float64 {
	var sum float64
	days := 0
	for _, entries := range schedule {
		if len(entries) == 0 {
			continue
		}
		day := 100.0
		for _, e := range entries {
			start := e.Slot.Start
			switch {
			case start <= earlyStartCutoff:
				day -= 15
			case start >= lateStartCutoff:
				day -= 10
			case start >= preferredStartFrom && start <= preferredStartUntil:
				day += 5
			}
		}
		sum += day
		days++
	}
	if days == 0 {
		return 100
	}
	return clampScore(sum / float64(days))
}

// travelScore penalises consecutive same-day classes that change building, or room within a building.
func travelScore(schedule models.DaySchedule) float64 {
	score := 100.0
	for _, entries := range schedule {
		for i := 1; i < len(entries); i++ {
			prev, next := entries[i-1].Class, entries[i].Class
			if prev.RoomID != next.RoomID {
				score -= 5
			}
			if prev.BuildingID != next.BuildingID {
				score -= 10
			}
		}
	}
	return math.Max(score, 0)
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}
