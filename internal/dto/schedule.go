package dto

import (
	"time"

	"github.com/noah-isme/krs-admission-api/internal/models"
)

// ClassSetRequest carries a set of scheduled classes to analyse.
type ClassSetRequest struct {
	Classes []models.ScheduledClass `json:"classes" validate:"required,min=1,dive"`
}

// ConflictCheckRequest asks which proposed classes collide with the current schedule.
type ConflictCheckRequest struct {
	Proposed []models.ScheduledClass `json:"proposed" validate:"required,min=1,dive"`
	Existing []models.ScheduledClass `json:"existing" validate:"dive"`
}

// ConflictCheckResponse lists every conflict found.
type ConflictCheckResponse struct {
	HasConflicts bool                   `json:"has_conflicts"`
	Conflicts    []models.ClassConflict `json:"conflicts"`
}

// DailyScheduleResponse is the weekday-bucketed schedule with the gaps between classes.
type DailyScheduleResponse struct {
	Days   []DayEntry     `json:"days"`
	Breaks []models.Break `json:"breaks"`
}

// DayEntry holds the sorted class slots of one weekday.
type DayEntry struct {
	DayOfWeek int                `json:"day_of_week"`
	Day       string             `json:"day"`
	Slots     []models.ClassSlot `json:"slots"`
}

// AlternativesRequest asks for conflict-free substitutes for a proposal.
type AlternativesRequest struct {
	PeriodID string                  `json:"period_id" validate:"required"`
	Proposed []models.ScheduledClass `json:"proposed" validate:"required,min=1,dive"`
	Existing []models.ScheduledClass `json:"existing" validate:"dive"`
}

// NewDailyScheduleResponse flattens a DaySchedule, skipping empty days.
func NewDailyScheduleResponse(schedule models.DaySchedule, breaks []models.Break) DailyScheduleResponse {
	resp := DailyScheduleResponse{Days: []DayEntry{}, Breaks: breaks}
	if resp.Breaks == nil {
		resp.Breaks = []models.Break{}
	}
	for day, slots := range schedule {
		if len(slots) == 0 {
			continue
		}
		resp.Days = append(resp.Days, DayEntry{DayOfWeek: day, Day: time.Weekday(day).String(), Slots: slots})
	}
	return resp
}
