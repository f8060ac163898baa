package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

// At builds a TimeOfDay from hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if raw == "24:00" {
		return At(24, 0), nil
	}
	if len(raw) != len("15:04") {
		return 0, fmt.Errorf("parse time of day %q: want HH:MM", raw)
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	return At(parsed.Hour(), parsed.Minute()), nil
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Sub returns the duration from other to t.
func (t TimeOfDay) Sub(other TimeOfDay) time.Duration {
	return time.Duration(int(t)-int(other)) * time.Minute
}

// TimeSlot is a weekly meeting: day of week plus a half-open [Start, End) interval.
type TimeSlot struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     TimeOfDay    `json:"start_time"`
	End       TimeOfDay    `json:"end_time"`
}

// Overlaps reports whether both slots share a day and their intervals intersect.
// Touching boundaries do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.DayOfWeek == other.DayOfWeek && s.Start < other.End && s.End > other.Start
}

// Duration returns the slot length.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Valid reports whether the slot has a legal day and a positive length.
func (s TimeSlot) Valid() bool {
	return s.DayOfWeek >= time.Sunday && s.DayOfWeek <= time.Saturday && s.Start >= 0 && s.End > s.Start && s.End <= At(24, 0)
}

// ScheduledClass is one section a student holds or proposes to take.
type ScheduledClass struct {
	ClassID    string     `json:"class_id" validate:"required"`
	CourseID   string     `json:"course_id" validate:"required"`
	RoomID     string     `json:"room_id"`
	BuildingID string     `json:"building_id"`
	Credits    int        `json:"credits,omitempty"`
	Slots      []TimeSlot `json:"slots" validate:"required,min=1"`
}

// ClassSlot pairs a class with one of its slots.
type ClassSlot struct {
	Class ScheduledClass `json:"class"`
	Slot  TimeSlot       `json:"slot"`
}

// DaySchedule holds seven buckets, Sunday through Saturday, each sorted by start time.
type DaySchedule [7][]ClassSlot

// BucketByDay distributes every slot of every class into its weekday bucket.
func BucketByDay(classes []ScheduledClass) DaySchedule {
	var schedule DaySchedule
	for _, class := range classes {
		for _, slot := range class.Slots {
			day := int(slot.DayOfWeek)
			if day < 0 || day > 6 {
				continue
			}
			schedule[day] = append(schedule[day], ClassSlot{Class: class, Slot: slot})
		}
	}
	for day := range schedule {
		sort.SliceStable(schedule[day], func(i, j int) bool {
			return schedule[day][i].Slot.Start < schedule[day][j].Slot.Start
		})
	}
	return schedule
}

// SlotPair is a pair of overlapping slots, proposed first.
type SlotPair struct {
	Proposed TimeSlot `json:"proposed"`
	Existing TimeSlot `json:"existing"`
}

// ClassConflict groups every overlapping slot pair against one existing class.
type ClassConflict struct {
	ProposedClassID string         `json:"proposed_class_id"`
	Class           ScheduledClass `json:"conflicting_class"`
	Pairs           []SlotPair     `json:"slot_pairs"`
}

// Break is idle time between two adjacent classes on the same day.
type Break struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     TimeOfDay    `json:"start_time"`
	End       TimeOfDay    `json:"end_time"`
	AfterID   string       `json:"after_class_id"`
	BeforeID  string       `json:"before_class_id"`
}

// Duration returns the break length.
func (b Break) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// BalanceIssueType labels a schedule balance problem.
type BalanceIssueType string

const (
	BalanceIssueOverloadedDay BalanceIssueType = "OVERLOADED_DAY"
	BalanceIssueLongBreak     BalanceIssueType = "LONG_BREAK"
	BalanceIssueLongDay       BalanceIssueType = "LONG_DAY"
)

// BalanceIssue describes one balance violation.
type BalanceIssue struct {
	Type      BalanceIssueType `json:"type"`
	DayOfWeek time.Weekday     `json:"day_of_week"`
	Message   string           `json:"message"`
}

// BalanceReport is the result of a balance validation.
type BalanceReport struct {
	IsBalanced      bool           `json:"is_balanced"`
	Issues          []BalanceIssue `json:"issues"`
	Recommendations []string       `json:"recommendations"`
}

// QualityFactor is one weighted component of a schedule quality score.
type QualityFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

// QualityReport explains a schedule quality score.
type QualityReport struct {
	Score   float64         `json:"score"`
	Factors []QualityFactor `json:"factors"`
}

// AlternativeSchedule is a whole proposed set with one conflicting class substituted.
type AlternativeSchedule struct {
	Classes           []ScheduledClass `json:"classes"`
	ReplacedClassID   string           `json:"replaced_class_id"`
	SubstituteClassID string           `json:"substitute_class_id"`
	Quality           QualityReport    `json:"quality"`
}
