package models

import (
	"time"

	"github.com/lib/pq"
)

// PeriodStatus is derived from wall-clock time and only ever moves forward.
type PeriodStatus string

const (
	PeriodStatusUpcoming PeriodStatus = "upcoming"
	PeriodStatusActive   PeriodStatus = "active"
	PeriodStatusClosed   PeriodStatus = "closed"
)

// Rank orders statuses along the upcoming -> active -> closed lifecycle.
func (s PeriodStatus) Rank() int {
	switch s {
	case PeriodStatusActive:
		return 1
	case PeriodStatusClosed:
		return 2
	default:
		return 0
	}
}

// StatusAt computes the status of [start, end) at now.
func StatusAt(start, end, now time.Time) PeriodStatus {
	switch {
	case now.Before(start):
		return PeriodStatusUpcoming
	case now.Before(end):
		return PeriodStatusActive
	default:
		return PeriodStatusClosed
	}
}

// RegistrationPeriod is a coarse registration phase shared by many course groups.
type RegistrationPeriod struct {
	ID                             string         `db:"id" json:"id"`
	Name                           string         `db:"name" json:"name"`
	StartTime                      time.Time      `db:"start_time" json:"start_time"`
	EndTime                        time.Time      `db:"end_time" json:"end_time"`
	Status                         PeriodStatus   `db:"status" json:"status"`
	EligibleGroups                 pq.StringArray `db:"eligible_groups" json:"eligible_groups"`
	MaxConcurrentWindowsPerStudent int            `db:"max_concurrent_windows" json:"max_concurrent_windows_per_student"`
	CreatedAt                      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasGroup reports whether groupID is eligible in this period.
func (p RegistrationPeriod) HasGroup(groupID string) bool {
	for _, g := range p.EligibleGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

// RegistrationWindow is a per-student slice of a period.
type RegistrationWindow struct {
	ID        string    `db:"id" json:"id"`
	PeriodID  string    `db:"period_id" json:"period_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Contains reports whether now falls in [StartTime, EndTime).
func (w RegistrationWindow) Contains(now time.Time) bool {
	return !now.Before(w.StartTime) && now.Before(w.EndTime)
}

// Overlaps reports whether two windows intersect.
func (w RegistrationWindow) Overlaps(other RegistrationWindow) bool {
	return w.StartTime.Before(other.EndTime) && w.EndTime.After(other.StartTime)
}

// EligibilityDecision is the answer to "may this student act now?".
type EligibilityDecision struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	PeriodID string `json:"period_id,omitempty"`
	WindowID string `json:"window_id,omitempty"`
}
