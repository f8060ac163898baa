package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RegistrationAction is the kind of seat mutation a student requests.
type RegistrationAction string

const (
	RegistrationActionEnroll RegistrationAction = "ENROLL"
	RegistrationActionDrop   RegistrationAction = "DROP"
)

// Section is an offered class section with its seat counters.
type Section struct {
	ID         string         `db:"id" json:"id"`
	CourseID   string         `db:"course_id" json:"course_id"`
	PeriodID   string         `db:"period_id" json:"period_id"`
	RoomID     string         `db:"room_id" json:"room_id"`
	BuildingID string         `db:"building_id" json:"building_id"`
	Credits    int            `db:"credits" json:"credits"`
	Capacity   int            `db:"capacity" json:"capacity"`
	Enrolled   int            `db:"enrolled" json:"enrolled"`
	Slots      types.JSONText `db:"slots" json:"slots"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduledClass decodes the section's stored slots.
func (s Section) ScheduledClass() (ScheduledClass, error) {
	class := ScheduledClass{
		ClassID:    s.ID,
		CourseID:   s.CourseID,
		RoomID:     s.RoomID,
		BuildingID: s.BuildingID,
		Credits:    s.Credits,
	}
	if len(s.Slots) == 0 {
		return class, nil
	}
	if err := json.Unmarshal(s.Slots, &class.Slots); err != nil {
		return ScheduledClass{}, fmt.Errorf("decode slots for section %s: %w", s.ID, err)
	}
	return class, nil
}

// SeatMutation is the payload executed against the registration backend.
type SeatMutation struct {
	StudentID string             `json:"student_id"`
	ClassID   string             `json:"class_id"`
	CourseID  string             `json:"course_id"`
	PeriodID  string             `json:"period_id"`
	Action    RegistrationAction `json:"action"`
}

// SeatMutationResult is what the backend reports after a mutation.
type SeatMutationResult struct {
	StudentID   string             `json:"student_id"`
	ClassID     string             `json:"class_id"`
	Action      RegistrationAction `json:"action"`
	Enrolled    int                `json:"enrolled"`
	Capacity    int                `json:"capacity"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// SettlementOutcome labels how a queued mutation ended.
type SettlementOutcome string

const (
	SettlementFulfilled SettlementOutcome = "fulfilled"
	SettlementFailed    SettlementOutcome = "failed"
)

// Settlement is published after a queued mutation settles so views can refresh.
type Settlement struct {
	TicketID  string             `json:"ticket_id"`
	StudentID string             `json:"student_id"`
	ClassID   string             `json:"class_id"`
	PeriodID  string             `json:"period_id"`
	Action    RegistrationAction `json:"action"`
	Outcome   SettlementOutcome  `json:"outcome"`
	ErrorCode string             `json:"error_code,omitempty"`
	SettledAt time.Time          `json:"settled_at"`
}

// RegistrationOutcome is returned to the caller of a registration submission.
type RegistrationOutcome struct {
	TicketID     string                `json:"ticket_id,omitempty"`
	Eligibility  EligibilityDecision   `json:"eligibility"`
	Conflicts    []ClassConflict       `json:"conflicts,omitempty"`
	Alternatives []AlternativeSchedule `json:"alternatives,omitempty"`
	Results      []SeatMutationResult  `json:"results,omitempty"`
}
