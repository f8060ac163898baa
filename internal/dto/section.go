package dto

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/krs-admission-api/internal/models"
)

// SectionRequest describes one offered class section.
type SectionRequest struct {
	ID         string            `json:"id" validate:"required"`
	CourseID   string            `json:"course_id" validate:"required"`
	PeriodID   string            `json:"period_id" validate:"required"`
	RoomID     string            `json:"room_id"`
	BuildingID string            `json:"building_id"`
	Credits    int               `json:"credits" validate:"gte=0"`
	Capacity   int               `json:"capacity" validate:"required,min=1"`
	Slots      []models.TimeSlot `json:"slots" validate:"required,min=1"`
}

// UpsertSectionsRequest stores a batch of sections.
type UpsertSectionsRequest struct {
	Sections []SectionRequest `json:"sections" validate:"required,min=1,dive"`
}

// ToModels converts the batch into sections with encoded slots.
func (r UpsertSectionsRequest) ToModels() ([]models.Section, error) {
	out := make([]models.Section, 0, len(r.Sections))
	for _, s := range r.Sections {
		raw, err := json.Marshal(s.Slots)
		if err != nil {
			return nil, fmt.Errorf("encode slots for section %s: %w", s.ID, err)
		}
		out = append(out, models.Section{
			ID:         s.ID,
			CourseID:   s.CourseID,
			PeriodID:   s.PeriodID,
			RoomID:     s.RoomID,
			BuildingID: s.BuildingID,
			Credits:    s.Credits,
			Capacity:   s.Capacity,
			Slots:      types.JSONText(raw),
		})
	}
	return out, nil
}
