package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

const sectionColumns = `id, course_id, period_id, room_id, building_id, credits, capacity, enrolled, slots, updated_at`

// SectionRepository owns class sections and their seat counters. It executes seat mutations
// and serves alternative-section lookups.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository instantiates a section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID loads a section by identifier.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM class_sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// UpsertSection inserts or updates section metadata. The seat counter of an existing section is kept.
func (r *SectionRepository) UpsertSection(ctx context.Context, section models.Section) (models.Section, error) {
	const query = `INSERT INTO class_sections (id, course_id, period_id, room_id, building_id, credits, capacity, enrolled, slots, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, period_id = EXCLUDED.period_id, room_id = EXCLUDED.room_id, building_id = EXCLUDED.building_id, credits = EXCLUDED.credits, capacity = EXCLUDED.capacity, slots = EXCLUDED.slots, updated_at = EXCLUDED.updated_at
RETURNING ` + sectionColumns
	var stored models.Section
	err := r.db.GetContext(ctx, &stored, query,
		section.ID, section.CourseID, section.PeriodID, section.RoomID, section.BuildingID,
		section.Credits, section.Capacity, section.Slots, time.Now().UTC())
	if err != nil {
		return models.Section{}, fmt.Errorf("upsert class section: %w", err)
	}
	return stored, nil
}

// ListSections returns the sections of periodID, optionally narrowed to courseID.
func (r *SectionRepository) ListSections(ctx context.Context, periodID, courseID string) ([]models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM class_sections WHERE period_id = $1 AND ($2 = '' OR course_id = $2) ORDER BY course_id, id`
	sections := make([]models.Section, 0)
	if err := r.db.SelectContext(ctx, &sections, query, periodID, courseID); err != nil {
		return nil, fmt.Errorf("list class sections: %w", err)
	}
	return sections, nil
}

// ListAlternatives returns open sections of courseID in periodID other than excludeClassID, least filled first.
func (r *SectionRepository) ListAlternatives(ctx context.Context, periodID, courseID, excludeClassID string) ([]models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM class_sections WHERE period_id = $1 AND course_id = $2 AND id <> $3 AND enrolled < capacity ORDER BY enrolled ASC, id ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, periodID, courseID, excludeClassID); err != nil {
		return nil, fmt.Errorf("list alternative sections: %w", err)
	}
	return sections, nil
}

type seatCounts struct {
	Enrolled int `db:"enrolled"`
	Capacity int `db:"capacity"`
}

// Reserve enrolls the student in the section. It is idempotent per (section, student) so a retried
// attempt does not take a second seat. A section without free seats yields CLASS_FULL.
func (r *SectionRepository) Reserve(ctx context.Context, m models.SeatMutation) (models.SeatMutationResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.SeatMutationResult{}, fmt.Errorf("begin reserve tx: %w", err)
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `INSERT INTO section_enrollments (section_id, student_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (section_id, student_id) DO NOTHING`, m.ClassID, m.StudentID, now)
	if err != nil {
		_ = tx.Rollback()
		return models.SeatMutationResult{}, fmt.Errorf("insert enrollment: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return models.SeatMutationResult{}, fmt.Errorf("enrollment rows affected: %w", err)
	}

	var counts seatCounts
	if inserted == 0 {
		err = tx.GetContext(ctx, &counts, `SELECT enrolled, capacity FROM class_sections WHERE id = $1`, m.ClassID)
	} else {
		err = tx.GetContext(ctx, &counts, `UPDATE class_sections SET enrolled = enrolled + 1, updated_at = $2 WHERE id = $1 AND enrolled < capacity RETURNING enrolled, capacity`, m.ClassID, now)
	}
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return models.SeatMutationResult{}, r.seatUnavailable(ctx, m.ClassID)
		}
		return models.SeatMutationResult{}, fmt.Errorf("reserve seat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SeatMutationResult{}, fmt.Errorf("commit reserve tx: %w", err)
	}
	return seatResult(m, counts, now), nil
}

// Release withdraws the student from the section. Releasing a seat that is not held is a no-op.
func (r *SectionRepository) Release(ctx context.Context, m models.SeatMutation) (models.SeatMutationResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.SeatMutationResult{}, fmt.Errorf("begin release tx: %w", err)
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `DELETE FROM section_enrollments WHERE section_id = $1 AND student_id = $2`, m.ClassID, m.StudentID)
	if err != nil {
		_ = tx.Rollback()
		return models.SeatMutationResult{}, fmt.Errorf("delete enrollment: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return models.SeatMutationResult{}, fmt.Errorf("enrollment rows affected: %w", err)
	}

	var counts seatCounts
	if removed == 0 {
		err = tx.GetContext(ctx, &counts, `SELECT enrolled, capacity FROM class_sections WHERE id = $1`, m.ClassID)
	} else {
		err = tx.GetContext(ctx, &counts, `UPDATE class_sections SET enrolled = GREATEST(enrolled - 1, 0), updated_at = $2 WHERE id = $1 RETURNING enrolled, capacity`, m.ClassID, now)
	}
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return models.SeatMutationResult{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("section %s not found", m.ClassID))
		}
		return models.SeatMutationResult{}, fmt.Errorf("release seat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SeatMutationResult{}, fmt.Errorf("commit release tx: %w", err)
	}
	return seatResult(m, counts, now), nil
}

func (r *SectionRepository) seatUnavailable(ctx context.Context, classID string) error {
	var counts seatCounts
	if err := r.db.GetContext(ctx, &counts, `SELECT enrolled, capacity FROM class_sections WHERE id = $1`, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("section %s not found", classID))
		}
		return fmt.Errorf("load section capacity: %w", err)
	}
	return appErrors.WithDetails(appErrors.ErrClassFull, map[string]any{
		"class_id": classID,
		"capacity": counts.Capacity,
		"enrolled": counts.Enrolled,
	})
}

func seatResult(m models.SeatMutation, counts seatCounts, at time.Time) models.SeatMutationResult {
	return models.SeatMutationResult{
		StudentID:   m.StudentID,
		ClassID:     m.ClassID,
		Action:      m.Action,
		Enrolled:    counts.Enrolled,
		Capacity:    counts.Capacity,
		ProcessedAt: at,
	}
}
