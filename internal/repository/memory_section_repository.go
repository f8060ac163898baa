package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type sectionSeats struct {
	section models.Section
	holders map[string]struct{}
}

// MemorySectionRepository keeps sections and seat holders in process. It backs the API when no
// database is configured and mirrors SectionRepository semantics.
type MemorySectionRepository struct {
	mu       sync.Mutex
	sections map[string]*sectionSeats
}

// NewMemorySectionRepository seeds the store with sections.
func NewMemorySectionRepository(sections ...models.Section) *MemorySectionRepository {
	r := &MemorySectionRepository{sections: make(map[string]*sectionSeats, len(sections))}
	for _, s := range sections {
		r.sections[s.ID] = &sectionSeats{section: s, holders: make(map[string]struct{})}
	}
	return r
}

// UpsertSection replaces section metadata. The seat counter and holders of an existing section are kept.
func (r *MemorySectionRepository) UpsertSection(_ context.Context, section models.Section) (models.Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	section.UpdatedAt = time.Now().UTC()
	if existing, ok := r.sections[section.ID]; ok {
		section.Enrolled = existing.section.Enrolled
		existing.section = section
		return section, nil
	}
	section.Enrolled = 0
	r.sections[section.ID] = &sectionSeats{section: section, holders: make(map[string]struct{})}
	return section, nil
}

// ListSections returns the sections of periodID, optionally narrowed to courseID, ordered by course then id.
func (r *MemorySectionRepository) ListSections(_ context.Context, periodID, courseID string) ([]models.Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Section, 0)
	for _, s := range r.sections {
		if s.section.PeriodID != periodID || (courseID != "" && s.section.CourseID != courseID) {
			continue
		}
		out = append(out, s.section)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseID != out[j].CourseID {
			return out[i].CourseID < out[j].CourseID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListAlternatives returns open sections of courseID in periodID other than excludeClassID, least filled first.
func (r *MemorySectionRepository) ListAlternatives(_ context.Context, periodID, courseID, excludeClassID string) ([]models.Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Section
	for _, s := range r.sections {
		sec := s.section
		if sec.PeriodID != periodID || sec.CourseID != courseID || sec.ID == excludeClassID || sec.Enrolled >= sec.Capacity {
			continue
		}
		out = append(out, sec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Enrolled != out[j].Enrolled {
			return out[i].Enrolled < out[j].Enrolled
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Reserve takes a seat for the student. Repeated reservations by the same student are no-ops.
func (r *MemorySectionRepository) Reserve(_ context.Context, m models.SeatMutation) (models.SeatMutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(m.ClassID)
	if err != nil {
		return models.SeatMutationResult{}, err
	}
	now := time.Now().UTC()
	if _, held := s.holders[m.StudentID]; !held {
		if s.section.Enrolled >= s.section.Capacity {
			return models.SeatMutationResult{}, appErrors.WithDetails(appErrors.ErrClassFull, map[string]any{
				"class_id": m.ClassID,
				"capacity": s.section.Capacity,
				"enrolled": s.section.Enrolled,
			})
		}
		s.holders[m.StudentID] = struct{}{}
		s.section.Enrolled++
		s.section.UpdatedAt = now
	}
	return seatResult(m, seatCounts{Enrolled: s.section.Enrolled, Capacity: s.section.Capacity}, now), nil
}

// Release frees the student's seat if held.
func (r *MemorySectionRepository) Release(_ context.Context, m models.SeatMutation) (models.SeatMutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(m.ClassID)
	if err != nil {
		return models.SeatMutationResult{}, err
	}
	now := time.Now().UTC()
	if _, held := s.holders[m.StudentID]; held {
		delete(s.holders, m.StudentID)
		if s.section.Enrolled > 0 {
			s.section.Enrolled--
		}
		s.section.UpdatedAt = now
	}
	return seatResult(m, seatCounts{Enrolled: s.section.Enrolled, Capacity: s.section.Capacity}, now), nil
}

func (r *MemorySectionRepository) lookup(id string) (*sectionSeats, error) {
	s, ok := r.sections[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("section %s not found", id))
	}
	return s, nil
}
