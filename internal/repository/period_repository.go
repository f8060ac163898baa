package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/krs-admission-api/internal/models"
)

// PeriodRepository persists registration periods and their windows.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository instantiates a period repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// ListPeriods returns every period ordered by start time.
func (r *PeriodRepository) ListPeriods(ctx context.Context) ([]models.RegistrationPeriod, error) {
	const query = `SELECT id, name, start_time, end_time, status, eligible_groups, max_concurrent_windows, created_at, updated_at FROM registration_periods ORDER BY start_time, id`
	var periods []models.RegistrationPeriod
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list registration periods: %w", err)
	}
	return periods, nil
}

// ListWindows returns every registration window.
func (r *PeriodRepository) ListWindows(ctx context.Context) ([]models.RegistrationWindow, error) {
	const query = `SELECT id, period_id, student_id, start_time, end_time, created_at FROM registration_windows ORDER BY period_id, start_time, id`
	var windows []models.RegistrationWindow
	if err := r.db.SelectContext(ctx, &windows, query); err != nil {
		return nil, fmt.Errorf("list registration windows: %w", err)
	}
	return windows, nil
}

// UpsertPeriod inserts or fully replaces a period.
func (r *PeriodRepository) UpsertPeriod(ctx context.Context, period *models.RegistrationPeriod) error {
	const query = `INSERT INTO registration_periods (id, name, start_time, end_time, status, eligible_groups, max_concurrent_windows, created_at, updated_at)
VALUES (:id, :name, :start_time, :end_time, :status, :eligible_groups, :max_concurrent_windows, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, status = EXCLUDED.status, eligible_groups = EXCLUDED.eligible_groups, max_concurrent_windows = EXCLUDED.max_concurrent_windows, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("upsert registration period: %w", err)
	}
	return nil
}

// UpdateStatuses stores refreshed statuses in one transaction.
func (r *PeriodRepository) UpdateStatuses(ctx context.Context, statuses map[string]models.PeriodStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE registration_periods SET status = $1, updated_at = $2 WHERE id = $3`, statuses[id], now, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update period %s status: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

// DeletePeriod removes a period together with its windows.
func (r *PeriodRepository) DeletePeriod(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete period tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_windows WHERE period_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete period windows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_periods WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete registration period: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete period tx: %w", err)
	}
	return nil
}

// InsertWindow stores a new window.
func (r *PeriodRepository) InsertWindow(ctx context.Context, window *models.RegistrationWindow) error {
	const query = `INSERT INTO registration_windows (id, period_id, student_id, start_time, end_time, created_at) VALUES (:id, :period_id, :student_id, :start_time, :end_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("insert registration window: %w", err)
	}
	return nil
}

// DeleteWindow removes a single window.
func (r *PeriodRepository) DeleteWindow(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registration_windows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete registration window: %w", err)
	}
	return nil
}
