package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/krs-admission-api/pkg/jobs"
)

// QueueConfigRequest adjusts the admission queue at runtime. Durations use Go syntax such as "30s".
type QueueConfigRequest struct {
	MaxConcurrent *int    `json:"max_concurrent" validate:"omitempty,min=1"`
	Timeout       *string `json:"timeout"`
	MaxAttempts   *int    `json:"max_attempts" validate:"omitempty,min=1"`
	RetryDelay    *string `json:"retry_delay"`
}

// QueueStatsResponse renders queue statistics with human readable durations.
type QueueStatsResponse struct {
	PendingCount  int    `json:"pending_count"`
	InFlightCount int    `json:"in_flight_count"`
	MaxConcurrent int    `json:"max_concurrent"`
	Timeout       string `json:"timeout"`
	MaxAttempts   int    `json:"max_attempts"`
	RetryDelay    string `json:"retry_delay"`
}

// ToUpdate converts the request into a queue update.
func (r QueueConfigRequest) ToUpdate() (jobs.ConfigUpdate, error) {
	update := jobs.ConfigUpdate{MaxConcurrent: r.MaxConcurrent, MaxAttempts: r.MaxAttempts}
	var err error
	if update.Timeout, err = parsePositive("timeout", r.Timeout); err != nil {
		return jobs.ConfigUpdate{}, err
	}
	if update.RetryDelay, err = parsePositive("retry_delay", r.RetryDelay); err != nil {
		return jobs.ConfigUpdate{}, err
	}
	return update, nil
}

// NewQueueStatsResponse renders stats.
func NewQueueStatsResponse(stats jobs.Stats) QueueStatsResponse {
	return QueueStatsResponse{
		PendingCount:  stats.PendingCount,
		InFlightCount: stats.InFlightCount,
		MaxConcurrent: stats.MaxConcurrent,
		Timeout:       stats.Timeout.String(),
		MaxAttempts:   stats.MaxAttempts,
		RetryDelay:    stats.RetryDelay.String(),
	}
}

// NewQueueConfigResponse renders the effective configuration after an update.
func NewQueueConfigResponse(cfg jobs.QueueConfig) QueueStatsResponse {
	return QueueStatsResponse{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout.String(),
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay.String(),
	}
}

func parsePositive(field string, raw *string) (*time.Duration, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return &d, nil
}
