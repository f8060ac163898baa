package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/krs-admission-api/internal/models"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type stubCacheRepo struct {
	mu      sync.Mutex
	items   map[string][]byte
	cleared []string
	sweeps  int
	getErr  error
	setErr  error
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{items: make(map[string][]byte)}
}

func (s *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return s.getErr
	}
	raw, ok := s.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.items[key] = raw
	return nil
}

func (s *stubCacheRepo) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *stubCacheRepo) DeleteMatching(ctx context.Context, fragment string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, fragment)
	deleted := 0
	for key := range s.items {
		if strings.Contains(key, fragment) {
			delete(s.items, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubCacheRepo) DeleteExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return nil
}

func (s *stubCacheRepo) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

type stubPeriodRepo struct {
	periods        map[string]models.RegistrationPeriod
	windows        map[string]models.RegistrationWindow
	statusUpdates  []map[string]models.PeriodStatus
	deletedPeriods []string
	upsertErr      error
	upsertHook     func()
}

func newStubPeriodRepo() *stubPeriodRepo {
	return &stubPeriodRepo{
		periods: make(map[string]models.RegistrationPeriod),
		windows: make(map[string]models.RegistrationWindow),
	}
}

func (s *stubPeriodRepo) ListPeriods(ctx context.Context) ([]models.RegistrationPeriod, error) {
	out := make([]models.RegistrationPeriod, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubPeriodRepo) ListWindows(ctx context.Context) ([]models.RegistrationWindow, error) {
	out := make([]models.RegistrationWindow, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	return out, nil
}

func (s *stubPeriodRepo) UpsertPeriod(ctx context.Context, period *models.RegistrationPeriod) error {
	if s.upsertHook != nil {
		s.upsertHook()
	}
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.periods[period.ID] = *period
	return nil
}

func (s *stubPeriodRepo) UpdateStatuses(ctx context.Context, statuses map[string]models.PeriodStatus) error {
	s.statusUpdates = append(s.statusUpdates, statuses)
	for id, status := range statuses {
		p := s.periods[id]
		p.Status = status
		s.periods[id] = p
	}
	return nil
}

func (s *stubPeriodRepo) DeletePeriod(ctx context.Context, id string) error {
	s.deletedPeriods = append(s.deletedPeriods, id)
	delete(s.periods, id)
	for wid, w := range s.windows {
		if w.PeriodID == id {
			delete(s.windows, wid)
		}
	}
	return nil
}

func (s *stubPeriodRepo) InsertWindow(ctx context.Context, window *models.RegistrationWindow) error {
	s.windows[window.ID] = *window
	return nil
}

func (s *stubPeriodRepo) DeleteWindow(ctx context.Context, id string) error {
	delete(s.windows, id)
	return nil
}
