package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/krs-admission-api/internal/models"
	"github.com/noah-isme/krs-admission-api/internal/service"
	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type eligibilityServiceMock struct {
	periods   []models.RegistrationPeriod
	created   *service.CreatePeriodRequest
	window    *models.RegistrationWindow
	err       error
	decision  models.EligibilityDecision
	changed   []string
	deletedID string
}

func (m *eligibilityServiceMock) ListPeriods() []models.RegistrationPeriod { return m.periods }

func (m *eligibilityServiceMock) GetPeriod(id string) (*models.RegistrationPeriod, error) {
	for i := range m.periods {
		if m.periods[i].ID == id {
			return &m.periods[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "registration period not found")
}

func (m *eligibilityServiceMock) CreatePeriod(ctx context.Context, req service.CreatePeriodRequest) (*models.RegistrationPeriod, error) {
	m.created = &req
	if m.err != nil {
		return nil, m.err
	}
	return &models.RegistrationPeriod{ID: "p-new", Name: req.Name}, nil
}

func (m *eligibilityServiceMock) UpdatePeriod(ctx context.Context, id string, req service.UpdatePeriodRequest) (*models.RegistrationPeriod, error) {
	return m.GetPeriod(id)
}

func (m *eligibilityServiceMock) DeletePeriod(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func (m *eligibilityServiceMock) CreateWindow(ctx context.Context, periodID string, req service.CreateWindowRequest) (*models.RegistrationWindow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.window, nil
}

func (m *eligibilityServiceMock) ListWindows(periodID, studentID string) ([]models.RegistrationWindow, error) {
	return []models.RegistrationWindow{{ID: "w1", PeriodID: periodID, StudentID: studentID}}, nil
}

func (m *eligibilityServiceMock) DeleteWindow(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func (m *eligibilityServiceMock) RefreshStatus(ctx context.Context) ([]string, error) {
	return m.changed, m.err
}

func (m *eligibilityServiceMock) CanRegister(studentID, courseGroupID string) models.EligibilityDecision {
	return m.decision
}

func newPeriodRouter(mock *eligibilityServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewPeriodHandler(mock)
	r := gin.New()
	r.GET("/registration-periods", h.List)
	r.POST("/registration-periods", h.Create)
	r.POST("/registration-periods/refresh", h.Refresh)
	r.GET("/registration-periods/:id", h.Get)
	r.DELETE("/registration-periods/:id", h.Delete)
	r.POST("/registration-periods/:id/windows", h.CreateWindow)
	r.DELETE("/registration-periods/:id/windows/:windowId", h.DeleteWindow)
	r.GET("/eligibility", h.Eligibility)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPeriodHandlerCreate(t *testing.T) {
	mock := &eligibilityServiceMock{}
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	w := doJSON(newPeriodRouter(mock), http.MethodPost, "/registration-periods", map[string]any{
		"name":            "Odd semester",
		"start_time":      start,
		"end_time":        start.Add(72 * time.Hour),
		"eligible_groups": []string{"CS-2024"},
	})

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mock.created)
	assert.Equal(t, []string{"CS-2024"}, mock.created.EligibleGroups)
	assert.True(t, mock.created.StartTime.Equal(start))
}

func TestPeriodHandlerCreateMalformedBody(t *testing.T) {
	r := newPeriodRouter(&eligibilityServiceMock{})
	req := httptest.NewRequest(http.MethodPost, "/registration-periods", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestPeriodHandlerGetNotFound(t *testing.T) {
	w := doJSON(newPeriodRouter(&eligibilityServiceMock{}), http.MethodGet, "/registration-periods/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPeriodHandlerWindowLimit(t *testing.T) {
	mock := &eligibilityServiceMock{err: appErrors.ErrWindowLimitExceeded}
	w := doJSON(newPeriodRouter(mock), http.MethodPost, "/registration-periods/p1/windows", map[string]any{
		"student_id": "s1",
		"start_time": time.Now(),
		"end_time":   time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WINDOW_LIMIT_EXCEEDED", decode(t, w).Error.Code)
}

func TestPeriodHandlerDeleteWindowUsesWindowID(t *testing.T) {
	mock := &eligibilityServiceMock{}
	w := doJSON(newPeriodRouter(mock), http.MethodDelete, "/registration-periods/p1/windows/w9", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "w9", mock.deletedID)
}

func TestPeriodHandlerRefresh(t *testing.T) {
	w := doJSON(newPeriodRouter(&eligibilityServiceMock{}), http.MethodPost, "/registration-periods/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"changed":[]}`, string(decode(t, w).Data))
}

func TestPeriodHandlerEligibility(t *testing.T) {
	mock := &eligibilityServiceMock{decision: models.EligibilityDecision{Allowed: false, Reason: "NO_ACTIVE_WINDOW", PeriodID: "p1"}}
	r := newPeriodRouter(mock)

	w := doJSON(r, http.MethodGet, "/eligibility?student_id=s1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/eligibility?student_id=s1&course_group_id=CS-2024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var decision models.EligibilityDecision
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "NO_ACTIVE_WINDOW", decision.Reason)
}
