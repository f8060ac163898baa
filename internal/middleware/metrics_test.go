package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedRequest struct {
	method string
	path   string
	status int
}

type recordingObserver struct {
	seen []observedRequest
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.seen = append(r.seen, observedRequest{method, path, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/registration-periods/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/registration-periods/p1", "/nope/123"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observedRequest{http.MethodGet, "/registration-periods/:id", http.StatusOK}, obs.seen[0])
	assert.Equal(t, observedRequest{http.MethodGet, unmatchedRoute, http.StatusNotFound}, obs.seen[1])
}
