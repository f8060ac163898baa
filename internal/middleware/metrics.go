package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency by route template. Requests that match no route
// share one label so arbitrary paths cannot grow the series set.
func Metrics(observer requestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
