package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/krs-admission-api/pkg/middleware/requestid"
)

var allowedHeaders = strings.Join([]string{"Content-Type", "X-Requested-With", requestid.HeaderKey}, ", ")

// New returns a CORS middleware. An empty origin list allows every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[normalize(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && len(origins) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed(origins, origin):
			header.Set("Access-Control-Allow-Origin", origin)
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		header.Set("Access-Control-Expose-Headers", requestid.HeaderKey)
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func allowed(origins map[string]struct{}, origin string) bool {
	if len(origins) == 0 {
		return true
	}
	_, ok := origins[normalize(origin)]
	return ok
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
