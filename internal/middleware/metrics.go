package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder observes completed HTTP requests. *metrics.Metrics
// implements it.
type RequestRecorder interface {
	RecordRequest(method, route, status string, d time.Duration)
}

// Metrics records the duration of every request labelled by route template.
func Metrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		recorder.RecordRequest(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
