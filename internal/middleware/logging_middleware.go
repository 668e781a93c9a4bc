package middleware

import (
	"time"

	"github.com/annel0/citystream/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger пишет строку на каждый завершённый запрос REST и кладёт
// trace-id в контекст gin. ID берётся из активного спана otelgin, при
// выключенной трассировке генерируется свой. Ставится после otelgin.
func RequestLogger() gin.HandlerFunc {
	log := logging.GetComponentLogger("rest")

	return func(c *gin.Context) {
		traceID := uuid.NewString()
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		c.Set("trace_id", traceID)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		if status >= 500 {
			log.Error("%s %s -> %d за %s ip=%s trace=%s",
				c.Request.Method, route, status, time.Since(start), c.ClientIP(), traceID)
			return
		}
		log.Debug("%s %s -> %d за %s ip=%s trace=%s",
			c.Request.Method, route, status, time.Since(start), c.ClientIP(), traceID)
	}
}
