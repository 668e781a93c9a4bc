package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics публикует метрики отладочного REST в пространстве
// citystream_http: длительность и итог каждого запроса плюс число
// одновременно обрабатываемых. Маршруты метятся шаблоном gin, а не
// сырым URL, чтобы не раздувать кардинальность.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	statuses *prometheus.CounterVec
}

// NewHTTPMetrics создаёт метрики и регистрирует их в дефолтном регистре.
func NewHTTPMetrics() *HTTPMetrics {
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citystream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Длительность запросов отладочного REST.",
			// Локальный отладочный API: хвост дальше секунды не интересен
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Subsystem: "http",
			Name:      "requests_inflight",
			Help:      "Запросы в обработке прямо сейчас.",
		}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citystream",
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "Ответы REST по маршруту и коду.",
		}, []string{"method", "route", "status"}),
	}

	prometheus.MustRegister(m.duration, m.inflight, m.statuses)
	return m
}

// Handler возвращает gin-middleware, снимающую метрики с каждого запроса.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inflight.Inc()
		c.Next()
		m.inflight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched" // 404 и прочие мимо роутера
		}
		method := c.Request.Method

		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		m.statuses.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// MetricsEndpoint вешает GET /metrics на роутер REST: те же данные,
// что и на отдельном порту Prometheus, но без второго сервера.
func (m *HTTPMetrics) MetricsEndpoint(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
