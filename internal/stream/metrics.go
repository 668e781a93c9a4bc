package stream

import (
	"net/http"
	"time"

	"github.com/annel0/citystream/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter публикует метрики планировщика в Prometheus.
// Периодически снимает SchedulerStats и обновляет Gauge/Counter;
// о внутренностях планировщика не знает — только снимки.
type MetricsExporter struct {
	streamer *Streamer
	quit     chan struct{}
	done     chan struct{}
	// Prometheus metrics
	drained      prometheus.Counter
	failures     prometheus.Counter
	queueLen     prometheus.Gauge
	activeChunks prometheus.Gauge
	loadedChunks prometheus.Gauge
	budgetUsed   prometheus.Gauge
	sceneNodes   prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер, но не запускает HTTP-сервер.
func NewMetricsExporter(streamer *Streamer) *MetricsExporter {
	me := &MetricsExporter{
		streamer: streamer,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		drained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citystream",
			Name:      "items_drained_total",
			Help:      "Общее число исполненных элементов работы.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citystream",
			Name:      "item_failures_total",
			Help:      "Элементов работы, завершившихся ошибкой генератора.",
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Name:      "queue_len",
			Help:      "Элементов в очереди работы.",
		}),
		activeChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Name:      "active_chunks",
			Help:      "Чанков в состояниях Loading и Loaded.",
		}),
		loadedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Name:      "loaded_chunks",
			Help:      "Полностью загруженных чанков.",
		}),
		budgetUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Name:      "budget_used_ms",
			Help:      "Миллисекунд потрачено последним drain.",
		}),
		sceneNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citystream",
			Name:      "scene_nodes",
			Help:      "Живых узлов сцены в арене.",
		}),
	}

	// Регистрируем метрики в глобальном регистре Prometheus.
	prometheus.MustRegister(me.drained, me.failures, me.queueLen,
		me.activeChunks, me.loadedChunks, me.budgetUsed, me.sceneNodes)
	return me
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе (например, ":2112").
// Метод неблокирующий: HTTP-сервер стартует в отдельной горутине.
func (m *MetricsExporter) StartHTTP(addr string) {
	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	go m.loop()
}

// Stop останавливает обновление метрик.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer close(m.done)

	// Counter обновляется дельтой к прошлому снимку.
	var prev SchedulerStats

	for {
		select {
		case <-ticker.C:
			stats := m.streamer.Stats()

			if d := stats.TotalDrained - prev.TotalDrained; d > 0 {
				m.drained.Add(float64(d))
			}
			if d := stats.TotalFailures - prev.TotalFailures; d > 0 {
				m.failures.Add(float64(d))
			}

			m.queueLen.Set(float64(stats.QueueLen))
			m.activeChunks.Set(float64(stats.ActiveChunks))
			m.loadedChunks.Set(float64(stats.LoadedChunks))
			m.budgetUsed.Set(stats.BudgetUsedMs)
			m.sceneNodes.Set(float64(m.streamer.SceneNodeCount()))

			prev = stats
		case <-m.quit:
			return
		}
	}
}
