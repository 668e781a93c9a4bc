package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/citystream/internal/api"
	"github.com/annel0/citystream/internal/config"
	"github.com/annel0/citystream/internal/eventbus"
	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/observability"
	"github.com/annel0/citystream/internal/stream"
	"github.com/annel0/citystream/internal/vec"
)

// viewerState позиция зрителя, разделяемая между тиком и REST.
type viewerState struct {
	mu  sync.RWMutex
	pos vec.Vec2Float
}

func (v *viewerState) Position() vec.Vec2Float {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pos
}

func (v *viewerState) MoveTo(pos vec.Vec2Float) {
	v.mu.Lock()
	v.pos = pos
	v.mu.Unlock()
}

func main() {
	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🏙️  Запуск CityStream Server...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load("")
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	restAddr := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	logging.Info("📡 Конфигурация сервера: REST API=%s, Prometheus=%s, tick_rate=%d",
		restAddr, metricsAddr, cfg.Stream.TickRate)

	// === TELEMETRY ===
	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Error("Телеметрия недоступна: %v", err)
		} else {
			defer func() { _ = shutdown(ctx) }()
		}
	}

	// === ДАТАСЕТ ===
	datasetPath := cfg.Dataset.DatasetPath()
	if datasetPath == "" {
		logging.Error("❌ Датасет не задан: укажите dataset.path в конфиге или CITYSTREAM_DATASET")
		log.Fatalf("❌ Датасет не задан")
	}

	store, err := geodata.NewDatasetStore(cfg.Dataset.CacheDir)
	if err != nil {
		logging.Error("❌ Ошибка открытия кэша датасета: %v", err)
		log.Fatalf("❌ Ошибка открытия кэша датасета: %v", err)
	}
	defer store.Close()

	result, err := store.LoadOrImport(datasetPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки датасета %s: %v", datasetPath, err)
		log.Fatalf("❌ Ошибка загрузки датасета: %v", err)
	}
	logging.Info("🗺️  Датасет готов: %d фич (%d записей отброшено)", len(result.Features), result.Skipped)

	// === ИНИЦИАЛИЗАЦИЯ КОМПОНЕНТОВ ===
	gen.RegisterDefaults()

	bus := eventbus.NewMemoryBus(256)
	eventbus.Init(bus)

	// Логируем вехи жизненного цикла чанков из шины, не трогая планировщик
	busCtx, busCancel := context.WithCancel(ctx)
	defer busCancel()
	sub, err := bus.Subscribe(busCtx, eventbus.Filter{Types: []string{eventbus.EventChunkReady}},
		func(_ context.Context, ev *eventbus.Envelope) {
			ce, err := eventbus.DecodeChunkEvent(ev)
			if err != nil {
				return
			}
			logging.Debug("✅ Чанк (%d,%d) готов: %d элементов, %d ошибок, %.1f мс",
				ce.X, ce.Y, ce.Items, ce.Failures, ce.Elapsed)
		})
	if err != nil {
		logging.Warn("Не удалось подписаться на события чанков: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	seed := time.Now().UnixNano()
	if v := os.Getenv("CITYSTREAM_SEED"); v != "" {
		var parsed int64
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			seed = parsed
		}
	}

	settings := stream.FromConfig(cfg.Stream, seed)
	streamer, err := stream.NewStreamer(result.Features, settings, bus)
	if err != nil {
		logging.Error("❌ Ошибка создания стримера: %v", err)
		log.Fatalf("❌ Ошибка создания стримера: %v", err)
	}

	// Зритель стартует в центре масс датасета; перемещается через REST
	viewer := &viewerState{pos: datasetCenter(result.Features)}
	logging.Info("🧭 Зритель в точке (%.0f, %.0f)", viewer.Position().X, viewer.Position().Y)

	// === ВНЕШНИЕ ПОВЕРХНОСТИ ===
	exporter := stream.NewMetricsExporter(streamer)
	exporter.StartHTTP(metricsAddr)

	restServer := api.NewRestServer(api.Config{
		Port:     restAddr,
		Streamer: streamer,
		Viewer:   viewer,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ Ошибка REST API сервера: %v", err)
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restAddr)
	logging.Info("   📈 Prometheus: http://localhost%s/metrics", metricsAddr)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restAddr)
	logging.Info("💡 Примеры:")
	logging.Info("   curl http://localhost%s/api/stats", restAddr)
	logging.Info("   curl -X PATCH http://localhost%s/api/settings -H 'Content-Type: application/json' -d '{\"load_radius\":900}'", restAddr)

	// === ТИКОВЫЙ ЦИКЛ ===
	tickRate := cfg.Stream.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			streamer.Tick(viewer.Position())
		case sig := <-sigCh:
			logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
			exporter.Stop()
			logging.Info("👋 Сервер успешно остановлен")
			return
		}
	}
}

// datasetCenter возвращает центр масс репрезентативных точек датасета.
func datasetCenter(features []*geodata.Feature) vec.Vec2Float {
	var sum vec.Vec2Float
	n := 0
	for _, f := range features {
		if rep, ok := f.RepresentativePoint(); ok {
			sum = sum.Add(rep)
			n++
		}
	}
	if n == 0 {
		return vec.Vec2Float{}
	}
	return vec.Vec2Float{X: sum.X / float64(n), Y: sum.Y / float64(n)}
}
