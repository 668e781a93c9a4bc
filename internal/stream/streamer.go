package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/citystream/internal/eventbus"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Streamer собирает ядро стриминга в один экземпляр с явным состоянием:
// позиция зрителя, настройки и активная карта чанков не живут в
// глобальных синглтонах, а принадлежат ему (ядро тестируется изолированно).
//
// Модель исполнения кооперативная и тиковая: один логический поток
// управления вызывает Tick; элемент, не извлечённый в этом тике,
// просто извлекается в следующем. Снаружи видимы только снимки
// статистики и настройки, применяемые со следующей переоценки.
type Streamer struct {
	mu              sync.Mutex
	settings        Settings
	pendingSettings *Settings // Принятые, но ещё не применённые настройки
	lastEval        time.Time
	evalCount       uint64

	index     *FeatureIndex
	queue     *WorkQueue
	arena     *scene.Arena
	lifecycle *ChunkLifecycleManager
	scheduler *FrameBudgetScheduler
	distant   *DistantFeaturePass

	log    *logging.Logger
	tracer oteltrace.Tracer
}

// NewStreamer строит индекс по фичам и собирает компоненты ядра.
func NewStreamer(features []*geodata.Feature, s Settings, bus eventbus.EventBus) (*Streamer, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("некорректные настройки стриминга: %w", err)
	}

	log := logging.GetStreamLogger()
	if !s.HysteresisOK() {
		log.Warn("unload_radius %g меньше load_radius+полудиагональ %g: возможен трешинг на границе",
			s.UnloadRadius, s.LoadRadius+s.HalfDiagonal())
	}

	index := BuildIndex(features, s.ChunkSize)
	queue := NewWorkQueue()
	arena := scene.NewArena()
	lifecycle := NewChunkLifecycleManager(index, queue, arena, bus)
	scheduler := NewFrameBudgetScheduler(queue, lifecycle)
	distant := NewDistantFeaturePass(index, queue, arena)

	log.Info("🏙️  Стример создан: %d фич в %d чанках (чанк %g м)",
		index.FeatureCount(), index.ChunkCount(), s.ChunkSize)

	return &Streamer{
		settings:  s,
		index:     index,
		queue:     queue,
		arena:     arena,
		lifecycle: lifecycle,
		scheduler: scheduler,
		distant:   distant,
		log:       log,
		tracer:    otel.Tracer("citystream/stream"),
	}, nil
}

// Tick выполняет один тик стриминга: по расписанию переоценивает
// активный набор (диф стоит заметно дороже тика, поэтому идёт с
// интервалом ~1 с), затем осушает очередь под бюджет кадра.
func (st *Streamer) Tick(viewer vec.Vec2Float) SchedulerStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	if st.lastEval.IsZero() || now.Sub(st.lastEval) >= st.settings.UpdateInterval {
		if st.pendingSettings != nil {
			st.settings = *st.pendingSettings
			st.pendingSettings = nil
			st.log.Info("⚙️  Применены новые настройки стриминга: load=%g unload=%g budget=%s",
				st.settings.LoadRadius, st.settings.UnloadRadius, st.settings.FrameBudget)
		}

		_, evalSpan := st.tracer.Start(context.Background(), "stream.evaluate")
		res := st.lifecycle.Evaluate(viewer, st.settings)
		distantEnqueued := st.distant.Run(viewer, st.settings, st.lifecycle)
		evalSpan.SetAttributes(
			attribute.Int("chunks.activated", res.Activated),
			attribute.Int("chunks.deactivated", res.Deactivated),
			attribute.Int("items.enqueued", res.Enqueued+distantEnqueued),
			attribute.Int("items.canceled", res.Canceled),
		)
		evalSpan.End()
		st.lastEval = now
		st.evalCount++

		if res.Activated > 0 || res.Deactivated > 0 || distantEnqueued > 0 {
			st.log.Debug("Переоценка #%d: +%d чанков (%d элементов), -%d чанков (%d отменено), %d дальних",
				st.evalCount, res.Activated, res.Enqueued, res.Deactivated, res.Canceled, distantEnqueued)
		}
	}

	_, drainSpan := st.tracer.Start(context.Background(), "stream.drain")
	stats := st.scheduler.Drain(st.settings.FrameBudget)
	drainSpan.SetAttributes(
		attribute.Int("items.drained", stats.Drained),
		attribute.Int("items.failures", stats.Failures),
		attribute.Float64("budget.used_ms", stats.BudgetUsedMs),
		attribute.Int("queue.len", stats.QueueLen),
	)
	drainSpan.End()
	return stats
}

// ForceEvaluate выполняет переоценку немедленно, вне расписания
// (телепорт зрителя, смена сцены).
func (st *Streamer) ForceEvaluate(viewer vec.Vec2Float) EvalResult {
	st.mu.Lock()
	defer st.mu.Unlock()

	res := st.lifecycle.Evaluate(viewer, st.settings)
	st.distant.Run(viewer, st.settings, st.lifecycle)
	st.lastEval = time.Now()
	st.evalCount++
	return res
}

// ApplySettings валидирует и принимает новые настройки; они вступают в
// силу на следующей переоценке, никогда посреди drain. Отклонённые
// значения не затрагивают текущие. Смена chunk_size на лету невозможна:
// она требует перестройки индекса, перезапустите сервис с новым конфигом.
func (st *Streamer) ApplySettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.ChunkSize != st.settings.ChunkSize {
		return fmt.Errorf("chunk_size нельзя менять на лету (%g -> %g): требуется перестройка индекса",
			st.settings.ChunkSize, s.ChunkSize)
	}

	st.pendingSettings = &s
	return nil
}

// Settings возвращает действующие настройки.
func (st *Streamer) Settings() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.settings
}

// Stats возвращает снимок статистики последнего drain.
func (st *Streamer) Stats() SchedulerStats {
	return st.scheduler.Stats()
}

// ChunkSnapshot возвращает копии записей активных чанков.
func (st *Streamer) ChunkSnapshot() []ChunkRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lifecycle.Snapshot()
}

// Index возвращает пространственный индекс (только чтение).
func (st *Streamer) Index() *FeatureIndex { return st.index }

// SceneNodeCount возвращает общее число живых узлов сцены.
func (st *Streamer) SceneNodeCount() int { return st.arena.TotalNodes() }
