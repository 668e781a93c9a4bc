package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/logging"
)

// SchedulerStats снимок состояния планировщика, перестраивается каждый тик.
// Только для чтения внешними наблюдателями (HUD, REST, Prometheus).
type SchedulerStats struct {
	QueueLen        int              `json:"queue_len"`
	QueuePerKind    map[gen.Kind]int `json:"-"`
	Drained         int              `json:"drained"`           // Элементов исполнено в этом drain
	Failures        int              `json:"failures"`          // Из них с ошибкой
	BudgetUsedMs    float64          `json:"budget_used_ms"`    // Потрачено в этом drain
	BudgetCeilingMs float64          `json:"budget_ceiling_ms"` // Бюджет drain
	ActiveChunks    int              `json:"active_chunks"`
	LoadedChunks    int              `json:"loaded_chunks"`
	TotalDrained    uint64           `json:"total_drained"`
	TotalFailures   uint64           `json:"total_failures"`
}

// FrameBudgetScheduler осушает очередь работы под бюджет кадра.
// Бюджет мягкий: начатый элемент непрерываем и дорабатывает до конца,
// так что стоимость тика ограничена бюджетом плюс стоимостью одного
// элемента — осознанный размен, превращающий неограниченную стоимость
// отдельной фичи в ограниченную стоимость тика.
type FrameBudgetScheduler struct {
	queue     *WorkQueue
	lifecycle *ChunkLifecycleManager
	dispatch  func(gen.Kind, gen.Payload) error
	log       *logging.Logger

	statsMu       sync.RWMutex
	lastStats     SchedulerStats
	totalDrained  uint64
	totalFailures uint64
}

// NewFrameBudgetScheduler создаёт планировщик поверх очереди и менеджера чанков.
func NewFrameBudgetScheduler(queue *WorkQueue, lifecycle *ChunkLifecycleManager) *FrameBudgetScheduler {
	return &FrameBudgetScheduler{
		queue:     queue,
		lifecycle: lifecycle,
		dispatch:  gen.Dispatch,
		log:       logging.GetStreamLogger(),
	}
}

// SetDispatch подменяет функцию диспетчеризации (для тестов).
func (s *FrameBudgetScheduler) SetDispatch(d func(gen.Kind, gen.Payload) error) {
	s.dispatch = d
}

// Drain исполняет элементы очереди, пока не исчерпан бюджет или очередь.
// Ошибка или паника генератора логируется с ID элемента и не останавливает
// обработку: худший случай — визуально отсутствующая фича, не срыв кадра.
func (s *FrameBudgetScheduler) Drain(budget time.Duration) SchedulerStats {
	drained := 0
	failures := 0
	var used time.Duration

	for used < budget {
		item, ok := s.queue.PopNext()
		if !ok {
			break
		}

		start := time.Now()
		err := s.runItem(item)
		elapsed := time.Since(start)
		if elapsed <= 0 {
			// Слишком грубые часы — учитываем среднюю стоимость типа
			elapsed = time.Duration(item.EstimatedCost * float64(time.Millisecond))
		}
		used += elapsed

		drained++
		if err != nil {
			failures++
			s.log.Warn("Элемент %s (чанк %d,%d, тип %s) завершился ошибкой: %v",
				item.ID, item.ChunkKey.X, item.ChunkKey.Y, item.Kind, err)
		}

		s.lifecycle.OnItemDone(item.ChunkKey, err != nil)
	}

	active, loaded := s.lifecycle.Counts()

	s.statsMu.Lock()
	s.totalDrained += uint64(drained)
	s.totalFailures += uint64(failures)
	stats := SchedulerStats{
		QueueLen:        s.queue.Len(),
		QueuePerKind:    s.queue.PerKindCounts(),
		Drained:         drained,
		Failures:        failures,
		BudgetUsedMs:    float64(used) / float64(time.Millisecond),
		BudgetCeilingMs: float64(budget) / float64(time.Millisecond),
		ActiveChunks:    active,
		LoadedChunks:    loaded,
		TotalDrained:    s.totalDrained,
		TotalFailures:   s.totalFailures,
	}
	s.lastStats = stats
	s.statsMu.Unlock()

	return stats
}

// runItem диспетчеризует элемент с перехватом паники генератора.
func (s *FrameBudgetScheduler) runItem(item *WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника генератора: %v", r)
		}
	}()
	return s.dispatch(item.Kind, item.Payload)
}

// Stats возвращает снимок последнего drain.
func (s *FrameBudgetScheduler) Stats() SchedulerStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.lastStats
}
