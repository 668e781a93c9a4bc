package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
)

func newTestScheduler(features []*geodata.Feature) (*FrameBudgetScheduler, *WorkQueue, *ChunkLifecycleManager) {
	idx := BuildIndex(features, 500)
	queue := NewWorkQueue()
	arena := scene.NewArena()
	lifecycle := NewChunkLifecycleManager(idx, queue, arena, nil)
	return NewFrameBudgetScheduler(queue, lifecycle), queue, lifecycle
}

func TestDrainEmptyQueue(t *testing.T) {
	sched, _, _ := newTestScheduler(nil)

	stats := sched.Drain(5 * time.Millisecond)
	if stats.Drained != 0 || stats.Failures != 0 {
		t.Errorf("Пустая очередь: ожидалось 0 исполнено, получено %+v", stats)
	}
}

func TestDrainRespectsBudget(t *testing.T) {
	sched, queue, _ := newTestScheduler(nil)
	chunk := vec.Vec2{X: 0, Y: 0}

	for i := 0; i < 50; i++ {
		queue.Enqueue(makeItem(fmt.Sprintf("item_%d", i), chunk, gen.KindBuilding, float64(i)))
	}

	// Каждый элемент стоит ~1 мс: в бюджет 5 мс помещается не более 6
	// (бюджет мягкий — начатый элемент дорабатывает до конца)
	sched.SetDispatch(func(gen.Kind, gen.Payload) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	stats := sched.Drain(5 * time.Millisecond)

	if stats.Drained == 0 {
		t.Fatal("За бюджет не исполнено ни одного элемента")
	}
	if stats.Drained > 6 {
		t.Errorf("Исполнено %d элементов — бюджет 5 мс превышен более чем на один элемент", stats.Drained)
	}
	if stats.QueueLen != 50-stats.Drained {
		t.Errorf("Длина очереди %d не согласована с %d исполненными", stats.QueueLen, stats.Drained)
	}
	if stats.BudgetUsedMs < stats.BudgetCeilingMs {
		t.Errorf("Остановка раньше бюджета при непустой очереди: %.2f < %.2f мс",
			stats.BudgetUsedMs, stats.BudgetCeilingMs)
	}
}

func TestDrainContinuesAfterFailure(t *testing.T) {
	sched, queue, _ := newTestScheduler(nil)
	chunk := vec.Vec2{X: 0, Y: 0}

	queue.Enqueue(makeItem("good_1", chunk, gen.KindBuilding, 1))
	queue.Enqueue(makeItem("bad", chunk, gen.KindWater, 2))
	queue.Enqueue(makeItem("good_2", chunk, gen.KindPark, 3))

	sched.SetDispatch(func(kind gen.Kind, _ gen.Payload) error {
		if kind == gen.KindWater {
			return fmt.Errorf("тесселяция не сошлась")
		}
		return nil
	})

	stats := sched.Drain(time.Second)

	if stats.Drained != 3 {
		t.Errorf("Ожидалось 3 исполненных элемента, получено %d", stats.Drained)
	}
	if stats.Failures != 1 {
		t.Errorf("Ожидалась 1 ошибка, получено %d", stats.Failures)
	}
	if stats.QueueLen != 0 {
		t.Errorf("Очередь не осушена: осталось %d", stats.QueueLen)
	}
}

func TestDrainRecoversFromPanic(t *testing.T) {
	sched, queue, _ := newTestScheduler(nil)
	chunk := vec.Vec2{X: 0, Y: 0}

	queue.Enqueue(makeItem("panicking", chunk, gen.KindBuilding, 1))
	queue.Enqueue(makeItem("survivor", chunk, gen.KindPark, 2))

	first := true
	sched.SetDispatch(func(gen.Kind, gen.Payload) error {
		if first {
			first = false
			panic("индекс вершины за пределами контура")
		}
		return nil
	})

	stats := sched.Drain(time.Second)

	if stats.Drained != 2 {
		t.Errorf("Паника генератора остановила обработку: исполнено %d из 2", stats.Drained)
	}
	if stats.Failures != 1 {
		t.Errorf("Паника должна считаться ошибкой элемента: %d ошибок", stats.Failures)
	}
}

func TestDrainAccumulatesTotals(t *testing.T) {
	sched, queue, _ := newTestScheduler(nil)
	chunk := vec.Vec2{X: 0, Y: 0}
	sched.SetDispatch(func(gen.Kind, gen.Payload) error { return nil })

	queue.Enqueue(makeItem("a", chunk, gen.KindBuilding, 1))
	sched.Drain(time.Second)

	queue.Enqueue(makeItem("b", chunk, gen.KindBuilding, 1))
	stats := sched.Drain(time.Second)

	if stats.TotalDrained != 2 {
		t.Errorf("Кумулятивный счётчик: ожидалось 2, получено %d", stats.TotalDrained)
	}
	if stats.Drained != 1 {
		t.Errorf("Счётчик тика: ожидался 1, получено %d", stats.Drained)
	}

	// Снимок Stats совпадает с результатом последнего Drain
	snap := sched.Stats()
	if snap.TotalDrained != stats.TotalDrained || snap.Drained != stats.Drained {
		t.Errorf("Снимок %+v расходится с последним drain %+v", snap, stats)
	}
}
