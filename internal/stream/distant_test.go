package stream

import (
	"testing"
	"time"

	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
)

// lakeFixture датасет с ближним зданием и крупным озером за радиусом
// загрузки: площадь 600×600 = 360000 м² выше порога 250000.
func lakeFixture() []*geodata.Feature {
	return []*geodata.Feature{
		squareFeature(1, geodata.KindBuilding, 250, 250, 15),
		squareFeature(2, geodata.KindWater, 1250, 250, 300), // чанк (2,0), центр на 1000 м
	}
}

func newTestDistant(features []*geodata.Feature) (*DistantFeaturePass, *WorkQueue, *ChunkLifecycleManager) {
	idx := BuildIndex(features, 500)
	queue := NewWorkQueue()
	arena := scene.NewArena()
	lifecycle := NewChunkLifecycleManager(idx, queue, arena, nil)
	return NewDistantFeaturePass(idx, queue, arena), queue, lifecycle
}

func TestDistantEnqueuesOversizedOutsideActiveSet(t *testing.T) {
	d, queue, lifecycle := newTestDistant(lakeFixture())
	s := testSettings()
	s.LoadRadius = 600 // озеро за целевым набором, но в пределах 2×load
	s.UnloadRadius = 1000
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	if _, active := lifecycle.Record(vec.Vec2{X: 2, Y: 0}); active {
		t.Fatal("Чанк озера не должен попасть в активный набор при load_radius 600")
	}

	enqueued := d.Run(viewer, s, lifecycle)
	if enqueued != 1 {
		t.Fatalf("Ожидался 1 дальний элемент (озеро), поставлено %d", enqueued)
	}

	counts := queue.PerKindCounts()
	if counts[gen.KindWater] != 1 {
		t.Errorf("Дальний элемент должен быть водоёмом, очередь: %v", counts)
	}
}

func TestDistantRunIdempotent(t *testing.T) {
	d, queue, lifecycle := newTestDistant(lakeFixture())
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	first := d.Run(viewer, s, lifecycle)
	second := d.Run(viewer, s, lifecycle)

	if first != 1 || second != 0 {
		t.Errorf("Повторный проход продублировал дальние фичи: %d, затем %d", first, second)
	}
	if queue.PerKindCounts()[gen.KindWater] != 1 {
		t.Errorf("В очереди должен остаться ровно один дальний элемент")
	}
}

func TestDistantSkipsActiveChunks(t *testing.T) {
	d, _, lifecycle := newTestDistant(lakeFixture())
	s := testSettings() // load 750 + полудиагональ покрывает чанк озера (центр 1000)
	s.MaxTransitionsPerTick = 100
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	if _, active := lifecycle.Record(vec.Vec2{X: 2, Y: 0}); !active {
		t.Fatal("При штатном радиусе чанк озера должен быть активен")
	}

	if enqueued := d.Run(viewer, s, lifecycle); enqueued != 0 {
		t.Errorf("Дальний проход продублировал фичи активного чанка: %d", enqueued)
	}
}

func TestDistantSkipsSmallFeatures(t *testing.T) {
	features := []*geodata.Feature{
		squareFeature(1, geodata.KindWater, 1250, 250, 50), // пруд 100×100 = 10000 м²
	}
	d, _, lifecycle := newTestDistant(features)
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	if enqueued := d.Run(viewer, s, lifecycle); enqueued != 0 {
		t.Errorf("Малая фича ниже порога площади поставлена как дальняя: %d", enqueued)
	}
}

func TestDistantItemsHaveLowPriority(t *testing.T) {
	d, queue, lifecycle := newTestDistant(lakeFixture())
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	viewer := vec.Vec2Float{X: 250, Y: 250}

	res := lifecycle.Evaluate(viewer, s)
	if res.Enqueued == 0 {
		t.Fatal("Ближний чанк не дал элементов")
	}
	d.Run(viewer, s, lifecycle)

	// Все элементы ближних чанков выходят раньше дальнего озера
	total := queue.Len()
	for i := 0; i < total-1; i++ {
		item, _ := queue.PopNext()
		if item.Kind == gen.KindWater {
			t.Fatalf("Дальний элемент вышел на позиции %d из %d", i+1, total)
		}
	}
	last, _ := queue.PopNext()
	if last.Kind != gen.KindWater {
		t.Errorf("Последним должен выйти дальний водоём, получен %s", last.Kind)
	}
}

func TestDistantWritesToGlobalContainer(t *testing.T) {
	d, queue, lifecycle := newTestDistant(lakeFixture())
	gen.RegisterDefaults()
	sched := NewFrameBudgetScheduler(queue, lifecycle)
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	d.Run(viewer, s, lifecycle)
	for queue.Len() > 0 {
		sched.Drain(time.Second)
	}

	if d.GlobalNodeCount() != 1 {
		t.Errorf("Озеро должно быть записано в глобальный контейнер: %d узлов", d.GlobalNodeCount())
	}

	// Выгрузка чанков дальние фичи не затрагивает
	far := vec.Vec2Float{X: 1e6, Y: 1e6}
	for i := 0; i < 10; i++ {
		lifecycle.Evaluate(far, s)
	}
	if d.GlobalNodeCount() != 1 {
		t.Errorf("Выгрузка чанков уничтожила дальние фичи: %d узлов", d.GlobalNodeCount())
	}
}

func TestDistantSurvivesOwnerChunkChurn(t *testing.T) {
	// Дальнее озеро ставится в очередь, затем его чанк успевает
	// активироваться и выгрузиться, пока элемент ещё не исполнен.
	// Отмена чанка-владельца не должна терять дальнюю копию.
	d, queue, lifecycle := newTestDistant(lakeFixture())
	gen.RegisterDefaults()
	sched := NewFrameBudgetScheduler(queue, lifecycle)
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	s.MaxTransitionsPerTick = 100
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	if n := d.Run(viewer, s, lifecycle); n != 1 {
		t.Fatalf("Озеро не поставлено дальним элементом: %d", n)
	}

	// Зритель подходит к озеру: чанк (2,0) активируется с собственной копией
	near := vec.Vec2Float{X: 1250, Y: 250}
	lifecycle.Evaluate(near, s)
	if _, active := lifecycle.Record(vec.Vec2{X: 2, Y: 0}); !active {
		t.Fatal("Чанк озера не активирован рядом со зрителем")
	}

	// Телепорт далеко: чанк озера выгружается, его элементы отменяются
	far := vec.Vec2Float{X: 1e6, Y: 1e6}
	for i := 0; i < 10; i++ {
		lifecycle.Evaluate(far, s)
	}
	if _, active := lifecycle.Record(vec.Vec2{X: 2, Y: 0}); active {
		t.Fatal("Чанк озера не выгружен после телепорта")
	}

	// Дальний элемент пережил отмену владельца и строится в глобальный контейнер
	for queue.Len() > 0 {
		sched.Drain(time.Second)
	}
	if d.GlobalNodeCount() != 1 {
		t.Errorf("Дальнее озеро потеряно после выгрузки чанка-владельца: %d узлов", d.GlobalNodeCount())
	}

	// Реестр по-прежнему не даёт поставить вторую копию
	if n := d.Run(viewer, s, lifecycle); n != 0 {
		t.Errorf("Повторный проход продублировал пережившую фичу: %d", n)
	}
}

func TestDistantItemDoneLeavesChunkRecordsAlone(t *testing.T) {
	// Дальний элемент исполняется уже после активации чанка-владельца:
	// учёт чанка (Pending/Attempted) считает только собственные элементы
	d, queue, lifecycle := newTestDistant(lakeFixture())
	gen.RegisterDefaults()
	sched := NewFrameBudgetScheduler(queue, lifecycle)
	s := testSettings()
	s.LoadRadius = 600
	s.UnloadRadius = 1000
	s.MaxTransitionsPerTick = 100
	viewer := vec.Vec2Float{X: 250, Y: 250}

	lifecycle.Evaluate(viewer, s)
	d.Run(viewer, s, lifecycle)

	near := vec.Vec2Float{X: 1250, Y: 250}
	lifecycle.Evaluate(near, s)

	for queue.Len() > 0 {
		sched.Drain(time.Second)
	}

	rec, ok := lifecycle.Record(vec.Vec2{X: 2, Y: 0})
	if !ok {
		t.Fatal("Чанк озера не активен")
	}
	if rec.Attempted != rec.ItemsTotal {
		t.Errorf("Дальний элемент засчитан чужому чанку: attempted=%d при total=%d",
			rec.Attempted, rec.ItemsTotal)
	}
	if rec.Pending != 0 || rec.State != StateLoaded {
		t.Errorf("Чанк озера после осушения: state=%s pending=%d", rec.State, rec.Pending)
	}
}
