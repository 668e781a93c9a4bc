package stream

import (
	"fmt"
	"math"

	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
)

// globalChunkKey синтетический ключ элементов дальних фич. Жизненный
// цикл чанков такие ключи не активирует и не отменяет: выгрузка
// чанка-владельца не теряет уже поставленную дальнюю фичу.
var globalChunkKey = vec.Vec2{X: math.MinInt32, Y: math.MinInt32}

// DistantFeaturePass подгружает крупные далеко видимые фичи (большие
// водоёмы, парки) за пределами обычного радиуса стриминга. Их геометрия
// пишется в синтетический глобальный контейнер, а элементы несут
// globalChunkKey: выгрузка обычных чанков их не отменяет и не освобождает.
type DistantFeaturePass struct {
	index  *FeatureIndex
	queue  *WorkQueue
	global *scene.Container
	seen   map[uint64]struct{} // Реестр уже поставленных дальних фич
	log    *logging.Logger
}

// NewDistantFeaturePass создаёт проход дальних фич с собственным
// глобальным контейнером в арене.
func NewDistantFeaturePass(index *FeatureIndex, queue *WorkQueue, arena *scene.Arena) *DistantFeaturePass {
	return &DistantFeaturePass{
		index:  index,
		queue:  queue,
		global: arena.NewContainer("distant_features"),
		seen:   make(map[uint64]struct{}),
		log:    logging.GetStreamLogger(),
	}
}

// Run сканирует чанки в удвоенном радиусе загрузки и ставит в очередь
// негабаритные фичи неактивных чанков. Повторные запуски идемпотентны:
// реестр по ID фичи не даёт поставить вторую дальнюю копию. Если
// чанк-владелец активируется позже, его полная копия фичи живёт рядом
// с глобальной — глобальная остаётся постоянным дальним представлением.
// Вызывается после основной переоценки, делит очередь и бюджет с ней.
func (d *DistantFeaturePass) Run(viewer vec.Vec2Float, s Settings, lifecycle *ChunkLifecycleManager) int {
	scanRadius := 2 * s.LoadRadius
	minCell := vec.Vec2Float{X: viewer.X - scanRadius, Y: viewer.Y - scanRadius}.ToCell(s.ChunkSize)
	maxCell := vec.Vec2Float{X: viewer.X + scanRadius, Y: viewer.Y + scanRadius}.ToCell(s.ChunkSize)

	enqueued := 0
	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			key := vec.Vec2{X: x, Y: y}
			if viewer.DistanceTo(vec.CellCenter(key, s.ChunkSize)) > scanRadius {
				continue
			}
			if _, active := lifecycle.Record(key); active {
				continue // Обычная активация сама построит фичи чанка
			}
			enqueued += d.enqueueOversized(key, viewer, s)
		}
	}

	if enqueued > 0 {
		d.log.Debug("Дальние фичи: %d элементов поставлено", enqueued)
	}
	return enqueued
}

// enqueueOversized ставит негабаритные фичи одного чанка.
func (d *DistantFeaturePass) enqueueOversized(key vec.Vec2, viewer vec.Vec2Float, s Settings) int {
	enqueued := 0
	for _, f := range d.index.ByChunk(key) {
		if f.Area() < s.DistantAreaThreshold {
			continue
		}
		if _, present := d.seen[f.ID]; present {
			continue
		}

		kind, ok := workKind(f.Kind)
		if !ok {
			continue
		}

		dist := viewer.DistanceTo(vec.CellCenter(key, s.ChunkSize))
		if rep, ok := f.RepresentativePoint(); ok {
			dist = viewer.DistanceTo(rep)
		}

		item := &WorkItem{
			ID:            fmt.Sprintf("distant_%s_%d", kind, f.ID),
			ChunkKey:      globalChunkKey,
			Kind:          kind,
			// Низкий приоритет: дальние фичи никогда не обгоняют ближний контент
			Priority:      dist + kind.PriorityBias() + 2*s.LoadRadius,
			EstimatedCost: kind.EstimatedCost(),
			Payload: gen.Payload{
				Features:  []*geodata.Feature{f},
				Container: d.global,
				ChunkKey:  key,
				ChunkSize: s.ChunkSize,
				Seed:      s.Seed,
			},
		}
		if !d.queue.Enqueue(item) {
			enqueued++
		}
		d.seen[f.ID] = struct{}{}
	}
	return enqueued
}

// GlobalNodeCount возвращает число узлов глобального контейнера.
func (d *DistantFeaturePass) GlobalNodeCount() int {
	return d.global.NodeCount()
}
