package stream

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/citystream/internal/eventbus"
	"github.com/annel0/citystream/internal/gen"
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
)

// ChunkState состояние чанка. Unloaded выражается отсутствием записи
// в активной карте — третьего значения нет.
type ChunkState uint8

const (
	StateLoading ChunkState = iota + 1
	StateLoaded
)

// String возвращает строковое представление состояния
func (s ChunkState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// ChunkRecord запись активного чанка.
// Инвариант: State == Loading тогда и только тогда, когда Pending > 0;
// при Pending == 0 чанк становится Loaded (все элементы испробованы,
// успех или ошибка — "best-effort completeness").
type ChunkRecord struct {
	Key         vec.Vec2
	State       ChunkState
	Container   *scene.Container // Единственный владелец сгенерированных поддеревьев
	Pending     int              // Элементы в очереди, ещё не исполненные
	ItemsTotal  int
	Attempted   int
	Failures    int
	ActivatedAt time.Time
}

// ChunkLifecycleManager владеет машиной состояний чанков: решает
// активацию/деактивацию по позиции зрителя, превращает решения в
// элементы работы и отменяет их при выгрузке.
// Мутируется только из тика стриминга.
type ChunkLifecycleManager struct {
	index   *FeatureIndex
	queue   *WorkQueue
	arena   *scene.Arena
	bus     eventbus.EventBus
	records map[vec.Vec2]*ChunkRecord
	log     *logging.Logger
}

// NewChunkLifecycleManager создаёт менеджер жизненного цикла.
func NewChunkLifecycleManager(index *FeatureIndex, queue *WorkQueue, arena *scene.Arena, bus eventbus.EventBus) *ChunkLifecycleManager {
	return &ChunkLifecycleManager{
		index:   index,
		queue:   queue,
		arena:   arena,
		bus:     bus,
		records: make(map[vec.Vec2]*ChunkRecord),
		log:     logging.GetStreamLogger(),
	}
}

// EvalResult итог одной переоценки активного набора.
type EvalResult struct {
	Activated   int
	Deactivated int
	Enqueued    int
	Canceled    int
}

// Evaluate переоценивает активный набор чанков для позиции зрителя.
// Целевой набор: центр чанка в пределах load_radius + полудиагональ
// (консервативное надмножество — чанк с ближайшей точкой в радиусе
// не может быть пропущен). Деактивация: за пределами unload_radius и
// не в целевом наборе — наборы дизъюнктны по построению, зона между
// радиусами остаётся нетронутой (гистерезис против осцилляции).
func (m *ChunkLifecycleManager) Evaluate(viewer vec.Vec2Float, s Settings) EvalResult {
	var res EvalResult

	targetRadius := s.LoadRadius + s.HalfDiagonal()
	target := m.targetSet(viewer, targetRadius, s.ChunkSize)

	// Кандидаты на активацию: ближайшие первыми
	var toActivate []vec.Vec2
	for key := range target {
		if _, exists := m.records[key]; !exists {
			toActivate = append(toActivate, key)
		}
	}
	sort.Slice(toActivate, func(i, j int) bool {
		di := viewer.DistanceTo(vec.CellCenter(toActivate[i], s.ChunkSize))
		dj := viewer.DistanceTo(vec.CellCenter(toActivate[j], s.ChunkSize))
		if di != dj {
			return di < dj
		}
		// Детерминированный порядок при равных дистанциях
		if toActivate[i].X != toActivate[j].X {
			return toActivate[i].X < toActivate[j].X
		}
		return toActivate[i].Y < toActivate[j].Y
	})

	// Кандидаты на деактивацию: дальние первыми
	var toDeactivate []vec.Vec2
	for key := range m.records {
		if _, inTarget := target[key]; inTarget {
			continue
		}
		if viewer.DistanceTo(vec.CellCenter(key, s.ChunkSize)) > s.UnloadRadius {
			toDeactivate = append(toDeactivate, key)
		}
	}
	sort.Slice(toDeactivate, func(i, j int) bool {
		di := viewer.DistanceTo(vec.CellCenter(toDeactivate[i], s.ChunkSize))
		dj := viewer.DistanceTo(vec.CellCenter(toDeactivate[j], s.ChunkSize))
		return di > dj
	})

	// Потолок переходов: при телепорте зрителя сначала ближайший новый
	// контент и самый дальний устаревший, остальное — в следующие тики
	if len(toActivate) > s.MaxTransitionsPerTick {
		toActivate = toActivate[:s.MaxTransitionsPerTick]
	}
	if len(toDeactivate) > s.MaxTransitionsPerTick {
		toDeactivate = toDeactivate[:s.MaxTransitionsPerTick]
	}

	for _, key := range toActivate {
		res.Enqueued += m.activate(key, viewer, s)
		res.Activated++
	}
	for _, key := range toDeactivate {
		res.Canceled += m.deactivate(key)
		res.Deactivated++
	}

	return res
}

// targetSet возвращает ключи чанков с центром в targetRadius от зрителя.
func (m *ChunkLifecycleManager) targetSet(viewer vec.Vec2Float, targetRadius, chunkSize float64) map[vec.Vec2]struct{} {
	minCell := vec.Vec2Float{X: viewer.X - targetRadius, Y: viewer.Y - targetRadius}.ToCell(chunkSize)
	maxCell := vec.Vec2Float{X: viewer.X + targetRadius, Y: viewer.Y + targetRadius}.ToCell(chunkSize)

	target := make(map[vec.Vec2]struct{})
	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			key := vec.Vec2{X: x, Y: y}
			if viewer.DistanceTo(vec.CellCenter(key, chunkSize)) <= targetRadius {
				target[key] = struct{}{}
			}
		}
	}
	return target
}

// activate создаёт запись чанка и ставит его элементы работы в очередь.
// Возвращает число поставленных элементов.
func (m *ChunkLifecycleManager) activate(key vec.Vec2, viewer vec.Vec2Float, s Settings) int {
	container := m.arena.NewContainer(fmt.Sprintf("chunk_%d_%d", key.X, key.Y))
	rec := &ChunkRecord{
		Key:         key,
		State:       StateLoading,
		Container:   container,
		ActivatedAt: time.Now(),
	}
	m.records[key] = rec

	features := m.index.ByChunk(key)
	center := vec.CellCenter(key, s.ChunkSize)
	centerDist := viewer.DistanceTo(center)

	enqueued := 0
	var roads []*geodata.Feature

	// Поэлементные фичи: здание, дорога, парк, водоём
	for _, f := range features {
		kind, ok := workKind(f.Kind)
		if !ok {
			continue
		}
		if f.Kind == geodata.KindRoad {
			roads = append(roads, f)
		}

		dist := centerDist
		if rep, ok := f.RepresentativePoint(); ok {
			dist = viewer.DistanceTo(rep)
		}

		item := &WorkItem{
			ID:            fmt.Sprintf("%s_%d", kind, f.ID),
			ChunkKey:      key,
			Kind:          kind,
			Priority:      dist + kind.PriorityBias(),
			EstimatedCost: kind.EstimatedCost(),
			Payload: gen.Payload{
				Features:  []*geodata.Feature{f},
				Container: container,
				ChunkKey:  key,
				ChunkSize: s.ChunkSize,
				Seed:      s.Seed,
			},
		}
		if !m.queue.Enqueue(item) {
			enqueued++
		}
	}

	// Агрегатные элементы чанка: рельеф, детализация земли, уличная мебель.
	// Батчируются на чанк, чтобы ограничить накладные расходы очереди.
	// Пустая ячейка индекса агрегатов не получает: такому чанку нечего
	// строить, он сразу идёт по пути Pending == 0.
	if len(features) > 0 {
		aggregates := []struct {
			kind     gen.Kind
			features []*geodata.Feature
		}{
			{gen.KindTerrain, nil},
			{gen.KindGroundDetail, nil},
			{gen.KindStreetFurniture, roads},
		}
		for _, agg := range aggregates {
			item := &WorkItem{
				ID:            fmt.Sprintf("%s_%d_%d", agg.kind, key.X, key.Y),
				ChunkKey:      key,
				Kind:          agg.kind,
				Priority:      centerDist + agg.kind.PriorityBias(),
				EstimatedCost: agg.kind.EstimatedCost(),
				Payload: gen.Payload{
					Features:  agg.features,
					Container: container,
					ChunkKey:  key,
					ChunkSize: s.ChunkSize,
					Seed:      s.Seed,
				},
			}
			if !m.queue.Enqueue(item) {
				enqueued++
			}
		}
	}

	rec.Pending = enqueued
	rec.ItemsTotal = enqueued

	if rec.Pending == 0 {
		// Чанку нечего строить — сразу Loaded
		rec.State = StateLoaded
		m.publishReady(rec)
	}

	m.log.Debug("Чанк (%d,%d) активирован: %d фич, %d элементов", key.X, key.Y, len(features), enqueued)
	return enqueued
}

// deactivate отменяет элементы чанка, освобождает его поддерево сцены
// и удаляет запись. Возвращает число отменённых элементов.
func (m *ChunkLifecycleManager) deactivate(key vec.Vec2) int {
	rec, exists := m.records[key]
	if !exists {
		return 0 // Идемпотентная выгрузка: устаревшая отмена — no-op
	}

	canceled := m.queue.CancelChunk(key)
	freed := rec.Container.Destroy()
	delete(m.records, key)

	if m.bus != nil {
		ev := eventbus.NewChunkEnvelope(eventbus.EventChunkUnloaded, eventbus.ChunkEvent{
			X:     key.X,
			Y:     key.Y,
			Items: rec.ItemsTotal,
		})
		_ = m.bus.Publish(context.Background(), ev)
	}

	m.log.Debug("Чанк (%d,%d) выгружен: %d элементов отменено, %d узлов освобождено",
		key.X, key.Y, canceled, freed)
	return canceled
}

// OnItemDone учитывает исполненный (или упавший) элемент чанка.
// Вызывается планировщиком после каждого извлечённого элемента.
// Для отсутствующих записей (дальние фичи, уже выгруженные чанки) — no-op.
func (m *ChunkLifecycleManager) OnItemDone(key vec.Vec2, failed bool) {
	rec, exists := m.records[key]
	if !exists {
		return
	}

	rec.Attempted++
	if failed {
		rec.Failures++
	}
	if rec.Pending > 0 {
		rec.Pending--
	}

	if rec.Pending == 0 && rec.State == StateLoading {
		rec.State = StateLoaded
		m.publishReady(rec)
	}
}

// publishReady отправляет уведомление "чанк готов" (не более одного на переход).
func (m *ChunkLifecycleManager) publishReady(rec *ChunkRecord) {
	if m.bus == nil {
		return
	}
	ev := eventbus.NewChunkEnvelope(eventbus.EventChunkReady, eventbus.ChunkEvent{
		X:        rec.Key.X,
		Y:        rec.Key.Y,
		Items:    rec.ItemsTotal,
		Failures: rec.Failures,
		Elapsed:  time.Since(rec.ActivatedAt).Seconds() * 1000,
	})
	_ = m.bus.Publish(context.Background(), ev)
}

// Record возвращает запись чанка, если он активен.
func (m *ChunkLifecycleManager) Record(key vec.Vec2) (*ChunkRecord, bool) {
	rec, ok := m.records[key]
	return rec, ok
}

// Counts возвращает число активных и из них загруженных чанков.
func (m *ChunkLifecycleManager) Counts() (active, loaded int) {
	for _, rec := range m.records {
		active++
		if rec.State == StateLoaded {
			loaded++
		}
	}
	return
}

// Snapshot возвращает копии записей для внешних наблюдателей (REST, HUD).
func (m *ChunkLifecycleManager) Snapshot() []ChunkRecord {
	out := make([]ChunkRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.X != out[j].Key.X {
			return out[i].Key.X < out[j].Key.X
		}
		return out[i].Key.Y < out[j].Key.Y
	})
	return out
}

// workKind отображает тип фичи на тип элемента работы.
func workKind(k geodata.FeatureKind) (gen.Kind, bool) {
	switch k {
	case geodata.KindBuilding:
		return gen.KindBuilding, true
	case geodata.KindRoad:
		return gen.KindRoadBatch, true
	case geodata.KindPark:
		return gen.KindPark, true
	case geodata.KindWater:
		return gen.KindWater, true
	default:
		return 0, false
	}
}
