package stream

import (
	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/vec"
)

// FeatureIndex раскладывает записи геоданных по ячейкам сетки чанков.
// Строится один раз при старте и после этого только читается:
// перемещение зрителя индекс не перестраивает.
type FeatureIndex struct {
	chunkSize float64
	buckets   map[vec.Vec2][]*geodata.Feature
	skipped   int
	total     int
}

// BuildIndex распределяет фичи по чанкам по их опорной точке
// (центроид полигона, среднее вершин пути). Вырожденные записи
// пропускаются и считаются — это не ошибка импорта.
func BuildIndex(features []*geodata.Feature, chunkSize float64) *FeatureIndex {
	idx := &FeatureIndex{
		chunkSize: chunkSize,
		buckets:   make(map[vec.Vec2][]*geodata.Feature),
	}

	for _, f := range features {
		rep, ok := f.RepresentativePoint()
		if !ok {
			idx.skipped++
			continue
		}
		key := rep.ToCell(chunkSize)
		idx.buckets[key] = append(idx.buckets[key], f)
		idx.total++
	}

	if idx.skipped > 0 {
		logging.GetStreamLogger().Warn("Индекс: %d вырожденных записей пропущено", idx.skipped)
	}

	return idx
}

// ByChunk возвращает фичи чанка (nil для пустых чанков).
func (idx *FeatureIndex) ByChunk(key vec.Vec2) []*geodata.Feature {
	return idx.buckets[key]
}

// ChunkSize возвращает размер ячейки индекса.
func (idx *FeatureIndex) ChunkSize() float64 { return idx.chunkSize }

// FeatureCount возвращает число проиндексированных фич.
func (idx *FeatureIndex) FeatureCount() int { return idx.total }

// SkippedCount возвращает число отброшенных вырожденных записей.
func (idx *FeatureIndex) SkippedCount() int { return idx.skipped }

// ChunkCount возвращает число непустых ячеек.
func (idx *FeatureIndex) ChunkCount() int { return len(idx.buckets) }
