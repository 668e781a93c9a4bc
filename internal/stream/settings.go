package stream

import (
	"fmt"
	"math"
	"time"

	"github.com/annel0/citystream/internal/config"
)

// Settings параметры стриминга. Меняются только целиком через
// ApplySettings: отклонённые значения не затрагивают текущие.
type Settings struct {
	ChunkSize             float64       // Сторона квадратного чанка, мировые единицы
	LoadRadius            float64       // Радиус активации чанков
	UnloadRadius          float64       // Радиус деактивации; строго больше LoadRadius
	UpdateInterval        time.Duration // Период переоценки активного набора
	FrameBudget           time.Duration // Бюджет drain на тик
	MaxTransitionsPerTick int           // Потолок активаций/деактиваций за переоценку
	DistantAreaThreshold  float64       // Порог площади дальних фич, м²
	Seed                  int64         // Сид процедурных генераторов
}

// FromConfig собирает Settings из конфигурационной секции.
func FromConfig(c config.StreamConfig, seed int64) Settings {
	return Settings{
		ChunkSize:             c.ChunkSize,
		LoadRadius:            c.LoadRadius,
		UnloadRadius:          c.UnloadRadius,
		UpdateInterval:        time.Duration(c.UpdateIntervalSeconds * float64(time.Second)),
		FrameBudget:           time.Duration(c.FrameBudgetMs * float64(time.Millisecond)),
		MaxTransitionsPerTick: c.MaxTransitionsPerTick,
		DistantAreaThreshold:  c.DistantAreaThreshold,
		Seed:                  seed,
	}
}

// HalfDiagonal возвращает половину диагонали чанка — консервативный запас
// дистанционного теста: чанк активируется, если в радиусе его ближайшая
// точка, а не только центр.
func (s Settings) HalfDiagonal() float64 {
	return s.ChunkSize * math.Sqrt2 / 2
}

// Validate проверяет согласованность параметров.
// Все значения положительны, радиус выгрузки строго больше радиуса загрузки.
func (s Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size должен быть положительным, получено %g", s.ChunkSize)
	}
	if s.LoadRadius <= 0 {
		return fmt.Errorf("load_radius должен быть положительным, получено %g", s.LoadRadius)
	}
	if s.UnloadRadius <= s.LoadRadius {
		return fmt.Errorf("unload_radius (%g) должен быть строго больше load_radius (%g)",
			s.UnloadRadius, s.LoadRadius)
	}
	if s.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval должен быть положительным, получено %s", s.UpdateInterval)
	}
	if s.FrameBudget <= 0 {
		return fmt.Errorf("frame_budget должен быть положительным, получено %s", s.FrameBudget)
	}
	if s.MaxTransitionsPerTick <= 0 {
		return fmt.Errorf("max_transitions_per_tick должен быть положительным, получено %d",
			s.MaxTransitionsPerTick)
	}
	if s.DistantAreaThreshold < 0 {
		return fmt.Errorf("distant_area_threshold не может быть отрицательным, получено %g",
			s.DistantAreaThreshold)
	}
	return nil
}

// HysteresisOK сообщает, достаточен ли зазор между радиусами, чтобы чанк
// не мог одновременно попасть в целевой набор и за радиус выгрузки.
func (s Settings) HysteresisOK() bool {
	return s.UnloadRadius >= s.LoadRadius+s.HalfDiagonal()
}
