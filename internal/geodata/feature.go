package geodata

import (
	"math"

	"github.com/annel0/citystream/internal/vec"
)

// FeatureKind классифицирует запись геоданных.
type FeatureKind uint8

const (
	KindUnknown FeatureKind = iota
	KindBuilding
	KindRoad
	KindPark
	KindWater
)

// String возвращает строковое представление типа фичи
func (k FeatureKind) String() string {
	switch k {
	case KindBuilding:
		return "building"
	case KindRoad:
		return "road"
	case KindPark:
		return "park"
	case KindWater:
		return "water"
	default:
		return "unknown"
	}
}

// ParseKind разбирает строковый тип фичи (обратная операция к String).
func ParseKind(s string) FeatureKind {
	switch s {
	case "building":
		return KindBuilding
	case "road":
		return KindRoad
	case "park":
		return KindPark
	case "water":
		return KindWater
	default:
		return KindUnknown
	}
}

// Feature одна запись геоданных города: здание, дорога, парк или водоём.
// После импорта записи не изменяются — стриминг читает их из индекса.
type Feature struct {
	ID     uint64            `json:"id"`
	Kind   FeatureKind       `json:"kind"`
	Points []vec.Vec2Float   `json:"points"` // Контур полигона либо путь полилинии
	Height float64           `json:"height,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// IsLinear сообщает, является ли геометрия фичи полилинией.
// Дороги — пути; остальные типы — замкнутые контуры.
func (f *Feature) IsLinear() bool {
	return f.Kind == KindRoad
}

// RepresentativePoint возвращает опорную точку фичи для привязки к чанку:
// центроид полигона либо среднее вершин пути.
// Вторым значением возвращает false для вырожденной геометрии.
func (f *Feature) RepresentativePoint() (vec.Vec2Float, bool) {
	if len(f.Points) == 0 {
		return vec.Vec2Float{}, false
	}

	if f.IsLinear() {
		var sum vec.Vec2Float
		for _, p := range f.Points {
			sum = sum.Add(p)
		}
		return sum.Mul(1.0 / float64(len(f.Points))), true
	}

	return polygonCentroid(f.Points)
}

// Area возвращает площадь полигона в квадратных мировых единицах (формула шнуровки).
// Для полилиний площадь равна нулю.
func (f *Feature) Area() float64 {
	if f.IsLinear() || len(f.Points) < 3 {
		return 0
	}

	var sum float64
	n := len(f.Points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += f.Points[i].X*f.Points[j].Y - f.Points[j].X*f.Points[i].Y
	}
	return math.Abs(sum) / 2
}

// polygonCentroid вычисляет центроид контура.
// Для вырожденного (нулевая площадь) контура fallback на среднее вершин.
func polygonCentroid(points []vec.Vec2Float) (vec.Vec2Float, bool) {
	n := len(points)
	if n == 0 {
		return vec.Vec2Float{}, false
	}
	if n < 3 {
		var sum vec.Vec2Float
		for _, p := range points {
			sum = sum.Add(p)
		}
		return sum.Mul(1.0 / float64(n)), true
	}

	var cx, cy, area float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := points[i].X*points[j].Y - points[j].X*points[i].Y
		area += cross
		cx += (points[i].X + points[j].X) * cross
		cy += (points[i].Y + points[j].Y) * cross
	}
	area /= 2

	if math.Abs(area) < 1e-9 {
		var sum vec.Vec2Float
		for _, p := range points {
			sum = sum.Add(p)
		}
		return sum.Mul(1.0 / float64(n)), true
	}

	return vec.Vec2Float{X: cx / (6 * area), Y: cy / (6 * area)}, true
}
