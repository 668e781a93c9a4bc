package gen

// Kind идентифицирует генератор, потребляющий элемент работы.
type Kind uint8

const (
	KindTerrain Kind = iota
	KindRoadBatch
	KindBuilding
	KindPark
	KindWater
	KindGroundDetail
	KindStreetFurniture

	kindCount // Служебный маркер конца перечисления
)

// String возвращает строковое имя типа (используется в ID элементов работы)
func (k Kind) String() string {
	switch k {
	case KindTerrain:
		return "terrain"
	case KindRoadBatch:
		return "road_batch"
	case KindBuilding:
		return "building"
	case KindPark:
		return "park"
	case KindWater:
		return "water"
	case KindGroundDetail:
		return "ground_detail"
	case KindStreetFurniture:
		return "street_furniture"
	default:
		return "unknown"
	}
}

// PriorityBias возвращает поправку приоритета типа в мировых единицах.
// Приоритет элемента = расстояние до зрителя + поправка; отрицательная
// поправка двигает тип вперёд в пределах одной дистанционной полосы:
// рельеф и дороги строятся раньше декоративной уличной мебели.
func (k Kind) PriorityBias() float64 {
	switch k {
	case KindTerrain:
		return -500
	case KindRoadBatch:
		return -250
	case KindBuilding:
		return 0
	case KindPark, KindWater:
		return 100
	case KindGroundDetail:
		return 300
	case KindStreetFurniture:
		return 500
	default:
		return 0
	}
}

// EstimatedCost возвращает среднюю стоимость элемента данного типа в мс.
// Используется бюджетным планировщиком, когда реальное время ещё не измерено.
// Значения — замеренные средние по датасету среднего города.
func (k Kind) EstimatedCost() float64 {
	switch k {
	case KindTerrain:
		return 0.8
	case KindRoadBatch:
		return 0.4
	case KindBuilding:
		return 0.05
	case KindPark:
		return 0.12
	case KindWater:
		return 2.0
	case KindGroundDetail:
		return 0.3
	case KindStreetFurniture:
		return 0.03
	default:
		return 0.1
	}
}

// IsAggregate сообщает, создаётся ли элемент этого типа один на чанк
// (а не по одному на фичу): рельеф, детализация земли, уличная мебель
// батчируются, чтобы ограничить накладные расходы постановки в очередь.
func (k Kind) IsAggregate() bool {
	switch k {
	case KindTerrain, KindGroundDetail, KindStreetFurniture:
		return true
	default:
		return false
	}
}

// AllKinds возвращает все типы в порядке объявления.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, int(kindCount))
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
