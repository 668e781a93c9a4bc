package gen

import (
	"fmt"

	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/scene"
	"github.com/annel0/citystream/internal/vec"
)

// Payload вход генератора: фичи элемента работы и контейнер-приёмник.
// Генератор только читает фичи и пишет узлы в контейнер; ссылок за
// пределами вызова он не удерживает.
type Payload struct {
	Features  []*geodata.Feature
	Container *scene.Container
	ChunkKey  vec.Vec2
	ChunkSize float64
	Seed      int64
}

// Generator чистая функция генерации контента: (payload) -> error.
// Вызывается планировщиком под бюджетом; не должна блокироваться.
type Generator func(p Payload) error

var registry = make(map[Kind]Generator)

// Register добавляет генератор для типа в регистр
func Register(kind Kind, g Generator) {
	registry[kind] = g
}

// Get возвращает генератор для указанного типа
func Get(kind Kind) (Generator, bool) {
	g, exists := registry[kind]
	return g, exists
}

// Dispatch вызывает генератор типа; отсутствие генератора — ошибка элемента,
// а не паника: очередь продолжает работу.
func Dispatch(kind Kind, p Payload) error {
	g, exists := registry[kind]
	if !exists {
		return fmt.Errorf("генератор для типа %s не зарегистрирован", kind)
	}
	return g(p)
}

// RegisterDefaults регистрирует штатный набор генераторов.
// Покрытие всех типов проверяется тестом.
func RegisterDefaults() {
	Register(KindTerrain, GenerateTerrain)
	Register(KindRoadBatch, GenerateRoadBatch)
	Register(KindBuilding, GenerateBuilding)
	Register(KindPark, GeneratePark)
	Register(KindWater, GenerateWater)
	Register(KindGroundDetail, GenerateGroundDetail)
	Register(KindStreetFurniture, GenerateStreetFurniture)
}
