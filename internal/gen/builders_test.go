package gen

import (
	"testing"

	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/vec"
)

func square(id uint64, kind geodata.FeatureKind, side float64) *geodata.Feature {
	return &geodata.Feature{
		ID:   id,
		Kind: kind,
		Points: []vec.Vec2Float{
			{X: 0, Y: 0}, {X: side, Y: 0}, {X: side, Y: side}, {X: 0, Y: side},
		},
	}
}

func TestGenerateBuilding(t *testing.T) {
	c := testContainer()
	f := square(1, geodata.KindBuilding, 20)
	f.Height = 27

	err := GenerateBuilding(Payload{Features: []*geodata.Feature{f}, Container: c})
	if err != nil {
		t.Fatalf("Генерация здания: %v", err)
	}
	if c.NodeCount() != 1 {
		t.Errorf("Ожидался 1 узел, получено %d", c.NodeCount())
	}
}

func TestGenerateBuildingDefaultHeight(t *testing.T) {
	c := testContainer()
	f := square(2, geodata.KindBuilding, 10) // высота не задана

	if err := GenerateBuilding(Payload{Features: []*geodata.Feature{f}, Container: c}); err != nil {
		t.Fatalf("Здание без высоты должно получать высоту по умолчанию: %v", err)
	}
}

func TestGenerateBuildingDegenerate(t *testing.T) {
	c := testContainer()
	f := &geodata.Feature{
		ID:     3,
		Kind:   geodata.KindBuilding,
		Points: []vec.Vec2Float{{X: 0, Y: 0}, {X: 10, Y: 0}},
	}

	if err := GenerateBuilding(Payload{Features: []*geodata.Feature{f}, Container: c}); err == nil {
		t.Error("Контур из 2 точек должен давать ошибку")
	}
	if c.NodeCount() != 0 {
		t.Error("Упавший генератор записал узел")
	}
}

func TestGenerateBuildingWrongKind(t *testing.T) {
	c := testContainer()
	f := square(4, geodata.KindPark, 10)

	if err := GenerateBuilding(Payload{Features: []*geodata.Feature{f}, Container: c}); err == nil {
		t.Error("Генератор зданий принял фичу парка")
	}
}

func TestGenerateRoadBatch(t *testing.T) {
	c := testContainer()
	roads := []*geodata.Feature{
		{ID: 1, Kind: geodata.KindRoad, Points: []vec.Vec2Float{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 50}}},
		{ID: 2, Kind: geodata.KindRoad, Points: []vec.Vec2Float{{X: 0, Y: 10}}}, // вырожденная
		{ID: 3, Kind: geodata.KindRoad, Points: []vec.Vec2Float{{X: 0, Y: 20}, {X: 0, Y: 70}}},
	}

	if err := GenerateRoadBatch(Payload{Features: roads, Container: c}); err != nil {
		t.Fatalf("Батч дорог: %v", err)
	}
	if c.NodeCount() != 1 {
		t.Fatalf("Батч должен дать один узел, получено %d", c.NodeCount())
	}
}

func TestGenerateRoadBatchAllDegenerate(t *testing.T) {
	c := testContainer()
	roads := []*geodata.Feature{
		{ID: 1, Kind: geodata.KindRoad, Points: []vec.Vec2Float{{X: 0, Y: 0}}},
	}

	if err := GenerateRoadBatch(Payload{Features: roads, Container: c}); err == nil {
		t.Error("Батч из одних вырожденных путей должен давать ошибку")
	}
}

func TestGenerateWaterTriangles(t *testing.T) {
	c := testContainer()
	f := square(7, geodata.KindWater, 600)

	if err := GenerateWater(Payload{Features: []*geodata.Feature{f}, Container: c}); err != nil {
		t.Fatalf("Генерация водоёма: %v", err)
	}
	// Контур из 4 точек: веер из 2 треугольников, площадь 600²
	// (проверяем payload узла — он уходит потребителям сцены)
	if c.NodeCount() != 1 {
		t.Errorf("Ожидался 1 узел водоёма, получено %d", c.NodeCount())
	}
}

func TestGeneratePark(t *testing.T) {
	c := testContainer()
	f := square(8, geodata.KindPark, 100) // 10000 м²

	if err := GeneratePark(Payload{Features: []*geodata.Feature{f}, Container: c, Seed: 42}); err != nil {
		t.Fatalf("Генерация парка: %v", err)
	}
}

func TestGenerateStreetFurnitureLampSpacing(t *testing.T) {
	c := testContainer()
	// Прямая дорога 100 м: фонари на 30, 60, 90
	road := &geodata.Feature{
		ID:   9,
		Kind: geodata.KindRoad,
		Points: []vec.Vec2Float{
			{X: 0, Y: 0}, {X: 100, Y: 0},
		},
	}

	p := Payload{Features: []*geodata.Feature{road}, Container: c, ChunkKey: vec.Vec2{X: 0, Y: 0}}
	if err := GenerateStreetFurniture(p); err != nil {
		t.Fatalf("Расстановка мебели: %v", err)
	}
	if c.NodeCount() != 1 {
		t.Fatalf("Ожидался 1 узел батча, получено %d", c.NodeCount())
	}
}

func TestGenerateStreetFurnitureCarriesAcrossSegments(t *testing.T) {
	c := testContainer()
	// Путь из сегментов 20+20 м: первый фонарь на 30 м от начала,
	// остаток переносится между сегментами
	road := &geodata.Feature{
		ID:   10,
		Kind: geodata.KindRoad,
		Points: []vec.Vec2Float{
			{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 40, Y: 0},
		},
	}

	p := Payload{Features: []*geodata.Feature{road}, Container: c}
	if err := GenerateStreetFurniture(p); err != nil {
		t.Fatalf("Расстановка мебели: %v", err)
	}
}
