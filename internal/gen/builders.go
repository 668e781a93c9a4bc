package gen

import (
	"fmt"

	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/vec"
)

// BuildingMesh экструдированное здание: стены по контуру + плоская крыша.
type BuildingMesh struct {
	FeatureID   uint64
	Height      float64
	VertexCount int
}

// RoadBatch сегменты всех дорог элемента, слитые в один батч.
type RoadBatch struct {
	FeatureIDs []uint64
	Segments   int
	Length     float64
}

// ParkMesh площадка парка с рассаженными деревьями.
type ParkMesh struct {
	FeatureID uint64
	Area      float64
	Trees     int
}

// WaterMesh тесселированный полигон водоёма.
type WaterMesh struct {
	FeatureID uint64
	Area      float64
	Triangles int
}

// FurnitureBatch уличная мебель (фонари) вдоль дорог чанка.
type FurnitureBatch struct {
	Lamps []vec.Vec2Float
}

const defaultBuildingHeight = 9.0 // Три этажа, если высота не задана в данных

// GenerateBuilding экструдирует контур здания.
func GenerateBuilding(p Payload) error {
	f, err := singleFeature(p, geodata.KindBuilding)
	if err != nil {
		return err
	}

	n := len(f.Points)
	if n < 3 {
		return fmt.Errorf("здание %d: вырожденный контур из %d точек", f.ID, n)
	}

	height := f.Height
	if height <= 0 {
		height = defaultBuildingHeight
	}

	mesh := BuildingMesh{
		FeatureID: f.ID,
		Height:    height,
		// 4 вершины на стену + веер крыши из n-2 треугольников
		VertexCount: n*4 + (n-2)*3,
	}
	_, err = p.Container.AddNode(fmt.Sprintf("building_%d", f.ID), mesh)
	return err
}

// GenerateRoadBatch сливает все дороги элемента в один батч сегментов.
func GenerateRoadBatch(p Payload) error {
	if len(p.Features) == 0 {
		return fmt.Errorf("батч дорог без фич")
	}

	batch := RoadBatch{}
	for _, f := range p.Features {
		if len(f.Points) < 2 {
			continue // Вырожденный путь пропускаем, батч не срывается
		}
		batch.FeatureIDs = append(batch.FeatureIDs, f.ID)
		batch.Segments += len(f.Points) - 1
		for i := 1; i < len(f.Points); i++ {
			batch.Length += f.Points[i-1].DistanceTo(f.Points[i])
		}
	}

	if batch.Segments == 0 {
		return fmt.Errorf("батч дорог: все %d путей вырождены", len(p.Features))
	}

	_, err := p.Container.AddNode(fmt.Sprintf("roads_%d_%d", p.ChunkKey.X, p.ChunkKey.Y), batch)
	return err
}

// GeneratePark строит площадку парка; плотность деревьев задаёт шум.
func GeneratePark(p Payload) error {
	f, err := singleFeature(p, geodata.KindPark)
	if err != nil {
		return err
	}

	area := f.Area()
	if area <= 0 {
		return fmt.Errorf("парк %d: нулевая площадь", f.ID)
	}

	rep, _ := f.RepresentativePoint()
	density := 0.5 + noise2D(p.Seed+2, rep.X/500.0, rep.Y/500.0) // Деревьев на 100 м²

	mesh := ParkMesh{
		FeatureID: f.ID,
		Area:      area,
		Trees:     int(area / 100.0 * density),
	}
	_, err = p.Container.AddNode(fmt.Sprintf("park_%d", f.ID), mesh)
	return err
}

// GenerateWater тесселирует полигон водоёма.
// Исторически самый дорогой тип: крупные озёра дают тысячи треугольников,
// поэтому водоёмы идут через очередь, а не строятся на месте.
func GenerateWater(p Payload) error {
	f, err := singleFeature(p, geodata.KindWater)
	if err != nil {
		return err
	}

	n := len(f.Points)
	if n < 3 {
		return fmt.Errorf("водоём %d: вырожденный контур из %d точек", f.ID, n)
	}

	mesh := WaterMesh{
		FeatureID: f.ID,
		Area:      f.Area(),
		Triangles: n - 2, // Веерная триангуляция контура
	}
	_, err = p.Container.AddNode(fmt.Sprintf("water_%d", f.ID), mesh)
	return err
}

const lampSpacing = 30.0 // Метров между фонарями вдоль дороги

// GenerateStreetFurniture расставляет фонари вдоль дорог чанка.
// Агрегатный элемент: одна расстановка на чанк, фичи — его дороги.
func GenerateStreetFurniture(p Payload) error {
	batch := FurnitureBatch{}

	for _, f := range p.Features {
		if f.Kind != geodata.KindRoad || len(f.Points) < 2 {
			continue
		}
		sinceLamp := 0.0 // Пройдено вдоль пути с последнего фонаря
		for i := 1; i < len(f.Points); i++ {
			a, b := f.Points[i-1], f.Points[i]
			segLen := a.DistanceTo(b)
			if segLen == 0 {
				continue
			}
			dir := b.Sub(a).Mul(1 / segLen)
			pos := 0.0
			for sinceLamp+(segLen-pos) >= lampSpacing {
				pos += lampSpacing - sinceLamp
				batch.Lamps = append(batch.Lamps, a.Add(dir.Mul(pos)))
				sinceLamp = 0
			}
			sinceLamp += segLen - pos
		}
	}

	_, err := p.Container.AddNode(fmt.Sprintf("furniture_%d_%d", p.ChunkKey.X, p.ChunkKey.Y), batch)
	return err
}

// singleFeature достаёт единственную фичу элемента и проверяет её тип.
func singleFeature(p Payload, want geodata.FeatureKind) (*geodata.Feature, error) {
	if len(p.Features) != 1 {
		return nil, fmt.Errorf("ожидалась одна фича типа %s, получено %d", want, len(p.Features))
	}
	f := p.Features[0]
	if f.Kind != want {
		return nil, fmt.Errorf("ожидалась фича типа %s, получена %s", want, f.Kind)
	}
	return f, nil
}
