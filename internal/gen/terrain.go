package gen

import (
	"fmt"

	"github.com/annel0/citystream/internal/vec"
)

// Разрешение сетки высот: 16 квадов на сторону чанка.
const terrainGridSize = 17

// TerrainPatch результат генерации рельефа чанка.
type TerrainPatch struct {
	ChunkKey vec.Vec2
	Heights  [][]float64 // [terrainGridSize][terrainGridSize], метры
}

// GenerateTerrain строит сетку высот чанка по полю шума Перлина.
// Один агрегатный элемент на чанк; фич не потребляет.
func GenerateTerrain(p Payload) error {
	step := p.ChunkSize / float64(terrainGridSize-1)
	originX := float64(p.ChunkKey.X) * p.ChunkSize
	originY := float64(p.ChunkKey.Y) * p.ChunkSize

	heights := make([][]float64, terrainGridSize)
	for i := range heights {
		heights[i] = make([]float64, terrainGridSize)
		for j := range heights[i] {
			wx := originX + float64(i)*step
			wy := originY + float64(j)*step
			// Масштаб 1/2000: городской рельеф меняется на километрах, не на метрах
			heights[i][j] = noise2D(p.Seed, wx/2000.0, wy/2000.0) * 40.0
		}
	}

	patch := TerrainPatch{ChunkKey: p.ChunkKey, Heights: heights}
	if _, err := p.Container.AddNode(fmt.Sprintf("terrain_%d_%d", p.ChunkKey.X, p.ChunkKey.Y), patch); err != nil {
		return err
	}
	return nil
}

// GroundDetailBatch результат рассеивания детализации земли (трава, камни).
type GroundDetailBatch struct {
	ChunkKey   vec.Vec2
	Placements []vec.Vec2Float
}

// GenerateGroundDetail рассеивает детализацию по полю шума:
// точки ставятся там, где шум превышает порог, что даёт естественные пятна.
func GenerateGroundDetail(p Payload) error {
	const cell = 25.0 // Одна потенциальная точка на ячейку 25×25 м
	steps := int(p.ChunkSize / cell)
	originX := float64(p.ChunkKey.X) * p.ChunkSize
	originY := float64(p.ChunkKey.Y) * p.ChunkSize

	var placements []vec.Vec2Float
	for i := 0; i < steps; i++ {
		for j := 0; j < steps; j++ {
			wx := originX + (float64(i)+0.5)*cell
			wy := originY + (float64(j)+0.5)*cell
			if noise2D(p.Seed+1, wx/300.0, wy/300.0) > 0.62 {
				placements = append(placements, vec.Vec2Float{X: wx, Y: wy})
			}
		}
	}

	batch := GroundDetailBatch{ChunkKey: p.ChunkKey, Placements: placements}
	if _, err := p.Container.AddNode(fmt.Sprintf("ground_%d_%d", p.ChunkKey.X, p.ChunkKey.Y), batch); err != nil {
		return err
	}
	return nil
}
