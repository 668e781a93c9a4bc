package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/annel0/citystream/internal/geodata"
	"github.com/annel0/citystream/internal/stream"
	"github.com/annel0/citystream/internal/vec"
)

// Инспектор датасета: показывает состав GeoJSON и раскладку по чанкам
// до запуска сервера. Полезен при подборе chunk_size под плотность города.

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Путь к GeoJSON датасету (.geojson или .geojson.gz)")
		chunkSize   = flag.Float64("chunk-size", 500, "Сторона чанка в мировых единицах")
		top         = flag.Int("top", 10, "Сколько самых плотных чанков показать")
	)
	flag.Parse()

	if *datasetPath == "" {
		log.Fatalf("❌ Укажите датасет: dataset-cli -dataset city.geojson.gz")
	}

	result, err := geodata.LoadGeoJSON(*datasetPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки датасета: %v", err)
	}

	printSummary(result)
	printChunkLayout(result.Features, *chunkSize, *top)
}

func printSummary(result *geodata.LoadResult) {
	byKind := make(map[geodata.FeatureKind]int)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, f := range result.Features {
		byKind[f.Kind]++
		for _, p := range f.Points {
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
	}

	fmt.Printf("Фич: %d (пропущено %d)\n", len(result.Features), result.Skipped)
	for _, kind := range []geodata.FeatureKind{geodata.KindBuilding, geodata.KindRoad, geodata.KindPark, geodata.KindWater} {
		fmt.Printf("  %-10s %d\n", kind, byKind[kind])
	}
	if len(result.Features) > 0 {
		fmt.Printf("Границы: (%.0f, %.0f) — (%.0f, %.0f), %.1f × %.1f км\n",
			minX, minY, maxX, maxY, (maxX-minX)/1000, (maxY-minY)/1000)
	}
}

func printChunkLayout(features []*geodata.Feature, chunkSize float64, top int) {
	idx := stream.BuildIndex(features, chunkSize)

	fmt.Printf("\nЧанки (%.0f м): %d непустых, в среднем %.1f фич на чанк\n",
		chunkSize, idx.ChunkCount(), float64(idx.FeatureCount())/math.Max(1, float64(idx.ChunkCount())))

	type chunkDensity struct {
		key   vec.Vec2
		count int
	}
	var dense []chunkDensity
	seen := make(map[vec.Vec2]bool)
	for _, f := range features {
		rep, ok := f.RepresentativePoint()
		if !ok {
			continue
		}
		key := rep.ToCell(chunkSize)
		if seen[key] {
			continue
		}
		seen[key] = true
		dense = append(dense, chunkDensity{key: key, count: len(idx.ByChunk(key))})
	}

	sort.Slice(dense, func(i, j int) bool { return dense[i].count > dense[j].count })
	if top > len(dense) {
		top = len(dense)
	}

	fmt.Printf("Самые плотные чанки:\n")
	for _, d := range dense[:top] {
		fmt.Printf("  (%4d, %4d)  %d фич\n", d.key.X, d.key.Y, d.count)
	}
}
