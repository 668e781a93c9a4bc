package geodata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/annel0/citystream/internal/logging"
	"github.com/annel0/citystream/internal/vec"
	"github.com/klauspost/compress/gzip"
)

// LoadResult итог импорта датасета.
type LoadResult struct {
	Features []*Feature
	Skipped  int // Отброшенные некорректные записи (не фатально)
}

// geoJSON минимальное подмножество формата, которое производит наш импортёр.
type geoJSON struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

type geoFeature struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   geoGeometry       `json:"geometry"`
}

type geoGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// LoadGeoJSON читает датасет города из GeoJSON файла (при суффиксе .gz — сжатого).
// Некорректные записи (пустая геометрия, неизвестный тип) пропускаются и считаются,
// ошибка возвращается только если файл нечитаем целиком.
func LoadGeoJSON(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия датасета %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения gzip датасета %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения датасета %s: %w", path, err)
	}

	var doc geoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ошибка разбора GeoJSON %s: %w", path, err)
	}

	log := logging.GetGeodataLogger()

	result := &LoadResult{}
	var nextID uint64 = 1

	for i := range doc.Features {
		feature, ok := convertFeature(&doc.Features[i], &nextID)
		if !ok {
			result.Skipped++
			continue
		}
		result.Features = append(result.Features, feature)
	}

	log.Info("🗺️  Датасет %s: %d фич загружено, %d пропущено", path, len(result.Features), result.Skipped)
	return result, nil
}

// convertFeature переводит запись GeoJSON во внутреннюю модель.
func convertFeature(gf *geoFeature, nextID *uint64) (*Feature, bool) {
	kind := classify(gf.Properties)
	if kind == KindUnknown {
		return nil, false
	}

	points, ok := parseGeometry(&gf.Geometry)
	if !ok || len(points) == 0 {
		return nil, false
	}
	// Дорога из одной вершины или полигон из двух — вырожденная запись
	if kind == KindRoad && len(points) < 2 {
		return nil, false
	}
	if kind != KindRoad && len(points) < 3 {
		return nil, false
	}

	id := *nextID
	if raw, ok := gf.Properties["id"]; ok {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			id = parsed
		}
	}
	if id >= *nextID {
		*nextID = id + 1
	} else {
		*nextID++
	}

	height := 0.0
	if raw, ok := gf.Properties["height"]; ok {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			height = parsed
		}
	}

	return &Feature{
		ID:     id,
		Kind:   kind,
		Points: points,
		Height: height,
		Tags:   gf.Properties,
	}, true
}

// classify определяет тип фичи по свойствам (OSM-подобные теги либо явный kind).
func classify(props map[string]string) FeatureKind {
	if k, ok := props["kind"]; ok {
		return ParseKind(k)
	}
	if _, ok := props["building"]; ok {
		return KindBuilding
	}
	if _, ok := props["highway"]; ok {
		return KindRoad
	}
	if props["leisure"] == "park" || props["landuse"] == "grass" {
		return KindPark
	}
	if props["natural"] == "water" || props["waterway"] != "" {
		return KindWater
	}
	return KindUnknown
}

// parseGeometry извлекает вершины из Polygon/LineString/MultiPolygon.
// У полигонов берётся внешний контур; дырки для стриминга не важны.
func parseGeometry(g *geoGeometry) ([]vec.Vec2Float, bool) {
	switch g.Type {
	case "LineString":
		var coords [][2]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, false
		}
		return toPoints(coords), true
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
			return nil, false
		}
		return toPoints(rings[0]), true
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil || len(polys) == 0 || len(polys[0]) == 0 {
			return nil, false
		}
		return toPoints(polys[0][0]), true
	default:
		return nil, false
	}
}

func toPoints(coords [][2]float64) []vec.Vec2Float {
	points := make([]vec.Vec2Float, 0, len(coords))
	for _, c := range coords {
		points = append(points, vec.Vec2Float{X: c[0], Y: c[1]})
	}
	return points
}
