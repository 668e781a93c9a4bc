package geodata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"building": "yes", "height": "27", "id": "100"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[20,0],[20,20],[0,20]]]}
    },
    {
      "type": "Feature",
      "properties": {"highway": "residential"},
      "geometry": {"type": "LineString", "coordinates": [[0,0],[100,0],[100,50]]}
    },
    {
      "type": "Feature",
      "properties": {"leisure": "park"},
      "geometry": {"type": "Polygon", "coordinates": [[[200,200],[300,200],[300,300],[200,300]]]}
    },
    {
      "type": "Feature",
      "properties": {"natural": "water"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[400,400],[500,400],[500,500],[400,500]]]]}
    },
    {
      "type": "Feature",
      "properties": {"building": "yes"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[5,5]]]}
    },
    {
      "type": "Feature",
      "properties": {"amenity": "bench"},
      "geometry": {"type": "Point", "coordinates": [1,1]}
    }
  ]
}`

func writeTempDataset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	path := writeTempDataset(t, "city.geojson", sampleGeoJSON)

	result, err := LoadGeoJSON(path)
	require.NoError(t, err)

	// 4 валидных фичи; вырожденный полигон и Point пропущены
	assert.Len(t, result.Features, 4, "ожидалось 4 фичи")
	assert.Equal(t, 2, result.Skipped, "ожидалось 2 пропущенных записи")

	byKind := make(map[FeatureKind]int)
	for _, f := range result.Features {
		byKind[f.Kind]++
	}
	assert.Equal(t, 1, byKind[KindBuilding])
	assert.Equal(t, 1, byKind[KindRoad])
	assert.Equal(t, 1, byKind[KindPark])
	assert.Equal(t, 1, byKind[KindWater])
}

func TestLoadGeoJSONProperties(t *testing.T) {
	path := writeTempDataset(t, "city.geojson", sampleGeoJSON)

	result, err := LoadGeoJSON(path)
	require.NoError(t, err)

	var building *Feature
	for _, f := range result.Features {
		if f.Kind == KindBuilding {
			building = f
		}
	}
	require.NotNil(t, building)

	assert.Equal(t, uint64(100), building.ID, "явный id из properties")
	assert.Equal(t, 27.0, building.Height, "высота из properties")
	assert.Len(t, building.Points, 4)
}

func TestLoadGeoJSONGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.geojson.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleGeoJSON))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	result, err := LoadGeoJSON(path)
	require.NoError(t, err)
	assert.Len(t, result.Features, 4)
}

func TestLoadGeoJSONMissingFile(t *testing.T) {
	_, err := LoadGeoJSON("/nonexistent/city.geojson")
	assert.Error(t, err)
}

func TestLoadGeoJSONMalformed(t *testing.T) {
	path := writeTempDataset(t, "broken.geojson", "{не json")
	_, err := LoadGeoJSON(path)
	assert.Error(t, err)
}

func TestClassifyExplicitKind(t *testing.T) {
	// Явный kind имеет приоритет над OSM-тегами
	assert.Equal(t, KindWater, classify(map[string]string{"kind": "water", "building": "yes"}))
	assert.Equal(t, KindUnknown, classify(map[string]string{"kind": "bridge"}))
	assert.Equal(t, KindPark, classify(map[string]string{"landuse": "grass"}))
	assert.Equal(t, KindWater, classify(map[string]string{"waterway": "river"}))
	assert.Equal(t, KindUnknown, classify(map[string]string{}))
}
