package geodata

import (
	"math"
	"testing"

	"github.com/annel0/citystream/internal/vec"
)

func TestRepresentativePointPolygon(t *testing.T) {
	f := &Feature{
		Kind: KindBuilding,
		Points: []vec.Vec2Float{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
		},
	}

	rep, ok := f.RepresentativePoint()
	if !ok {
		t.Fatal("Квадрат признан вырожденным")
	}
	if math.Abs(rep.X-5) > 1e-9 || math.Abs(rep.Y-5) > 1e-9 {
		t.Errorf("Центроид квадрата: ожидалось (5,5), получено (%g,%g)", rep.X, rep.Y)
	}
}

func TestRepresentativePointRoad(t *testing.T) {
	f := &Feature{
		Kind:   KindRoad,
		Points: []vec.Vec2Float{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 200, Y: 0}},
	}

	rep, ok := f.RepresentativePoint()
	if !ok {
		t.Fatal("Дорога признана вырожденной")
	}
	if rep.X != 100 || rep.Y != 0 {
		t.Errorf("Среднее вершин пути: ожидалось (100,0), получено (%g,%g)", rep.X, rep.Y)
	}
}

func TestRepresentativePointDegenerate(t *testing.T) {
	f := &Feature{Kind: KindBuilding}
	if _, ok := f.RepresentativePoint(); ok {
		t.Error("Фича без точек должна быть вырожденной")
	}
}

func TestRepresentativePointZeroAreaFallback(t *testing.T) {
	// Все вершины на одной прямой: центроид через площадь не определён,
	// fallback на среднее вершин
	f := &Feature{
		Kind:   KindBuilding,
		Points: []vec.Vec2Float{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}},
	}

	rep, ok := f.RepresentativePoint()
	if !ok {
		t.Fatal("Вырожденный контур с вершинами должен давать опорную точку")
	}
	if math.Abs(rep.X-10) > 1e-9 {
		t.Errorf("Fallback на среднее вершин: ожидалось x=10, получено %g", rep.X)
	}
}

func TestAreaShoelace(t *testing.T) {
	f := &Feature{
		Kind: KindWater,
		Points: []vec.Vec2Float{
			{X: 0, Y: 0}, {X: 600, Y: 0}, {X: 600, Y: 600}, {X: 0, Y: 600},
		},
	}

	if area := f.Area(); math.Abs(area-360000) > 1e-6 {
		t.Errorf("Площадь квадрата 600×600: ожидалось 360000, получено %g", area)
	}
}

func TestAreaLinearIsZero(t *testing.T) {
	f := &Feature{
		Kind:   KindRoad,
		Points: []vec.Vec2Float{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}},
	}
	if f.Area() != 0 {
		t.Error("Площадь полилинии должна быть нулевой")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	kinds := []FeatureKind{KindBuilding, KindRoad, KindPark, KindWater}
	for _, k := range kinds {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, ожидалось %v", k.String(), got, k)
		}
	}
	if ParseKind("skyscraper") != KindUnknown {
		t.Error("Неизвестное имя должно давать KindUnknown")
	}
}
