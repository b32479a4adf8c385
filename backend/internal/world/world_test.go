package world

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestNewMap_Validation(t *testing.T) {
	if _, err := NewMap(0, 4, 1, nil); !errors.Is(err, ErrEmptyMap) {
		t.Errorf("ожидали ErrEmptyMap, получили %v", err)
	}
	if _, err := NewMap(2, 2, 0, make([]float64, 4)); !errors.Is(err, ErrInvalidTileLength) {
		t.Errorf("ожидали ErrInvalidTileLength, получили %v", err)
	}
	if _, err := NewMap(2, 2, 1, make([]float64, 3)); !errors.Is(err, ErrHeightsSize) {
		t.Errorf("ожидали ErrHeightsSize, получили %v", err)
	}
}

func TestMap_GroundHeightAt(t *testing.T) {
	m, err := NewMap(2, 2, 10, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	cases := []struct {
		x, z int
		want float64
	}{
		{0, 0, 1},
		{1, 0, 2},
		{0, 1, 3},
		{1, 1, 4},
		{-5, 0, 1}, // прижимается к краю
		{9, 9, 4},
	}
	for _, c := range cases {
		if got := m.GroundHeightAt(c.x, c.z); got != c.want {
			t.Errorf("GroundHeightAt(%d,%d) = %v, want %v", c.x, c.z, got, c.want)
		}
	}

	m.SetGroundHeight(1, 1, 42)
	if got := m.GroundHeightAt(1, 1); got != 42 {
		t.Errorf("после SetGroundHeight ожидали 42, получили %v", got)
	}
}

func TestMap_PlaceObject(t *testing.T) {
	m, _ := NewFlatMap(4, 4, 1, 0)
	idx := m.AddObjectType(ObjectType{Name: "tree"})
	first, err := m.PlaceObject(idx, mgl64.Vec3{1, 0, 1})
	if err != nil || first != 0 {
		t.Fatalf("PlaceObject: %d, %v", first, err)
	}
	second, _ := m.PlaceObject(idx, mgl64.Vec3{2, 0, 2})
	if second != 1 {
		t.Errorf("ожидали индекс экземпляра 1, получили %d", second)
	}
	if _, err := m.PlaceObject(7, mgl64.Vec3{}); err == nil {
		t.Error("ожидали ошибку для неизвестного типа")
	}
	if got := len(m.ObjectTypes()[idx].Instances); got != 2 {
		t.Errorf("ожидали 2 экземпляра, получили %d", got)
	}
}

func TestEllipticBound_Valid(t *testing.T) {
	cases := []struct {
		name  string
		bound EllipticBound
		want  bool
	}{
		{"ok", EllipticBound{RadiusX: 1, RadiusZ: 1, Bottom: 0, Top: 2}, true},
		{"zero radius", EllipticBound{RadiusX: 0, RadiusZ: 1, Bottom: 0, Top: 2}, false},
		{"flat", EllipticBound{RadiusX: 1, RadiusZ: 1, Bottom: 2, Top: 2}, false},
		{"nan", EllipticBound{CenterX: math.NaN(), RadiusX: 1, RadiusZ: 1, Top: 1}, false},
	}
	for _, c := range cases {
		if got := c.bound.Valid(); got != c.want {
			t.Errorf("%s: Valid() = %v, want %v", c.name, got, c.want)
		}
	}
}

type visited struct {
	x, z        int
	enter, exit float64
}

func collect(x0, z0, x1, z1 float64) []visited {
	var out []visited
	TraverseCells(x0, z0, x1, z1, func(cx, cz int, tEnter, tExit float64) bool {
		out = append(out, visited{cx, cz, tEnter, tExit})
		return true
	})
	return out
}

func TestTraverseCells_Horizontal(t *testing.T) {
	cells := collect(0.5, 0.5, 3.5, 0.5)
	if len(cells) != 4 {
		t.Fatalf("ожидали 4 ячейки, получили %d: %+v", len(cells), cells)
	}
	for i, c := range cells {
		if c.x != i || c.z != 0 {
			t.Errorf("ячейка %d: (%d,%d)", i, c.x, c.z)
		}
	}
	if cells[0].enter != 0 || cells[len(cells)-1].exit != 1 {
		t.Errorf("неверные границы параметров: %+v", cells)
	}
	if math.Abs(cells[1].enter-1.0/6.0) > 1e-9 {
		t.Errorf("вход во вторую ячейку %v, ожидали 1/6", cells[1].enter)
	}
}

func TestTraverseCells_Vertical(t *testing.T) {
	cells := collect(2.3, 4.7, 2.3, 4.7)
	if len(cells) != 1 || cells[0].x != 2 || cells[0].z != 4 {
		t.Fatalf("вертикальный отрезок должен дать одну ячейку, получили %+v", cells)
	}
}

func TestTraverseCells_NegativeDirection(t *testing.T) {
	cells := collect(2.5, 2.5, 0.5, 0.5)
	last := cells[len(cells)-1]
	if last.x != 0 || last.z != 0 {
		t.Errorf("последняя ячейка (%d,%d), ожидали (0,0)", last.x, last.z)
	}
	for i := 1; i < len(cells); i++ {
		if cells[i].enter < cells[i-1].enter {
			t.Errorf("параметры входа должны возрастать: %+v", cells)
		}
	}
}

func TestTraverseCells_Stop(t *testing.T) {
	count := 0
	TraverseCells(0.5, 0.5, 10.5, 0.5, func(cx, cz int, tEnter, tExit float64) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Errorf("обход должен остановиться после 3 ячеек, было %d", count)
	}
}

func TestGenerateHeights_Range(t *testing.T) {
	p := TerrainParams{Width: 32, Height: 32, TileLength: 16, MinHeight: -10, MaxHeight: 10, Seed: 7}
	m, err := NewGeneratedMap(p)
	if err != nil {
		t.Fatalf("NewGeneratedMap: %v", err)
	}
	again := GenerateHeights(p)
	for z := 0; z < p.Height; z++ {
		for x := 0; x < p.Width; x++ {
			h := m.GroundHeightAt(x, z)
			if math.IsNaN(h) || math.IsInf(h, 0) {
				t.Fatalf("некорректная высота в (%d,%d): %v", x, z, h)
			}
			if again[z*p.Width+x] != h {
				t.Fatalf("генерация должна быть детерминированной")
			}
		}
	}
}

func TestPopulateDemo(t *testing.T) {
	m, _ := NewFlatMap(64, 64, 256, 0)
	PopulateDemo(m, 3, 5)

	types := m.ObjectTypes()
	if len(types) != 3 {
		t.Fatalf("ожидали 3 типа объектов, получили %d", len(types))
	}
	noLight := 0
	for _, ot := range types {
		if len(ot.Instances) != 5 {
			t.Errorf("тип %s: ожидали 5 экземпляров, получили %d", ot.Name, len(ot.Instances))
		}
		if ot.NoLight {
			noLight++
		}
	}
	if noLight != 1 {
		t.Errorf("ожидали один тип без освещения, получили %d", noLight)
	}
	if len(m.WaterRegions()) != 1 || !m.WaterRegions()[0].Valid() {
		t.Errorf("ожидали один корректный водный участок")
	}
}
