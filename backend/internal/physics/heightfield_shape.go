package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/world"
)

// HeightfieldShape ступенчатое поле высот: каждый тайл - колонна от пола поля до высоты земли тайла.
// Локальные X/Z отсчитываются от угла раздела, Y - абсолютная высота.
type HeightfieldShape struct {
	cols, rows int
	tileLength float64
	heights    []float64

	minHeight float64
	maxHeight float64
	floor     float64
}

// NewHeightfieldShape создает поле высот cols x rows тайлов; heights хранится построчно
func NewHeightfieldShape(cols, rows int, tileLength float64, heights []float64) (*HeightfieldShape, error) {
	if cols <= 0 || rows <= 0 || !(tileLength > 0) {
		return nil, ErrInvalidShape
	}
	if len(heights) != cols*rows {
		return nil, fmt.Errorf("%w: ожидали %d высот, получили %d", ErrInvalidShape, cols*rows, len(heights))
	}

	h := &HeightfieldShape{
		cols:       cols,
		rows:       rows,
		tileLength: tileLength,
		heights:    make([]float64, len(heights)),
		minHeight:  math.Inf(1),
		maxHeight:  math.Inf(-1),
	}
	copy(h.heights, heights)
	for _, v := range heights {
		h.minHeight = math.Min(h.minHeight, v)
		h.maxHeight = math.Max(h.maxHeight, v)
	}
	h.floor = h.minHeight - tileLength
	return h, nil
}

func (h *HeightfieldShape) Type() ShapeType { return ShapeHeightfield }

func (h *HeightfieldShape) Cols() int { return h.cols }

func (h *HeightfieldShape) Rows() int { return h.rows }

// HeightRange возвращает минимальную и максимальную высоту поля
func (h *HeightfieldShape) HeightRange() (float64, float64) { return h.minHeight, h.maxHeight }

// HeightAt возвращает высоту тайла в локальных индексах
func (h *HeightfieldShape) HeightAt(col, row int) float64 {
	return h.heights[row*h.cols+col]
}

func (h *HeightfieldShape) LocalBounds() (mgl64.Vec3, mgl64.Vec3) {
	return mgl64.Vec3{0, h.floor, 0},
		mgl64.Vec3{float64(h.cols) * h.tileLength, h.maxHeight, float64(h.rows) * h.tileLength}
}

func (h *HeightfieldShape) column(col, row int) (mgl64.Vec3, mgl64.Vec3) {
	return mgl64.Vec3{float64(col) * h.tileLength, h.floor, float64(row) * h.tileLength},
		mgl64.Vec3{float64(col+1) * h.tileLength, h.HeightAt(col, row), float64(row+1) * h.tileLength}
}

func (h *HeightfieldShape) raycastLocal(from, to mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	bmin, bmax := h.LocalBounds()
	t0, t1, _, _, ok := clipRayAABB(from, to, bmin, bmax)
	if !ok {
		return 0, mgl64.Vec3{}, false
	}
	t0 = math.Max(t0, 0)
	t1 = math.Min(t1, 1)

	d := to.Sub(from)
	a := from.Add(d.Mul(t0))
	b := from.Add(d.Mul(t1))

	var (
		bestT      float64
		bestNormal mgl64.Vec3
		found      bool
	)
	world.TraverseCells(a.X()/h.tileLength, a.Z()/h.tileLength, b.X()/h.tileLength, b.Z()/h.tileLength,
		func(cx, cz int, _, _ float64) bool {
			// Точка на дальней границе поля принадлежит последнему тайлу
			cx = min(cx, h.cols-1)
			cz = min(cz, h.rows-1)
			if cx < 0 || cz < 0 {
				return true
			}
			cmin, cmax := h.column(cx, cz)
			t, normal, hit := rayAABB(from, to, cmin, cmax)
			if !hit {
				return true
			}
			bestT, bestNormal, found = t, normal, true
			return false
		})
	return bestT, bestNormal, found
}

func (h *HeightfieldShape) contactSphereLocal(center mgl64.Vec3, radius float64) (contact, bool) {
	if center.Y()-radius > h.maxHeight {
		return contact{}, false
	}
	c0 := max(int(math.Floor((center.X()-radius)/h.tileLength)), 0)
	c1 := min(int(math.Floor((center.X()+radius)/h.tileLength)), h.cols-1)
	r0 := max(int(math.Floor((center.Z()-radius)/h.tileLength)), 0)
	r1 := min(int(math.Floor((center.Z()+radius)/h.tileLength)), h.rows-1)

	var (
		best  contact
		found bool
	)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			cmin, cmax := h.column(col, row)
			c, ok := sphereAABBContact(center, radius, cmin, cmax)
			if !ok {
				continue
			}
			if !found || c.distance < best.distance {
				best, found = c, true
			}
		}
	}
	return best, found
}
