package physics

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrInvalidShape = errors.New("physics: некорректные размеры формы")

// ShapeType вид формы столкновения
type ShapeType int

const (
	ShapeSphere ShapeType = iota
	ShapeBox
	ShapeHeightfield
)

func (t ShapeType) String() string {
	switch t {
	case ShapeSphere:
		return "sphere"
	case ShapeBox:
		return "box"
	case ShapeHeightfield:
		return "heightfield"
	default:
		return "unknown"
	}
}

// Shape форма столкновения в локальных координатах тела.
// Тела не вращаются: локальные координаты отличаются от мировых только сдвигом.
type Shape interface {
	Type() ShapeType
	// LocalBounds возвращает AABB формы в локальных координатах
	LocalBounds() (mgl64.Vec3, mgl64.Vec3)

	raycastLocal(from, to mgl64.Vec3) (fraction float64, normal mgl64.Vec3, ok bool)
	contactSphereLocal(center mgl64.Vec3, radius float64) (contact, bool)
}

// contact точка контакта на поверхности формы; normal направлена от формы к сфере,
// distance < 0 означает проникновение
type contact struct {
	point    mgl64.Vec3
	normal   mgl64.Vec3
	distance float64
}

// SphereShape сфера с центром в начале локальных координат
type SphereShape struct {
	Radius float64
}

// NewSphereShape создает сферу
func NewSphereShape(radius float64) (*SphereShape, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, ErrInvalidShape
	}
	return &SphereShape{Radius: radius}, nil
}

func (s *SphereShape) Type() ShapeType { return ShapeSphere }

func (s *SphereShape) LocalBounds() (mgl64.Vec3, mgl64.Vec3) {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return r.Mul(-1), r
}

func (s *SphereShape) raycastLocal(from, to mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	d := to.Sub(from)
	a := d.Dot(d)
	if from.Dot(from) <= s.Radius*s.Radius {
		return 0, reverseDirection(d), true
	}
	if a == 0 {
		return 0, mgl64.Vec3{}, false
	}
	b := 2 * from.Dot(d)
	c := from.Dot(from) - s.Radius*s.Radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, mgl64.Vec3{}, false
	}
	t := (-b - math.Sqrt(disc)) / (2 * a)
	if t < 0 || t > 1 {
		return 0, mgl64.Vec3{}, false
	}
	point := from.Add(d.Mul(t))
	return t, point.Normalize(), true
}

func (s *SphereShape) contactSphereLocal(center mgl64.Vec3, radius float64) (contact, bool) {
	dist := center.Len()
	gap := dist - s.Radius - radius
	if gap > 0 {
		return contact{}, false
	}
	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-12 {
		normal = center.Mul(1 / dist)
	}
	return contact{point: normal.Mul(s.Radius), normal: normal, distance: gap}, true
}

// BoxShape прямоугольный параллелепипед, выровненный по осям, с центром в начале координат
type BoxShape struct {
	HalfExtents mgl64.Vec3
}

// NewBoxShape создает коробку по половинам размеров
func NewBoxShape(halfExtents mgl64.Vec3) (*BoxShape, error) {
	for i := 0; i < 3; i++ {
		if !(halfExtents[i] > 0) || math.IsInf(halfExtents[i], 0) {
			return nil, ErrInvalidShape
		}
	}
	return &BoxShape{HalfExtents: halfExtents}, nil
}

func (b *BoxShape) Type() ShapeType { return ShapeBox }

func (b *BoxShape) LocalBounds() (mgl64.Vec3, mgl64.Vec3) {
	return b.HalfExtents.Mul(-1), b.HalfExtents
}

func (b *BoxShape) raycastLocal(from, to mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	return rayAABB(from, to, b.HalfExtents.Mul(-1), b.HalfExtents)
}

func (b *BoxShape) contactSphereLocal(center mgl64.Vec3, radius float64) (contact, bool) {
	return sphereAABBContact(center, radius, b.HalfExtents.Mul(-1), b.HalfExtents)
}

// clipRayAABB возвращает отрезок параметров [t0,t1] внутри AABB; t0 может быть отрицательным,
// если начало луча внутри
func clipRayAABB(from, to, bmin, bmax mgl64.Vec3) (t0, t1 float64, axis int, sign float64, ok bool) {
	d := to.Sub(from)
	t0, t1 = math.Inf(-1), math.Inf(1)
	axis = -1
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if from[i] < bmin[i] || from[i] > bmax[i] {
				return 0, 0, -1, 0, false
			}
			continue
		}
		inv := 1 / d[i]
		near := (bmin[i] - from[i]) * inv
		far := (bmax[i] - from[i]) * inv
		s := -1.0
		if near > far {
			near, far = far, near
			s = 1.0
		}
		if near > t0 {
			t0 = near
			axis = i
			sign = s
		}
		if far < t1 {
			t1 = far
		}
	}
	if t0 > t1 || t1 < 0 || t0 > 1 {
		return 0, 0, -1, 0, false
	}
	return t0, t1, axis, sign, true
}

// rayAABB пересечение луча from->to с AABB; начало внутри дает попадание с долей 0
func rayAABB(from, to, bmin, bmax mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	t0, _, axis, sign, ok := clipRayAABB(from, to, bmin, bmax)
	if !ok {
		return 0, mgl64.Vec3{}, false
	}
	if t0 <= 0 || axis < 0 {
		return 0, reverseDirection(to.Sub(from)), true
	}
	var normal mgl64.Vec3
	normal[axis] = sign
	return t0, normal, true
}

// sphereAABBContact ближайшая точка AABB к центру сферы
func sphereAABBContact(center mgl64.Vec3, radius float64, bmin, bmax mgl64.Vec3) (contact, bool) {
	closest := mgl64.Vec3{
		mgl64.Clamp(center[0], bmin[0], bmax[0]),
		mgl64.Clamp(center[1], bmin[1], bmax[1]),
		mgl64.Clamp(center[2], bmin[2], bmax[2]),
	}
	diff := center.Sub(closest)
	if d2 := diff.Dot(diff); d2 > 1e-18 {
		d := math.Sqrt(d2)
		gap := d - radius
		if gap > 0 {
			return contact{}, false
		}
		return contact{point: closest, normal: diff.Mul(1 / d), distance: gap}, true
	}

	// Центр внутри: выталкиваем через ближайшую грань
	bestPen := math.Inf(1)
	var normal mgl64.Vec3
	point := center
	for i := 0; i < 3; i++ {
		if pen := center[i] - bmin[i]; pen < bestPen {
			bestPen = pen
			normal = mgl64.Vec3{}
			normal[i] = -1
			point = center
			point[i] = bmin[i]
		}
		if pen := bmax[i] - center[i]; pen < bestPen {
			bestPen = pen
			normal = mgl64.Vec3{}
			normal[i] = 1
			point = center
			point[i] = bmax[i]
		}
	}
	return contact{point: point, normal: normal, distance: -(bestPen + radius)}, true
}

func reverseDirection(d mgl64.Vec3) mgl64.Vec3 {
	l := d.Len()
	if l < 1e-12 {
		return mgl64.Vec3{0, 1, 0}
	}
	return d.Mul(-1 / l)
}
