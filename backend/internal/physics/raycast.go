package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// AllGroups маска, пропускающая все группы
const AllGroups CollisionGroup = 0xFFFF

// RayHit ближайшее пересечение луча с телом
type RayHit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Fraction float64
	Distance float64
	Body     *Body
	Info     ProxyInfo
}

// Raycast возвращает ближайшее пересечение отрезка from->to с любым телом
func (w *World) Raycast(from, to mgl64.Vec3) (RayHit, bool) {
	return w.RaycastFiltered(from, to, AllGroups, nil)
}

// RaycastFiltered как Raycast, но учитывает только тела из групп mask; skip отбрасывает тела.
// Прокси без отклика на контакт лучам видны.
func (w *World) RaycastFiltered(from, to mgl64.Vec3, mask CollisionGroup, skip func(*Body) bool) (RayHit, bool) {
	if w.closed {
		return RayHit{}, false
	}
	hit, found := w.raycastStatic(from, to, mask, skip)
	for _, b := range w.dynamics {
		if b.group&mask == 0 || (skip != nil && skip(b)) {
			continue
		}
		if h, ok := castBody(b, from, to); ok && (!found || h.Fraction < hit.Fraction) {
			hit, found = h, true
		}
	}
	return hit, found
}

func (w *World) raycastStatic(from, to mgl64.Vec3, mask CollisionGroup, skip func(*Body) bool) (RayHit, bool) {
	var (
		hit   RayHit
		found bool
	)
	w.scratch = w.broadphase.queryRay(from, to, w.scratch[:0])
	for _, b := range w.scratch {
		if b.group&mask == 0 || (skip != nil && skip(b)) {
			continue
		}
		if h, ok := castBody(b, from, to); ok && (!found || h.Fraction < hit.Fraction) {
			hit, found = h, true
		}
	}
	return hit, found
}

func castBody(b *Body, from, to mgl64.Vec3) (RayHit, bool) {
	pos := b.Position()
	fraction, normal, ok := b.shape.raycastLocal(from.Sub(pos), to.Sub(pos))
	if !ok {
		return RayHit{}, false
	}
	d := to.Sub(from)
	return RayHit{
		Point:    from.Add(d.Mul(fraction)),
		Normal:   normal,
		Fraction: fraction,
		Distance: d.Len() * fraction,
		Body:     b,
		Info:     b.info,
	}, true
}
