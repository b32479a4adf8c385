package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ContactPoint точка контакта пары тел. NormalOnB направлена от тела B к телу A,
// Distance < 0 означает проникновение.
type ContactPoint struct {
	PositionOnA mgl64.Vec3
	PositionOnB mgl64.Vec3
	NormalOnB   mgl64.Vec3
	Distance    float64
}

// Manifold набор точек контакта одной пары тел за последний шаг
type Manifold struct {
	BodyA  *Body
	BodyB  *Body
	Points []ContactPoint
}

func (m *Manifold) NumContacts() int { return len(m.Points) }

// BodyContact точка контакта с точки зрения одного тела: Point лежит на поверхности другого тела,
// Normal направлена от другого тела к этому
type BodyContact struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
	Other    *Body
}

// dispatch строит манифолды для всех пар текущего подшага и разрешает проникновения
func (w *World) dispatch() {
	for i, a := range w.dynamics {
		if a.sleeping || a.noContact {
			continue
		}
		r := a.contactRadius()
		center := a.motion.position

		ext := mgl64.Vec3{r, r, r}
		w.scratch = w.broadphase.queryAABB(center.Sub(ext), center.Add(ext), w.scratch[:0])
		for _, s := range w.scratch {
			if s.noContact || !a.collides(s) {
				continue
			}
			c, ok := s.shape.contactSphereLocal(center.Sub(s.Position()), r)
			if !ok {
				continue
			}
			onB := c.point.Add(s.Position())
			w.addContact(a, s, ContactPoint{
				PositionOnA: center.Sub(c.normal.Mul(r)),
				PositionOnB: onB,
				NormalOnB:   c.normal,
				Distance:    c.distance,
			})
			w.resolveStatic(a, c.normal, c.distance)
			center = a.motion.position
		}

		for _, b := range w.dynamics[i+1:] {
			if b.sleeping || b.noContact || !a.collides(b) {
				continue
			}
			w.collideDynamic(a, b)
		}
	}
}

func (w *World) collideDynamic(a, b *Body) {
	ra, rb := a.contactRadius(), b.contactRadius()
	diff := a.motion.position.Sub(b.motion.position)
	dist := diff.Len()
	gap := dist - ra - rb
	if gap > 0 {
		return
	}
	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-12 {
		normal = diff.Mul(1 / dist)
	}
	w.addContact(a, b, ContactPoint{
		PositionOnA: a.motion.position.Sub(normal.Mul(ra)),
		PositionOnB: b.motion.position.Add(normal.Mul(rb)),
		NormalOnB:   normal,
		Distance:    gap,
	})

	total := a.invMass + b.invMass
	if total == 0 {
		return
	}
	push := normal.Mul(-gap / total)
	a.motion.position = a.motion.position.Add(push.Mul(a.invMass))
	b.motion.position = b.motion.position.Sub(push.Mul(b.invMass))

	rel := a.velocity.Sub(b.velocity).Dot(normal)
	if rel >= 0 {
		return
	}
	j := -(1 + w.cfg.Restitution) * rel / total
	a.velocity = a.velocity.Add(normal.Mul(j * a.invMass))
	b.velocity = b.velocity.Sub(normal.Mul(j * b.invMass))
}

// resolveStatic выталкивает динамическое тело из статики и гасит скорость вдоль нормали
func (w *World) resolveStatic(b *Body, normal mgl64.Vec3, distance float64) {
	if distance < 0 {
		b.motion.position = b.motion.position.Add(normal.Mul(-distance))
	}
	if vn := b.velocity.Dot(normal); vn < 0 {
		b.velocity = b.velocity.Sub(normal.Mul(vn * (1 + w.cfg.Restitution)))
	}
}

// addContact добавляет точку в манифолд пары; на каждом подшаге точки пары заменяются
func (w *World) addContact(a, b *Body, p ContactPoint) {
	for _, m := range w.manifolds {
		if m.BodyA == a && m.BodyB == b {
			m.Points = append(m.Points[:0], p)
			return
		}
	}
	w.manifolds = append(w.manifolds, &Manifold{BodyA: a, BodyB: b, Points: []ContactPoint{p}})
}

// NumManifolds возвращает число манифолдов последнего шага
func (w *World) NumManifolds() int { return len(w.manifolds) }

// Manifold возвращает манифолд по индексу
func (w *World) Manifold(i int) *Manifold { return w.manifolds[i] }

// HasContacts сообщает, есть ли у тела хотя бы одна точка контакта в последнем шаге
func (w *World) HasContacts(b *Body) bool {
	for _, m := range w.manifolds {
		if (m.BodyA == b || m.BodyB == b) && m.NumContacts() > 0 {
			return true
		}
	}
	return false
}

// DeepestContact возвращает самую глубокую точку контакта тела в последнем шаге
func (w *World) DeepestContact(b *Body) (BodyContact, bool) {
	var (
		best  BodyContact
		found bool
	)
	for _, m := range w.manifolds {
		for _, p := range m.Points {
			var c BodyContact
			switch b {
			case m.BodyA:
				c = BodyContact{Point: p.PositionOnB, Normal: p.NormalOnB, Distance: p.Distance, Other: m.BodyB}
			case m.BodyB:
				c = BodyContact{Point: p.PositionOnA, Normal: p.NormalOnB.Mul(-1), Distance: p.Distance, Other: m.BodyA}
			default:
				continue
			}
			if !found || c.Distance < best.Distance {
				best, found = c, true
			}
		}
	}
	return best, found
}

// contactRadius радиус сферы, которой тело представлено в узкой фазе
func (b *Body) contactRadius() float64 {
	if r := b.radius(); r > 0 {
		return r
	}
	lo, hi := b.shape.LocalBounds()
	return math.Max(hi.Sub(lo).Len()/2, 1e-6)
}
