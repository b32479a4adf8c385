package ballistics

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
	"carnivores-ballistics/backend/internal/terrain"
)

// TileIndex источник тайлов-кандидатов для третьего уровня (обычно *terrain.Grid)
type TileIndex interface {
	TileCandidatesForRay(start, end mgl64.Vec3) ([]terrain.TileCandidate, bool)
	InBounds(pos mgl64.Vec3) bool
	TileAt(pos mgl64.Vec3) (int, int, bool)
}

// detector выполняет три уровня обнаружения строго по порядку
type detector struct {
	cfg    Config
	world  *physics.World
	tiles  TileIndex
	logger *log.Logger

	// heightfieldRegistered сообщает, зарегистрированы ли поля высот разделов
	heightfieldRegistered func() bool
}

var up = mgl64.Vec3{0, 1, 0}

// evaluate прогоняет цепочку уровней; первый сработавший уровень завершает ее
func (d *detector) evaluate(p *Projectile) Detection {
	if p.impacted {
		return noHit()
	}

	pos := p.body.Position()
	if det, ok := d.contactTier(p, pos); ok {
		return det
	}
	if det, ok := d.raycastTier(p, pos); ok {
		return det
	}
	if d.heightfieldRegistered == nil || !d.heightfieldRegistered() {
		if det, ok := d.tileTier(p, p.lastPosition, pos); ok {
			return det
		}
	}
	return noHit()
}

// contactTier первый уровень: манифолд контакта. Вид поверхности определяет короткий
// вертикальный луч через точку контакта, немного утопленную в поверхность.
func (d *detector) contactTier(p *Projectile, pos mgl64.Vec3) (Detection, bool) {
	if !d.world.HasContacts(p.body) {
		return Detection{}, false
	}

	det := noHit()
	det.Kind = Hit
	det.Tier = TierContact
	det.Surface = physics.SurfaceTerrain
	det.Point = pos
	det.Normal = up
	det.Distance = pos.Sub(p.spawnPosition).Len()

	probe := pos
	if c, ok := d.world.DeepestContact(p.body); ok {
		probe = c.Point.Sub(c.Normal.Mul(d.cfg.ProbeInset))
		det.Normal = c.Normal
	}

	from := probe.Add(up.Mul(d.cfg.ProbeHalfLength))
	to := probe.Sub(up.Mul(d.cfg.ProbeHalfLength))
	hit, ok := d.world.RaycastFiltered(from, to, physics.ProjectileMask, func(b *physics.Body) bool {
		return b.NoContactResponse()
	})
	if ok {
		det.Surface = hit.Info.Surface
		det.Ref = refFromInfo(hit.Info)
	} else {
		d.logger.Debug("Проба контакта не нашла поверхность, считаем рельефом", "projectile", p.id, "pos", pos)
	}
	d.tileOf(&det)

	p.enqueueFace(d.faceFrom(p, det, det.Ref.Name, false))
	return det, true
}

// raycastTier второй уровень: луч вперед по скорости. Вода и объекты принимаются,
// невидимые границы пропускаются, рельеф оставлен первому и третьему уровням.
func (d *detector) raycastTier(p *Projectile, pos mgl64.Vec3) (Detection, bool) {
	vel := p.body.Velocity()
	speed := vel.Len()
	if speed < d.cfg.MinTier2Speed || speed == 0 {
		return Detection{}, false
	}

	length := max(speed*d.cfg.LookaheadTime, d.cfg.MinLookahead)
	to := pos.Add(vel.Mul(length / speed))
	hit, ok := d.world.RaycastFiltered(pos, to, physics.ProjectileMask, nil)
	if !ok {
		return Detection{}, false
	}

	det := noHit()
	det.Kind = Hit
	det.Tier = TierRaycast
	det.Surface = hit.Info.Surface
	det.Point = hit.Point
	det.Normal = hit.Normal
	det.Distance = hit.Point.Sub(p.spawnPosition).Len()
	det.Ref = refFromInfo(hit.Info)
	d.tileOf(&det)
	p.enqueueFace(d.faceFrom(p, det, hit.Info.ObjectName, hit.Info.NoLight))

	switch hit.Info.Surface {
	case physics.SurfaceWater:
		return det, true
	case physics.SurfaceObject:
		if hit.Info.NoLight {
			return Detection{}, false
		}
		return det, true
	default:
		return Detection{}, false
	}
}

// tileTier третий уровень: пересечение отрезка prev->cur с землей тайлов.
// Работает только без зарегистрированных полей высот.
func (d *detector) tileTier(p *Projectile, prev, cur mgl64.Vec3) (Detection, bool) {
	candidates, covered := d.tiles.TileCandidatesForRay(prev, cur)
	if len(candidates) == 0 {
		if !d.tiles.InBounds(cur) {
			det := noHit()
			det.Kind = Hit
			det.Tier = TierTile
			det.Surface = physics.SurfaceOutOfBounds
			det.Point = cur
			det.Normal = up
			det.Distance = cur.Sub(p.spawnPosition).Len()
			return det, true
		}
		d.logger.Warn("Нет тайлов-кандидатов внутри мира: пробел в индексации",
			"projectile", p.id, "from", prev, "to", cur, "covered", covered)
		return Detection{}, false
	}

	dy := cur.Y() - prev.Y()
	for _, c := range candidates {
		yEnter := prev.Y() + dy*c.EnterT
		yExit := prev.Y() + dy*c.ExitT
		if min(yEnter, yExit) > c.MaxHeight {
			continue
		}

		var point mgl64.Vec3
		normal := up
		switch {
		case yEnter <= c.GroundHeight:
			// Вход сбоку в приподнятый тайл: точка остается на траектории
			point = prev.Add(cur.Sub(prev).Mul(c.EnterT))
			normal = sideNormal(c.EntryNormal, cur.Sub(prev))
		case yExit <= c.GroundHeight:
			t := c.EnterT + (yEnter-c.GroundHeight)/(yEnter-yExit)*(c.ExitT-c.EnterT)
			point = prev.Add(cur.Sub(prev).Mul(t))
			point[1] = c.GroundHeight
		default:
			continue
		}

		det := noHit()
		det.Kind = Hit
		det.Tier = TierTile
		det.Surface = physics.SurfaceTerrain
		det.Point = point
		det.Normal = normal
		det.Distance = point.Sub(p.spawnPosition).Len()
		det.TileX, det.TileZ, det.HasTile = c.TileX, c.TileZ, true
		p.enqueueFace(d.faceFrom(p, det, "", false))
		return det, true
	}
	return Detection{}, false
}

// sideNormal нормаль боковой грани тайла. Если отрезок начался в этом тайле,
// грань выбирается по преобладающей горизонтальной оси движения.
func sideNormal(entry, motion mgl64.Vec3) mgl64.Vec3 {
	if entry != (mgl64.Vec3{}) {
		return entry
	}
	dx, dz := motion.X(), motion.Z()
	switch {
	case dx == 0 && dz == 0:
		return up
	case math.Abs(dx) >= math.Abs(dz):
		return mgl64.Vec3{-math.Copysign(1, dx), 0, 0}
	default:
		return mgl64.Vec3{0, 0, -math.Copysign(1, dz)}
	}
}

func (d *detector) tileOf(det *Detection) {
	if det.Surface != physics.SurfaceTerrain {
		return
	}
	det.TileX, det.TileZ, det.HasTile = d.tiles.TileAt(det.Point)
}

func (d *detector) faceFrom(p *Projectile, det Detection, name string, noLight bool) FaceIntersection {
	return FaceIntersection{
		Position:   det.Point,
		Normal:     det.Normal,
		Incoming:   p.incoming(),
		Surface:    det.Surface,
		Distance:   det.Distance,
		Tier:       det.Tier,
		TileX:      det.TileX,
		TileZ:      det.TileZ,
		HasTile:    det.HasTile,
		ObjectName: name,
		NoLight:    noLight,
	}
}
