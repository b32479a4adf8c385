package ballistics

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
)

// ImpactEvent единственное попадание снаряда за время его жизни
type ImpactEvent struct {
	ProjectileID uint64
	Position     mgl64.Vec3
	Normal       mgl64.Vec3
	Surface      physics.SurfaceKind
	// Distance - расстояние от точки выстрела до точки попадания
	Distance float64
	Damage   float64
	Ref      ObjectRef
	Tier     Tier
	// Tile заполнен для попаданий в рельеф
	TileX, TileZ int
	HasTile      bool
	Time         time.Duration
}

// FaceIntersection диагностическая запись пересечения поверхности.
// Не влияет на состояние попадания снаряда.
type FaceIntersection struct {
	ProjectileID uint64
	Position     mgl64.Vec3
	Normal       mgl64.Vec3
	Incoming     mgl64.Vec3
	Surface      physics.SurfaceKind
	Distance     float64
	Tier         Tier
	TileX, TileZ int
	HasTile      bool
	ObjectName   string
	NoLight      bool
}

// EffectKind побочный эффект попадания (звук, частицы) по виду поверхности
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectDust
	EffectObjectHit
	EffectSplash
)

func (k EffectKind) String() string {
	switch k {
	case EffectDust:
		return "dust"
	case EffectObjectHit:
		return "object_hit"
	case EffectSplash:
		return "splash"
	default:
		return "none"
	}
}

// EffectForSurface возвращает эффект, который вызывает попадание в поверхность
func EffectForSurface(s physics.SurfaceKind) EffectKind {
	switch s {
	case physics.SurfaceTerrain:
		return EffectDust
	case physics.SurfaceObject:
		return EffectObjectHit
	case physics.SurfaceWater:
		return EffectSplash
	default:
		return EffectNone
	}
}

// Effect запрос на побочный эффект в точке попадания
type Effect struct {
	Kind     EffectKind
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Surface  physics.SurfaceKind
	Ref      ObjectRef
}

// Listener получает события попаданий. Вызывается синхронно из игрового цикла.
type Listener interface {
	OnImpact(ImpactEvent)
	OnFaceIntersection(FaceIntersection)
}

// EffectTrigger запускает звук и частицы. Вызывается синхронно из игрового цикла.
type EffectTrigger interface {
	TriggerEffect(Effect)
}

// ExpireEvent снаряд уничтожен по истечении времени жизни без попадания
type ExpireEvent struct {
	ProjectileID uint64
	Position     mgl64.Vec3
	Age          time.Duration
	Time         time.Duration
}

// ExpiryListener необязательное расширение Listener: получатель узнает об истекших снарядах
type ExpiryListener interface {
	OnExpire(ExpireEvent)
}
