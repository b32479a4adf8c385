package ballistics

import (
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
)

// DetectionKind вариант результата обнаружения
type DetectionKind int

const (
	NoHit DetectionKind = iota
	Hit
)

// Tier уровень гибридного обнаружения; меньший номер имеет приоритет
type Tier int

const (
	TierNone Tier = iota
	TierContact
	TierRaycast
	TierTile
)

func (t Tier) String() string {
	switch t {
	case TierContact:
		return "contact"
	case TierRaycast:
		return "raycast"
	case TierTile:
		return "tile"
	default:
		return "none"
	}
}

// ObjectRef непрозрачная ссылка на экземпляр объекта мира
type ObjectRef struct {
	ObjectIndex   int
	InstanceIndex int
	Name          string
	Valid         bool
}

func refFromInfo(info physics.ProxyInfo) ObjectRef {
	if info.Surface != physics.SurfaceObject {
		return ObjectRef{ObjectIndex: -1, InstanceIndex: -1}
	}
	return ObjectRef{
		ObjectIndex:   info.ObjectIndex,
		InstanceIndex: info.InstanceIndex,
		Name:          info.ObjectName,
		Valid:         true,
	}
}

// Detection результат одного уровня обнаружения: NoHit или Hit с классификацией
type Detection struct {
	Kind     DetectionKind
	Surface  physics.SurfaceKind
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
	Ref      ObjectRef
	Tier     Tier

	TileX, TileZ int
	HasTile      bool
}

func (d Detection) IsHit() bool { return d.Kind == Hit }

func noHit() Detection {
	return Detection{Kind: NoHit, Ref: ObjectRef{ObjectIndex: -1, InstanceIndex: -1}}
}
