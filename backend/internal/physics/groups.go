package physics

// CollisionGroup битовая маска группы столкновений
type CollisionGroup uint16

// Группы не пересекаются: у каждого вида поверхности своя
const (
	GroupTerrain CollisionGroup = 1 << iota
	GroupObject
	GroupWater
	GroupProjectile
)

const (
	// GroupStatic все группы статических прокси мира
	GroupStatic = GroupTerrain | GroupObject | GroupWater
	// ProjectileMask снаряд сталкивается с рельефом, объектами и водой, но не с другими снарядами
	ProjectileMask = GroupStatic
)

// SurfaceKind классификация того, чего коснулся снаряд
type SurfaceKind int

const (
	SurfaceNone SurfaceKind = iota
	SurfaceTerrain
	SurfaceObject
	SurfaceWater
	SurfaceOutOfBounds
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceTerrain:
		return "terrain"
	case SurfaceObject:
		return "object"
	case SurfaceWater:
		return "water"
	case SurfaceOutOfBounds:
		return "out_of_bounds"
	default:
		return "none"
	}
}

// Group возвращает группу столкновений для вида поверхности
func (k SurfaceKind) Group() CollisionGroup {
	switch k {
	case SurfaceTerrain:
		return GroupTerrain
	case SurfaceObject:
		return GroupObject
	case SurfaceWater:
		return GroupWater
	default:
		return 0
	}
}

// ProxyInfo непрозрачная обратная ссылка прокси на исходный игровой объект.
// Хранит только индексы, без указателей на рендер или геометрию.
type ProxyInfo struct {
	Surface       SurfaceKind
	ObjectIndex   int // индекс типа объекта, -1 если не объект
	InstanceIndex int // индекс экземпляра внутри типа, -1 если не объект
	ObjectName    string
	NoLight       bool // невидимая граница: видна лучам, но не дает контактов
	Partition     int  // индекс раздела рельефа, -1 если не рельеф
}

// TerrainProxy возвращает описание прокси раздела рельефа
func TerrainProxy(partition int) ProxyInfo {
	return ProxyInfo{Surface: SurfaceTerrain, ObjectIndex: -1, InstanceIndex: -1, Partition: partition}
}

// WaterProxy возвращает описание водного прокси
func WaterProxy() ProxyInfo {
	return ProxyInfo{Surface: SurfaceWater, ObjectIndex: -1, InstanceIndex: -1, Partition: -1}
}

// ObjectProxy возвращает описание прокси экземпляра объекта
func ObjectProxy(objectIndex, instanceIndex int, name string, noLight bool) ProxyInfo {
	return ProxyInfo{
		Surface:       SurfaceObject,
		ObjectIndex:   objectIndex,
		InstanceIndex: instanceIndex,
		ObjectName:    name,
		NoLight:       noLight,
		Partition:     -1,
	}
}
