package world

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
)

// PopulateDemo расставляет на карте демонстрационные объекты и воду.
// Используется демо-сервером; высота каждого экземпляра берется с земли под ним.
func PopulateDemo(m *Map, seed uint64, treesPerType int) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	tile := m.TileLength()

	pine := m.AddObjectType(ObjectType{
		Name: "pine",
		Bounds: []EllipticBound{
			{CenterX: 0, CenterZ: 0, RadiusX: tile * 0.08, RadiusZ: tile * 0.08, Bottom: 0, Top: tile * 1.5},
			{CenterX: 0, CenterZ: 0, RadiusX: tile * 0.35, RadiusZ: tile * 0.35, Bottom: tile * 0.6, Top: tile * 2.2},
		},
	})
	rock := m.AddObjectType(ObjectType{
		Name: "rock",
		Bounds: []EllipticBound{
			{CenterX: 0, CenterZ: 0, RadiusX: tile * 0.4, RadiusZ: tile * 0.3, Bottom: -tile * 0.1, Top: tile * 0.35},
		},
	})
	// Куст без освещения: его граница не останавливает снаряды
	bush := m.AddObjectType(ObjectType{
		Name:    "bush",
		NoLight: true,
		Bounds: []EllipticBound{
			{CenterX: 0, CenterZ: 0, RadiusX: tile * 0.25, RadiusZ: tile * 0.25, Bottom: 0, Top: tile * 0.3},
		},
	})

	for _, typeIndex := range []int{pine, rock, bush} {
		for i := 0; i < treesPerType; i++ {
			tx := rng.IntN(m.WidthTiles())
			tz := rng.IntN(m.HeightTiles())
			pos := mgl64.Vec3{
				(float64(tx) + 0.5) * tile,
				m.GroundHeightAt(tx, tz),
				(float64(tz) + 0.5) * tile,
			}
			_, _ = m.PlaceObject(typeIndex, pos)
		}
	}

	// Озеро в центре карты немного выше средней высоты рельефа
	width, depth := m.WorldSize()
	cx, cz := width/2, depth/2
	centerTileX, centerTileZ := m.WidthTiles()/2, m.HeightTiles()/2
	m.AddWater(WaterRegion{
		MinX:  cx - width*0.08,
		MinZ:  cz - depth*0.08,
		MaxX:  cx + width*0.08,
		MaxZ:  cz + depth*0.08,
		Level: m.GroundHeightAt(centerTileX, centerTileZ) + tile*0.5,
	})
}
