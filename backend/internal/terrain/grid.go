package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/world"
)

// DefaultPartitionSize сторона раздела в тайлах
const DefaultPartitionSize = 32

var ErrInvalidPartitionSize = errors.New("terrain: размер раздела должен быть положительным")

// Partition прямоугольный блок тайлов. Строится один раз и дальше только читается.
type Partition struct {
	Index int
	// Первый тайл раздела и его размер в тайлах (крайние разделы могут быть меньше)
	TileX, TileZ int
	Cols, Rows   int

	MinHeight float64
	MaxHeight float64

	// Мировой AABB раздела
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Center возвращает центр раздела в плоскости XZ (Y - середина диапазона высот)
func (p Partition) Center() mgl64.Vec3 {
	return p.Min.Add(p.Max).Mul(0.5)
}

// ContainsTile сообщает, принадлежит ли тайл разделу
func (p Partition) ContainsTile(tileX, tileZ int) bool {
	return tileX >= p.TileX && tileX < p.TileX+p.Cols && tileZ >= p.TileZ && tileZ < p.TileZ+p.Rows
}

// TileCandidate тайл, который может задеть проекция отрезка на плоскость XZ
type TileCandidate struct {
	TileX, TileZ int
	Partition    int
	GroundHeight float64
	// Диапазон высот раздела для быстрого отсечения
	MinHeight, MaxHeight float64
	// Параметры отрезка (0..1), на которых его проекция входит в тайл и выходит из него
	EnterT, ExitT float64
	// EntryNormal горизонтальная нормаль грани, через которую отрезок вошел в тайл.
	// Нулевая для первого тайла отрезка.
	EntryNormal mgl64.Vec3
}

// HeightHit результат точной проверки высоты в одном тайле
type HeightHit struct {
	TileX, TileZ int
	Partition    int
	GroundHeight float64
}

// Grid делит карту высот на разделы фиксированного размера
type Grid struct {
	size       int
	tileLength float64

	widthTiles  int
	heightTiles int
	partCols    int
	partRows    int

	heights    []float64
	partitions []Partition
}

// NewGrid строит разделы по данным провайдера высот
func NewGrid(provider world.HeightProvider, partitionSize int) (*Grid, error) {
	if partitionSize <= 0 {
		return nil, ErrInvalidPartitionSize
	}
	w, h := provider.WidthTiles(), provider.HeightTiles()
	if w <= 0 || h <= 0 {
		return nil, world.ErrEmptyMap
	}
	tileLength := provider.TileLength()
	if tileLength <= 0 || math.IsNaN(tileLength) || math.IsInf(tileLength, 0) {
		return nil, world.ErrInvalidTileLength
	}

	g := &Grid{
		size:        partitionSize,
		tileLength:  tileLength,
		widthTiles:  w,
		heightTiles: h,
		partCols:    (w + partitionSize - 1) / partitionSize,
		partRows:    (h + partitionSize - 1) / partitionSize,
		heights:     make([]float64, w*h),
	}

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			height := provider.GroundHeightAt(x, z)
			if math.IsNaN(height) || math.IsInf(height, 0) {
				return nil, fmt.Errorf("terrain: некорректная высота тайла (%d,%d): %v", x, z, height)
			}
			g.heights[z*w+x] = height
		}
	}

	g.partitions = make([]Partition, 0, g.partCols*g.partRows)
	for pz := 0; pz < g.partRows; pz++ {
		for px := 0; px < g.partCols; px++ {
			g.partitions = append(g.partitions, g.buildPartition(len(g.partitions), px, pz))
		}
	}

	return g, nil
}

func (g *Grid) buildPartition(index, px, pz int) Partition {
	p := Partition{
		Index: index,
		TileX: px * g.size,
		TileZ: pz * g.size,
	}
	p.Cols = min(g.size, g.widthTiles-p.TileX)
	p.Rows = min(g.size, g.heightTiles-p.TileZ)

	p.MinHeight = math.Inf(1)
	p.MaxHeight = math.Inf(-1)
	for z := p.TileZ; z < p.TileZ+p.Rows; z++ {
		for x := p.TileX; x < p.TileX+p.Cols; x++ {
			h := g.heights[z*g.widthTiles+x]
			p.MinHeight = math.Min(p.MinHeight, h)
			p.MaxHeight = math.Max(p.MaxHeight, h)
		}
	}

	p.Min = mgl64.Vec3{float64(p.TileX) * g.tileLength, p.MinHeight, float64(p.TileZ) * g.tileLength}
	p.Max = mgl64.Vec3{float64(p.TileX+p.Cols) * g.tileLength, p.MaxHeight, float64(p.TileZ+p.Rows) * g.tileLength}
	return p
}

func (g *Grid) PartitionSize() int      { return g.size }
func (g *Grid) TileLength() float64     { return g.tileLength }
func (g *Grid) WidthTiles() int         { return g.widthTiles }
func (g *Grid) HeightTiles() int        { return g.heightTiles }
func (g *Grid) NumPartitions() int      { return len(g.partitions) }
func (g *Grid) Partitions() []Partition { return g.partitions }

// Partition возвращает раздел по индексу
func (g *Grid) Partition(index int) (Partition, bool) {
	if index < 0 || index >= len(g.partitions) {
		return Partition{}, false
	}
	return g.partitions[index], true
}

// WorldMax возвращает дальний угол мира по X и Z
func (g *Grid) WorldMax() (float64, float64) {
	return float64(g.widthTiles) * g.tileLength, float64(g.heightTiles) * g.tileLength
}

// GroundHeight возвращает высоту тайла; второй результат false для тайла вне карты
func (g *Grid) GroundHeight(tileX, tileZ int) (float64, bool) {
	if !g.validTile(tileX, tileZ) {
		return 0, false
	}
	return g.heights[tileZ*g.widthTiles+tileX], true
}

// PartitionIndexForTile возвращает индекс раздела, которому принадлежит тайл
func (g *Grid) PartitionIndexForTile(tileX, tileZ int) (int, bool) {
	if !g.validTile(tileX, tileZ) {
		return -1, false
	}
	return (tileZ/g.size)*g.partCols + tileX/g.size, true
}

// InBounds сообщает, лежит ли проекция точки на XZ внутри мира
func (g *Grid) InBounds(pos mgl64.Vec3) bool {
	maxX, maxZ := g.WorldMax()
	return pos.X() >= 0 && pos.Z() >= 0 && pos.X() < maxX && pos.Z() < maxZ
}

// TileAt возвращает тайл под точкой
func (g *Grid) TileAt(pos mgl64.Vec3) (int, int, bool) {
	if !g.InBounds(pos) {
		return -1, -1, false
	}
	tx := min(int(pos.X()/g.tileLength), g.widthTiles-1)
	tz := min(int(pos.Z()/g.tileLength), g.heightTiles-1)
	return tx, tz, true
}

// PartitionForPosition возвращает индекс раздела, содержащего точку, или false вне мира
func (g *Grid) PartitionForPosition(pos mgl64.Vec3) (int, bool) {
	tx, tz, ok := g.TileAt(pos)
	if !ok {
		return -1, false
	}
	return g.PartitionIndexForTile(tx, tz)
}

// TileCandidatesForRay возвращает тайлы, которые может задеть проекция отрезка на XZ, в порядке движения.
// covered=false означает, что отрезок целиком лежит вне мира; пустой список при covered=true
// говорит о пробеле в индексации и никогда не должен возникать.
func (g *Grid) TileCandidatesForRay(start, end mgl64.Vec3) (candidates []TileCandidate, covered bool) {
	t0, t1, ok := g.clipSegment(start, end)
	if !ok {
		return nil, false
	}

	dir := end.Sub(start)
	a := start.Add(dir.Mul(t0))
	b := start.Add(dir.Mul(t1))
	span := t1 - t0
	prevX, prevZ, first := 0, 0, true

	world.TraverseCells(a.X()/g.tileLength, a.Z()/g.tileLength, b.X()/g.tileLength, b.Z()/g.tileLength,
		func(cx, cz int, tEnter, tExit float64) bool {
			// Точка на дальней границе мира относится к последнему тайлу
			cx = min(cx, g.widthTiles-1)
			cz = min(cz, g.heightTiles-1)
			if !g.validTile(cx, cz) {
				return true
			}
			partition, _ := g.PartitionIndexForTile(cx, cz)
			p := g.partitions[partition]
			var normal mgl64.Vec3
			if !first {
				switch {
				case cx > prevX:
					normal = mgl64.Vec3{-1, 0, 0}
				case cx < prevX:
					normal = mgl64.Vec3{1, 0, 0}
				case cz > prevZ:
					normal = mgl64.Vec3{0, 0, -1}
				case cz < prevZ:
					normal = mgl64.Vec3{0, 0, 1}
				}
			}
			prevX, prevZ, first = cx, cz, false
			candidates = append(candidates, TileCandidate{
				TileX:        cx,
				TileZ:        cz,
				Partition:    partition,
				GroundHeight: g.heights[cz*g.widthTiles+cx],
				MinHeight:    p.MinHeight,
				MaxHeight:    p.MaxHeight,
				EnterT:       t0 + tEnter*span,
				ExitT:        t0 + tExit*span,
				EntryNormal:  normal,
			})
			return true
		})

	return candidates, true
}

// PartitionsForRay возвращает уникальные индексы разделов, которые задевает отрезок
func (g *Grid) PartitionsForRay(start, end mgl64.Vec3) []int {
	candidates, _ := g.TileCandidatesForRay(start, end)
	seen := make(map[int]struct{}, 4)
	var result []int
	for _, c := range candidates {
		if _, ok := seen[c.Partition]; ok {
			continue
		}
		seen[c.Partition] = struct{}{}
		result = append(result, c.Partition)
	}
	return result
}

// CheckHeightCollision точная проверка одного тайла: попадание, если pos.Y <= высоты земли.
// partitions ограничивает проверку перечисленными разделами; nil - все разделы.
func (g *Grid) CheckHeightCollision(pos mgl64.Vec3, partitions []int) (HeightHit, bool) {
	tx, tz, ok := g.TileAt(pos)
	if !ok {
		return HeightHit{}, false
	}
	partition, _ := g.PartitionIndexForTile(tx, tz)
	if partitions != nil && !containsInt(partitions, partition) {
		return HeightHit{}, false
	}
	ground := g.heights[tz*g.widthTiles+tx]
	if pos.Y() > ground {
		return HeightHit{}, false
	}
	return HeightHit{TileX: tx, TileZ: tz, Partition: partition, GroundHeight: ground}, true
}

// TileHeights возвращает копию высот прямоугольника тайлов построчно
func (g *Grid) TileHeights(p Partition) []float64 {
	out := make([]float64, 0, p.Cols*p.Rows)
	for z := p.TileZ; z < p.TileZ+p.Rows; z++ {
		row := g.heights[z*g.widthTiles+p.TileX : z*g.widthTiles+p.TileX+p.Cols]
		out = append(out, row...)
	}
	return out
}

// clipSegment обрезает отрезок прямоугольником мира (алгоритм Лианга-Барски)
func (g *Grid) clipSegment(start, end mgl64.Vec3) (float64, float64, bool) {
	maxX, maxZ := g.WorldMax()
	t0, t1 := 0.0, 1.0
	d := end.Sub(start)

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = math.Min(t1, r)
		}
		return true
	}

	if !clip(-d.X(), start.X()) || !clip(d.X(), maxX-start.X()) ||
		!clip(-d.Z(), start.Z()) || !clip(d.Z(), maxZ-start.Z()) {
		return 0, 0, false
	}
	if t0 > t1 {
		return 0, 0, false
	}
	// Дальние границы мира открыты: отрезок, лежащий на них, в мир не входит
	mid := start.Add(d.Mul((t0 + t1) / 2))
	if mid.X() >= maxX || mid.Z() >= maxZ {
		return 0, 0, false
	}
	return t0, t1, true
}

func (g *Grid) validTile(tileX, tileZ int) bool {
	return tileX >= 0 && tileZ >= 0 && tileX < g.widthTiles && tileZ < g.heightTiles
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
