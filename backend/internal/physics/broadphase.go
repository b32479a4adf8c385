package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/world"
)

// cellKey координаты ячейки broadphase в плоскости XZ
type cellKey struct {
	x, z int32
}

// broadphase пространственная сетка статических прокси.
// Прокси, занимающие слишком много ячеек (разделы рельефа, вода), лежат в отдельном списке
// и проверяются всегда.
type broadphase struct {
	cellSize  float64
	maxCells  int
	cells     map[cellKey][]*Body
	oversized []*Body
	stamp     uint64
}

func newBroadphase(cellSize float64, maxCells int) *broadphase {
	return &broadphase{
		cellSize: cellSize,
		maxCells: maxCells,
		cells:    make(map[cellKey][]*Body),
	}
}

// cellRange возвращает диапазон ячеек, покрывающих AABB
func (bp *broadphase) cellRange(lo, hi mgl64.Vec3) (int32, int32, int32, int32) {
	return int32(math.Floor(lo.X() / bp.cellSize)), int32(math.Floor(lo.Z() / bp.cellSize)),
		int32(math.Floor(hi.X() / bp.cellSize)), int32(math.Floor(hi.Z() / bp.cellSize))
}

// insert добавляет тело во все ячейки, которые перекрывает его AABB
func (bp *broadphase) insert(b *Body) {
	lo, hi := b.WorldBounds()
	x0, z0, x1, z1 := bp.cellRange(lo, hi)

	count := (int64(x1) - int64(x0) + 1) * (int64(z1) - int64(z0) + 1)
	if count > int64(bp.maxCells) {
		b.oversized = true
		bp.oversized = append(bp.oversized, b)
		return
	}

	b.cells = b.cells[:0]
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			key := cellKey{x, z}
			bp.cells[key] = append(bp.cells[key], b)
			b.cells = append(b.cells, key)
		}
	}
}

// remove удаляет тело из всех ячеек
func (bp *broadphase) remove(b *Body) {
	if b.oversized {
		for i, other := range bp.oversized {
			if other == b {
				bp.oversized = append(bp.oversized[:i], bp.oversized[i+1:]...)
				break
			}
		}
		b.oversized = false
		return
	}

	for _, key := range b.cells {
		cell := bp.cells[key]
		for i, other := range cell {
			if other == b {
				cell = append(cell[:i], cell[i+1:]...)
				break
			}
		}
		if len(cell) == 0 {
			delete(bp.cells, key)
		} else {
			bp.cells[key] = cell
		}
	}
	b.cells = nil
}

// queryAABB возвращает тела, чьи ячейки пересекают AABB, без повторов
func (bp *broadphase) queryAABB(lo, hi mgl64.Vec3, out []*Body) []*Body {
	bp.stamp++
	out = bp.appendOversized(out)

	x0, z0, x1, z1 := bp.cellRange(lo, hi)
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			out = bp.appendCell(cellKey{x, z}, out)
		}
	}
	return out
}

// queryRay возвращает тела из ячеек вдоль проекции луча на XZ
func (bp *broadphase) queryRay(from, to mgl64.Vec3, out []*Body) []*Body {
	bp.stamp++
	out = bp.appendOversized(out)

	world.TraverseCells(from.X()/bp.cellSize, from.Z()/bp.cellSize, to.X()/bp.cellSize, to.Z()/bp.cellSize,
		func(cx, cz int, _, _ float64) bool {
			out = bp.appendCell(cellKey{int32(cx), int32(cz)}, out)
			return true
		})
	return out
}

func (bp *broadphase) appendOversized(out []*Body) []*Body {
	for _, b := range bp.oversized {
		b.stamp = bp.stamp
		out = append(out, b)
	}
	return out
}

func (bp *broadphase) appendCell(key cellKey, out []*Body) []*Body {
	for _, b := range bp.cells[key] {
		if b.stamp == bp.stamp {
			continue
		}
		b.stamp = bp.stamp
		out = append(out, b)
	}
	return out
}

func (bp *broadphase) size() int {
	n := len(bp.oversized)
	seen := make(map[*Body]struct{})
	for _, cell := range bp.cells {
		for _, b := range cell {
			seen[b] = struct{}{}
		}
	}
	return n + len(seen)
}
