package world

import "math"

// TraverseCells обходит ячейки единичной сетки, которые пересекает проекция отрезка (x0,z0)-(x1,z1),
// в порядке движения вдоль отрезка. Координаты заданы в единицах ячеек.
// visit получает индексы ячейки и параметры входа/выхода (0..1); false прекращает обход.
func TraverseCells(x0, z0, x1, z1 float64, visit func(cx, cz int, tEnter, tExit float64) bool) {
	cx, cz := int(math.Floor(x0)), int(math.Floor(z0))
	endX, endZ := int(math.Floor(x1)), int(math.Floor(z1))

	stepX, tMaxX, tDeltaX := axisStep(x0, x1-x0)
	stepZ, tMaxZ, tDeltaZ := axisStep(z0, z1-z0)

	// Ограничитель на случай накопления ошибки округления
	maxSteps := absInt(endX-cx) + absInt(endZ-cz) + 2

	t := 0.0
	for i := 0; i <= maxSteps; i++ {
		exit := math.Min(math.Min(tMaxX, tMaxZ), 1)
		if !visit(cx, cz, t, exit) || exit >= 1 {
			return
		}
		if tMaxX < tMaxZ {
			cx += stepX
			t = tMaxX
			tMaxX += tDeltaX
		} else {
			cz += stepZ
			t = tMaxZ
			tMaxZ += tDeltaZ
		}
	}
}

func axisStep(p, d float64) (int, float64, float64) {
	switch {
	case d > 0:
		return 1, (math.Floor(p) + 1 - p) / d, 1 / d
	case d < 0:
		return -1, (p - math.Floor(p)) / -d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
