package world

import (
	"math"
)

// TerrainParams параметры генерации рельефа
type TerrainParams struct {
	Width      int
	Height     int
	TileLength float64
	MinHeight  float64
	MaxHeight  float64
	Seed       uint64
}

// DefaultTerrainParams возвращает параметры демонстрационного мира
func DefaultTerrainParams() TerrainParams {
	return TerrainParams{
		Width:      256,
		Height:     256,
		TileLength: 256.0,
		MinHeight:  -512.0,
		MaxHeight:  2048.0,
		Seed:       1,
	}
}

// perlinNoise2D - утилита для псевдо-шума
func perlinNoise2D(x, y float64, seed uint64) float64 {
	// Простая хеш-функция для псевдо-шума
	h := x*12.9898 + y*78.233 + float64(seed%1024)*37.719
	sinH := math.Sin(h)
	return math.Abs(sinH*43758.5453) - math.Floor(math.Abs(sinH*43758.5453))
}

// lerpValue - плавная интерполяция между a и b
func lerpValue(a, b, t float64) float64 {
	return a + t*(b-a)
}

// smoothstepValue - функция интерполяции для сглаживания
func smoothstepValue(t float64) float64 {
	return t * t * (3.0 - 2.0*t)
}

// getSmoothNoise - сглаженный шум по четырем углам ячейки
func getSmoothNoise(x, y float64, seed uint64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)

	sx := smoothstepValue(x - x0)
	sy := smoothstepValue(y - y0)

	n00 := perlinNoise2D(x0, y0, seed)
	n10 := perlinNoise2D(x0+1, y0, seed)
	n01 := perlinNoise2D(x0, y0+1, seed)
	n11 := perlinNoise2D(x0+1, y0+1, seed)

	nx0 := lerpValue(n00, n10, sx)
	nx1 := lerpValue(n01, n11, sx)
	return lerpValue(nx0, nx1, sy)
}

// GenerateHeights генерирует высоты тайлов фрактальным шумом с горами и понижением к краям карты
func GenerateHeights(p TerrainParams) []float64 {
	w, h := p.Width, p.Height
	data := make([]float64, w*h)

	scales := []float64{1.0, 0.5, 0.25, 0.125, 0.0625}
	amplitudes := []float64{0.5, 0.25, 0.125, 0.0625, 0.03125}

	heightRange := p.MaxHeight - p.MinHeight

	centerX := float64(w) / 2.0
	centerZ := float64(h) / 2.0
	maxRadius := math.Min(centerX, centerZ) * 0.8

	// Фиксированные позиции гор для воспроизводимости
	mountainPositions := []struct{ x, z float64 }{
		{0.2, 0.3}, {0.7, 0.8}, {0.4, 0.7}, {0.8, 0.2}, {0.1, 0.9},
	}
	type mountain struct{ x, z, height, radius float64 }
	mountains := make([]mountain, len(mountainPositions))
	for i, pos := range mountainPositions {
		mountains[i] = mountain{
			x:      pos.x * float64(w),
			z:      pos.z * float64(h),
			height: 0.5 + 0.5*math.Abs(perlinNoise2D(float64(i)*0.1, 0.5, p.Seed)),
			radius: (5.0 + 15.0*math.Abs(perlinNoise2D(0.5, float64(i)*0.1, p.Seed))) * float64(w) / 128.0,
		}
	}

	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			nx := float64(i) / math.Max(float64(w-1), 1)
			nz := float64(j) / math.Max(float64(h-1), 1)

			noiseValue := 0.0
			for layer := range scales {
				noiseValue += getSmoothNoise(nx*scales[layer]*10.0, nz*scales[layer]*10.0, p.Seed) * amplitudes[layer]
			}
			elevation := (noiseValue + 0.5) * 0.5

			for _, m := range mountains {
				dx := float64(i) - m.x
				dz := float64(j) - m.z
				distance := math.Sqrt(dx*dx + dz*dz)
				if distance < m.radius {
					falloff := math.Pow(1.0-distance/m.radius, 2.0)
					elevation += m.height * falloff * 0.8
				}
			}

			// Понижение по краям карты
			distanceFromCenter := math.Hypot(float64(i)-centerX, float64(j)-centerZ)
			if distanceFromCenter > maxRadius {
				edgeFactor := (distanceFromCenter - maxRadius) / (math.Max(centerX, centerZ) - maxRadius)
				elevation -= math.Min(1.0, edgeFactor) * 0.5
			}

			data[j*w+i] = elevation*heightRange + p.MinHeight
		}
	}

	return data
}

// NewGeneratedMap создает карту со сгенерированным рельефом
func NewGeneratedMap(p TerrainParams) (*Map, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, ErrEmptyMap
	}
	return NewMap(p.Width, p.Height, p.TileLength, GenerateHeights(p))
}
