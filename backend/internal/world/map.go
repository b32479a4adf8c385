package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Map хранит высоты тайлов, объекты и воду загруженного мира в памяти.
// Реализует HeightProvider.
type Map struct {
	width      int
	height     int
	tileLength float64
	heights    []float64

	objectTypes []ObjectType
	water       []WaterRegion
}

// NewMap создает карту width x height тайлов; heights хранится построчно (z*width + x)
func NewMap(width, height int, tileLength float64, heights []float64) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyMap
	}
	if tileLength <= 0 || !finite(tileLength) {
		return nil, ErrInvalidTileLength
	}
	if len(heights) != width*height {
		return nil, fmt.Errorf("%w: ожидали %d, получили %d", ErrHeightsSize, width*height, len(heights))
	}

	data := make([]float64, len(heights))
	copy(data, heights)

	return &Map{
		width:      width,
		height:     height,
		tileLength: tileLength,
		heights:    data,
	}, nil
}

// NewFlatMap создает плоскую карту с одинаковой высотой земли
func NewFlatMap(width, height int, tileLength, ground float64) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyMap
	}
	heights := make([]float64, width*height)
	for i := range heights {
		heights[i] = ground
	}
	return NewMap(width, height, tileLength, heights)
}

// GroundHeightAt возвращает высоту тайла; координаты за пределами карты прижимаются к краю
func (m *Map) GroundHeightAt(tileX, tileZ int) float64 {
	tileX = clampInt(tileX, 0, m.width-1)
	tileZ = clampInt(tileZ, 0, m.height-1)
	return m.heights[tileZ*m.width+tileX]
}

// SetGroundHeight меняет высоту тайла. Используется только при подготовке карты.
func (m *Map) SetGroundHeight(tileX, tileZ int, h float64) {
	if tileX < 0 || tileZ < 0 || tileX >= m.width || tileZ >= m.height {
		return
	}
	m.heights[tileZ*m.width+tileX] = h
}

func (m *Map) TileLength() float64 { return m.tileLength }

func (m *Map) WidthTiles() int { return m.width }

func (m *Map) HeightTiles() int { return m.height }

// WorldSize возвращает размеры мира в мировых единицах (X, Z)
func (m *Map) WorldSize() (float64, float64) {
	return float64(m.width) * m.tileLength, float64(m.height) * m.tileLength
}

// AddObjectType регистрирует тип объекта и возвращает его индекс
func (m *Map) AddObjectType(t ObjectType) int {
	m.objectTypes = append(m.objectTypes, t)
	return len(m.objectTypes) - 1
}

// PlaceObject добавляет экземпляр типа typeIndex и возвращает индекс экземпляра
func (m *Map) PlaceObject(typeIndex int, position mgl64.Vec3) (int, error) {
	if typeIndex < 0 || typeIndex >= len(m.objectTypes) {
		return -1, fmt.Errorf("world: неизвестный тип объекта %d", typeIndex)
	}
	t := &m.objectTypes[typeIndex]
	t.Instances = append(t.Instances, position)
	return len(t.Instances) - 1, nil
}

func (m *Map) ObjectTypes() []ObjectType { return m.objectTypes }

// AddWater добавляет водный участок
func (m *Map) AddWater(r WaterRegion) {
	m.water = append(m.water, r)
}

func (m *Map) WaterRegions() []WaterRegion { return m.water }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
