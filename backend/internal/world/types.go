package world

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// MaxObjectBounds максимальное число эллиптических под-границ у одного типа объектов
const MaxObjectBounds = 8

var (
	ErrEmptyMap          = errors.New("world: карта должна содержать хотя бы один тайл")
	ErrInvalidTileLength = errors.New("world: длина тайла должна быть положительной")
	ErrHeightsSize       = errors.New("world: размер массива высот не совпадает с размером карты")
)

// HeightProvider источник данных о высотах и объектах загруженного мира.
// Реализуется загрузчиком карты; подсистема столкновений только читает данные.
type HeightProvider interface {
	// GroundHeightAt возвращает высоту земли тайла (tileX, tileZ)
	GroundHeightAt(tileX, tileZ int) float64
	// TileLength возвращает длину стороны тайла в мировых единицах
	TileLength() float64
	// WidthTiles возвращает ширину мира в тайлах (ось X)
	WidthTiles() int
	// HeightTiles возвращает глубину мира в тайлах (ось Z)
	HeightTiles() int
	// ObjectTypes возвращает типы объектов вместе с расстановкой экземпляров
	ObjectTypes() []ObjectType
	// WaterRegions возвращает водные участки с приблизительной высотой поверхности
	WaterRegions() []WaterRegion
}

// EllipticBound эллиптическая под-граница модели объекта в локальных координатах экземпляра
type EllipticBound struct {
	CenterX float64
	CenterZ float64
	RadiusX float64
	RadiusZ float64
	Bottom  float64 // нижняя отметка по Y
	Top     float64 // верхняя отметка по Y
}

// Valid сообщает, описывает ли граница невырожденный объем
func (b EllipticBound) Valid() bool {
	if !finite(b.CenterX) || !finite(b.CenterZ) || !finite(b.Bottom) || !finite(b.Top) {
		return false
	}
	return b.RadiusX > 0 && b.RadiusZ > 0 && b.Top > b.Bottom && finite(b.RadiusX) && finite(b.RadiusZ)
}

// ObjectType тип объекта мира (дерево, камень, постройка) и все его экземпляры на карте
type ObjectType struct {
	Name string
	// NoLight помечает "невидимую" границу: снаряды пролетают ее насквозь
	NoLight bool
	Bounds  []EllipticBound
	// Instances позиции размещенных экземпляров (точка привязки модели)
	Instances []mgl64.Vec3
}

// WaterRegion прямоугольный водный участок в мировых координатах
type WaterRegion struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
	Level      float64 // высота поверхности воды
}

// Valid сообщает, имеет ли участок ненулевую площадь
func (r WaterRegion) Valid() bool {
	return r.MaxX > r.MinX && r.MaxZ > r.MinZ && finite(r.Level)
}
