package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/world"
)

var (
	ErrMissingBounds    = errors.New("physics: у типа объекта нет данных о границах")
	ErrDegenerateBounds = errors.New("physics: вырожденные границы типа объекта")
)

// ObjectTypeBounds объединяет эллиптические под-границы типа объекта в один AABB
// в локальных координатах экземпляра
func ObjectTypeBounds(t world.ObjectType) (mgl64.Vec3, mgl64.Vec3, error) {
	if len(t.Bounds) == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}, ErrMissingBounds
	}
	if len(t.Bounds) > world.MaxObjectBounds {
		return mgl64.Vec3{}, mgl64.Vec3{}, fmt.Errorf("%w: %d под-границ, допустимо не больше %d",
			ErrDegenerateBounds, len(t.Bounds), world.MaxObjectBounds)
	}

	lo := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i, b := range t.Bounds {
		if !b.Valid() {
			return mgl64.Vec3{}, mgl64.Vec3{}, fmt.Errorf("%w: под-граница %d", ErrDegenerateBounds, i)
		}
		lo = mgl64.Vec3{math.Min(lo[0], b.CenterX-b.RadiusX), math.Min(lo[1], b.Bottom), math.Min(lo[2], b.CenterZ-b.RadiusZ)}
		hi = mgl64.Vec3{math.Max(hi[0], b.CenterX+b.RadiusX), math.Max(hi[1], b.Top), math.Max(hi[2], b.CenterZ+b.RadiusZ)}
	}
	return lo, hi, nil
}

// AddStaticBody создает статическое тело и регистрирует его в мире
func (w *World) AddStaticBody(shape Shape, position mgl64.Vec3, group CollisionGroup, info ProxyInfo, noContact bool) (*Body, error) {
	b, err := NewBody(BodyOptions{
		Shape:             shape,
		Position:          position,
		Group:             group,
		Mask:              AllGroups,
		Info:              info,
		NoContactResponse: noContact,
	})
	if err != nil {
		return nil, err
	}
	if err := w.AddBody(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RegisterObjects регистрирует по одному статическому боксу на каждый экземпляр каждого типа объектов.
// Типы с отсутствующими или вырожденными границами пропускаются с предупреждением.
// Возвращает число зарегистрированных прокси.
func (w *World) RegisterObjects(types []world.ObjectType) (int, error) {
	registered := 0
	skipped := 0
	for ti, t := range types {
		lo, hi, err := ObjectTypeBounds(t)
		if err != nil {
			w.logger.Warn("Тип объекта исключен из столкновений", "type", ti, "name", t.Name, "err", err)
			skipped++
			continue
		}

		shape, err := NewBoxShape(hi.Sub(lo).Mul(0.5))
		if err != nil {
			w.logger.Warn("Тип объекта исключен из столкновений", "type", ti, "name", t.Name, "err", err)
			skipped++
			continue
		}
		offset := lo.Add(hi).Mul(0.5)

		for ii, pos := range t.Instances {
			info := ObjectProxy(ti, ii, t.Name, t.NoLight)
			if _, err := w.AddStaticBody(shape, pos.Add(offset), GroupObject, info, t.NoLight); err != nil {
				return registered, fmt.Errorf("регистрация объекта %s[%d]: %w", t.Name, ii, err)
			}
			registered++
		}
	}

	w.logger.Info("Объекты зарегистрированы", "proxies", registered, "types", len(types), "skippedTypes", skipped)
	return registered, nil
}

// RegisterWater регистрирует тонкие плиты воды, верхняя грань которых совпадает с уровнем воды
func (w *World) RegisterWater(regions []world.WaterRegion) (int, error) {
	registered := 0
	thickness := w.cfg.WaterThickness
	for i, r := range regions {
		if !r.Valid() {
			w.logger.Warn("Водный участок пропущен", "index", i, "region", r)
			continue
		}

		half := mgl64.Vec3{(r.MaxX - r.MinX) / 2, thickness / 2, (r.MaxZ - r.MinZ) / 2}
		shape, err := NewBoxShape(half)
		if err != nil {
			return registered, fmt.Errorf("водный участок %d: %w", i, err)
		}
		center := mgl64.Vec3{(r.MinX + r.MaxX) / 2, r.Level - thickness/2, (r.MinZ + r.MaxZ) / 2}
		if _, err := w.AddStaticBody(shape, center, GroupWater, WaterProxy(), false); err != nil {
			return registered, fmt.Errorf("водный участок %d: %w", i, err)
		}
		registered++
	}

	if registered > 0 {
		w.logger.Info("Вода зарегистрирована", "proxies", registered)
	}
	return registered, nil
}
