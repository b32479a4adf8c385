package heightfield

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
	"carnivores-ballistics/backend/internal/terrain"
)

var (
	ErrAlreadyBuilt = errors.New("heightfield: поля высот уже зарегистрированы")
	ErrClosed       = errors.New("heightfield: реестр закрыт")
)

// Config настройки активации разделов
type Config struct {
	// ActivationRadius радиус вокруг опорной точки, внутри которого раздел считается активным
	ActivationRadius float64
	// HysteresisFraction доля радиуса, на которую должна сместиться опорная точка для пересчета
	HysteresisFraction float64
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		ActivationRadius:   32768,
		HysteresisFraction: 0.1,
	}
}

// Registry строит по одному полю высот на раздел и ведет набор активных разделов.
// Все разделы остаются зарегистрированными в физическом мире; активность лишь сужает
// вспомогательные запросы.
type Registry struct {
	grid   *terrain.Grid
	world  *physics.World
	cfg    Config
	logger *log.Logger

	bodies []*physics.Body

	active     []bool
	activeList []int
	reference  mgl64.Vec3
	hasRef     bool
	recomputes int

	closed bool
}

// NewRegistry создает реестр; поля высот регистрируются вызовом Build
func NewRegistry(grid *terrain.Grid, world *physics.World, cfg Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ActivationRadius <= 0 {
		cfg.ActivationRadius = DefaultConfig().ActivationRadius
	}
	if cfg.HysteresisFraction < 0 {
		cfg.HysteresisFraction = DefaultConfig().HysteresisFraction
	}
	return &Registry{
		grid:   grid,
		world:  world,
		cfg:    cfg,
		logger: logger.WithPrefix("Heightfield"),
		active: make([]bool, grid.NumPartitions()),
	}
}

// Build регистрирует статическое поле высот для каждого раздела.
// При ошибке уже созданные тела удаляются из мира.
func (r *Registry) Build() error {
	if r.closed {
		return ErrClosed
	}
	if r.bodies != nil {
		return ErrAlreadyBuilt
	}

	bodies := make([]*physics.Body, 0, r.grid.NumPartitions())
	for _, p := range r.grid.Partitions() {
		shape, err := physics.NewHeightfieldShape(p.Cols, p.Rows, r.grid.TileLength(), r.grid.TileHeights(p))
		if err != nil {
			r.rollback(bodies)
			return fmt.Errorf("поле высот раздела %d: %w", p.Index, err)
		}
		origin := mgl64.Vec3{p.Min.X(), 0, p.Min.Z()}
		body, err := r.world.AddStaticBody(shape, origin, physics.GroupTerrain, physics.TerrainProxy(p.Index), false)
		if err != nil {
			r.rollback(bodies)
			return fmt.Errorf("регистрация раздела %d: %w", p.Index, err)
		}
		bodies = append(bodies, body)
	}
	r.bodies = bodies

	r.logger.Info("Поля высот зарегистрированы",
		"partitions", len(bodies), "partitionSize", r.grid.PartitionSize(), "radius", r.cfg.ActivationRadius)
	return nil
}

func (r *Registry) rollback(bodies []*physics.Body) {
	for _, b := range bodies {
		if err := r.world.RemoveBody(b); err != nil {
			r.logger.Error("Не удалось удалить поле высот", "err", err)
		}
	}
}

// Registered сообщает, зарегистрированы ли поля высот в физическом мире
func (r *Registry) Registered() bool {
	return len(r.bodies) > 0 && !r.closed
}

// Body возвращает тело поля высот раздела
func (r *Registry) Body(partition int) (*physics.Body, bool) {
	if partition < 0 || partition >= len(r.bodies) {
		return nil, false
	}
	return r.bodies[partition], true
}

// UpdateReference переносит опорную точку. Набор активных разделов пересчитывается при первом
// вызове и когда точка сместилась по горизонтали дальше порога гистерезиса.
// Возвращает true, если набор был пересчитан.
func (r *Registry) UpdateReference(pos mgl64.Vec3) bool {
	if r.hasRef {
		dx := pos.X() - r.reference.X()
		dz := pos.Z() - r.reference.Z()
		if math.Hypot(dx, dz) <= r.cfg.ActivationRadius*r.cfg.HysteresisFraction {
			return false
		}
	}

	r.reference = pos
	r.hasRef = true
	r.recompute()
	return true
}

func (r *Registry) recompute() {
	radius := r.cfg.ActivationRadius
	r.activeList = r.activeList[:0]
	for _, p := range r.grid.Partitions() {
		c := p.Center()
		inside := math.Hypot(c.X()-r.reference.X(), c.Z()-r.reference.Z()) <= radius
		r.active[p.Index] = inside
		if inside {
			r.activeList = append(r.activeList, p.Index)
		}
	}
	r.recomputes++
	r.logger.Debug("Активные разделы пересчитаны",
		"reference", r.reference, "active", len(r.activeList), "total", len(r.active))
}

// Reference возвращает последнюю опорную точку, по которой пересчитывался набор
func (r *Registry) Reference() (mgl64.Vec3, bool) { return r.reference, r.hasRef }

// Recomputes возвращает число пересчетов набора активных разделов
func (r *Registry) Recomputes() int { return r.recomputes }

// IsActive сообщает, активен ли раздел
func (r *Registry) IsActive(partition int) bool {
	return partition >= 0 && partition < len(r.active) && r.active[partition]
}

// ActivePartitions возвращает индексы активных разделов по возрастанию
func (r *Registry) ActivePartitions() []int {
	return slices.Clone(r.activeList)
}

// ActivePartitionsForRay возвращает активные разделы, которые задевает проекция отрезка
func (r *Registry) ActivePartitionsForRay(from, to mgl64.Vec3) []int {
	var out []int
	for _, idx := range r.grid.PartitionsForRay(from, to) {
		if r.IsActive(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// ActivePartitionsForArea возвращает активные разделы, пересекающие круг в плоскости XZ
func (r *Registry) ActivePartitionsForArea(center mgl64.Vec3, radius float64) []int {
	var out []int
	for _, idx := range r.activeList {
		p, _ := r.grid.Partition(idx)
		dx := math.Max(math.Max(p.Min.X()-center.X(), 0), center.X()-p.Max.X())
		dz := math.Max(math.Max(p.Min.Z()-center.Z(), 0), center.Z()-p.Max.Z())
		if dx*dx+dz*dz <= radius*radius {
			out = append(out, idx)
		}
	}
	return out
}

// Close удаляет поля высот из физического мира
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for _, b := range r.bodies {
		if b.InWorld() {
			if err := r.world.RemoveBody(b); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.bodies = nil
	return errors.Join(errs...)
}
