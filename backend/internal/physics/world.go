package physics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrNilShape       = errors.New("physics: у тела нет формы")
	ErrNilBody        = errors.New("physics: тело не задано")
	ErrInvalidMass    = errors.New("physics: отрицательная масса")
	ErrBodyInWorld    = errors.New("physics: тело уже добавлено в мир")
	ErrBodyFreed      = errors.New("physics: тело уже освобождено")
	ErrBodyNotInWorld = errors.New("physics: тело не принадлежит миру")
	ErrWorldLocked    = errors.New("physics: мир изменяется во время шага симуляции")
	ErrWorldClosed    = errors.New("physics: мир закрыт")
)

// World единственный владелец контекста симуляции: broadphase, диспетчер контактов,
// решатель и список тел. Не потокобезопасен: все вызовы идут из одного игрового цикла.
type World struct {
	cfg    Config
	logger *log.Logger

	broadphase *broadphase
	bodies     map[uint64]*Body
	dynamics   []*Body
	nextID     uint64

	manifolds   []*Manifold
	accumulator float64
	stepCount   uint64

	locked bool
	closed bool

	scratch []*Body
}

// NewWorld создает физический мир. Ошибка конфигурации фатальна для загрузки мира.
func NewWorld(cfg Config, logger *log.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("создание физического мира: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	w := &World{
		cfg:        cfg,
		logger:     logger.WithPrefix("Physics"),
		broadphase: newBroadphase(cfg.BroadphaseCellSize, cfg.MaxProxyCells),
		bodies:     make(map[uint64]*Body),
	}
	w.logger.Debug("Физический мир создан",
		"rate", cfg.StepSimulationRate, "maxSubSteps", cfg.MaxSubSteps, "gravity", cfg.Gravity)
	return w, nil
}

func (w *World) Config() Config { return w.cfg }

// AddBody регистрирует тело в мире. Статические тела попадают в broadphase,
// динамические проверяются попарно.
func (w *World) AddBody(b *Body) error {
	switch {
	case w.closed:
		return ErrWorldClosed
	case w.locked:
		return ErrWorldLocked
	case b == nil:
		return ErrNilBody
	case b.freed:
		return ErrBodyFreed
	case b.inWorld:
		return ErrBodyInWorld
	}

	w.nextID++
	b.id = w.nextID
	b.inWorld = true
	w.bodies[b.id] = b

	if b.IsStatic() {
		w.broadphase.insert(b)
	} else {
		w.dynamics = append(w.dynamics, b)
	}
	return nil
}

// RemoveBody отсоединяет тело от мира, затем освобождает состояние движения,
// затем форму, затем само тело. После вызова тело нельзя использовать.
func (w *World) RemoveBody(b *Body) error {
	if w.locked {
		return ErrWorldLocked
	}
	if b == nil {
		return ErrNilBody
	}
	if !b.inWorld || w.bodies[b.id] != b {
		return ErrBodyNotInWorld
	}

	w.detach(b)
	b.motion = nil
	b.shape = nil
	b.freed = true
	return nil
}

func (w *World) detach(b *Body) {
	delete(w.bodies, b.id)
	if b.IsStatic() {
		w.broadphase.remove(b)
	} else if i := slices.Index(w.dynamics, b); i >= 0 {
		w.dynamics = slices.Delete(w.dynamics, i, i+1)
	}
	w.manifolds = slices.DeleteFunc(w.manifolds, func(m *Manifold) bool {
		return m.BodyA == b || m.BodyB == b
	})
	b.inWorld = false
}

// StepSimulation продвигает симуляцию на dt секунд фиксированными подшагами.
// Число подшагов ограничено MaxSubSteps, лишнее время отбрасывается.
// Возвращает число выполненных подшагов; манифолды обновляются только если он > 0.
func (w *World) StepSimulation(dt float64) int {
	if w.closed || !(dt > 0) {
		return 0
	}

	fixed := w.cfg.FixedTimeStep()
	w.accumulator += dt
	steps := int(w.accumulator / fixed)
	if steps == 0 {
		return 0
	}
	w.accumulator -= float64(steps) * fixed
	if steps > w.cfg.MaxSubSteps {
		w.logger.Debug("Подшаги ограничены", "requested", steps, "max", w.cfg.MaxSubSteps)
		steps = w.cfg.MaxSubSteps
	}

	w.locked = true
	defer func() { w.locked = false }()

	w.manifolds = w.manifolds[:0]
	for i := 0; i < steps; i++ {
		w.internalStep(fixed)
	}
	w.stepCount += uint64(steps)
	return steps
}

func (w *World) internalStep(h float64) {
	for _, b := range w.dynamics {
		if b.sleeping {
			continue
		}
		w.integrate(b, h)
	}
	w.dispatch()
}

// integrate применяет гравитацию и перемещает тело; при большом смещении включается CCD
func (w *World) integrate(b *Body, h float64) {
	b.velocity = b.velocity.Add(w.cfg.Gravity.Mul(b.gravityScale * h))
	motion := b.velocity.Mul(h)

	from := b.motion.position
	to := from.Add(motion)
	b.motion.previous = from

	if b.ccdMotionThreshold > 0 && motion.Len() > b.ccdMotionThreshold {
		if hit, ok := w.sweep(b, from, to); ok {
			to = hit.Point.Add(hit.Normal.Mul(b.ccdSweptSphereRadius))
		}
	}
	b.motion.position = to
}

// sweep ищет первое статическое препятствие на пути центра тела.
// Прокси без отклика на контакт не останавливают тело.
func (w *World) sweep(b *Body, from, to mgl64.Vec3) (RayHit, bool) {
	return w.raycastStatic(from, to, b.mask, func(other *Body) bool {
		return other.noContact || !b.collides(other)
	})
}

// Bodies возвращает тела мира в порядке добавления
func (w *World) Bodies() []*Body {
	out := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b *Body) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

func (w *World) NumBodies() int { return len(w.bodies) }

// NumStaticProxies возвращает число статических прокси в broadphase
func (w *World) NumStaticProxies() int { return w.broadphase.size() }

// StepCount возвращает общее число выполненных подшагов
func (w *World) StepCount() uint64 { return w.stepCount }

// Close удаляет все тела и запрещает дальнейшие шаги
func (w *World) Close() error {
	if w.closed {
		return nil
	}
	if w.locked {
		return ErrWorldLocked
	}
	var errs []error
	for _, b := range w.Bodies() {
		if err := w.RemoveBody(b); err != nil {
			errs = append(errs, err)
		}
	}
	w.closed = true
	w.logger.Debug("Физический мир закрыт", "steps", w.stepCount)
	return errors.Join(errs...)
}
