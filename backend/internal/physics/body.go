package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// MotionState хранит мировое положение тела между шагами симуляции
type MotionState struct {
	position mgl64.Vec3
	previous mgl64.Vec3
}

func (m *MotionState) Position() mgl64.Vec3 { return m.position }

// Previous возвращает положение до последнего подшага
func (m *MotionState) Previous() mgl64.Vec3 { return m.previous }

// BodyOptions параметры создания тела
type BodyOptions struct {
	Shape    Shape
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	// Mass == 0 создает статическое тело
	Mass  float64
	Group CollisionGroup
	Mask  CollisionGroup
	Info  ProxyInfo
	// NoContactResponse тело видно лучам, но не участвует в контактах
	NoContactResponse bool
	GravityScale      float64
}

// Body твердое тело физического мира
type Body struct {
	id     uint64
	shape  Shape
	motion *MotionState

	velocity     mgl64.Vec3
	mass         float64
	invMass      float64
	gravityScale float64

	group CollisionGroup
	mask  CollisionGroup
	info  ProxyInfo

	noContact bool
	sleeping  bool

	ccdMotionThreshold   float64
	ccdSweptSphereRadius float64

	inWorld bool
	freed   bool
	stamp   uint64

	// ячейки broadphase, в которых зарегистрировано тело
	cells     []cellKey
	oversized bool
}

// NewBody создает тело; в мир его добавляет World.AddBody
func NewBody(opts BodyOptions) (*Body, error) {
	if opts.Shape == nil {
		return nil, ErrNilShape
	}
	if opts.Mass < 0 {
		return nil, ErrInvalidMass
	}
	b := &Body{
		shape:        opts.Shape,
		motion:       &MotionState{position: opts.Position, previous: opts.Position},
		velocity:     opts.Velocity,
		mass:         opts.Mass,
		gravityScale: opts.GravityScale,
		group:        opts.Group,
		mask:         opts.Mask,
		info:         opts.Info,
		noContact:    opts.NoContactResponse,
	}
	if opts.Mass > 0 {
		b.invMass = 1 / opts.Mass
	} else {
		b.velocity = mgl64.Vec3{}
	}
	return b, nil
}

func (b *Body) ID() uint64 { return b.id }

// Shape возвращает форму; nil после удаления тела из мира
func (b *Body) Shape() Shape { return b.shape }

// MotionState возвращает состояние движения; nil после удаления тела из мира
func (b *Body) MotionState() *MotionState { return b.motion }

// Position возвращает текущее мировое положение тела
func (b *Body) Position() mgl64.Vec3 {
	if b.motion == nil {
		return mgl64.Vec3{}
	}
	return b.motion.position
}

func (b *Body) Velocity() mgl64.Vec3 { return b.velocity }

// SetVelocity меняет скорость; вызывать только между шагами симуляции
func (b *Body) SetVelocity(v mgl64.Vec3) {
	if b.IsStatic() {
		return
	}
	b.velocity = v
}

func (b *Body) Mass() float64 { return b.mass }

func (b *Body) IsStatic() bool { return b.invMass == 0 }

func (b *Body) Group() CollisionGroup { return b.group }

func (b *Body) Mask() CollisionGroup { return b.mask }

func (b *Body) Info() ProxyInfo { return b.info }

func (b *Body) NoContactResponse() bool { return b.noContact }

func (b *Body) InWorld() bool { return b.inWorld }

// Freed сообщает, что тело удалено из мира и его ресурсы освобождены
func (b *Body) Freed() bool { return b.freed }

// Deactivate замораживает тело: оно больше не интегрируется и не дает контактов
func (b *Body) Deactivate() {
	b.sleeping = true
	b.velocity = mgl64.Vec3{}
}

func (b *Body) Sleeping() bool { return b.sleeping }

// SetCcdMotionThreshold задает минимальное смещение за подшаг, после которого включается CCD
func (b *Body) SetCcdMotionThreshold(threshold float64) { b.ccdMotionThreshold = threshold }

// SetCcdSweptSphereRadius задает радиус сферы, заметаемой при CCD
func (b *Body) SetCcdSweptSphereRadius(radius float64) { b.ccdSweptSphereRadius = radius }

func (b *Body) CcdMotionThreshold() float64 { return b.ccdMotionThreshold }

func (b *Body) CcdSweptSphereRadius() float64 { return b.ccdSweptSphereRadius }

// WorldBounds возвращает AABB тела в мировых координатах
func (b *Body) WorldBounds() (mgl64.Vec3, mgl64.Vec3) {
	lo, hi := b.shape.LocalBounds()
	pos := b.Position()
	return lo.Add(pos), hi.Add(pos)
}

// collides проверяет взаимные маски групп
func (b *Body) collides(other *Body) bool {
	return b.mask&other.group != 0 && other.mask&b.group != 0
}

// radius возвращает радиус сферической формы или 0
func (b *Body) radius() float64 {
	if s, ok := b.shape.(*SphereShape); ok {
		return s.Radius
	}
	return 0
}
