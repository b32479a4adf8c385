package ballistics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/heightfield"
	"carnivores-ballistics/backend/internal/physics"
)

var (
	ErrZeroDirection = errors.New("ballistics: нулевое направление выстрела")
	ErrInvalidSpeed  = errors.New("ballistics: некорректная скорость снаряда")
	ErrInvalidOrigin = errors.New("ballistics: некорректная точка выстрела")
	ErrInvalidDamage = errors.New("ballistics: некорректный урон")
)

// ProjectileSnapshot состояние снаряда для отправки клиентам
type ProjectileSnapshot struct {
	ID       uint64     `json:"id" msgpack:"id"`
	Position mgl64.Vec3 `json:"position" msgpack:"position"`
	Velocity mgl64.Vec3 `json:"velocity" msgpack:"velocity"`
	State    string     `json:"state" msgpack:"state"`
	Age      float64    `json:"age" msgpack:"age"`
}

// Stats счетчики менеджера и реестра полей высот
type Stats struct {
	Active   int `json:"active"`
	Spawned  int `json:"spawned"`
	Impacts  int `json:"impacts"`
	Expired  int `json:"expired"`
	Rejected int `json:"rejected"`

	// Активные разделы полей высот вокруг последней опорной точки
	HeightfieldActive     int `json:"heightfield_active"`
	HeightfieldRecomputes int `json:"heightfield_recomputes"`
}

// Manager создает, обновляет и уничтожает снаряды и превращает попадания во внешние события.
// Все методы вызываются из одного игрового цикла.
type Manager struct {
	cfg    Config
	world  *physics.World
	hf     *heightfield.Registry
	logger *log.Logger

	detector detector

	projectiles []*Projectile
	nextID      uint64
	now         time.Duration

	listeners []Listener
	effects   []EffectTrigger

	spawned, impacts, expired, rejected int
}

// NewManager создает менеджер снарядов. hf может быть nil, тогда работает третий уровень.
func NewManager(world *physics.World, tiles TileIndex, hf *heightfield.Registry, cfg Config, logger *log.Logger) (*Manager, error) {
	if world == nil || tiles == nil {
		return nil, errors.New("ballistics: менеджеру нужны физический мир и индекс тайлов")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("Ballistics")

	m := &Manager{
		cfg:    cfg,
		world:  world,
		hf:     hf,
		logger: logger,
	}
	m.detector = detector{
		cfg:    cfg,
		world:  world,
		tiles:  tiles,
		logger: logger,
		heightfieldRegistered: func() bool {
			return m.hf != nil && m.hf.Registered()
		},
	}
	return m, nil
}

// AddListener подписывает получателя событий попаданий
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// AddEffectTrigger подписывает исполнителя побочных эффектов
func (m *Manager) AddEffectTrigger(e EffectTrigger) {
	m.effects = append(m.effects, e)
}

// Spawn создает снаряд со скоростью normalize(direction) * speed.
// Время выстрела - время ближайшего Update: команды игрового цикла выполняются
// в начале тика, когда часы уже указывают на его конец.
func (m *Manager) Spawn(origin, direction mgl64.Vec3, speed, damage float64) (*Projectile, error) {
	if err := validateShot(origin, direction, speed, damage); err != nil {
		m.rejected++
		return nil, err
	}
	l := direction.Len()
	velocity := direction.Mul(speed / l)

	shape, err := physics.NewSphereShape(m.cfg.Radius)
	if err != nil {
		return nil, err
	}
	body, err := physics.NewBody(physics.BodyOptions{
		Shape:        shape,
		Position:     origin,
		Velocity:     velocity,
		Mass:         m.cfg.Mass,
		Group:        physics.GroupProjectile,
		Mask:         physics.ProjectileMask,
		GravityScale: m.cfg.GravityScale,
	})
	if err != nil {
		return nil, err
	}
	wcfg := m.world.Config()
	body.SetCcdMotionThreshold(m.cfg.Radius * wcfg.CcdMotionThresholdFactor)
	body.SetCcdSweptSphereRadius(m.cfg.Radius * wcfg.CcdSweptSphereRadiusFactor)

	if err := m.world.AddBody(body); err != nil {
		return nil, fmt.Errorf("добавление снаряда в мир: %w", err)
	}

	m.nextID++
	p := &Projectile{
		id:            m.nextID,
		body:          body,
		damage:        damage,
		spawnTime:     m.now,
		pendingSpawn:  true,
		spawnPosition: origin,
		timeToLive:    m.cfg.TimeToLive,
		state:         Flying,
		lastPosition:  origin,
		lastVelocity:  velocity,
		maxFaces:      m.cfg.MaxFaceQueue,
	}
	m.projectiles = append(m.projectiles, p)
	m.spawned++

	m.logger.Debug("Снаряд создан", "id", p.id, "origin", origin, "velocity", velocity, "damage", damage)
	return p, nil
}

func finiteVec(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func validateShot(origin, direction mgl64.Vec3, speed, damage float64) error {
	if !finiteVec(origin) {
		return fmt.Errorf("%w: %v", ErrInvalidOrigin, origin)
	}
	l := direction.Len()
	if l < 1e-9 || math.IsNaN(l) || math.IsInf(l, 0) {
		return ErrZeroDirection
	}
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	if damage < 0 || math.IsNaN(damage) || math.IsInf(damage, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDamage, damage)
	}
	return nil
}

// Update выполняет один шаг физики, прогоняет обнаружение для каждого летящего снаряда,
// сообщает о новых попаданиях и удаляет снаряды, которые пора уничтожить.
func (m *Manager) Update(now, dt time.Duration) {
	m.now = now
	for _, p := range m.projectiles {
		if p.pendingSpawn {
			p.spawnTime = now
			p.pendingSpawn = false
		}
	}
	m.world.StepSimulation(dt.Seconds())

	for _, p := range m.projectiles {
		if p.state != Flying {
			continue
		}

		det := m.detector.evaluate(p)
		if det.IsHit() {
			p.markImpacted(det)
		} else {
			p.lastPosition = p.body.Position()
			p.lastVelocity = p.body.Velocity()
		}

		if p.impacted && !p.reported {
			p.reported = true
			m.impacts++
			m.reportImpact(p)
		}
	}

	for _, p := range m.projectiles {
		for _, f := range p.DrainFaces() {
			for _, l := range m.listeners {
				l.OnFaceIntersection(f)
			}
		}
	}

	m.destroyFinished(now)
}

func (m *Manager) reportImpact(p *Projectile) {
	d := p.impact
	event := ImpactEvent{
		ProjectileID: p.id,
		Position:     d.Point,
		Normal:       d.Normal,
		Surface:      d.Surface,
		Distance:     d.Distance,
		Damage:       p.damage,
		Ref:          d.Ref,
		Tier:         d.Tier,
		TileX:        d.TileX,
		TileZ:        d.TileZ,
		HasTile:      d.HasTile,
		Time:         m.now,
	}

	m.logger.Debug("Попадание",
		"id", p.id, "surface", d.Surface, "tier", d.Tier, "point", d.Point, "distance", d.Distance)

	for _, l := range m.listeners {
		l.OnImpact(event)
	}

	if kind := EffectForSurface(d.Surface); kind != EffectNone {
		effect := Effect{Kind: kind, Position: d.Point, Normal: d.Normal, Surface: d.Surface, Ref: d.Ref}
		for _, e := range m.effects {
			e.TriggerEffect(effect)
		}
	}
}

// destroyFinished удаляет из мира тела снарядов, которые попали или истекли
func (m *Manager) destroyFinished(now time.Duration) {
	kept := m.projectiles[:0]
	for _, p := range m.projectiles {
		if !p.ShouldDestroy(now) {
			kept = append(kept, p)
			continue
		}
		m.release(p)
		if !p.impacted {
			p.state = Expired
			m.expired++
			m.logger.Debug("Снаряд истек", "id", p.id, "age", now-p.spawnTime)
			m.reportExpire(p, now)
		}
	}
	clear(m.projectiles[len(kept):])
	m.projectiles = kept
}

func (m *Manager) reportExpire(p *Projectile, now time.Duration) {
	event := ExpireEvent{
		ProjectileID: p.id,
		Position:     p.lastPosition,
		Age:          now - p.spawnTime,
		Time:         now,
	}
	for _, l := range m.listeners {
		if el, ok := l.(ExpiryListener); ok {
			el.OnExpire(event)
		}
	}
}

func (m *Manager) release(p *Projectile) {
	if p.body == nil || p.body.Freed() {
		return
	}
	if !p.impacted {
		p.lastPosition = p.body.Position()
	}
	if err := m.world.RemoveBody(p.body); err != nil {
		m.logger.Error("Не удалось удалить тело снаряда", "id", p.id, "err", err)
	}
}

// DestroyAll принудительно уничтожает все снаряды без событий попадания.
// Используется при выгрузке мира. Возвращает число уничтоженных снарядов.
func (m *Manager) DestroyAll() int {
	n := len(m.projectiles)
	for _, p := range m.projectiles {
		if p.state == Flying {
			p.state = Expired
		}
		p.faces = nil
		m.release(p)
	}
	clear(m.projectiles)
	m.projectiles = m.projectiles[:0]
	if n > 0 {
		m.logger.Info("Снаряды уничтожены", "count", n)
	}
	return n
}

// ActiveCount возвращает число снарядов, еще не уничтоженных менеджером
func (m *Manager) ActiveCount() int { return len(m.projectiles) }

// Projectiles возвращает активные снаряды
func (m *Manager) Projectiles() []*Projectile {
	out := make([]*Projectile, len(m.projectiles))
	copy(out, m.projectiles)
	return out
}

// Now возвращает время последнего Update
func (m *Manager) Now() time.Duration { return m.now }

// SetReference передает опорную точку (наблюдателя) реестру полей высот
func (m *Manager) SetReference(pos mgl64.Vec3) bool {
	if m.hf == nil {
		return false
	}
	return m.hf.UpdateReference(pos)
}

// Snapshot возвращает состояние активных снарядов
func (m *Manager) Snapshot() []ProjectileSnapshot {
	out := make([]ProjectileSnapshot, 0, len(m.projectiles))
	for _, p := range m.projectiles {
		out = append(out, ProjectileSnapshot{
			ID:       p.id,
			Position: p.Position(),
			Velocity: p.Velocity(),
			State:    p.state.String(),
			Age:      (m.now - p.spawnTime).Seconds(),
		})
	}
	return out
}

// Stats возвращает счетчики менеджера
func (m *Manager) Stats() Stats {
	st := Stats{
		Active:   len(m.projectiles),
		Spawned:  m.spawned,
		Impacts:  m.impacts,
		Expired:  m.expired,
		Rejected: m.rejected,
	}
	if m.hf != nil {
		st.HeightfieldActive = len(m.hf.ActivePartitions())
		st.HeightfieldRecomputes = m.hf.Recomputes()
	}
	return st
}
