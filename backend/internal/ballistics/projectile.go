package ballistics

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
)

// State состояние снаряда
type State int

const (
	Flying State = iota
	Impacted
	Expired
)

func (s State) String() string {
	switch s {
	case Flying:
		return "flying"
	case Impacted:
		return "impacted"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Projectile один выстрел. Положением и скоростью владеет физическое тело;
// после попадания они заморожены.
type Projectile struct {
	id     uint64
	body   *physics.Body
	damage float64

	spawnTime     time.Duration
	spawnPosition mgl64.Vec3
	timeToLive    time.Duration

	// время выстрела уточняется первым Update
	pendingSpawn bool

	state    State
	impacted bool
	impact   Detection
	reported bool

	// положение и скорость на конце предыдущего тика
	lastPosition mgl64.Vec3
	lastVelocity mgl64.Vec3

	faces    []FaceIntersection
	maxFaces int
	dropped  int
}

func (p *Projectile) ID() uint64 { return p.id }

// Body возвращает физическое тело; после уничтожения снаряда оно освобождено
func (p *Projectile) Body() *physics.Body { return p.body }

// Position возвращает текущее положение; после попадания - точку попадания
func (p *Projectile) Position() mgl64.Vec3 {
	if p.impacted {
		return p.impact.Point
	}
	if p.body != nil && !p.body.Freed() {
		return p.body.Position()
	}
	return p.lastPosition
}

// Velocity возвращает текущую скорость; после попадания - ноль
func (p *Projectile) Velocity() mgl64.Vec3 {
	if p.impacted || p.body == nil || p.body.Freed() {
		return mgl64.Vec3{}
	}
	return p.body.Velocity()
}

func (p *Projectile) Damage() float64 { return p.damage }

func (p *Projectile) SpawnTime() time.Duration { return p.spawnTime }

func (p *Projectile) SpawnPosition() mgl64.Vec3 { return p.spawnPosition }

func (p *Projectile) TimeToLive() time.Duration { return p.timeToLive }

func (p *Projectile) State() State { return p.state }

func (p *Projectile) Impacted() bool { return p.impacted }

// Impact возвращает результат попадания, если оно было
func (p *Projectile) Impact() (Detection, bool) {
	return p.impact, p.impacted
}

// ShouldDestroy true, если снаряд попал или истекло время жизни
func (p *Projectile) ShouldDestroy(now time.Duration) bool {
	return p.impacted || now-p.spawnTime >= p.timeToLive
}

// markImpacted фиксирует попадание. Повторные вызовы ничего не меняют.
func (p *Projectile) markImpacted(d Detection) bool {
	if p.impacted {
		return false
	}
	p.impacted = true
	p.state = Impacted
	p.impact = d
	if p.body != nil && !p.body.Freed() {
		p.body.Deactivate()
	}
	return true
}

// enqueueFace добавляет диагностическую запись; при переполнении новые записи отбрасываются
func (p *Projectile) enqueueFace(f FaceIntersection) {
	if len(p.faces) >= p.maxFaces {
		p.dropped++
		return
	}
	f.ProjectileID = p.id
	p.faces = append(p.faces, f)
}

// DrainFaces возвращает накопленные диагностические записи и очищает очередь
func (p *Projectile) DrainFaces() []FaceIntersection {
	if len(p.faces) == 0 {
		return nil
	}
	out := p.faces
	p.faces = nil
	return out
}

// DroppedFaces возвращает число записей, не поместившихся в очередь
func (p *Projectile) DroppedFaces() int { return p.dropped }

// incoming направление полета на момент пересечения
func (p *Projectile) incoming() mgl64.Vec3 {
	if l := p.lastVelocity.Len(); l > 1e-12 {
		return p.lastVelocity.Mul(1 / l)
	}
	return mgl64.Vec3{}
}
