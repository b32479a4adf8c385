package physics

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrInvalidConfig = errors.New("physics: некорректная конфигурация")

// Config содержит настройки физического мира
type Config struct {
	// Gravity - ускорение свободного падения
	Gravity mgl64.Vec3

	// StepSimulationRate - частота фиксированного шага симуляции (Гц)
	StepSimulationRate int

	// MaxSubSteps - максимальное число фиксированных подшагов за один вызов StepSimulation
	MaxSubSteps int

	// CcdMotionThresholdFactor - порог непрерывного обнаружения столкновений в долях радиуса тела
	CcdMotionThresholdFactor float64

	// CcdSweptSphereRadiusFactor - радиус заметаемой сферы в долях радиуса тела
	CcdSweptSphereRadiusFactor float64

	// Restitution - коэффициент восстановления при контакте динамического тела со статикой
	Restitution float64

	// BroadphaseCellSize - размер ячейки сетки broadphase в мировых единицах
	BroadphaseCellSize float64

	// MaxProxyCells - прокси, занимающие больше ячеек, хранятся отдельным списком
	MaxProxyCells int

	// WaterThickness - толщина плиты, которой представлена водная поверхность
	WaterThickness float64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Gravity:                    mgl64.Vec3{0, -9.81, 0},
		StepSimulationRate:         60,
		MaxSubSteps:                3,
		CcdMotionThresholdFactor:   0.7,
		CcdSweptSphereRadiusFactor: 0.6,
		Restitution:                0.0,
		BroadphaseCellSize:         1024.0,
		MaxProxyCells:              64,
		WaterThickness:             8.0,
	}
}

// FixedTimeStep возвращает длительность одного подшага в секундах
func (c Config) FixedTimeStep() float64 {
	return 1.0 / float64(c.StepSimulationRate)
}

// Validate проверяет, можно ли построить мир с этой конфигурацией
func (c Config) Validate() error {
	switch {
	case c.StepSimulationRate <= 0:
		return fmt.Errorf("%w: StepSimulationRate=%d", ErrInvalidConfig, c.StepSimulationRate)
	case c.MaxSubSteps <= 0:
		return fmt.Errorf("%w: MaxSubSteps=%d", ErrInvalidConfig, c.MaxSubSteps)
	case c.BroadphaseCellSize <= 0:
		return fmt.Errorf("%w: BroadphaseCellSize=%v", ErrInvalidConfig, c.BroadphaseCellSize)
	case c.MaxProxyCells <= 0:
		return fmt.Errorf("%w: MaxProxyCells=%d", ErrInvalidConfig, c.MaxProxyCells)
	case c.CcdMotionThresholdFactor < 0 || c.CcdSweptSphereRadiusFactor < 0:
		return fmt.Errorf("%w: отрицательные параметры CCD", ErrInvalidConfig)
	case c.Restitution < 0 || c.Restitution > 1:
		return fmt.Errorf("%w: Restitution=%v", ErrInvalidConfig, c.Restitution)
	case c.WaterThickness <= 0:
		return fmt.Errorf("%w: WaterThickness=%v", ErrInvalidConfig, c.WaterThickness)
	}
	return nil
}
