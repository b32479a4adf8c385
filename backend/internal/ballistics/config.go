package ballistics

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("ballistics: некорректная конфигурация")

// Config параметры снарядов и гибридного обнаружения попаданий
type Config struct {
	// Radius - радиус сферы столкновения снаряда
	Radius float64

	// Mass - масса тела снаряда
	Mass float64

	// TimeToLive - время жизни снаряда без попадания
	TimeToLive time.Duration

	// GravityScale - множитель гравитации мира для снаряда (0 - прямолинейный полет)
	GravityScale float64

	// LookaheadTime - на сколько секунд вперед по скорости смотрит луч второго уровня
	LookaheadTime float64

	// MinLookahead - минимальная длина луча второго уровня
	MinLookahead float64

	// MinTier2Speed - скорость, ниже которой луч второго уровня не строится
	MinTier2Speed float64

	// ProbeHalfLength - половина длины вертикального луча, классифицирующего контакт
	ProbeHalfLength float64

	// ProbeInset - насколько точка контакта сдвигается внутрь поверхности перед пробой
	ProbeInset float64

	// MaxFaceQueue - максимальная длина очереди диагностических пересечений снаряда
	MaxFaceQueue int
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		Radius:          0.1,
		Mass:            0.05,
		TimeToLive:      5 * time.Second,
		GravityScale:    1.0,
		LookaheadTime:   1.0 / 60.0,
		MinLookahead:    2.0,
		MinTier2Speed:   0.1,
		ProbeHalfLength: 16.0,
		ProbeInset:      0.01,
		MaxFaceQueue:    64,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	switch {
	case !(c.Radius > 0):
		return fmt.Errorf("%w: Radius=%v", ErrInvalidConfig, c.Radius)
	case !(c.Mass > 0):
		return fmt.Errorf("%w: Mass=%v", ErrInvalidConfig, c.Mass)
	case c.TimeToLive <= 0:
		return fmt.Errorf("%w: TimeToLive=%v", ErrInvalidConfig, c.TimeToLive)
	case c.LookaheadTime < 0 || c.MinLookahead < 0 || c.MinTier2Speed < 0:
		return fmt.Errorf("%w: отрицательные параметры луча второго уровня", ErrInvalidConfig)
	case !(c.ProbeHalfLength > 0) || c.ProbeInset < 0:
		return fmt.Errorf("%w: параметры пробы контакта", ErrInvalidConfig)
	case c.MaxFaceQueue < 0:
		return fmt.Errorf("%w: MaxFaceQueue=%d", ErrInvalidConfig, c.MaxFaceQueue)
	}
	return nil
}
