package ballistics

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"carnivores-ballistics/backend/internal/heightfield"
	"carnivores-ballistics/backend/internal/physics"
	"carnivores-ballistics/backend/internal/terrain"
	"carnivores-ballistics/backend/internal/world"
)

// SceneOptions параметры сборки подсистемы столкновений для загруженного мира
type SceneOptions struct {
	Physics       physics.Config
	Ballistics    Config
	PartitionSize int
	Heightfield   heightfield.Config
	// RegionalHeightfield регистрирует поля высот разделов в физическом мире;
	// без них рельеф проверяет третий уровень по тайлам
	RegionalHeightfield bool
}

// DefaultSceneOptions возвращает параметры по умолчанию
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		Physics:             physics.DefaultConfig(),
		Ballistics:          DefaultConfig(),
		PartitionSize:       terrain.DefaultPartitionSize,
		Heightfield:         heightfield.DefaultConfig(),
		RegionalHeightfield: true,
	}
}

// Scene владеет сеткой разделов, физическим миром, реестром полей высот и менеджером снарядов
// одного загруженного мира. Ничего не хранится глобально: новый мир - новая сцена.
type Scene struct {
	grid    *terrain.Grid
	world   *physics.World
	hf      *heightfield.Registry
	manager *Manager
	logger  *log.Logger
}

// NewScene собирает подсистему по данным провайдера. Ошибка построения физического мира
// фатальна для загрузки: без коллайдеров мир непригоден.
func NewScene(provider world.HeightProvider, opts SceneOptions, logger *log.Logger) (*Scene, error) {
	if logger == nil {
		logger = log.Default()
	}

	grid, err := terrain.NewGrid(provider, opts.PartitionSize)
	if err != nil {
		return nil, fmt.Errorf("сетка разделов: %w", err)
	}

	pw, err := physics.NewWorld(opts.Physics, logger)
	if err != nil {
		return nil, fmt.Errorf("физический мир: %w", err)
	}

	s := &Scene{grid: grid, world: pw, logger: logger.WithPrefix("Scene")}

	if _, err := pw.RegisterObjects(provider.ObjectTypes()); err != nil {
		s.Close()
		return nil, fmt.Errorf("объекты мира: %w", err)
	}
	if _, err := pw.RegisterWater(provider.WaterRegions()); err != nil {
		s.Close()
		return nil, fmt.Errorf("вода: %w", err)
	}

	if opts.RegionalHeightfield {
		s.hf = heightfield.NewRegistry(grid, pw, opts.Heightfield, logger)
		if err := s.hf.Build(); err != nil {
			s.Close()
			return nil, fmt.Errorf("поля высот: %w", err)
		}
	}

	s.manager, err = NewManager(pw, grid, s.hf, opts.Ballistics, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("Сцена построена",
		"tiles", fmt.Sprintf("%dx%d", grid.WidthTiles(), grid.HeightTiles()),
		"partitions", grid.NumPartitions(),
		"bodies", pw.NumBodies(),
		"heightfield", s.hf != nil)
	return s, nil
}

func (s *Scene) Grid() *terrain.Grid { return s.grid }

func (s *Scene) World() *physics.World { return s.world }

// Heightfield возвращает реестр полей высот или nil, если он не используется
func (s *Scene) Heightfield() *heightfield.Registry { return s.hf }

func (s *Scene) Manager() *Manager { return s.manager }

// Close уничтожает снаряды, затем поля высот, затем физический мир
func (s *Scene) Close() error {
	var errs []error
	if s.manager != nil {
		s.manager.DestroyAll()
	}
	if s.hf != nil {
		errs = append(errs, s.hf.Close())
	}
	if s.world != nil {
		errs = append(errs, s.world.Close())
	}
	return errors.Join(errs...)
}
