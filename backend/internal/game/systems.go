package game

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"carnivores-ballistics/backend/internal/ballistics"
	"carnivores-ballistics/backend/internal/telemetry"
)

// Clock источник игрового времени (обычно *GameTicker)
type Clock interface {
	Elapsed() time.Duration
	GetTickCount() uint64
}

// BallisticsSystem продвигает физический мир и снаряды на один тик
type BallisticsSystem struct {
	name     string
	priority int
	manager  *ballistics.Manager
	clock    Clock
	logger   *log.Logger

	// Копия состояния после последнего тика для чтения из других горутин
	snapshot      []ballistics.ProjectileSnapshot
	stats         ballistics.Stats
	snapshotMutex sync.RWMutex
}

// NewBallisticsSystem создает систему обновления снарядов
func NewBallisticsSystem(manager *ballistics.Manager, clock Clock, logger *log.Logger) *BallisticsSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &BallisticsSystem{
		name:     "BallisticsSystem",
		priority: 10, // Снаряды обновляются первыми, рассылка видит итог тика
		manager:  manager,
		clock:    clock,
		logger:   logger.WithPrefix("BallisticsSystem"),
	}
}

// Update выполняет шаг физики и обнаружение попаданий
func (bs *BallisticsSystem) Update(deltaTime time.Duration) error {
	bs.manager.Update(bs.clock.Elapsed(), deltaTime)

	snap := bs.manager.Snapshot()
	stats := bs.manager.Stats()
	bs.snapshotMutex.Lock()
	bs.snapshot = snap
	bs.stats = stats
	bs.snapshotMutex.Unlock()

	// Логируем состояние каждые 30 секунд при 60 TPS
	if bs.clock.GetTickCount()%1800 == 0 {
		bs.logger.Info("Снаряды", "active", len(snap), "spawned", stats.Spawned,
			"heightfield_active", stats.HeightfieldActive, "game_time", bs.clock.Elapsed())
	}
	return nil
}

// Snapshot возвращает состояние снарядов после последнего тика
func (bs *BallisticsSystem) Snapshot() []ballistics.ProjectileSnapshot {
	bs.snapshotMutex.RLock()
	defer bs.snapshotMutex.RUnlock()

	out := make([]ballistics.ProjectileSnapshot, len(bs.snapshot))
	copy(out, bs.snapshot)
	return out
}

// Stats возвращает счетчики снарядов и полей высот после последнего тика
func (bs *BallisticsSystem) Stats() ballistics.Stats {
	bs.snapshotMutex.RLock()
	defer bs.snapshotMutex.RUnlock()
	return bs.stats
}

// GetName возвращает имя системы
func (bs *BallisticsSystem) GetName() string {
	return bs.name
}

// GetPriority возвращает приоритет системы
func (bs *BallisticsSystem) GetPriority() int {
	return bs.priority
}

// StateBroadcaster отправляет клиентам состояние снарядов
type StateBroadcaster interface {
	BroadcastProjectiles(tick uint64, gameTime time.Duration, projectiles []ballistics.ProjectileSnapshot) error
}

// NetworkSyncSystem система синхронизации состояния с клиентами
type NetworkSyncSystem struct {
	name          string
	priority      int
	clock         Clock
	source        *BallisticsSystem
	broadcaster   StateBroadcaster
	logger        *log.Logger
	lastBroadcast time.Duration
	sent          bool
	emptySent     bool

	// Интервал рассылки в игровом времени
	broadcastInterval time.Duration
}

// NewNetworkSyncSystem создает новую систему сетевой синхронизации
func NewNetworkSyncSystem(source *BallisticsSystem, broadcaster StateBroadcaster, clock Clock, logger *log.Logger) *NetworkSyncSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &NetworkSyncSystem{
		name:              "NetworkSyncSystem",
		priority:          100, // Самый низкий приоритет - отправляем в конце тика
		clock:             clock,
		source:            source,
		broadcaster:       broadcaster,
		logger:            logger.WithPrefix("NetworkSyncSystem"),
		broadcastInterval: 50 * time.Millisecond, // 20 раз в секунду для клиентов
	}
}

// SetBroadcastInterval меняет частоту рассылки
func (nss *NetworkSyncSystem) SetBroadcastInterval(d time.Duration) {
	nss.broadcastInterval = d
}

// Update отправляет обновления состояния клиентам
func (nss *NetworkSyncSystem) Update(deltaTime time.Duration) error {
	now := nss.clock.Elapsed()
	if nss.sent && now-nss.lastBroadcast < nss.broadcastInterval {
		return nil
	}

	projectiles := nss.source.Snapshot()
	// Пустое состояние отправляем один раз, чтобы клиенты убрали последние снаряды
	if len(projectiles) == 0 && nss.sent && nss.emptySent {
		return nil
	}
	nss.lastBroadcast = now
	nss.sent = true
	nss.emptySent = len(projectiles) == 0

	if err := nss.broadcaster.BroadcastProjectiles(nss.clock.GetTickCount(), now, projectiles); err != nil {
		nss.logger.Warn("Ошибка отправки обновлений", "err", err)
	}
	return nil
}

// GetName возвращает имя системы
func (nss *NetworkSyncSystem) GetName() string {
	return nss.name
}

// GetPriority возвращает приоритет системы
func (nss *NetworkSyncSystem) GetPriority() int {
	return nss.priority
}

// GameMetricsSystem система сбора игровых метрик
type GameMetricsSystem struct {
	name      string
	priority  int
	ticker    *GameTicker
	telemetry *telemetry.TelemetryManager
	logger    *log.Logger

	lastMetricsLog  time.Duration
	metricsInterval time.Duration
}

// NewGameMetricsSystem создает новую систему сбора метрик. telemetry может быть nil.
func NewGameMetricsSystem(ticker *GameTicker, tm *telemetry.TelemetryManager, logger *log.Logger) *GameMetricsSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &GameMetricsSystem{
		name:            "GameMetricsSystem",
		priority:        200, // Очень низкий приоритет - метрики в самом конце
		ticker:          ticker,
		telemetry:       tm,
		logger:          logger.WithPrefix("GameMetrics"),
		metricsInterval: 30 * time.Second, // Логируем метрики каждые 30 секунд
	}
}

// Update собирает и логирует игровые метрики
func (gms *GameMetricsSystem) Update(deltaTime time.Duration) error {
	if gms.telemetry != nil {
		gms.telemetry.PrintSummary()
	}

	now := gms.ticker.Elapsed()
	if now-gms.lastMetricsLog < gms.metricsInterval {
		return nil
	}
	gms.lastMetricsLog = now

	stats := gms.ticker.GetStats()
	gms.logger.Info("Игровой цикл",
		"tps", stats["actual_tps"],
		"target", stats["target_tps"],
		"ticks", stats["tick_count"],
		"avg_tick", stats["average_tick_time"])

	// Проверяем производительность
	if actualTPS, ok := stats["actual_tps"].(float64); ok && actualTPS > 0 {
		if target, ok := stats["target_tps"].(int); ok && actualTPS < float64(target)*0.9 {
			gms.logger.Warn("TPS снижен", "tps", actualTPS)
		}
	}

	return nil
}

// GetName возвращает имя системы
func (gms *GameMetricsSystem) GetName() string {
	return gms.name
}

// GetPriority возвращает приоритет системы
func (gms *GameMetricsSystem) GetPriority() int {
	return gms.priority
}
