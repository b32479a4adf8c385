package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var ErrQueueFull = errors.New("game: очередь команд переполнена")

// DefaultCommandQueue вместимость очереди команд между тиками
const DefaultCommandQueue = 256

// GameTicker основной игровой цикл: с фиксированной частотой выполняет команды из очереди,
// затем все зарегистрированные системы по приоритету. Все системы и команды работают
// в одной горутине цикла, поэтому состоянию подсистемы столкновений не нужны блокировки.
type GameTicker struct {
	// Конфигурация
	targetTPS    int           // Целевая частота тиков в секунду
	tickDuration time.Duration // Длительность одного тика
	maxTickTime  time.Duration // Максимальное время на один тик

	// Состояние
	isRunning    bool
	isPaused     bool
	tickCount    uint64
	elapsed      time.Duration // Игровое время: сумма дельт выполненных тиков
	startTime    time.Time
	lastTickTime time.Time
	stateMutex   sync.RWMutex

	// tickMutex сериализует тики цикла и ручные Step
	tickMutex sync.Mutex

	// Системы
	systems      []TickSystem
	systemsMutex sync.RWMutex

	commands chan func()

	// Мониторинг производительности
	perfMonitor *PerformanceMonitor

	// Управление
	ctx       context.Context
	cancel    context.CancelFunc
	pauseChan chan bool
	done      chan struct{}

	// Метрики
	averageTickTime time.Duration
	maxObservedTick time.Duration
	skippedTicks    uint64

	logger           *log.Logger
	warningThreshold time.Duration
}

// TickSystem интерфейс для всех игровых систем
type TickSystem interface {
	Update(deltaTime time.Duration) error
	GetName() string
	GetPriority() int // Приоритет выполнения (меньше = раньше)
}

// PerformanceMonitor отслеживает производительность каждой системы
type PerformanceMonitor struct {
	systemMetrics map[string]*SystemMetrics
	mutex         sync.RWMutex

	// Настройки мониторинга
	metricsWindow     int           // Количество последних тиков для усреднения
	warningThreshold  time.Duration // Порог предупреждения для системы
	criticalThreshold time.Duration // Критический порог
}

// SystemMetrics метрики производительности системы
type SystemMetrics struct {
	Name              string
	LastExecutionTime time.Duration
	AverageTime       time.Duration
	MaxTime           time.Duration
	TotalExecutions   uint64
	Errors            uint64

	// Скользящее окно для вычисления среднего
	recentTimes  []time.Duration
	recentIndex  int
	windowFilled bool
}

// NewGameTicker создает новый игровой тикер
func NewGameTicker(targetTPS int, logger *log.Logger) *GameTicker {
	if targetTPS <= 0 {
		targetTPS = 60
	}

	if logger == nil {
		logger = log.Default()
	}

	tickDuration := time.Second / time.Duration(targetTPS)
	maxTickTime := tickDuration * 2 // Максимум в 2 раза больше целевого времени

	ctx, cancel := context.WithCancel(context.Background())

	return &GameTicker{
		targetTPS:        targetTPS,
		tickDuration:     tickDuration,
		maxTickTime:      maxTickTime,
		systems:          make([]TickSystem, 0),
		commands:         make(chan func(), DefaultCommandQueue),
		perfMonitor:      NewPerformanceMonitor(50, tickDuration/4), // Предупреждение при 25% от тика
		ctx:              ctx,
		cancel:           cancel,
		pauseChan:        make(chan bool, 1),
		done:             make(chan struct{}),
		logger:           logger.WithPrefix("GameTicker"),
		warningThreshold: tickDuration / 2, // Предупреждение при 50% от времени тика
	}
}

// NewPerformanceMonitor создает новый монитор производительности
func NewPerformanceMonitor(windowSize int, warningThreshold time.Duration) *PerformanceMonitor {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &PerformanceMonitor{
		systemMetrics:     make(map[string]*SystemMetrics),
		metricsWindow:     windowSize,
		warningThreshold:  warningThreshold,
		criticalThreshold: warningThreshold * 2,
	}
}

// Start запускает игровой цикл в отдельной горутине
func (gt *GameTicker) Start() error {
	gt.stateMutex.Lock()
	defer gt.stateMutex.Unlock()

	if gt.isRunning {
		return nil // Уже запущен
	}
	if gt.ctx.Err() != nil {
		return errors.New("game: тикер уже остановлен")
	}

	gt.isRunning = true
	gt.startTime = time.Now()
	gt.lastTickTime = gt.startTime

	gt.logger.Info("Запуск игрового цикла", "tps", gt.targetTPS, "tick", gt.tickDuration)

	go gt.gameLoop()

	return nil
}

// Stop останавливает игровой цикл и ждет завершения текущего тика
func (gt *GameTicker) Stop() {
	gt.stateMutex.Lock()
	if !gt.isRunning {
		gt.stateMutex.Unlock()
		gt.cancel()
		return
	}
	gt.isRunning = false
	gt.stateMutex.Unlock()

	gt.cancel()
	<-gt.done

	gt.logger.Info("Игровой цикл остановлен", "ticks", gt.GetTickCount())
}

// Pause приостанавливает или возобновляет цикл
func (gt *GameTicker) Pause(pause bool) {
	gt.stateMutex.Lock()
	gt.isPaused = pause
	gt.stateMutex.Unlock()

	select {
	case gt.pauseChan <- pause:
	default:
		// Предыдущее значение еще не прочитано: заменяем его
		select {
		case <-gt.pauseChan:
		default:
		}
		gt.pauseChan <- pause
	}
}

// RegisterSystem добавляет систему в игровой цикл
func (gt *GameTicker) RegisterSystem(system TickSystem) {
	gt.systemsMutex.Lock()
	defer gt.systemsMutex.Unlock()

	// Добавляем систему
	gt.systems = append(gt.systems, system)

	// Сортируем по приоритету (меньше = выше приоритет)
	for i := len(gt.systems) - 1; i > 0; i-- {
		if gt.systems[i].GetPriority() < gt.systems[i-1].GetPriority() {
			gt.systems[i], gt.systems[i-1] = gt.systems[i-1], gt.systems[i]
		} else {
			break
		}
	}

	// Инициализируем метрики для системы
	gt.perfMonitor.initSystemMetrics(system.GetName())

	gt.logger.Info("Зарегистрирована система", "name", system.GetName(), "priority", system.GetPriority())
}

// Enqueue ставит команду в очередь; она выполнится в горутине цикла в начале следующего тика.
// Так сетевые обработчики передают выстрелы менеджеру снарядов.
func (gt *GameTicker) Enqueue(cmd func()) error {
	select {
	case gt.commands <- cmd:
		return nil
	default:
		gt.logger.Warn("Очередь команд переполнена, команда отброшена")
		return ErrQueueFull
	}
}

// gameLoop основной игровой цикл
func (gt *GameTicker) gameLoop() {
	defer close(gt.done)

	ticker := time.NewTicker(gt.tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-gt.ctx.Done():
			return

		case pause := <-gt.pauseChan:
			if pause {
				gt.logger.Info("Цикл приостановлен")
				// Ждем команды возобновления
				for pause {
					select {
					case <-gt.ctx.Done():
						return
					case pause = <-gt.pauseChan:
					}
				}
				// Время паузы не попадает в игровое время
				gt.stateMutex.Lock()
				gt.lastTickTime = time.Now()
				gt.stateMutex.Unlock()
				gt.logger.Info("Цикл возобновлен")
			}

		case tickTime := <-ticker.C:
			gt.stateMutex.Lock()
			deltaTime := tickTime.Sub(gt.lastTickTime)
			gt.lastTickTime = tickTime
			gt.stateMutex.Unlock()

			// Проверяем, не слишком ли большая задержка между тиками
			if deltaTime > gt.tickDuration*2 {
				gt.logger.Warn("Большая задержка между тиками", "delta", deltaTime, "expected", gt.tickDuration)
				gt.stateMutex.Lock()
				gt.skippedTicks++
				gt.stateMutex.Unlock()
			}
			if deltaTime < 0 {
				deltaTime = 0
			}

			gt.executeTick(deltaTime)
		}
	}
}

// Step синхронно выполняет один тик с заданной дельтой. Для тестов и пошаговых инструментов;
// с запущенным циклом тики сериализуются.
func (gt *GameTicker) Step(deltaTime time.Duration) {
	gt.executeTick(deltaTime)
}

// executeTick выполняет один игровой тик
func (gt *GameTicker) executeTick(deltaTime time.Duration) {
	gt.tickMutex.Lock()
	defer gt.tickMutex.Unlock()

	tickStart := time.Now()

	gt.stateMutex.Lock()
	gt.tickCount++
	gt.elapsed += deltaTime
	gt.stateMutex.Unlock()

	gt.drainCommands()

	// Выполняем все системы
	gt.executeAllSystems(deltaTime)

	// Измеряем общее время тика
	totalTickTime := time.Since(tickStart)
	gt.updateTickMetrics(totalTickTime)

	// Проверяем производительность
	gt.checkPerformance(totalTickTime)
}

// drainCommands выполняет команды, поставленные до начала тика
func (gt *GameTicker) drainCommands() {
	for n := len(gt.commands); n > 0; n-- {
		cmd := <-gt.commands
		gt.runCommand(cmd)
	}
}

func (gt *GameTicker) runCommand(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			gt.logger.Error("Паника в команде", "panic", r)
		}
	}()
	cmd()
}

// executeAllSystems выполняет все зарегистрированные системы
func (gt *GameTicker) executeAllSystems(deltaTime time.Duration) {
	gt.systemsMutex.RLock()
	systems := make([]TickSystem, len(gt.systems))
	copy(systems, gt.systems)
	gt.systemsMutex.RUnlock()

	for _, system := range systems {
		gt.executeSystem(system, deltaTime)
	}
}

// executeSystem выполняет одну систему с замером времени
func (gt *GameTicker) executeSystem(system TickSystem, deltaTime time.Duration) {
	systemStart := time.Now()
	systemName := system.GetName()

	defer func() {
		if r := recover(); r != nil {
			gt.logger.Error("Критическая ошибка в системе", "system", systemName, "panic", r)
			gt.perfMonitor.recordError(systemName)
		}
	}()

	// Выполняем систему
	err := system.Update(deltaTime)

	executionTime := time.Since(systemStart)

	// Записываем метрики
	gt.perfMonitor.recordExecution(systemName, executionTime)

	// Обрабатываем ошибки
	if err != nil {
		gt.logger.Error("Ошибка в системе", "system", systemName, "err", err)
		gt.perfMonitor.recordError(systemName)
	}
}

// Elapsed возвращает игровое время: сумму дельт выполненных тиков
func (gt *GameTicker) Elapsed() time.Duration {
	gt.stateMutex.RLock()
	defer gt.stateMutex.RUnlock()
	return gt.elapsed
}

// TickDuration возвращает целевую длительность тика
func (gt *GameTicker) TickDuration() time.Duration { return gt.tickDuration }

// GetStats возвращает статистику игрового цикла
func (gt *GameTicker) GetStats() map[string]interface{} {
	gt.stateMutex.RLock()
	defer gt.stateMutex.RUnlock()

	var uptime time.Duration
	actualTPS := 0.0
	if !gt.startTime.IsZero() {
		uptime = time.Since(gt.startTime)
		if uptime > 0 {
			actualTPS = float64(gt.tickCount) / uptime.Seconds()
		}
	}

	gt.systemsMutex.RLock()
	systemsCount := len(gt.systems)
	gt.systemsMutex.RUnlock()

	return map[string]interface{}{
		"target_tps":        gt.targetTPS,
		"actual_tps":        actualTPS,
		"tick_count":        gt.tickCount,
		"game_time_seconds": gt.elapsed.Seconds(),
		"uptime_seconds":    uptime.Seconds(),
		"average_tick_time": gt.averageTickTime,
		"max_observed_tick": gt.maxObservedTick,
		"skipped_ticks":     gt.skippedTicks,
		"is_running":        gt.isRunning,
		"is_paused":         gt.isPaused,
		"systems_count":     systemsCount,
		"queued_commands":   len(gt.commands),
	}
}

// GetTickCount возвращает текущее количество тиков
func (gt *GameTicker) GetTickCount() uint64 {
	gt.stateMutex.RLock()
	defer gt.stateMutex.RUnlock()
	return gt.tickCount
}

// SystemsStats возвращает метрики всех систем
func (gt *GameTicker) SystemsStats() map[string]interface{} {
	return gt.perfMonitor.GetSystemsStats()
}

// Вспомогательные методы для мониторинга производительности
func (pm *PerformanceMonitor) initSystemMetrics(systemName string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	pm.systemMetrics[systemName] = &SystemMetrics{
		Name:        systemName,
		recentTimes: make([]time.Duration, pm.metricsWindow),
	}
}

func (pm *PerformanceMonitor) recordExecution(systemName string, executionTime time.Duration) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	metrics, exists := pm.systemMetrics[systemName]
	if !exists {
		return
	}

	metrics.LastExecutionTime = executionTime
	metrics.TotalExecutions++

	// Обновляем максимальное время
	if executionTime > metrics.MaxTime {
		metrics.MaxTime = executionTime
	}

	// Добавляем в скользящее окно
	metrics.recentTimes[metrics.recentIndex] = executionTime
	metrics.recentIndex = (metrics.recentIndex + 1) % pm.metricsWindow

	if !metrics.windowFilled && metrics.recentIndex == 0 {
		metrics.windowFilled = true
	}

	// Пересчитываем среднее время
	pm.recalculateAverage(metrics)
}

func (pm *PerformanceMonitor) recordError(systemName string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if metrics, exists := pm.systemMetrics[systemName]; exists {
		metrics.Errors++
	}
}

func (pm *PerformanceMonitor) recalculateAverage(metrics *SystemMetrics) {
	var total time.Duration
	var count int

	limit := pm.metricsWindow
	if !metrics.windowFilled {
		limit = metrics.recentIndex
	}

	for i := 0; i < limit; i++ {
		total += metrics.recentTimes[i]
		count++
	}

	if count > 0 {
		metrics.AverageTime = total / time.Duration(count)
	}
}

// Metrics возвращает копию метрик системы
func (pm *PerformanceMonitor) Metrics(systemName string) (SystemMetrics, bool) {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	m, ok := pm.systemMetrics[systemName]
	if !ok {
		return SystemMetrics{}, false
	}
	out := *m
	out.recentTimes = nil
	return out, true
}

func (pm *PerformanceMonitor) GetSystemsStats() map[string]interface{} {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	systemsStats := make(map[string]interface{})

	for name, metrics := range pm.systemMetrics {
		systemsStats[name] = map[string]interface{}{
			"last_execution_time": metrics.LastExecutionTime,
			"average_time":        metrics.AverageTime,
			"max_time":            metrics.MaxTime,
			"total_executions":    metrics.TotalExecutions,
			"errors":              metrics.Errors,
		}
	}

	return systemsStats
}

func (gt *GameTicker) updateTickMetrics(tickTime time.Duration) {
	gt.stateMutex.Lock()
	defer gt.stateMutex.Unlock()

	if tickTime > gt.maxObservedTick {
		gt.maxObservedTick = tickTime
	}

	// Простое скользящее среднее
	if gt.averageTickTime == 0 {
		gt.averageTickTime = tickTime
	} else {
		gt.averageTickTime = (gt.averageTickTime*9 + tickTime) / 10
	}
}

func (gt *GameTicker) checkPerformance(tickTime time.Duration) {
	if tickTime > gt.maxTickTime {
		gt.logger.Warn("Тик превысил максимальное время", "tick", tickTime, "max", gt.maxTickTime, "target", gt.tickDuration)
	} else if tickTime > gt.warningThreshold {
		gt.logger.Debug("Медленный тик", "tick", tickTime, "target", gt.tickDuration)
	}
}
