package telemetry

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/ballistics"
)

// Kind тип записи телеметрии
const (
	KindImpact = "impact"
	KindFace   = "face"
	KindExpire = "expire"
)

// TelemetryData одна запись о событии снаряда
type TelemetryData struct {
	Timestamp    int64      `json:"timestamp"` // Игровое время в миллисекундах
	Kind         string     `json:"kind"`
	ProjectileID uint64     `json:"projectile_id"`
	Position     mgl64.Vec3 `json:"position"`
	Surface      string     `json:"surface,omitempty"`
	Tier         string     `json:"tier,omitempty"`
	Distance     float64    `json:"distance,omitempty"`
	Object       string     `json:"object,omitempty"`
	Tile         *[2]int    `json:"tile,omitempty"`
}

// Stats накопленные счетчики с момента последнего Clear
type Stats struct {
	Impacts   int            `json:"impacts"`
	Faces     int            `json:"faces"`
	Expired   int            `json:"expired"`
	BySurface map[string]int `json:"by_surface"`
	ByTier    map[string]int `json:"by_tier"`
}

// TelemetryManager собирает события снарядов и периодически печатает сводку.
// Подписывается на менеджер снарядов как ballistics.Listener.
type TelemetryManager struct {
	enabled    bool
	data       []TelemetryData
	mutex      sync.RWMutex
	maxEntries int
	logger     *log.Logger

	stats Stats

	// Счетчики интервала сводки, сбрасываются после печати
	counters      map[string]int
	lastPrint     time.Time
	printInterval time.Duration
	now           func() time.Time
}

// NewTelemetryManager создает новый менеджер телеметрии
func NewTelemetryManager(logger *log.Logger) *TelemetryManager {
	if logger == nil {
		logger = log.Default()
	}
	return &TelemetryManager{
		enabled:       true,
		data:          make([]TelemetryData, 0),
		maxEntries:    200, // Храним последние 200 записей
		logger:        logger.WithPrefix("Telemetry"),
		stats:         newStats(),
		counters:      make(map[string]int),
		lastPrint:     time.Now(),
		printInterval: 2 * time.Second,
		now:           time.Now,
	}
}

func newStats() Stats {
	return Stats{BySurface: make(map[string]int), ByTier: make(map[string]int)}
}

// SetPrintInterval меняет период сводки
func (tm *TelemetryManager) SetPrintInterval(d time.Duration) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.printInterval = d
}

// OnImpact записывает попадание
func (tm *TelemetryManager) OnImpact(e ballistics.ImpactEvent) {
	entry := TelemetryData{
		Timestamp:    e.Time.Milliseconds(),
		Kind:         KindImpact,
		ProjectileID: e.ProjectileID,
		Position:     e.Position,
		Surface:      e.Surface.String(),
		Tier:         e.Tier.String(),
		Distance:     e.Distance,
		Object:       e.Ref.Name,
	}
	if e.HasTile {
		entry.Tile = &[2]int{e.TileX, e.TileZ}
	}

	tm.record(entry, func() {
		tm.stats.Impacts++
		tm.stats.BySurface[entry.Surface]++
		tm.stats.ByTier[entry.Tier]++
		tm.counters["impact_"+entry.Surface]++
	})
}

// OnFaceIntersection записывает диагностическое пересечение поверхности
func (tm *TelemetryManager) OnFaceIntersection(f ballistics.FaceIntersection) {
	entry := TelemetryData{
		Kind:         KindFace,
		ProjectileID: f.ProjectileID,
		Position:     f.Position,
		Surface:      f.Surface.String(),
		Tier:         f.Tier.String(),
		Distance:     f.Distance,
		Object:       f.ObjectName,
	}
	if f.HasTile {
		entry.Tile = &[2]int{f.TileX, f.TileZ}
	}

	tm.record(entry, func() {
		tm.stats.Faces++
		tm.counters["face_"+entry.Tier]++
	})
}

// OnExpire записывает снаряд, истекший без попадания
func (tm *TelemetryManager) OnExpire(e ballistics.ExpireEvent) {
	entry := TelemetryData{
		Timestamp:    e.Time.Milliseconds(),
		Kind:         KindExpire,
		ProjectileID: e.ProjectileID,
		Position:     e.Position,
	}
	tm.record(entry, func() {
		tm.stats.Expired++
		tm.counters[KindExpire]++
	})
}

func (tm *TelemetryManager) record(entry TelemetryData, count func()) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}

	tm.data = append(tm.data, entry)
	// Ограничиваем размер буфера
	if len(tm.data) > tm.maxEntries {
		tm.data = tm.data[len(tm.data)-tm.maxEntries:]
	}
	count()
}

// PrintSummary выводит сводку, если прошел интервал печати. Возвращает true, если сводка напечатана.
func (tm *TelemetryManager) PrintSummary() bool {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return false
	}
	now := tm.now()
	if now.Sub(tm.lastPrint) < tm.printInterval {
		return false
	}

	tm.logger.Info("Сводка телеметрии",
		"entries", len(tm.data),
		"impacts", tm.stats.Impacts,
		"faces", tm.stats.Faces,
		"expired", tm.stats.Expired)
	for key, count := range tm.counters {
		tm.logger.Debug("Счетчик", "key", key, "count", count)
	}
	tm.printRecentImpacts(5)

	tm.counters = make(map[string]int)
	tm.lastPrint = now
	return true
}

// printRecentImpacts выводит последние попадания, новые первыми
func (tm *TelemetryManager) printRecentImpacts(limit int) {
	for i := len(tm.data) - 1; i >= 0 && limit > 0; i-- {
		e := tm.data[i]
		if e.Kind != KindImpact {
			continue
		}
		limit--
		tm.logger.Debug("Попадание",
			"projectile", e.ProjectileID,
			"surface", e.Surface,
			"tier", e.Tier,
			"pos", e.Position,
			"distance", e.Distance,
			"object", e.Object)
	}
}

// Stats возвращает копию накопленных счетчиков
func (tm *TelemetryManager) Stats() Stats {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	s := tm.stats
	s.BySurface = maps.Clone(tm.stats.BySurface)
	s.ByTier = maps.Clone(tm.stats.ByTier)
	return s
}

// Recent возвращает сохраненные записи, старые первыми
func (tm *TelemetryManager) Recent() []TelemetryData {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	out := make([]TelemetryData, len(tm.data))
	copy(out, tm.data)
	return out
}

// GetTelemetryJSON возвращает телеметрию в JSON формате
func (tm *TelemetryManager) GetTelemetryJSON() (string, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	jsonData, err := json.MarshalIndent(struct {
		Stats   Stats           `json:"stats"`
		Entries []TelemetryData `json:"entries"`
	}{tm.stats, tm.data}, "", "  ")
	if err != nil {
		return "", err
	}

	return string(jsonData), nil
}

// SetEnabled включает/выключает телеметрию
func (tm *TelemetryManager) SetEnabled(enabled bool) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	tm.enabled = enabled
	tm.logger.Info("Телеметрия переключена", "enabled", enabled)
}

// Clear очищает все данные телеметрии
func (tm *TelemetryManager) Clear() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	tm.data = make([]TelemetryData, 0)
	tm.stats = newStats()
	tm.counters = make(map[string]int)
	tm.logger.Info("Данные телеметрии очищены")
}
