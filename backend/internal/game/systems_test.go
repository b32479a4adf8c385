package game

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/ballistics"
	"carnivores-ballistics/backend/internal/telemetry"
	"carnivores-ballistics/backend/internal/world"
)

type broadcast struct {
	tick        uint64
	gameTime    time.Duration
	projectiles []ballistics.ProjectileSnapshot
}

// mockBroadcaster запоминает рассылки
type mockBroadcaster struct {
	sent []broadcast
}

func (m *mockBroadcaster) BroadcastProjectiles(tick uint64, gameTime time.Duration, ps []ballistics.ProjectileSnapshot) error {
	m.sent = append(m.sent, broadcast{tick, gameTime, ps})
	return nil
}

func newTestScene(t *testing.T) *ballistics.Scene {
	t.Helper()
	m, err := world.NewFlatMap(64, 64, 4, 0)
	if err != nil {
		t.Fatalf("NewFlatMap: %v", err)
	}
	s, err := ballistics.NewScene(m, ballistics.DefaultSceneOptions(), testLogger())
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBallisticsSystem_ShotThroughTicker(t *testing.T) {
	scene := newTestScene(t)
	tm := telemetry.NewTelemetryManager(testLogger())
	scene.Manager().AddListener(tm)

	gt := NewGameTicker(60, testLogger())
	bs := NewBallisticsSystem(scene.Manager(), gt, testLogger())
	gt.RegisterSystem(bs)

	var (
		spawnErr error
		shot     *ballistics.Projectile
	)
	gt.Step(20 * time.Millisecond)
	gt.Enqueue(func() {
		shot, spawnErr = scene.Manager().Spawn(mgl64.Vec3{128, 10, 128}, mgl64.Vec3{0, -1, 0}, 50, 10)
	})

	gt.Step(20 * time.Millisecond)
	if spawnErr != nil {
		t.Fatalf("Spawn: %v", spawnErr)
	}
	if len(bs.Snapshot()) != 1 {
		t.Fatalf("после первого тика ожидался один снаряд, получено %d", len(bs.Snapshot()))
	}
	// Команда выполнена в начале тика, время выстрела - время этого тика
	if shot.SpawnTime() != gt.Elapsed() {
		t.Errorf("время выстрела %v, игровое время тика %v", shot.SpawnTime(), gt.Elapsed())
	}
	if bs.Stats().Spawned != 1 || bs.Stats().Active != 1 {
		t.Errorf("счетчики системы: %+v", bs.Stats())
	}

	for i := 0; i < 60 && tm.Stats().Impacts == 0; i++ {
		gt.Step(20 * time.Millisecond)
	}

	s := tm.Stats()
	if s.Impacts != 1 || s.BySurface["terrain"] != 1 {
		t.Fatalf("ожидалось одно попадание в рельеф: %+v", s)
	}
	if len(bs.Snapshot()) != 0 || bs.Stats().Impacts != 1 {
		t.Errorf("попавший снаряд должен быть удален: %+v", bs.Stats())
	}
	if scene.Manager().Now() != gt.Elapsed() {
		t.Errorf("время менеджера %v не совпадает с игровым %v", scene.Manager().Now(), gt.Elapsed())
	}
}

func TestNetworkSyncSystem_IntervalAndEmptyState(t *testing.T) {
	scene := newTestScene(t)
	gt := NewGameTicker(60, testLogger())
	bs := NewBallisticsSystem(scene.Manager(), gt, testLogger())
	mb := &mockBroadcaster{}
	nss := NewNetworkSyncSystem(bs, mb, gt, testLogger())
	nss.SetBroadcastInterval(40 * time.Millisecond)
	gt.RegisterSystem(nss)
	gt.RegisterSystem(bs)

	// Первая рассылка сразу, даже пустая
	gt.Step(20 * time.Millisecond)
	if len(mb.sent) != 1 || len(mb.sent[0].projectiles) != 0 {
		t.Fatalf("первая рассылка: %+v", mb.sent)
	}

	// Повторная пустая рассылка не нужна
	for i := 0; i < 4; i++ {
		gt.Step(20 * time.Millisecond)
	}
	if len(mb.sent) != 1 {
		t.Fatalf("пустое состояние не должно повторяться: %d рассылок", len(mb.sent))
	}

	gt.Enqueue(func() {
		scene.Manager().Spawn(mgl64.Vec3{128, 200, 128}, mgl64.Vec3{1, 0, 0}, 5, 1)
	})
	gt.Step(20 * time.Millisecond)
	if len(mb.sent) != 2 || len(mb.sent[1].projectiles) != 1 {
		t.Fatalf("рассылка после выстрела: %+v", mb.sent)
	}
	if mb.sent[1].tick != gt.GetTickCount() || mb.sent[1].gameTime != gt.Elapsed() {
		t.Errorf("метки рассылки: tick=%d time=%v", mb.sent[1].tick, mb.sent[1].gameTime)
	}

	// Внутри интервала рассылки нет
	gt.Step(20 * time.Millisecond)
	if len(mb.sent) != 2 {
		t.Errorf("рассылка раньше интервала: %d", len(mb.sent))
	}
	gt.Step(20 * time.Millisecond)
	if len(mb.sent) != 3 {
		t.Errorf("после интервала ожидалась рассылка: %d", len(mb.sent))
	}
}

func TestGameMetricsSystem_Runs(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	tm := telemetry.NewTelemetryManager(testLogger())
	gms := NewGameMetricsSystem(gt, tm, testLogger())
	gms.metricsInterval = 10 * time.Millisecond
	gt.RegisterSystem(gms)

	gt.Step(20 * time.Millisecond)
	gt.Step(20 * time.Millisecond)

	m, ok := gt.perfMonitor.Metrics("GameMetricsSystem")
	if !ok || m.TotalExecutions != 2 || m.Errors != 0 {
		t.Errorf("метрики системы: %+v", m)
	}
	if gms.lastMetricsLog != 40*time.Millisecond {
		t.Errorf("последний вывод метрик %v", gms.lastMetricsLog)
	}
}
