package game

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// mockSystem записывает порядок и дельты вызовов
type mockSystem struct {
	name     string
	priority int
	calls    *[]string
	deltas   []time.Duration
	err      error
	panics   bool
}

func (m *mockSystem) Update(deltaTime time.Duration) error {
	if m.panics {
		panic("сбой системы")
	}
	m.deltas = append(m.deltas, deltaTime)
	if m.calls != nil {
		*m.calls = append(*m.calls, m.name)
	}
	return m.err
}

func (m *mockSystem) GetName() string  { return m.name }
func (m *mockSystem) GetPriority() int { return m.priority }

func TestGameTicker_SystemsRunByPriority(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	var calls []string
	gt.RegisterSystem(&mockSystem{name: "late", priority: 100, calls: &calls})
	gt.RegisterSystem(&mockSystem{name: "early", priority: 1, calls: &calls})
	gt.RegisterSystem(&mockSystem{name: "middle", priority: 50, calls: &calls})

	gt.Step(16 * time.Millisecond)

	want := []string{"early", "middle", "late"}
	if len(calls) != len(want) {
		t.Fatalf("ожидалось %v, получено %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("позиция %d: ожидалось %s, получено %s", i, want[i], calls[i])
		}
	}
}

func TestGameTicker_StepAdvancesClock(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	sys := &mockSystem{name: "s"}
	gt.RegisterSystem(sys)

	gt.Step(20 * time.Millisecond)
	gt.Step(30 * time.Millisecond)

	if gt.Elapsed() != 50*time.Millisecond {
		t.Errorf("игровое время %v, ожидалось 50ms", gt.Elapsed())
	}
	if gt.GetTickCount() != 2 {
		t.Errorf("тиков %d, ожидалось 2", gt.GetTickCount())
	}
	if len(sys.deltas) != 2 || sys.deltas[1] != 30*time.Millisecond {
		t.Errorf("дельты системы: %v", sys.deltas)
	}
}

func TestGameTicker_CommandsRunBeforeSystems(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	var calls []string
	gt.RegisterSystem(&mockSystem{name: "system", calls: &calls})

	if err := gt.Enqueue(func() { calls = append(calls, "command") }); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	gt.Step(time.Millisecond)

	if len(calls) != 2 || calls[0] != "command" || calls[1] != "system" {
		t.Fatalf("команды должны выполняться до систем: %v", calls)
	}

	gt.Step(time.Millisecond)
	if len(calls) != 3 {
		t.Errorf("команда не должна выполняться повторно: %v", calls)
	}
}

func TestGameTicker_QueueFull(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	for i := 0; i < DefaultCommandQueue; i++ {
		if err := gt.Enqueue(func() {}); err != nil {
			t.Fatalf("команда %d: %v", i, err)
		}
	}
	if err := gt.Enqueue(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("ожидалась ErrQueueFull, получено %v", err)
	}

	gt.Step(time.Millisecond)
	if err := gt.Enqueue(func() {}); err != nil {
		t.Errorf("после тика очередь должна освободиться: %v", err)
	}
}

func TestGameTicker_RecoversPanicsAndCountsErrors(t *testing.T) {
	gt := NewGameTicker(60, testLogger())
	gt.RegisterSystem(&mockSystem{name: "panicky", panics: true})
	gt.RegisterSystem(&mockSystem{name: "failing", err: errors.New("ошибка"), priority: 1})
	after := &mockSystem{name: "after", priority: 2}
	gt.RegisterSystem(after)

	gt.Enqueue(func() { panic("сбой команды") })
	gt.Step(time.Millisecond)

	if len(after.deltas) != 1 {
		t.Error("паника одной системы не должна останавливать тик")
	}
	for _, name := range []string{"panicky", "failing"} {
		m, ok := gt.perfMonitor.Metrics(name)
		if !ok || m.Errors != 1 {
			t.Errorf("%s: ожидалась одна ошибка, метрики %+v", name, m)
		}
	}
	if m, _ := gt.perfMonitor.Metrics("after"); m.TotalExecutions != 1 {
		t.Errorf("after: выполнений %d", m.TotalExecutions)
	}
}

func TestGameTicker_StartStop(t *testing.T) {
	gt := NewGameTicker(200, testLogger())
	var mu sync.Mutex
	ticks := 0
	done := make(chan struct{})
	gt.RegisterSystem(&countingSystem{fn: func() {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		if ticks == 3 {
			close(done)
		}
	}})

	if err := gt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("цикл не выполнил три тика")
	}
	gt.Stop()

	stats := gt.GetStats()
	if stats["is_running"] != false {
		t.Error("после Stop цикл не должен работать")
	}
	if gt.Elapsed() <= 0 {
		t.Error("игровое время должно расти")
	}
	if err := gt.Start(); err == nil {
		t.Error("остановленный тикер не перезапускается")
	}
}

// Во время паузы тики не выполняются и игровое время не растет
func TestGameTicker_PauseFreezesClock(t *testing.T) {
	gt := NewGameTicker(200, testLogger())
	if err := gt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer gt.Stop()

	time.Sleep(50 * time.Millisecond)
	gt.Pause(true)
	// Даем циклу принять паузу и завершить уже начатый тик
	time.Sleep(30 * time.Millisecond)

	pausedAt := gt.Elapsed()
	pausedTicks := gt.GetTickCount()
	if pausedAt <= 0 {
		t.Fatal("до паузы игровое время должно расти")
	}
	if gt.GetStats()["is_paused"] != true {
		t.Error("статистика должна отражать паузу")
	}

	const pause = 300 * time.Millisecond
	time.Sleep(pause)
	if gt.Elapsed() != pausedAt || gt.GetTickCount() != pausedTicks {
		t.Fatalf("на паузе время изменилось: %v -> %v, тики %d -> %d",
			pausedAt, gt.Elapsed(), pausedTicks, gt.GetTickCount())
	}

	gt.Pause(false)
	deadline := time.Now().Add(2 * time.Second)
	for gt.GetTickCount() == pausedTicks && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	resumed := gt.Elapsed() - pausedAt
	if resumed <= 0 {
		t.Fatal("после возобновления время должно расти")
	}
	// Время паузы не попадает в игровое время
	if resumed >= pause {
		t.Errorf("после паузы игровое время выросло на %v, пауза длилась %v", resumed, pause)
	}
}

type countingSystem struct {
	fn func()
}

func (c *countingSystem) Update(time.Duration) error { c.fn(); return nil }
func (c *countingSystem) GetName() string            { return "counting" }
func (c *countingSystem) GetPriority() int           { return 0 }

func TestPerformanceMonitor_SlidingAverage(t *testing.T) {
	pm := NewPerformanceMonitor(2, time.Millisecond)
	pm.initSystemMetrics("s")

	pm.recordExecution("s", 10*time.Millisecond)
	pm.recordExecution("s", 20*time.Millisecond)
	pm.recordExecution("s", 40*time.Millisecond)

	m, ok := pm.Metrics("s")
	if !ok {
		t.Fatal("метрики не найдены")
	}
	if m.AverageTime != 30*time.Millisecond {
		t.Errorf("среднее по окну %v, ожидалось 30ms", m.AverageTime)
	}
	if m.MaxTime != 40*time.Millisecond || m.TotalExecutions != 3 {
		t.Errorf("метрики: %+v", m)
	}
}
