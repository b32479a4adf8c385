package heightfield

import (
	"errors"
	"io"
	"math"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"

	"carnivores-ballistics/backend/internal/physics"
	"carnivores-ballistics/backend/internal/terrain"
	"carnivores-ballistics/backend/internal/world"
)

// newTestRegistry строит карту 64x64 тайла по 1 м с разделами 32x32 (четыре раздела)
func newTestRegistry(t *testing.T, cfg Config) (*Registry, *physics.World, *terrain.Grid) {
	t.Helper()
	logger := log.New(io.Discard)

	m, err := world.NewFlatMap(64, 64, 1, 0)
	if err != nil {
		t.Fatalf("NewFlatMap: %v", err)
	}
	m.SetGroundHeight(40, 10, 7)

	grid, err := terrain.NewGrid(m, 32)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	w, err := physics.NewWorld(physics.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return NewRegistry(grid, w, cfg, logger), w, grid
}

func TestRegistry_BuildRegistersEveryPartition(t *testing.T) {
	r, w, grid := newTestRegistry(t, DefaultConfig())
	if r.Registered() {
		t.Fatal("до Build реестр не должен считаться зарегистрированным")
	}
	if err := r.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !r.Registered() {
		t.Fatal("после Build реестр должен быть зарегистрирован")
	}
	if w.NumBodies() != grid.NumPartitions() {
		t.Fatalf("тел в мире %d, разделов %d", w.NumBodies(), grid.NumPartitions())
	}
	if err := r.Build(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("повторный Build: %v", err)
	}

	for i := 0; i < grid.NumPartitions(); i++ {
		b, ok := r.Body(i)
		if !ok || b.Info().Surface != physics.SurfaceTerrain || b.Info().Partition != i || !b.IsStatic() {
			t.Errorf("раздел %d: некорректное тело %+v", i, b.Info())
		}
	}

	hit, ok := w.Raycast(mgl64.Vec3{40.5, 50, 10.5}, mgl64.Vec3{40.5, -50, 10.5})
	if !ok {
		t.Fatal("луч не попал в поле высот")
	}
	if hit.Info.Partition != 1 || math.Abs(hit.Point.Y()-7) > 1e-9 {
		t.Errorf("попадание %v в раздел %d", hit.Point, hit.Info.Partition)
	}

	hit, ok = w.Raycast(mgl64.Vec3{10.5, 50, 50.5}, mgl64.Vec3{10.5, -50, 50.5})
	if !ok || hit.Info.Partition != 2 || math.Abs(hit.Point.Y()) > 1e-9 {
		t.Errorf("раздел 2: %+v %v", hit.Info, ok)
	}
}

func TestRegistry_ActivationHysteresis(t *testing.T) {
	r, _, _ := newTestRegistry(t, Config{ActivationRadius: 20, HysteresisFraction: 0.1})
	if err := r.Build(); err != nil {
		t.Fatal(err)
	}

	if !r.UpdateReference(mgl64.Vec3{16, 0, 16}) {
		t.Fatal("первый вызов всегда пересчитывает набор")
	}
	if got := r.ActivePartitions(); !slices.Equal(got, []int{0}) {
		t.Errorf("активные разделы: %v", got)
	}

	// Смещение меньше 10% радиуса не пересчитывает набор
	if r.UpdateReference(mgl64.Vec3{17, 0, 17}) {
		t.Error("смещение в пределах гистерезиса не должно пересчитывать набор")
	}
	if ref, _ := r.Reference(); ref != (mgl64.Vec3{16, 0, 16}) {
		t.Errorf("опорная точка не должна меняться: %v", ref)
	}

	if !r.UpdateReference(mgl64.Vec3{32, 500, 16}) {
		t.Fatal("смещение за порог должно пересчитать набор")
	}
	if got := r.ActivePartitions(); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("активные разделы после смещения: %v", got)
	}
	if !r.IsActive(1) || r.IsActive(3) || r.IsActive(-1) || r.IsActive(99) {
		t.Error("IsActive не совпадает с набором")
	}
	if r.Recomputes() != 2 {
		t.Errorf("Recomputes = %d", r.Recomputes())
	}
}

func TestRegistry_AdvisoryQueries(t *testing.T) {
	r, w, _ := newTestRegistry(t, Config{ActivationRadius: 20, HysteresisFraction: 0.1})
	if err := r.Build(); err != nil {
		t.Fatal(err)
	}
	r.UpdateReference(mgl64.Vec3{16, 0, 16})

	got := r.ActivePartitionsForRay(mgl64.Vec3{1, 10, 16}, mgl64.Vec3{63, 10, 16})
	if !slices.Equal(got, []int{0}) {
		t.Errorf("ActivePartitionsForRay: %v", got)
	}
	if got := r.ActivePartitionsForRay(mgl64.Vec3{40, 10, 40}, mgl64.Vec3{60, 10, 60}); len(got) != 0 {
		t.Errorf("луч через неактивный раздел: %v", got)
	}

	if got := r.ActivePartitionsForArea(mgl64.Vec3{34, 0, 16}, 3); !slices.Equal(got, []int{0}) {
		t.Errorf("ActivePartitionsForArea: %v", got)
	}
	if got := r.ActivePartitionsForArea(mgl64.Vec3{40, 0, 40}, 3); len(got) != 0 {
		t.Errorf("область вне активных разделов: %v", got)
	}

	// Неактивный раздел по-прежнему участвует в столкновениях
	hit, ok := w.Raycast(mgl64.Vec3{50.5, 20, 50.5}, mgl64.Vec3{50.5, -20, 50.5})
	if !ok || hit.Info.Partition != 3 {
		t.Errorf("неактивный раздел должен оставаться в мире: %+v %v", hit.Info, ok)
	}
}

func TestRegistry_Close(t *testing.T) {
	r, w, _ := newTestRegistry(t, DefaultConfig())
	if err := r.Build(); err != nil {
		t.Fatal(err)
	}
	b, _ := r.Body(0)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Registered() || w.NumBodies() != 0 || !b.Freed() {
		t.Error("Close должен удалить поля высот из мира")
	}
	if err := r.Build(); !errors.Is(err, ErrClosed) {
		t.Errorf("Build после Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("повторный Close: %v", err)
	}
}
