package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

type countingManager struct {
	mu    sync.Mutex
	ticks int
}

func (m *countingManager) Tick(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	return nil
}

func (m *countingManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

type failingManager struct {
	err error
}

func (m *failingManager) Tick(context.Context) error { return m.err }

func TestTownDriver_Tick(t *testing.T) {
	a := &countingManager{}
	b := &countingManager{}
	d := NewTownDriver([]Manager{a, b})

	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "a ticks", a.count(), 1)
	testutil.AssertEqual(t, "b ticks", b.count(), 1)
}

func TestTownDriver_TickError(t *testing.T) {
	boom := errors.New("boom")
	d := NewTownDriver([]Manager{&failingManager{err: boom}, &countingManager{}})

	if err := d.Tick(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestTownDriver_Start(t *testing.T) {
	m := &countingManager{}
	d := NewTownDriver([]Manager{m}, WithTickLength(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One startup pass plus at least one ticker pass.
	if m.count() < 2 {
		t.Errorf("expected at least 2 ticks, got %d", m.count())
	}
}

func TestTownDriver_StartStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	d := NewTownDriver([]Manager{&failingManager{err: boom}})

	if err := d.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}
