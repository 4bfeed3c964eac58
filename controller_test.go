package yogafanctl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"yogafanctl/ec"
)

// gatewayStats is shared across all fake gateways a test's factory produces.
type gatewayStats struct {
	opens     atomic.Int32
	closes    atomic.Int32
	transacts atomic.Int32
	inSession atomic.Bool
	overlap   atomic.Bool
}

// fakeGateway wraps the in-memory EC with lifecycle accounting and failure
// injection.
type fakeGateway struct {
	*DummyGateway
	stats   *gatewayStats
	openErr error
	opened  bool
}

func (g *fakeGateway) Open() error {
	g.stats.opens.Add(1)
	if g.openErr != nil {
		return g.openErr
	}

	if !g.stats.inSession.CompareAndSwap(false, true) {
		g.stats.overlap.Store(true)
	}
	g.opened = true
	return nil
}

func (g *fakeGateway) Close() error {
	g.stats.closes.Add(1)
	if g.opened {
		g.stats.inSession.Store(false)
		g.opened = false
	}
	return nil
}

func (g *fakeGateway) WritePort(port uint16, value byte) error {
	if port == ec.PortCmd {
		g.stats.transacts.Add(1)
	}
	return g.DummyGateway.WritePort(port, value)
}

func newTestController(t *testing.T, openErr error) (*Controller, *gatewayStats, *DummyGateway) {
	t.Helper()

	stats := &gatewayStats{}
	sim := NewDummyGateway()
	ctrl := New(DefaultConfig(), func() Gateway {
		return &fakeGateway{DummyGateway: sim, stats: stats, openErr: openErr}
	})
	return ctrl, stats, sim
}

func TestController_SetFansSuccess(t *testing.T) {
	ctrl, stats, sim := newTestController(t, nil)

	r, err := ctrl.SetFans(70, 70)
	if err != nil {
		t.Fatalf("SetFans() error: %v", err)
	}
	if !r.Fan1 || !r.Fan2 {
		t.Fatalf("result=%+v want both fans acknowledged", r)
	}
	if r.Applied1 != 70 || r.Applied2 != 70 {
		t.Fatalf("applied=%d/%d want 70/70", r.Applied1, r.Applied2)
	}
	if sim.fan1 != 70 || sim.fan2 != 70 {
		t.Fatalf("simulated EC fans=%d/%d want 70/70", sim.fan1, sim.fan2)
	}

	if n := stats.transacts.Load(); n != 2 {
		t.Fatalf("transacts=%d want 2", n)
	}
	if stats.opens.Load() != 1 || stats.closes.Load() != 1 {
		t.Fatalf("opens=%d closes=%d want 1/1", stats.opens.Load(), stats.closes.Load())
	}
	if ctrl.State().AutoMode.Load() {
		t.Fatal("auto mode flag should clear after a manual set")
	}
}

func TestController_SetFansClampsBeforeTransact(t *testing.T) {
	ctrl, _, sim := newTestController(t, nil)

	r, err := ctrl.SetFans(5, 5)
	if err != nil {
		t.Fatalf("SetFans() error: %v", err)
	}
	if r.Applied1 != MinFanSpeed || r.Applied2 != MinFanSpeed {
		t.Fatalf("applied=%d/%d want %d/%d", r.Applied1, r.Applied2, MinFanSpeed, MinFanSpeed)
	}
	if sim.fan1 != MinFanSpeed || sim.fan2 != MinFanSpeed {
		t.Fatalf("simulated EC fans=%d/%d want clamped to %d", sim.fan1, sim.fan2, MinFanSpeed)
	}
}

func TestController_OpenFailurePropagatesAndTearsDown(t *testing.T) {
	errInstall := errors.New("driver binary not found")
	ctrl, stats, _ := newTestController(t, errInstall)

	_, _, err := ctrl.ReadFans()
	if !errors.Is(err, errInstall) {
		t.Fatalf("ReadFans() error=%v want %v untouched", err, errInstall)
	}

	if n := stats.transacts.Load(); n != 0 {
		t.Fatalf("transacts=%d want 0", n)
	}
	if n := stats.closes.Load(); n != 1 {
		t.Fatalf("closes=%d want exactly 1", n)
	}
}

func TestController_SessionHygiene(t *testing.T) {
	ctrl, stats, _ := newTestController(t, nil)

	ctrl.SetFans(40, 40)
	ctrl.ReadFans()
	ctrl.RestoreAuto()

	if stats.opens.Load() != stats.closes.Load() {
		t.Fatalf("opens=%d closes=%d: a driver service survived a call",
			stats.opens.Load(), stats.closes.Load())
	}
	if stats.opens.Load() != 3 {
		t.Fatalf("opens=%d want one session per call", stats.opens.Load())
	}
}

func TestController_MutualExclusion(t *testing.T) {
	ctrl, stats, _ := newTestController(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := ctrl.SetFans(30, 30); err != nil {
					t.Errorf("SetFans() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if stats.overlap.Load() {
		t.Fatal("two gateway sessions overlapped")
	}
	if stats.opens.Load() != stats.closes.Load() {
		t.Fatalf("opens=%d closes=%d", stats.opens.Load(), stats.closes.Load())
	}
}

func TestController_RejectedSetReportsFlags(t *testing.T) {
	stats := &gatewayStats{}
	sim := NewDummyGateway()
	ctrl := New(DefaultConfig(), func() Gateway {
		return &corruptGateway{fakeGateway{DummyGateway: sim, stats: stats}}
	})

	r, err := ctrl.SetFans(40, 40)
	if err != nil {
		t.Fatalf("SetFans() error: %v", err)
	}
	if r.Fan1 || r.Fan2 {
		t.Fatalf("result=%+v want both fans rejected", r)
	}

	// A rejected ack still attempts the second channel and still tears down.
	if n := stats.transacts.Load(); n != 2 {
		t.Fatalf("transacts=%d want 2", n)
	}
	if stats.opens.Load() != stats.closes.Load() {
		t.Fatalf("opens=%d closes=%d", stats.opens.Load(), stats.closes.Load())
	}
}

// corruptGateway mangles the EC's success byte so acknowledgements never
// match.
type corruptGateway struct {
	fakeGateway
}

func (g *corruptGateway) ReadPort(port uint16) (byte, error) {
	b, err := g.fakeGateway.ReadPort(port)
	if port == ec.PortData && b == ec.SuccessCode {
		b = 0x00
	}
	return b, err
}

func TestController_RestoreAutoResetsFlags(t *testing.T) {
	ctrl, _, sim := newTestController(t, nil)

	ctrl.State().SafeConfirmed.Store(true)
	if _, err := ctrl.SetFans(60, 60); err != nil {
		t.Fatalf("SetFans() error: %v", err)
	}

	if err := ctrl.RestoreAuto(); err != nil {
		t.Fatalf("RestoreAuto() error: %v", err)
	}
	if !sim.auto {
		t.Fatal("simulated EC not back in auto mode")
	}
	if !ctrl.State().AutoMode.Load() {
		t.Fatal("auto mode flag not set")
	}
	if ctrl.State().SafeConfirmed.Load() {
		t.Fatal("safe-max confirmation should reset on restore")
	}
}

func TestController_ExceedsSafeMax(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil) // safe_max 48

	cases := []struct {
		f1, f2 int
		want   bool
	}{
		{30, 30, false},
		{48, 48, false},
		{49, 30, true},
		{30, 70, true},
		{5, 5, false}, // clamps to 18
		{101, 0, true},
	}

	for _, c := range cases {
		if got := ctrl.ExceedsSafeMax(c.f1, c.f2); got != c.want {
			t.Errorf("ExceedsSafeMax(%d, %d)=%v want %v", c.f1, c.f2, got, c.want)
		}
	}
}

func TestController_HoldResendsUntilCancelled(t *testing.T) {
	ctrl, stats, sim := newTestController(t, nil)
	ctrl.cfg.HoldInterval = Duration{10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	ctrl.Hold(ctx, 40, 40)

	if ctrl.State().HoldActive.Load() {
		t.Fatal("hold flag still set after the loop exited")
	}
	// Initial send plus at least a few re-sends, two transactions each.
	if n := stats.transacts.Load(); n < 6 {
		t.Fatalf("transacts=%d want at least 6", n)
	}
	if sim.fan1 != 40 || sim.fan2 != 40 {
		t.Fatalf("simulated EC fans=%d/%d want 40/40", sim.fan1, sim.fan2)
	}
}

func TestController_MonitorEmitsAndCloses(t *testing.T) {
	ctrl, _, sim := newTestController(t, nil)
	ctrl.cfg.MonitorInterval = Duration{5 * time.Millisecond}
	sim.fan1, sim.fan2 = 33, 44

	ctx, cancel := context.WithCancel(context.Background())
	ch := ctrl.Monitor(ctx)

	s, ok := <-ch
	if !ok {
		t.Fatal("monitor channel closed before the first sample")
	}
	if s.Fan1 != 33 || s.Fan2 != 44 {
		t.Fatalf("status=%+v want fans 33/44", s)
	}

	cancel()
	for range ch {
	}
}

func TestController_ForceTeardown(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)

	// Safe with nothing wired.
	if err := ctrl.ForceTeardown(); err != nil {
		t.Fatalf("ForceTeardown() error: %v", err)
	}

	var called bool
	ctrl.SetTeardown(func() error {
		called = true
		return nil
	})
	if err := ctrl.ForceTeardown(); err != nil {
		t.Fatalf("ForceTeardown() error: %v", err)
	}
	if !called {
		t.Fatal("teardown hook not invoked")
	}
}

func TestController_ForceRestoreAutoWithoutSession(t *testing.T) {
	ctrl, stats, _ := newTestController(t, nil)

	if err := ctrl.ForceRestoreAuto(); err != nil {
		t.Fatalf("ForceRestoreAuto() error: %v", err)
	}
	if stats.opens.Load() != stats.closes.Load() {
		t.Fatalf("opens=%d closes=%d", stats.opens.Load(), stats.closes.Load())
	}
}
