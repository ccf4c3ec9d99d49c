package countdown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock   *fakeClock
	ticker  *fakeTicker
	ticks   chan Tick
	expires atomic.Int32
	expired chan struct{}
}

func newHarness() *harness {
	return &harness{
		clock:   &fakeClock{now: time.UnixMilli(1_700_000_000_000)},
		ticker:  &fakeTicker{ch: make(chan time.Time, 8)},
		ticks:   make(chan Tick, 64),
		expired: make(chan struct{}, 8),
	}
}

func (h *harness) timer(expiresAt time.Time) *Timer {
	return New(expiresAt, Config{
		Grace:     5 * time.Second,
		Now:       h.clock.Now,
		NewTicker: func(time.Duration) Ticker { return h.ticker },
		OnTick:    func(tk Tick) { h.ticks <- tk },
		OnExpire: func() {
			h.expires.Add(1)
			h.expired <- struct{}{}
		},
	})
}

func (h *harness) nextTick(t *testing.T) Tick {
	t.Helper()
	select {
	case tk := <-h.ticks:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
	}
	return Tick{}
}

func TestFormatFloorsAndNeverNegative(t *testing.T) {
	require.Equal(t, "01:00", Format(time.Minute))
	require.Equal(t, "00:59", Format(59*time.Second+999*time.Millisecond))
	require.Equal(t, "12:05", Format(12*time.Minute+5*time.Second))
	require.Equal(t, "00:00", Format(-3*time.Second))
	require.Equal(t, "120:00", Format(2*time.Hour))
}

func TestGraceWindow(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	grace := 5000 * time.Millisecond

	require.False(t, Overdue(now.Add(-3000*time.Millisecond), now, grace))
	require.True(t, Overdue(now.Add(-6000*time.Millisecond), now, grace))
	require.False(t, Overdue(now.Add(-5000*time.Millisecond), now, grace))
}

func TestTimerTicksThenExpiresOnce(t *testing.T) {
	h := newHarness()
	tm := h.timer(h.clock.Now().Add(2 * time.Second))
	require.NoError(t, tm.Start())

	first := h.nextTick(t)
	require.Equal(t, "00:02", first.Display)
	require.Equal(t, Running, tm.State())

	// Nominal zero: still inside the grace window.
	h.clock.Advance(4 * time.Second)
	h.ticker.ch <- time.Time{}
	tk := h.nextTick(t)
	require.Equal(t, "00:00", tk.Display)
	require.Equal(t, time.Duration(0), tk.Remaining)
	require.Equal(t, Running, tm.State())

	h.clock.Advance(4 * time.Second)
	h.ticker.ch <- time.Time{}
	h.ticker.ch <- time.Time{}
	h.ticker.ch <- time.Time{}

	select {
	case <-h.expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never expired")
	}
	<-tm.Done()
	require.Equal(t, Expired, tm.State())
	require.True(t, h.ticker.stopped.Load())
	require.EqualValues(t, 1, h.expires.Load())

	tm.Stop()
	require.Equal(t, Expired, tm.State())
}

func TestTimerAlreadyOverdueExpiresImmediately(t *testing.T) {
	h := newHarness()
	tm := h.timer(h.clock.Now().Add(-10 * time.Second))
	require.NoError(t, tm.Start())

	select {
	case <-h.expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected immediate expiry")
	}
	require.ErrorIs(t, tm.Start(), ErrAlreadyStarted)
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	h := newHarness()
	tm := h.timer(h.clock.Now().Add(time.Minute))
	require.NoError(t, tm.Start())
	h.nextTick(t)

	tm.Stop()
	<-tm.Done()
	require.Equal(t, Stopped, tm.State())
	require.True(t, h.ticker.stopped.Load())

	h.ticker.ch <- time.Time{}
	select {
	case tk := <-h.ticks:
		t.Fatalf("unexpected tick after stop: %+v", tk)
	case <-time.After(50 * time.Millisecond):
	}
	require.EqualValues(t, 0, h.expires.Load())
}

func TestStopBeforeStart(t *testing.T) {
	h := newHarness()
	tm := h.timer(h.clock.Now().Add(time.Minute))
	tm.Stop()
	<-tm.Done()
	require.Equal(t, Stopped, tm.State())
	require.ErrorIs(t, tm.Start(), ErrAlreadyStarted)
}

func TestStopFromExpireCallback(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	var tm *Timer
	fired := make(chan struct{})
	tm = New(clock.Now().Add(-time.Minute), Config{
		Now:       clock.Now,
		NewTicker: func(time.Duration) Ticker { return &fakeTicker{ch: make(chan time.Time)} },
		OnExpire: func() {
			tm.Stop()
			close(fired)
		},
	})
	require.NoError(t, tm.Start())
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expire callback deadlocked")
	}
	require.Equal(t, Expired, tm.State())
}
