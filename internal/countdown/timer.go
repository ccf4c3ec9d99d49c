// Package countdown drives the per-attempt countdown with a grace window.
package countdown

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultInterval = time.Second
	DefaultGrace    = 5 * time.Second
)

// ErrAlreadyStarted is returned when Start is called on a timer that left Idle.
var ErrAlreadyStarted = errors.New("countdown already started")

// State of a Timer.
type State int32

const (
	Idle State = iota
	Running
	Expired
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Expired:
		return "expired"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Ticker is the periodic tick source; Stop must release it.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Tick is what the display receives on every evaluation.
type Tick struct {
	Remaining time.Duration
	Display   string
}

// Config tunes a Timer. Zero values pick the defaults.
type Config struct {
	Interval  time.Duration
	Grace     time.Duration
	Now       func() time.Time
	NewTicker TickerFunc
	// OnTick runs with the timer locked and must not call back into the Timer.
	OnTick func(Tick)
	// OnExpire runs at most once, after the timer has left Running.
	OnExpire func()
}

// Timer counts down to an expiry instant.
type Timer struct {
	cfg       Config
	expiresAt time.Time

	mu     sync.Mutex
	state  State
	ticker Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New creates an idle timer for expiresAt.
func New(expiresAt time.Time, cfg Config) *Timer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTicker
	}
	return &Timer{
		cfg:       cfg,
		expiresAt: expiresAt,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start evaluates the countdown immediately and then once per interval.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.state != Idle {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.state = Running
	t.ticker = t.cfg.NewTicker(t.cfg.Interval)
	t.mu.Unlock()

	go t.run()
	return nil
}

// Stop tears the timer down and releases the tick source. It is safe to call
// repeatedly and from OnExpire. Once Stop returns no further callback starts.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Idle:
		t.state = Stopped
		close(t.done)
	case Running:
		t.state = Stopped
		t.ticker.Stop()
		close(t.stop)
	}
}

// State reports the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ExpiresAt returns the instant the timer counts down to.
func (t *Timer) ExpiresAt() time.Time { return t.expiresAt }

// Done is closed once the tick loop has exited.
func (t *Timer) Done() <-chan struct{} { return t.done }

func (t *Timer) run() {
	defer close(t.done)

	if t.evaluate() {
		return
	}
	ticks := t.ticker.C()
	for {
		select {
		case <-t.stop:
			return
		case <-ticks:
			if t.evaluate() {
				return
			}
		}
	}
}

// evaluate reports whether the loop should exit.
func (t *Timer) evaluate() bool {
	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return true
	}
	now := t.cfg.Now()
	remaining := t.expiresAt.Sub(now)
	if t.cfg.OnTick != nil {
		t.cfg.OnTick(Tick{Remaining: clamp(remaining), Display: Format(remaining)})
	}
	if !Overdue(t.expiresAt, now, t.cfg.Grace) {
		t.mu.Unlock()
		return false
	}
	t.state = Expired
	t.ticker.Stop()
	t.mu.Unlock()

	if t.cfg.OnExpire != nil {
		t.cfg.OnExpire()
	}
	return true
}

// Overdue reports whether now is past expiresAt by more than grace.
func Overdue(expiresAt, now time.Time, grace time.Duration) bool {
	return now.Sub(expiresAt) > grace
}

// Remaining is the non-negative time left until expiresAt.
func Remaining(expiresAt, now time.Time) time.Duration {
	return clamp(expiresAt.Sub(now))
}

// Format renders a remaining duration as floor-rounded MM:SS, never negative.
func Format(remaining time.Duration) string {
	ms := clamp(remaining).Milliseconds()
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
