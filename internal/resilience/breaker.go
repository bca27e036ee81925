// Package resilience guards vendor backend calls against sustained
// failure. A flapping backend would otherwise cost every turn its full
// request timeout; the breaker short-circuits those turns so the caller
// hears the absorb behavior immediately.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("resilience: circuit open")

// State of a Breaker.
type State int

const (
	// Closed lets all calls through.
	Closed State = iota
	// Open rejects all calls until the cooldown elapses.
	Open
	// HalfOpen lets a single probe call through.
	HalfOpen
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config tunes a Breaker.
type Config struct {
	// Name identifies the breaker in logs, typically the backend name.
	Name string

	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Default 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before allowing a probe.
	// Default 30s.
	Cooldown time.Duration

	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	name     string
	max      int
	cooldown time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// New returns a closed Breaker. Zero-valued Config fields take defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		max:      cfg.MaxFailures,
		cooldown: cfg.Cooldown,
		log:      cfg.Logger.With("breaker", cfg.Name),
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// breaker is open, and transitions to half-open once the cooldown has
// elapsed, admitting exactly one probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = true
		b.log.Info("circuit half-open, probing")
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		b.log.Info("circuit closed after successful probe")
	}
	b.state = Closed
	b.failures = 0
	b.probing = false
}

// Failure records a failed call. In half-open it reopens immediately; in
// closed it opens once the consecutive-failure budget is spent.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.open()
	case Closed:
		b.failures++
		if b.failures >= b.max {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.failures = 0
	b.probing = false
	b.openedAt = b.now()
	b.log.Warn("circuit opened", "cooldown", b.cooldown)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
