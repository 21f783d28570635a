package reliability

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics
	Name string
	// MaxRequests is how many trial calls pass while half-open, and how many
	// must succeed in a row to close again
	MaxRequests uint32
	// Interval resets the closed-state counts; zero never resets them
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open
	Timeout       time.Duration
	ReadyToTrip   func(counts Counts) bool
	OnStateChange func(name string, from State, to State)
	IsSuccessful  func(err error) bool

	now func() time.Time
}

// Counts holds the circuit breaker statistics
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker stops calling a failing dependency for Timeout after
// ReadyToTrip says so, then lets a few trial calls through
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = ConsecutiveFailures(5)
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}
	if config.now == nil {
		config.now = time.Now
	}

	cb := &CircuitBreaker{config: config, state: StateClosed}
	cb.toNewGeneration(config.now())
	return cb
}

// ConsecutiveFailures trips the breaker after n failures in a row
func ConsecutiveFailures(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

// Name returns the configured name
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs fn if the breaker allows it. ctx is checked before the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = fn()
	cb.afterRequest(generation, cb.config.IsSuccessful(err))
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(cb.config.now())
	return state
}

// Counts returns the counts of the current generation
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.currentState(cb.config.now())

	if state == StateOpen {
		return generation, ErrCircuitOpen
	} else if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return generation, ErrTooManyRequests
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.now()
	state, generation := cb.currentState(now)
	if generation != before {
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.MaxRequests {
			cb.setState(StateClosed, now)
		}
		return
	}

	switch state {
	case StateClosed:
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		cb.counts.ConsecutiveSuccesses = 0
		if cb.config.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.toNewGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, state)
	}
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval == 0 {
			cb.expiry = time.Time{}
		} else {
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

// Reset closes the breaker and clears its counts
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed, cb.config.now())
	cb.toNewGeneration(cb.config.now())
}

func defaultIsSuccessful(err error) bool {
	return err == nil
}

// Metrics is a snapshot of breaker state
type Metrics struct {
	State                State
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	ErrorRate            float64
}

// Metrics returns current metrics
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(cb.config.now())
	counts := cb.counts
	var errorRate float64
	if counts.Requests > 0 {
		errorRate = float64(counts.TotalFailures) / float64(counts.Requests) * 100.0
	}

	return Metrics{
		State:                state,
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ErrorRate:            errorRate,
	}
}

// Breakers holds one breaker per name, created on first use. Export sinks
// share one instance so each destination trips independently.
type Breakers struct {
	mu       sync.RWMutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates a registry whose breakers all use config, with Name
// replaced per entry
func NewBreakers(config CircuitBreakerConfig) *Breakers {
	return &Breakers{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if needed
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok = b.breakers[name]; ok {
		return cb
	}
	cfg := b.config
	cfg.Name = name
	cb = NewCircuitBreaker(cfg)
	b.breakers[name] = cb
	return cb
}

// Execute runs fn through the breaker for name
func (b *Breakers) Execute(ctx context.Context, name string, fn func() error) error {
	return b.Get(name).Execute(ctx, fn)
}

// States returns the state of every breaker created so far
func (b *Breakers) States() map[string]State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]State, len(b.breakers))
	for name, cb := range b.breakers {
		states[name] = cb.State()
	}
	return states
}
