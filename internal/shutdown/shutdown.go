package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

// DefaultTimeout bounds the whole shutdown sequence
const DefaultTimeout = 30 * time.Second

// Manager runs cleanup functions once, in reverse registration order, so a
// component registered after its dependencies is stopped before them.
type Manager struct {
	logger       *logging.Logger
	timeout      time.Duration
	steps        []step
	mu           sync.Mutex
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	gracefulDone chan struct{}
	err          error
}

// ShutdownFunc is a function that performs cleanup during shutdown
type ShutdownFunc func(context.Context) error

type step struct {
	name string
	fn   ShutdownFunc
}

// Config holds shutdown manager configuration
type Config struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates a new shutdown manager
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}

	return &Manager{
		logger:       cfg.Logger.WithComponent("shutdown"),
		timeout:      cfg.Timeout,
		shutdownCh:   make(chan struct{}),
		gracefulDone: make(chan struct{}),
	}
}

// RegisterFunc registers a named shutdown function
func (m *Manager) RegisterFunc(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().Str("step", name).Msg("Registered shutdown function")
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// RegisterCloser registers a Close method that takes no context
func (m *Manager) RegisterCloser(name string, close func() error) {
	m.RegisterFunc(name, func(context.Context) error { return close() })
}

// WaitForSignal blocks until a shutdown signal arrives, ctx ends, or
// Shutdown is called elsewhere, then shuts down
func (m *Manager) WaitForSignal(ctx context.Context, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")
	case <-ctx.Done():
		m.logger.Info().Msg("Context done, shutting down")
	case <-m.shutdownCh:
	}
	return m.Shutdown()
}

// Shutdown runs the registered functions once and returns their joined
// errors. Later calls wait for the first to finish and return the same result.
func (m *Manager) Shutdown() error {
	m.shutdownOnce.Do(func() {
		close(m.shutdownCh)
		m.err = m.performShutdown()
		close(m.gracefulDone)
	})
	<-m.gracefulDone
	return m.err
}

func (m *Manager) performShutdown() error {
	m.mu.Lock()
	steps := make([]step, len(m.steps))
	copy(steps, m.steps)
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Int("functions", len(steps)).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]

		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", s.name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := s.fn(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("step", s.name).
				Msg("Shutdown function failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		m.logger.Debug().
			Str("step", s.name).
			Dur("duration", time.Since(start)).
			Msg("Shutdown function completed")
	}

	if len(errs) > 0 {
		m.logger.Warn().
			Int("errors", len(errs)).
			Msg("Graceful shutdown completed with errors")
		return errors.Join(errs...)
	}

	m.logger.Info().Msg("Graceful shutdown completed successfully")
	return nil
}

// Done returns a channel that is closed when shutdown is complete
func (m *Manager) Done() <-chan struct{} {
	return m.gracefulDone
}

// ShutdownChannel returns a channel that is closed when shutdown is initiated
func (m *Manager) ShutdownChannel() <-chan struct{} {
	return m.shutdownCh
}

// Component represents a component that can be gracefully shut down
type Component interface {
	Stop(context.Context) error
	Name() string
}

// RegisterComponent registers a component for graceful shutdown
func (m *Manager) RegisterComponent(component Component) {
	m.RegisterFunc(component.Name(), component.Stop)
}

// WaitWithTimeout waits for shutdown to complete with a timeout
func (m *Manager) WaitWithTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown did not complete within %v", timeout)
	}
}
