package action

import (
	"context"
	"errors"
	"log/slog"
)

// ErrReleased is returned when enqueuing on a released manager.
var ErrReleased = errors.New("action manager released")

// Manager executes actions one at a time in FIFO order.
//
// Thread-safety: Enqueue may be called from any goroutine, including from
// inside a running action's callbacks.
type Manager struct {
	queue   *runQueue
	policy  Policy
	metrics *Metrics
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the conflict policy. Default: Passive.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithMetrics records execution metrics. Default: none.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an idle manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{queue: newRunQueue()}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy = Passive()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Policy returns the configured policy.
func (m *Manager) Policy() Policy { return m.policy }

// Enqueue schedules r. If the manager is idle, r and everything enqueued
// while it runs execute before Enqueue returns.
func (m *Manager) Enqueue(r Runnable) error {
	start, ok := m.queue.Push(r)
	if !ok {
		return ErrReleased
	}
	m.metrics.queueDepth(m.queue.Len())
	if start {
		m.drain()
	}
	return nil
}

// EnqueueFunc schedules a bare update function.
func (m *Manager) EnqueueFunc(fn func()) error {
	return m.Enqueue(RunnableFunc(fn))
}

func (m *Manager) drain() {
	defer func() {
		if p := recover(); p != nil {
			m.queue.abandon()
			panic(p)
		}
	}()
	for {
		r, ok := m.queue.Pop()
		if !ok {
			return
		}
		m.metrics.queueDepth(m.queue.Len())
		m.logger.Debug("executing action", "pending", m.queue.Len(), "policy", m.policy.Name())
		r.Execute(m.policy, m.metrics, m.logger)
	}
}

// Busy reports whether an action is executing.
func (m *Manager) Busy() bool { return m.queue.Running() }

// Pending returns the number of queued, not yet started actions.
func (m *Manager) Pending() int { return m.queue.Len() }

// Release rejects further work and waits until the queue drained.
// It must not be called from inside a running action.
func (m *Manager) Release(ctx context.Context) error {
	m.queue.Close()
	select {
	case <-m.queue.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
