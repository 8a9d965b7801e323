package action

import (
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/roach88/viewstore/internal/storage"
)

const (
	// DefaultMaxRetries is the aggressive policy's default budget.
	DefaultMaxRetries = 10

	// MaxRetriesCap bounds any aggressive budget.
	MaxRetriesCap = 100
)

// Policy decides what happens to conflicts nobody resolved.
type Policy interface {
	// NewSession starts the decision state for one action execution. A nil
	// logger selects slog.Default().
	NewSession(logger *slog.Logger) Session
	Name() string
}

// Session sees every result of one action after its observers did, while
// the result's resolution token is still valid.
type Session interface {
	Handle(r Report)
}

type passive struct{}

// Passive surfaces conflicts to the caller unmodified.
func Passive() Policy { return passive{} }

func (passive) NewSession(*slog.Logger) Session { return passiveSession{} }

func (passive) Name() string { return "passive" }

type passiveSession struct{}

func (passiveSession) Handle(Report) {}

type aggressive struct {
	maxRetries int
}

// Aggressive retries every unresolved conflict up to maxRetries times per
// action before surfacing the final conflict state. Non-positive values
// select DefaultMaxRetries; values above MaxRetriesCap are capped.
func Aggressive(maxRetries int) Policy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return aggressive{maxRetries: min(maxRetries, MaxRetriesCap)}
}

func (p aggressive) NewSession(logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}
	// Retries happen synchronously inside the notification, so the backoff
	// only counts attempts and never asks for a delay.
	unbounded := retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	return &aggressiveSession{
		budget: retry.WithMaxRetries(uint64(p.maxRetries), unbounded),
		max:    p.maxRetries,
		logger: logger,
	}
}

func (p aggressive) Name() string { return "aggressive" }

// MaxRetries returns the effective retry budget of an aggressive policy,
// or 0 for any other policy.
func MaxRetries(p Policy) int {
	if a, ok := p.(aggressive); ok {
		return a.maxRetries
	}
	return 0
}

type aggressiveSession struct {
	budget retry.Backoff
	max    int
	logger *slog.Logger
}

func (s *aggressiveSession) Handle(r Report) {
	if !r.Conflicted() || r.Resolved() {
		return
	}
	if _, stop := s.budget.Next(); stop {
		s.logger.Warn("aggressive policy gave up",
			"op", r.Op(),
			"max_retries", s.max,
			"failed", r.FailedCount())
		return
	}
	r.RetryAll()
}

type meteredSession struct {
	inner   Session
	metrics *Metrics
	op      string
}

func metered(s Session, m *Metrics, op storage.OpType) Session {
	if m == nil {
		return s
	}
	return &meteredSession{inner: s, metrics: m, op: string(op)}
}

func (s *meteredSession) Handle(r Report) {
	if r.Conflicted() {
		s.metrics.Conflicts.WithLabelValues(s.op).Inc()
	}
	before := r.Resolved()
	s.inner.Handle(r)
	if r.Conflicted() && !before && r.Resolved() {
		s.metrics.AutoRetries.WithLabelValues(s.op).Inc()
	}
}
