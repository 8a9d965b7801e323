package action

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/viewstore/internal/storage"
)

const (
	MetricActionsExecuted = "actions_executed_total"
	MetricConflictRounds  = "conflict_rounds_total"
	MetricAutoRetries     = "automatic_retries_total"
	MetricQueueDepth      = "queue_depth"
)

// Metrics holds the Prometheus collectors of one or more managers. A nil
// *Metrics records nothing.
type Metrics struct {
	Executed    *prometheus.CounterVec
	Conflicts   *prometheus.CounterVec
	AutoRetries *prometheus.CounterVec
	QueueDepth  prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them on
// reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		Executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricActionsExecuted,
			Help:      "Actions executed, by operation type.",
		}, []string{"type"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricConflictRounds,
			Help:      "Result rounds that reported conflicts, by operation type.",
		}, []string{"type"}),
		AutoRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricAutoRetries,
			Help:      "Conflicts retried by the policy rather than the caller.",
		}, []string{"type"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricQueueDepth,
			Help:      "Actions waiting in the manager queue.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Executed, m.Conflicts, m.AutoRetries, m.QueueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register action metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) executed(op storage.OpType) {
	if m == nil {
		return
	}
	m.Executed.WithLabelValues(string(op)).Inc()
}

func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
