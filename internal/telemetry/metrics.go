package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — Prometheus метрики выполнения workflow.
//
// Nil *Metrics допустим: все методы становятся no-op.
type Metrics struct {
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	runs           *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weave_node_executions_total",
			Help: "Total node executions by kind and final status",
		}, []string{"kind", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weave_node_duration_seconds",
			Help:    "Node execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weave_runs_total",
			Help: "Total workflow runs by final status and scope",
		}, []string{"status", "scope"}),
	}

	reg.MustRegister(m.nodeExecutions, m.nodeDuration, m.runs)
	return m
}

// ObserveNode записывает результат выполнения узла.
func (m *Metrics) ObserveNode(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeExecutions.WithLabelValues(kind, status).Inc()
	m.nodeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRun записывает итоговый статус run.
func (m *Metrics) ObserveRun(status, scope string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status, scope).Inc()
}
