// Package metrics records compile and backend-call statistics as Prometheus
// collectors.
//
// A nil *Recorder is valid and records nothing, so executors can be built
// without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sqlbridge/internal/failure"
)

const namespace = "sqlbridge"

// Recorder owns the collectors for one registry.
type Recorder struct {
	compiles *prometheus.CounterVec
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Statements compiled, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Backend requests executed, by backend, request kind and outcome.",
		}, []string{"backend", "kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"backend", "kind"}),
	}
	reg.MustRegister(r.compiles, r.calls, r.latency)
	return r
}

// ObserveCompile counts one compilation.
func (r *Recorder) ObserveCompile(backend string, err error) {
	if r == nil {
		return
	}
	r.compiles.WithLabelValues(backend, Outcome(err)).Inc()
}

// ObserveCall counts one backend request that started at start.
func (r *Recorder) ObserveCall(backend, kind string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(backend, kind, Outcome(err)).Inc()
	r.latency.WithLabelValues(backend, kind).Observe(time.Since(start).Seconds())
}

// Outcome is the label value for err: "ok", the error code, or the backend
// kind for backend errors.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	fe, ok := failure.As(err)
	switch {
	case !ok:
		return "error"
	case fe.Code == failure.CodeBackend:
		return string(fe.Kind)
	default:
		return string(fe.Code)
	}
}
