package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/sqlbridge/internal/failure"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"plain", errors.New("boom"), "error"},
		{"unsupported", failure.Unsupported("DISTINCT"), "UNSUPPORTED"},
		{"invalid id", failure.InvalidID("id = [1]"), "INVALID_ID"},
		{"backend", failure.Backend("vector", failure.KindNotFound, nil), "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveCompile("vector", nil)
	r.ObserveCompile("vector", failure.Unsupported("CTE"))
	r.ObserveCall("graph", "query", time.Now(), nil)
	r.ObserveCall("graph", "query", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.compiles.WithLabelValues("vector", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.compiles.WithLabelValues("vector", "UNSUPPORTED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.calls.WithLabelValues("graph", "query", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveCompile("vector", nil)
		r.ObserveCall("vector", "search", time.Now(), nil)
	})
}
