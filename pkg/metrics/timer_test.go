package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	first := timer.Duration()
	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()

	assert.GreaterOrEqual(t, first, time.Duration(0))
	assert.GreaterOrEqual(t, second, 20*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestTimerObserve(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_observe_seconds", Help: "test"})
	NewTimer().ObserveDuration(h)
	assert.Equal(t, 1, testutil.CollectAndCount(h))

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_observe_vec_seconds", Help: "test"}, []string{"api_call"})
	timer := NewTimer()
	timer.ObserveDurationVec(vec, "CreateNode")
	timer.ObserveDurationVec(vec, "DeleteNode")
	timer.ObserveDurationVec(vec, "CreateNode")
	assert.Equal(t, 2, testutil.CollectAndCount(vec), "one series per api call")
}
