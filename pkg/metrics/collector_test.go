package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct{}

func (fakeSource) ObjectCounts() map[string]int {
	return map[string]int{"node": 3, "resource": 5}
}

func (fakeSource) ConnectedPeers() int { return 2 }

func TestCollectorSamplesSource(t *testing.T) {
	c := NewCollector(fakeSource{}, time.Hour)
	c.collect()

	assert.Equal(t, float64(3), testutil.ToFloat64(ObjectsTotal.WithLabelValues("node")))
	assert.Equal(t, float64(5), testutil.ToFloat64(ObjectsTotal.WithLabelValues("resource")))
	assert.Equal(t, float64(2), testutil.ToFloat64(PeersConnected))
}
