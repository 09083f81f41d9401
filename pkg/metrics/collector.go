package metrics

import (
	"time"
)

// Source provides the gauges the collector samples
type Source interface {
	// ObjectCounts returns the number of objects per kind
	ObjectCounts() map[string]int
	// ConnectedPeers returns the number of connected peers
	ConnectedPeers() int
}

// Collector periodically samples gauges from a Source
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for kind, count := range c.source.ObjectCounts() {
		ObjectsTotal.WithLabelValues(kind).Set(float64(count))
	}
	PeersConnected.Set(float64(c.source.ConnectedPeers()))
}
