package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
)

// Default intervals
const (
	DefaultResyncInterval = 5 * time.Minute
	DefaultPurgeInterval  = time.Minute
)

// Target is the controller side the reconciler drives
type Target interface {
	// ResyncAll sends a full sync to every connected satellite
	ResyncAll(ctx context.Context) error
	// Purge removes objects marked for deletion that wait for nothing
	Purge() *apicallrc.ApiCallRc
}

// Reconciler periodically resends the full state to the satellites and
// sweeps objects left marked for deletion
type Reconciler struct {
	target         Target
	resyncInterval time.Duration
	purgeInterval  time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewReconciler creates a reconciler. Zero intervals select the defaults.
func NewReconciler(target Target, resyncInterval, purgeInterval time.Duration) *Reconciler {
	if resyncInterval <= 0 {
		resyncInterval = DefaultResyncInterval
	}
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}
	return &Reconciler{
		target:         target,
		resyncInterval: resyncInterval,
		purgeInterval:  purgeInterval,
		logger:         log.WithComponent("reconciler"),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(r.stopCh, r.doneCh)
}

// Stop stops the reconciler and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()
	<-done
}

// Run runs the loop until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) error {
	r.Start()
	<-ctx.Done()
	r.Stop()
	return nil
}

func (r *Reconciler) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	resync := time.NewTicker(r.resyncInterval)
	defer resync.Stop()
	purge := time.NewTicker(r.purgeInterval)
	defer purge.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		select {
		case <-resync.C:
			r.Resync(ctx)
		case <-purge.C:
			r.Purge()
		case <-stopCh:
			return
		}
	}
}

// Resync performs one resync cycle
func (r *Reconciler) Resync(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.MaintenanceDuration, "resync")

	if err := r.target.ResyncAll(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Resync incomplete")
		metrics.MaintenanceRunsTotal.WithLabelValues("resync", "error").Inc()
		return
	}
	metrics.MaintenanceRunsTotal.WithLabelValues("resync", "success").Inc()
}

// Purge performs one purge cycle
func (r *Reconciler) Purge() {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.MaintenanceDuration, "purge")

	rc := r.target.Purge()
	if rc.HasErrors() {
		for _, e := range rc.Entries {
			r.logger.Error().Str("cause", e.Cause).Str("details", e.Details).Msg(e.Message)
		}
		metrics.MaintenanceRunsTotal.WithLabelValues("purge", "error").Inc()
		return
	}
	if len(rc.Entries) > 0 {
		r.logger.Debug().Int("objects", len(rc.Entries)).Msg("Purge cycle removed objects")
	}
	metrics.MaintenanceRunsTotal.WithLabelValues("purge", "success").Inc()
}
