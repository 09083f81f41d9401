package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/stretchr/testify/assert"
)

type fakeTarget struct {
	resyncs   atomic.Int32
	purges    atomic.Int32
	resyncErr error
	purgeRc   *apicallrc.ApiCallRc
}

func (f *fakeTarget) ResyncAll(ctx context.Context) error {
	f.resyncs.Add(1)
	return f.resyncErr
}

func (f *fakeTarget) Purge() *apicallrc.ApiCallRc {
	f.purges.Add(1)
	if f.purgeRc != nil {
		return f.purgeRc
	}
	return apicallrc.New()
}

func TestReconcilerRunsBothTasks(t *testing.T) {
	target := &fakeTarget{}
	r := NewReconciler(target, 10*time.Millisecond, 15*time.Millisecond)

	r.Start()
	assert.Eventually(t, func() bool {
		return target.resyncs.Load() >= 2 && target.purges.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	resyncs := target.resyncs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, resyncs, target.resyncs.Load(), "no cycles after Stop")
}

func TestReconcilerStartStopIdempotent(t *testing.T) {
	r := NewReconciler(&fakeTarget{}, time.Hour, time.Hour)
	r.Stop()
	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}

func TestReconcilerDefaults(t *testing.T) {
	r := NewReconciler(&fakeTarget{}, 0, -1)
	assert.Equal(t, DefaultResyncInterval, r.resyncInterval)
	assert.Equal(t, DefaultPurgeInterval, r.purgeInterval)
}

func TestReconcilerSurvivesFailures(t *testing.T) {
	rc := apicallrc.New()
	rc.AddEntry(apicallrc.MaskError|apicallrc.MaskDel|apicallrc.FailPersistence, "Database error")
	target := &fakeTarget{resyncErr: errors.New("boom"), purgeRc: rc}
	r := NewReconciler(target, time.Hour, time.Hour)

	r.Resync(context.Background())
	r.Purge()
	r.Resync(context.Background())

	assert.Equal(t, int32(2), target.resyncs.Load())
	assert.Equal(t, int32(1), target.purges.Load())
}

func TestRunStopsWithContext(t *testing.T) {
	r := NewReconciler(&fakeTarget{}, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
