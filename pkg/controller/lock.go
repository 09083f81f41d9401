package controller

import (
	"sync"

	"github.com/cuemby/burrow/pkg/metrics"
)

// LockName identifies one of the collection locks
type LockName string

const (
	LockReconfiguration LockName = "reconfiguration"
	LockNodes           LockName = "nodes"
	LockRscDfns         LockName = "rscDfns"
	LockStorPoolDfns    LockName = "storPoolDfns"
)

// Mode is the mode a lock is taken in
type Mode int

const (
	ModeNone Mode = iota
	ModeRead
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	}
	return "none"
}

// LockSpec names the mode each collection lock is needed in
type LockSpec struct {
	Nodes        Mode
	RscDfns      Mode
	StorPoolDfns Mode
}

// LockTraceFunc observes lock acquisition and release
type LockTraceFunc func(name LockName, mode Mode, acquired bool)

// SetLockTrace installs a hook called on every lock acquisition and release
func (s *ClusterState) SetLockTrace(fn LockTraceFunc) {
	s.traceMu.Lock()
	s.trace = fn
	s.traceMu.Unlock()
}

func (s *ClusterState) traceLock(name LockName, mode Mode, acquired bool) {
	s.traceMu.Lock()
	fn := s.trace
	s.traceMu.Unlock()
	if fn != nil {
		fn(name, mode, acquired)
	}
}

type heldLock struct {
	name LockName
	mode Mode
	mu   *sync.RWMutex
}

// Lock takes the reconfiguration lock in read mode and then the requested
// collection locks in the fixed order nodes, resource definitions, storage
// pool definitions. The returned function releases them in reverse order.
func (s *ClusterState) Lock(spec LockSpec) func() {
	timer := metrics.NewTimer()

	held := make([]heldLock, 0, 4)
	acquire := func(name LockName, mu *sync.RWMutex, mode Mode) {
		switch mode {
		case ModeRead:
			mu.RLock()
		case ModeWrite:
			mu.Lock()
		default:
			return
		}
		held = append(held, heldLock{name: name, mode: mode, mu: mu})
		s.traceLock(name, mode, true)
	}

	acquire(LockReconfiguration, &s.reconfMu, ModeRead)
	acquire(LockNodes, &s.nodesMu, spec.Nodes)
	acquire(LockRscDfns, &s.rscDfnsMu, spec.RscDfns)
	acquire(LockStorPoolDfns, &s.storPoolDfnsMu, spec.StorPoolDfns)
	timer.ObserveDuration(metrics.LockWaitDuration)

	var once sync.Once
	return func() {
		once.Do(func() { s.release(held) })
	}
}

// LockReconfiguration takes the reconfiguration lock in write mode, which
// excludes every other lock holder. Used for init and shutdown.
func (s *ClusterState) LockReconfiguration() func() {
	s.reconfMu.Lock()
	s.traceLock(LockReconfiguration, ModeWrite, true)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.reconfMu.Unlock()
			s.traceLock(LockReconfiguration, ModeWrite, false)
		})
	}
}

func (s *ClusterState) release(held []heldLock) {
	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]
		if h.mode == ModeWrite {
			h.mu.Unlock()
		} else {
			h.mu.RUnlock()
		}
		s.traceLock(h.name, h.mode, false)
	}
}
