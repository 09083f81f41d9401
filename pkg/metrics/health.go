package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Components whose state burrow processes report
const (
	// ComponentStore is the controller's persistent store. It turns
	// unhealthy when a commit fails and healthy again on the next commit.
	ComponentStore = "store"
	// ComponentTransport is the satellite's peer server
	ComponentTransport = "transport"
	// ComponentController is the satellite's connection to the controller
	ComponentController = "controller"
)

// Overall states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealthy is 1 for every healthy component and 0 otherwise
var ComponentHealthy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "burrow_component_healthy",
		Help: "Whether a component of the process is healthy",
	},
	[]string{"component"},
)

func init() {
	prometheus.MustRegister(ComponentHealthy)
}

// ComponentStatus is the reported state of one component
type ComponentStatus struct {
	Healthy  bool      `json:"healthy"`
	Critical bool      `json:"critical,omitempty"`
	Message  string    `json:"message,omitempty"`
	Since    time.Time `json:"since"`
}

// HealthReport is the body of the health and readiness endpoints
type HealthReport struct {
	Status     string                     `json:"status"`
	Ready      bool                       `json:"ready"`
	Message    string                     `json:"message,omitempty"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Registry tracks the health of the components of one process. An
// unhealthy critical component makes the process unhealthy and not ready;
// any other unhealthy component degrades it. A critical component that
// never reported keeps the process not ready.
type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	critical   map[string]bool
	version    string
	started    time.Time
	now        func() time.Time
}

// NewRegistry creates a registry with the given critical components
func NewRegistry(critical ...string) *Registry {
	r := &Registry{
		components: make(map[string]ComponentStatus),
		critical:   make(map[string]bool),
		now:        time.Now,
	}
	r.started = r.now()
	r.SetCritical(critical...)
	return r
}

// SetCritical replaces the set of critical components
func (r *Registry) SetCritical(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critical = make(map[string]bool, len(names))
	for _, name := range names {
		r.critical[name] = true
	}
}

// SetVersion sets the version included in reports
func (r *Registry) SetVersion(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Set records the state of a component. Since only moves when the state
// changes, so repeated reports of the same state are cheap.
func (r *Registry) Set(name string, healthy bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.components[name]
	if ok && cur.Healthy == healthy && cur.Message == message {
		return
	}
	since := cur.Since
	if !ok || cur.Healthy != healthy {
		since = r.now()
	}
	r.components[name] = ComponentStatus{Healthy: healthy, Message: message, Since: since}

	v := 0.0
	if healthy {
		v = 1
	}
	ComponentHealthy.WithLabelValues(name).Set(v)
}

// Report evaluates the current state
func (r *Registry) Report() HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	rep := HealthReport{
		Status:     StatusHealthy,
		Ready:      true,
		Components: make(map[string]ComponentStatus, len(r.components)),
		Version:    r.version,
		Uptime:     now.Sub(r.started).Round(time.Second).String(),
		Timestamp:  now,
	}
	for name, c := range r.components {
		c.Critical = r.critical[name]
		rep.Components[name] = c
		switch {
		case c.Healthy:
		case c.Critical:
			rep.Status = StatusUnhealthy
		case rep.Status == StatusHealthy:
			rep.Status = StatusDegraded
		}
	}

	var waiting []string
	for name := range r.critical {
		if c, ok := r.components[name]; !ok || !c.Healthy {
			waiting = append(waiting, name)
		}
	}
	if len(waiting) > 0 {
		sort.Strings(waiting)
		rep.Ready = false
		rep.Message = "waiting for " + waiting[0]
	}
	return rep
}

func writeReport(w http.ResponseWriter, rep HealthReport, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(rep)
}

// HealthHandler serves the report; it fails only when the process is unhealthy
func (r *Registry) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep := r.Report()
		writeReport(w, rep, rep.Status != StatusUnhealthy)
	}
}

// ReadyHandler serves the report; it fails until every critical component is healthy
func (r *Registry) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep := r.Report()
		writeReport(w, rep, rep.Ready)
	}
}

// LivenessHandler always succeeds while the process runs
func (r *Registry) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": r.now().Sub(r.started).Round(time.Second).String(),
		})
	}
}

// Health is the registry of this process
var Health = NewRegistry()

// SetVersion sets the version reported by the process registry
func SetVersion(version string) { Health.SetVersion(version) }

// SetCriticalComponents sets the critical components of the process registry
func SetCriticalComponents(names ...string) { Health.SetCritical(names...) }

// SetComponent records a component state in the process registry
func SetComponent(name string, healthy bool, message string) { Health.Set(name, healthy, message) }

// HealthHandler serves /health from the process registry
func HealthHandler() http.HandlerFunc { return Health.HealthHandler() }

// ReadyHandler serves /ready from the process registry
func ReadyHandler() http.HandlerFunc { return Health.ReadyHandler() }

// LivenessHandler serves /live from the process registry
func LivenessHandler() http.HandlerFunc { return Health.LivenessHandler() }
