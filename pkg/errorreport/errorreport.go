// Package errorreport records internal errors. Every report gets an ID
// that is returned to the caller, is logged together with the error and is
// kept in a bounded in-memory list of recent reports.
package errorreport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of reports a Reporter keeps
const DefaultCapacity = 256

// Report is one recorded error
type Report struct {
	ID        string            `json:"id"`
	Time      time.Time         `json:"time"`
	Module    string            `json:"module"`
	Message   string            `json:"message"`
	Error     string            `json:"error"`
	Causes    []string          `json:"causes,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Recovered bool              `json:"recovered,omitempty"`
}

// Reporter records error reports
type Reporter struct {
	mu       sync.Mutex
	module   string
	logger   zerolog.Logger
	capacity int
	reports  []Report
	next     int
	full     bool
}

// New creates a reporter for a module ("controller", "satellite")
func New(module string, capacity int) *Reporter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reporter{
		module:   module,
		logger:   log.WithComponent("errorreport"),
		capacity: capacity,
		reports:  make([]Report, capacity),
	}
}

// Report records err with a message and optional key/value context and
// returns the report ID.
func (r *Reporter) Report(err error, msg string, kv ...string) string {
	return r.record(err, msg, false, kv)
}

// ReportPanic records a recovered panic value
func (r *Reporter) ReportPanic(v any, msg string, kv ...string) string {
	var err error
	if e, ok := v.(error); ok {
		err = e
	} else {
		err = fmt.Errorf("panic: %v", v)
	}
	return r.record(err, msg, true, kv)
}

func (r *Reporter) record(err error, msg string, recovered bool, kv []string) string {
	rep := Report{
		ID:        newID(),
		Time:      time.Now(),
		Module:    r.module,
		Message:   msg,
		Recovered: recovered,
	}
	if err != nil {
		rep.Error = err.Error()
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			rep.Causes = append(rep.Causes, cause.Error())
		}
	}
	if len(kv) > 0 {
		rep.Context = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			rep.Context[kv[i]] = kv[i+1]
		}
	}

	r.mu.Lock()
	r.reports[r.next] = rep
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	ev := r.logger.Error().Err(err).Str("report_id", rep.ID).Str("module", r.module)
	for k, v := range rep.Context {
		ev = ev.Str(k, v)
	}
	if recovered {
		ev = ev.Bool("recovered", true)
	}
	ev.Msg(msg)

	return rep.ID
}

// Recent returns the kept reports, newest first
func (r *Reporter) Recent() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = r.capacity
	}
	out := make([]Report, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		out = append(out, r.reports[idx])
	}
	return out
}

// Find returns the report with the given ID
func (r *Reporter) Find(id string) (Report, bool) {
	for _, rep := range r.Recent() {
		if rep.ID == id {
			return rep, true
		}
	}
	return Report{}, false
}

// report IDs are short upper-case hex strings, easy to quote in a ticket
func newID() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
