package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/errorreport"
	"github.com/cuemby/burrow/pkg/metrics"
)

// StatusServer provides the HTTP status endpoints of a burrow process:
// health, readiness, liveness, metrics and recent error reports.
type StatusServer struct {
	reporter *errorreport.Reporter
	mux      *http.ServeMux
	server   *http.Server
}

// NewStatusServer creates a new status HTTP server
func NewStatusServer(reporter *errorreport.Reporter) *StatusServer {
	mux := http.NewServeMux()
	ss := &StatusServer{
		reporter: reporter,
		mux:      mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/reports", ss.reportsHandler)

	return ss
}

// Start serves the endpoints on addr until Stop is called
func (ss *StatusServer) Start(addr string) error {
	ss.server = &http.Server{
		Addr:         addr,
		Handler:      ss.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ss.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down
func (ss *StatusServer) Stop(ctx context.Context) error {
	if ss.server == nil {
		return nil
	}
	return ss.server.Shutdown(ctx)
}

// ReportsResponse is the body of /reports
type ReportsResponse struct {
	Timestamp time.Time            `json:"timestamp"`
	Reports   []errorreport.Report `json:"reports"`
}

// reportsHandler implements the /reports endpoint. With ?id= it returns a
// single report.
func (ss *StatusServer) reportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := ReportsResponse{Timestamp: time.Now(), Reports: []errorreport.Report{}}
	if ss.reporter != nil {
		if id := r.URL.Query().Get("id"); id != "" {
			rep, ok := ss.reporter.Find(id)
			if !ok {
				http.Error(w, "report not found", http.StatusNotFound)
				return
			}
			response.Reports = append(response.Reports, rep)
		} else {
			response.Reports = ss.reporter.Recent()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (ss *StatusServer) GetHandler() http.Handler {
	return ss.mux
}
