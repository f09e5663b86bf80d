// Package control serves the operator HTTP API.
package control

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/metrics"
	"mediadeck/internal/operator"
	"mediadeck/internal/options"
	"mediadeck/internal/system"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operator is the command surface behind the API.
type Operator interface {
	Items(ctx context.Context) ([]catalog.Snapshot, error)
	Item(ctx context.Context, id uuid.UUID) (catalog.Snapshot, error)
	ItemByPath(ctx context.Context, path string) (catalog.Snapshot, error)
	Thumbnail(ctx context.Context, id uuid.UUID) ([]byte, error)
	Start(ctx context.Context, id uuid.UUID) error
	Stop(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) error
	Seek(ctx context.Context, id uuid.UUID, pos time.Duration) error
	Hide(ctx context.Context, id uuid.UUID) error
	Unhide(ctx context.Context, id uuid.UUID) error
	UnhideAll(ctx context.Context) error
	Freeze(ctx context.Context, id uuid.UUID, on bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	Reload(ctx context.Context) (int, error)
	Status(ctx context.Context) (operator.Status, error)
	Options() options.Options
	UpdateOptions(ctx context.Context, p options.Patch, persist bool) ([]options.Field, error)
}

// HealthFunc produces a host health snapshot.
type HealthFunc func(ctx context.Context) system.HealthStatus

// Server holds the API handlers.
type Server struct {
	op      Operator
	health  HealthFunc
	version string
	log     hclog.Logger
}

// NewServer creates the API. health may be nil.
func NewServer(op Operator, health HealthFunc, version string, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{op: op, health: health, version: version, log: logger}
}

// Router returns the routes with request metrics attached.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/version", s.Version).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.GetStatus).Methods("GET")
	api.HandleFunc("/reload", s.Reload).Methods("POST")
	api.HandleFunc("/unhide-all", s.UnhideAll).Methods("POST")

	api.HandleFunc("/options", s.GetOptions).Methods("GET")
	api.HandleFunc("/options", s.PatchOptions).Methods("PATCH")

	api.HandleFunc("/items", s.ListItems).Methods("GET")
	api.HandleFunc("/items/{id}", s.GetItem).Methods("GET")
	api.HandleFunc("/items/{id}", s.DeleteItem).Methods("DELETE")
	api.HandleFunc("/items/{id}/thumbnail", s.GetThumbnail).Methods("GET")
	api.HandleFunc("/items/{id}/start", s.itemCommand(s.op.Start)).Methods("POST")
	api.HandleFunc("/items/{id}/stop", s.itemCommand(s.op.Stop)).Methods("POST")
	api.HandleFunc("/items/{id}/pause", s.itemCommand(s.op.Pause)).Methods("POST")
	api.HandleFunc("/items/{id}/hide", s.itemCommand(s.op.Hide)).Methods("POST")
	api.HandleFunc("/items/{id}/unhide", s.itemCommand(s.op.Unhide)).Methods("POST")
	api.HandleFunc("/items/{id}/seek", s.Seek).Methods("POST")
	api.HandleFunc("/items/{id}/freeze", s.Freeze).Methods("POST")

	return r
}

// instrument records request counts and latency by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(wrapped, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		s.log.Trace("request", "method", r.Method, "route", route, "status", wrapped.status)
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
