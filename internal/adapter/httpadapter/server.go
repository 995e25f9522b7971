package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/geojson"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotSource returns the latest published snapshot, or nil.
type SnapshotSource interface {
	Current() *snapshot.Snapshot
}

// Deps are the collaborators behind the /api/v1 routes.
type Deps struct {
	Snapshots  SnapshotSource
	Aggregator *pipeline.Aggregator
	Boundaries *geojson.Layer // nil disables the choropleth route
	Cache      *Cache         // nil disables response caching
}

// Server exposes health, readiness, metrics and the aggregate query API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	deps       Deps
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and /api/v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		deps:   deps,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/datasets", s.handleDatasets)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/series", s.cached(s.handleSeries))
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/counts", s.cached(s.handleCounts))
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/periods", s.cached(s.handlePeriods))
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/categories", s.cached(s.handleCategories))
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/choropleth", s.cached(s.handleChoropleth))
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/regions/{id}", s.handleRegion)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// snapshotHandler renders a response for one snapshot. It returns the
// status, content type and encoded body.
type snapshotHandler func(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte)

// cached resolves the current snapshot and serves successful responses from
// the cache, keyed by generation, path and canonical query.
func (s *Server) cached(h snapshotHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.deps.Snapshots.Current()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "no snapshot loaded")
			return
		}

		key := cacheKey(snap.Generation, r)
		if s.deps.Cache != nil {
			if body, contentType, ok := s.deps.Cache.Get(key); ok {
				writeBody(w, http.StatusOK, contentType, body)
				return
			}
		}

		status, contentType, body := h(r, snap)
		if status == http.StatusOK && s.deps.Cache != nil {
			s.deps.Cache.Put(key, contentType, body)
		}
		writeBody(w, status, contentType, body)
	}
}

func cacheKey(generation uint64, r *http.Request) string {
	var b bytes.Buffer
	b.WriteString(formatUint(generation))
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	if q := r.URL.Query().Encode(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

const contentTypeJSON = "application/json"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // best-effort response
}

type errorResponse struct {
	Error string `json:"error"`
}

// encode marshals v for a snapshotHandler.
func encode(status int, v any) (int, string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(errorResponse{Error: "encode response"})
		return http.StatusInternalServerError, contentTypeJSON, body
	}
	return status, contentTypeJSON, append(body, '\n')
}

func encodeError(status int, msg string) (int, string, []byte) {
	return encode(status, errorResponse{Error: msg})
}
