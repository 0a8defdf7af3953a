// Package server is the local HTTP listener the catalog uses to push
// snapshots into the project.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

// DefaultPort is the listener port the catalog expects.
const DefaultPort = 8008

// maxImportBody caps the POST /import request body.
const maxImportBody = 64 << 10

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// Config holds configuration for the HTTP server.
type Config struct {
	Port int
	Bind string

	// ImportTimeout bounds a single download and import.
	ImportTimeout time.Duration
}

// Importer downloads and imports a snapshot.
type Importer interface {
	DownloadAndImport(ctx context.Context, id int, mode archive.Mode) (*imports.Result, error)
}

// History lists recorded imports.
type History interface {
	ListImports(ctx context.Context, limit int) ([]storage.ImportRecord, error)
}

// ImportRequest is the POST /import body. SnapshotID may be a JSON number or
// a decimal string.
type ImportRequest struct {
	SnapshotID any    `json:"snapshot_id"`
	Mode       string `json:"mode"`
}

// ImportResponse is the POST /import result.
type ImportResponse struct {
	Status     string `json:"status"`
	SnapshotID int    `json:"snapshot_id"`
	ZipPath    string `json:"zip_path"`
	Mode       string `json:"mode"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
}

// ImportRecord is one entry of the GET /imports response.
type ImportRecord struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	ZipPath   string    `json:"zip_path"`
	Mode      string    `json:"mode"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Server is the import listener. It is safe for concurrent use.
type Server struct {
	mu             sync.RWMutex
	health         *HealthManager
	config         Config
	importer       Importer
	history        History
	metricsHandler http.Handler
	logger         *slog.Logger
	server         *http.Server
	router         *chi.Mux
}

// NewServer creates a listener that hands import requests to importer.
func NewServer(health *HealthManager, config Config, importer Importer, logger *slog.Logger) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ImportTimeout <= 0 {
		config.ImportTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		health:   health,
		config:   config,
		importer: importer,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Post("/import", s.handleImport)
	r.Get("/imports", s.handleImports)

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	return r
}

// SetMetricsHandler sets the Prometheus metrics handler.
func (s *Server) SetMetricsHandler(handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsHandler = handler
	s.router = s.routes()
}

// SetHistory sets the import history served on GET /imports.
func (s *Server) SetHistory(h History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

// Handler returns the HTTP handler for testing purposes.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
}

// requestID tags each request with an id, reusing one the caller sent.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

// LivezResponse is the response format for /healthz endpoint.
type LivezResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivezResponse{Status: "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Status())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "import not available")
		return
	}

	var req ImportRequest
	body := http.MaxBytesReader(w, r.Body, maxImportBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := ParseSnapshotID(req.SnapshotID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := archive.ParseMode(req.Mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("import requested",
		"snapshot_id", id,
		"mode", mode.String(),
		"request_id", w.Header().Get(RequestIDHeader))

	// The import runs to completion even if the caller disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.ImportTimeout)
	defer cancel()

	res, err := s.importer.DownloadAndImport(ctx, id, mode)
	if s.health != nil {
		li := LastImport{SnapshotID: id, Mode: mode.String()}
		if err != nil {
			li.Error = err.Error()
		} else {
			li.Imported, li.Skipped = res.Imported, res.Skipped
		}
		s.health.RecordImport(li)
	}
	if err != nil {
		writeJSONError(w, importErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ImportResponse{
		Status:     "ok",
		SnapshotID: id,
		ZipPath:    res.ZipPath,
		Mode:       mode.String(),
		Imported:   res.Imported,
		Skipped:    res.Skipped,
	})
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	history := s.history
	s.mu.RUnlock()

	if history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "import history not available")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := history.ListImports(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]ImportRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, ImportRecord(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// ParseSnapshotID accepts a positive integer given as a JSON number or a
// decimal string.
func ParseSnapshotID(v any) (int, error) {
	var id int
	switch t := v.(type) {
	case nil:
		return 0, errors.New("snapshot_id is required")
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt32 {
			return 0, fmt.Errorf("invalid snapshot_id %v", t)
		}
		id = int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("invalid snapshot_id %q", t)
		}
		id = n
	default:
		return 0, fmt.Errorf("invalid snapshot_id %v", t)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid snapshot_id %d; must be positive", id)
	}
	return id, nil
}

func importErrorStatus(err error) int {
	var statusErr *syncclient.StatusError
	switch {
	case errors.Is(err, syncclient.ErrUnavailable):
		return http.StatusServiceUnavailable
	case syncclient.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, imports.ErrZipNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Start starts the HTTP server and blocks until it's stopped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("import listener started", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error; %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server; %w", err)
	}

	return nil
}
