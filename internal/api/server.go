// Package api exposes the config history and SLA trace services over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samijaber1/aegis-sla/internal/api/middleware"
	"github.com/samijaber1/aegis-sla/internal/history"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/samijaber1/aegis-sla/internal/sla"
	"github.com/samijaber1/aegis-sla/internal/slatrace"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	DefaultPageSize int
	MaxPageSize     int

	// Optional; nil disables the feature
	RateLimiter *middleware.RateLimiter
	Idempotency func(http.Handler) http.Handler
	Metrics     *metrics.Metrics
}

// DefaultOptions returns default server options
func DefaultOptions() Options {
	return Options{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		RequestTimeout:  5 * time.Second,
		DefaultPageSize: storage.DefaultPageLimit,
		MaxPageSize:     500,
	}
}

// Server is the HTTP API server
type Server struct {
	history *history.Service
	traces  *slatrace.Service
	store   Pinger
	opts    Options
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(historySvc *history.Service, traceSvc *slatrace.Service, store Pinger, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		history: historySvc,
		traces:  traceSvc,
		store:   store,
		opts:    opts,
		logger:  logger,
	}

	router := mux.NewRouter()
	router.Use(middleware.Metrics(opts.Metrics))

	// Health endpoints
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	writes := func(h http.HandlerFunc) http.Handler {
		if opts.Idempotency != nil {
			return opts.Idempotency(h)
		}
		return h
	}

	// Config history endpoints; /user/{changedBy} before /{configId}/latest
	router.HandleFunc("/sla-config-history", s.handleListAllHistory).Methods(http.MethodGet)
	router.Handle("/sla-config-history", writes(s.handleRecordChange)).Methods(http.MethodPost)
	router.HandleFunc("/sla-config-history/user/{changedBy}", s.handleHistoryByUser).Methods(http.MethodGet)
	router.HandleFunc("/sla-config-history/{configId}", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/sla-config-history/{configId}/latest", s.handleLatest).Methods(http.MethodGet)
	router.HandleFunc("/sla-config-history/{configId}/version/{version}", s.handleVersion).Methods(http.MethodGet)

	// SLA trace endpoints
	router.HandleFunc("/sla-traces", s.handleListTraces).Methods(http.MethodGet)
	router.Handle("/sla-traces/calculate", writes(s.handleCalculate)).Methods(http.MethodPost)
	router.HandleFunc("/sla-traces/incident/{incidentId}", s.handleTracesByIncident).Methods(http.MethodGet)
	router.HandleFunc("/sla-traces/{id}", s.handleGetTrace).Methods(http.MethodGet)

	// Router.Use does not reach these two, so they are counted explicitly
	countUnmatched := middleware.Metrics(opts.Metrics)
	router.NotFoundHandler = countUnmatched(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	}))
	router.MethodNotAllowedHandler = countUnmatched(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}))

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery(logger),
	}
	if opts.RateLimiter != nil {
		chain = append(chain, opts.RateLimiter.Limit)
	}
	chain = append(chain, middleware.Timeout(opts.RequestTimeout))

	s.handler = middleware.Chain(chain...)(router)
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	return s
}

// Handler returns the fully wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Ready:   false,
			Reasons: []string{"database unreachable"},
		})
		return
	}

	respondJSON(w, http.StatusOK, ReadyResponse{Ready: true})
}

// handleListAllHistory handles GET /sla-config-history
func (s *Server) handleListAllHistory(w http.ResponseWriter, r *http.Request) {
	page, err := s.parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	versions, err := s.history.GetAllHistory(r.Context(), page)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusOK, PageResponse{Data: versions, Limit: page.Limit, Offset: page.Offset})
}

// handleHistory handles GET /sla-config-history/{configId}
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.history.GetHistory(r.Context(), mux.Vars(r)["configId"])
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: versions})
}

// handleLatest handles GET /sla-config-history/{configId}/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	version, err := s.history.GetLatest(r.Context(), mux.Vars(r)["configId"])
	if err != nil {
		s.writeServiceError(w, r, err, "no history found for this config")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: version})
}

// handleVersion handles GET /sla-config-history/{configId}/version/{version}
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	number, err := strconv.Atoi(vars["version"])
	if err != nil || number < 1 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid version: %q", vars["version"]))
		return
	}

	version, err := s.history.GetVersion(r.Context(), vars["configId"], number)
	if err != nil {
		s.writeServiceError(w, r, err, "version not found")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: version})
}

// handleHistoryByUser handles GET /sla-config-history/user/{changedBy}
func (s *Server) handleHistoryByUser(w http.ResponseWriter, r *http.Request) {
	versions, err := s.history.GetChangesByUser(r.Context(), mux.Vars(r)["changedBy"])
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: versions})
}

// handleRecordChange handles POST /sla-config-history
func (s *Server) handleRecordChange(w http.ResponseWriter, r *http.Request) {
	var req RecordChangeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	snapshot, ok := decodeObject(req.NewConfig)
	if req.ConfigID == "" || req.ChangedBy == "" || !ok {
		respondError(w, http.StatusBadRequest, "config_id, changed_by, and new_config (object) are required")
		return
	}

	version, err := s.history.RecordChange(r.Context(), history.RecordInput{
		ConfigID:     req.ConfigID,
		ChangedBy:    req.ChangedBy,
		NewConfig:    snapshot,
		ChangeReason: req.ChangeReason,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusCreated, DataResponse{Data: version})
}

// handleListTraces handles GET /sla-traces
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	page, err := s.parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	traces, err := s.traces.ListAll(r.Context(), page)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusOK, PageResponse{Data: traces, Limit: page.Limit, Offset: page.Offset})
}

// handleGetTrace handles GET /sla-traces/{id}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Trace ids are UUIDs; anything else cannot exist
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "trace not found")
		return
	}

	trace, err := s.traces.GetTrace(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "trace not found")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: trace})
}

// handleTracesByIncident handles GET /sla-traces/incident/{incidentId}
func (s *Server) handleTracesByIncident(w http.ResponseWriter, r *http.Request) {
	traces, err := s.traces.ListByIncident(r.Context(), mux.Vars(r)["incidentId"])
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusOK, DataResponse{Data: traces})
}

// handleCalculate handles POST /sla-traces/calculate
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.IncidentID == "" || req.Severity == "" || req.ThresholdMinutes == nil || req.OpenedAt == "" {
		respondError(w, http.StatusBadRequest, "incident_id, severity, threshold_minutes, and opened_at are required")
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	calc, err := s.traces.Calculate(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	respondJSON(w, http.StatusCreated, DataResponse{Data: calc})
}

func (req CalculateRequest) toInput() (sla.Input, error) {
	openedAt, err := time.Parse(time.RFC3339Nano, req.OpenedAt)
	if err != nil {
		return sla.Input{}, fmt.Errorf("invalid opened_at: %q is not an RFC 3339 timestamp", req.OpenedAt)
	}

	in := sla.Input{
		IncidentID:       req.IncidentID,
		Severity:         req.Severity,
		ThresholdMinutes: *req.ThresholdMinutes,
		OpenedAt:         openedAt,
	}

	if req.ResolvedAt != nil && *req.ResolvedAt != "" {
		resolvedAt, err := time.Parse(time.RFC3339Nano, *req.ResolvedAt)
		if err != nil {
			return sla.Input{}, fmt.Errorf("invalid resolved_at: %q is not an RFC 3339 timestamp", *req.ResolvedAt)
		}
		in.ResolvedAt = &resolvedAt
	}

	return in, nil
}

// parsePage reads limit and offset, capping limit at MaxPageSize
func (s *Server) parsePage(r *http.Request) (storage.Page, error) {
	page := storage.Page{Limit: s.opts.DefaultPageSize}
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return page, fmt.Errorf("invalid limit: %q", v)
		}
		page.Limit = limit
	}

	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return page, fmt.Errorf("invalid offset: %q", v)
		}
		page.Offset = offset
	}

	if s.opts.MaxPageSize > 0 && page.Limit > s.opts.MaxPageSize {
		page.Limit = s.opts.MaxPageSize
	}

	return page.Normalize(), nil
}

// writeServiceError maps service and storage errors to status codes.
// notFound is the message used for storage.ErrNotFound.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var conflict *history.ConflictError

	switch {
	case errors.Is(err, history.ErrInvalidInput), errors.Is(err, slatrace.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrValueOutOfRange):
		respondError(w, http.StatusBadRequest, "numeric value out of storable range")
	case errors.Is(err, storage.ErrNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		respondError(w, http.StatusNotFound, notFound)
	case errors.As(err, &conflict):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusConflict, fmt.Sprintf("concurrent change to config %s, retry the request", conflict.ConfigID))
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request timed out",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		respondError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeObject accepts only a JSON object
func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
