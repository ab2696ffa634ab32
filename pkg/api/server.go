// Package api serves classification, history and audit data over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/analyzer"
	"github.com/markus-lassfolk/hifiwifi/pkg/audit"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
	"github.com/markus-lassfolk/hifiwifi/pkg/store"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
	maxBodyBytes = 1 << 20
)

// Config holds API server configuration
type Config struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AuthKey string `json:"-"`
}

// DefaultConfig returns default API configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Host:    "0.0.0.0",
		Port:    8088,
	}
}

// ResultHistory is the read side of the result store
type ResultHistory interface {
	History(room string, limit int) ([]*pkg.RoomReport, error)
	Rooms() ([]store.RoomInfo, error)
}

// DecisionHistory is the read side of the decision log
type DecisionHistory interface {
	Recent(ctx context.Context, limit int) ([]*pkg.Decision, error)
	ForRoom(ctx context.Context, room string, limit int) ([]*pkg.Decision, error)
	Stats(ctx context.Context, since time.Time) (*audit.DecisionStats, error)
}

// Server is the HTTP API. History, decisions and metrics are optional;
// their endpoints answer 503 when unset.
type Server struct {
	config    *Config
	analyzer  *analyzer.Analyzer
	history   ResultHistory
	decisions DecisionHistory
	metrics   http.Handler
	logger    *logx.Logger
	version   string
	startTime time.Time

	httpServer *http.Server
}

// NewServer creates an API server
func NewServer(config *Config, a *analyzer.Analyzer, logger *logx.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		config:    config,
		analyzer:  a,
		logger:    logger.WithComponent("api"),
		version:   "dev",
		startTime: time.Now(),
	}
}

// WithHistory enables the room history endpoints
func (s *Server) WithHistory(h ResultHistory) *Server {
	s.history = h
	return s
}

// WithDecisions enables the decision endpoints
func (s *Server) WithDecisions(d DecisionHistory) *Server {
	s.decisions = d
	return s
}

// WithMetrics serves the given handler on /metrics
func (s *Server) WithMetrics(h http.Handler) *Server {
	s.metrics = h
	return s
}

// WithVersion sets the version reported by /health
func (s *Server) WithVersion(v string) *Server {
	s.version = v
	return s
}

// Router builds the route table wrapped in recovery and access logging
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	v1.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	v1.HandleFunc("/samples", s.handleSamples).Methods(http.MethodPost)
	v1.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{room}/results", s.handleRoomResults).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{room}/decisions", s.handleRoomDecisions).Methods(http.MethodGet)
	v1.HandleFunc("/decisions", s.handleDecisions).Methods(http.MethodGet)
	v1.HandleFunc("/decisions/stats", s.handleDecisionStats).Methods(http.MethodGet)
	v1.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)

	logged := handlers.CombinedLoggingHandler(accessLog{s.logger}, r)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLog{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(logged)
}

// Start listens in the background
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("API server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting API server", "address", addr, "auth", s.config.AuthKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// authMiddleware checks the optional API key in X-API-Key or ?auth=
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("auth")
		}
		if key != s.config.AuthKey {
			s.logger.Warn("Invalid authentication attempt", "remote_addr", r.RemoteAddr)
			s.sendErrorResponse(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	reg := s.analyzer.Classifier().Registry()
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"profiles": reg.Profiles(),
		"default":  activity.General,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzer.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid measurement", err)
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.sendError(w, "failed to analyze measurement", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, report)
}

type samplesRequest struct {
	Probes []samplestats.Probe `json:"probes"`
	Window int                 `json:"window"`
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "invalid probe batch", err)
		return
	}

	summary, err := samplestats.Summarize(req.Probes, req.Window)
	if err != nil {
		s.sendError(w, "failed to summarize probes", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, summary)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "result store is disabled", nil)
		return
	}
	rooms, err := s.history.Rooms()
	if err != nil {
		s.sendError(w, "failed to list rooms", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

func (s *Server) handleRoomResults(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "result store is disabled", nil)
		return
	}
	room := mux.Vars(r)["room"]
	limit, err := parseLimit(r)
	if err != nil {
		s.sendError(w, "invalid limit", err)
		return
	}

	reports, err := s.history.History(room, limit)
	if err != nil {
		s.sendError(w, "failed to read room history", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"room":    room,
		"results": reports,
	})
}

func (s *Server) handleRoomDecisions(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "decision log is disabled", nil)
		return
	}
	room := mux.Vars(r)["room"]
	limit, err := parseLimit(r)
	if err != nil {
		s.sendError(w, "invalid limit", err)
		return
	}

	decisions, err := s.decisions.ForRoom(r.Context(), room, limit)
	if err != nil {
		s.sendError(w, "failed to read decisions", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"room":      room,
		"decisions": decisions,
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "decision log is disabled", nil)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.sendError(w, "invalid limit", err)
		return
	}

	decisions, err := s.decisions.Recent(r.Context(), limit)
	if err != nil {
		s.sendError(w, "failed to read decisions", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func (s *Server) handleDecisionStats(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "decision log is disabled", nil)
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, "invalid since duration", err)
			return
		}
		window = d
	}

	stats, err := s.decisions.Stats(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.sendError(w, "failed to compute decision stats", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, stats)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"operations": s.analyzer.Performance().All(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", quality.ErrInvalidInput)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// sendError maps domain errors to status codes
func (s *Server) sendError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quality.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error(message, "error", err)
	}
	s.sendErrorResponse(w, status, message, err)
}

// sendJSONResponse sends a JSON response with proper headers
func (s *Server) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// sendErrorResponse sends an error response
func (s *Server) sendErrorResponse(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.sendJSONResponse(w, status, response)
}

// accessLog feeds gorilla's combined log lines into the debug log
type accessLog struct{ logger *logx.Logger }

func (a accessLog) Write(p []byte) (int, error) {
	a.logger.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type recoveryLog struct{ logger *logx.Logger }

func (r recoveryLog) Println(v ...interface{}) {
	r.logger.Error("Recovered from panic in HTTP handler", "panic", fmt.Sprint(v...))
}
