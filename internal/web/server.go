// Package web exposes the JSON surface of the agent: health and status
// endpoints, a chat endpoint for browser sessions, audit log access, and
// Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/ratelimit"
	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/pkg/models"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// ChatFunc processes one chat message and returns the reply.
type ChatFunc func(ctx context.Context, text string, user models.UserContext) string

// Config parameterizes a Server.
type Config struct {
	Port    int
	Chat    ChatFunc
	Modes   *mode.Manager
	Limits  *ratelimit.Limiter
	Store   *store.Store
	Metrics *Metrics

	// Provider and Model identify the configured LLM for /api/status.
	Provider string
	Model    string
}

// Server is the HTTP server for the web surface.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	server  *http.Server
	log     *slog.Logger
	started time.Time
}

// NewServer builds the server and its routes. It does not listen yet.
func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		log:     slog.With("component", "web"),
		started: time.Now(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/audit", s.handleAudit)
	s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.log.Info("web server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":        string(s.cfg.Modes.Current()),
		"mode_status": s.cfg.Modes.StatusText(),
		"rate_limits": s.cfg.Limits.Status(),
		"provider":    s.cfg.Provider,
		"model":       s.cfg.Model,
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// handleChat runs one conversation turn. Each browser session gets its
// own history, keyed by the session id it sends back on later turns.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	user := models.UserContext{
		UserID:      "web:" + req.SessionID,
		DisplayName: "Web User",
		Source:      models.SourceWeb,
	}
	s.cfg.Metrics.ObserveMessage(string(models.SourceWeb), "inbound")
	reply := s.cfg.Chat(r.Context(), req.Message, user)
	s.cfg.Metrics.ObserveMessage(string(models.SourceWeb), "outbound")

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, SessionID: req.SessionID})
}

// handleAudit lists recent audit entries, optionally filtered by source
// and message type, or searched with ?q=.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	query := r.URL.Query()
	limit := intParam(query.Get("limit"), defaultAuditLimit)
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset := intParam(query.Get("offset"), 0)

	var entries []models.AuditEntry
	var err error
	if q := query.Get("q"); q != "" {
		entries, err = s.cfg.Store.Audit.SearchLogs(r.Context(), q, limit, offset)
	} else {
		entries, err = s.cfg.Store.Audit.RecentLogs(r.Context(), limit, offset,
			query.Get("source"), models.MessageType(query.Get("type")))
	}
	if err != nil {
		s.log.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
