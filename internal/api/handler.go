// Package api provides the HTTP API of the serve command.
// It exposes REST endpoints for sessions and streams turns as server-sent events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/sessions"
	"github.com/tejas96/sdlc-agents-sub000/internal/store"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"
)

const heartbeatInterval = 30 * time.Second

// Handler provides HTTP endpoints for sessions.
type Handler struct {
	svc       *sessions.Service
	templates templates.Set
	tracer    trace.Tracer
	heartbeat time.Duration
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Sessions runs turns (required).
	Sessions *sessions.Service
	// Templates supplies workflow descriptions (optional).
	Templates templates.Set
	Tracer    trace.Tracer
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		svc:       cfg.Sessions,
		templates: cfg.Templates,
		tracer:    cfg.Tracer,
		heartbeat: heartbeatInterval,
	}
	if h.tracer == nil {
		h.tracer = tracing.Noop().Tracer()
	}
	return h
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/workflows", h.ListWorkflows)

	// Sessions
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("GET /api/sessions", h.List)
	mux.HandleFunc("GET /api/sessions/{id}", h.Get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Delete)
	mux.HandleFunc("GET /api/sessions/{id}/artifacts", h.ListArtifacts)

	// Streaming
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.SendMessage)
	mux.HandleFunc("GET /api/logs", h.StreamLogs)

	mux.HandleFunc("GET /api/health", h.Health)

	return mux
}

// === Request/Response Types ===

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Workflow     string           `json:"workflow"`
	Message      string           `json:"message,omitempty"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	MCPConfigs   map[string]any   `json:"mcp_configs,omitempty"`
	Repositories []git.Repository `json:"repositories,omitempty"`
	Inputs       map[string]any   `json:"inputs,omitempty"`
}

// SessionResponse is the response body for a single session.
type SessionResponse struct {
	ID           string            `json:"id"`
	Workflow     string            `json:"workflow"`
	WorkspaceDir string            `json:"workspace_dir"`
	LLMSessionID string            `json:"llm_session_id,omitempty"`
	Messages     []MessageResponse `json:"messages"`
	Repositories []git.Repository  `json:"repositories,omitempty"`
	Inputs       map[string]any    `json:"inputs,omitempty"`
}

// MessageResponse is one conversation message.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ListSessionsResponse is the response body for listing sessions.
type ListSessionsResponse struct {
	Sessions []store.Summary `json:"sessions"`
	Total    int             `json:"total"`
}

// ListArtifactsResponse is the response body for listing artifacts.
type ListArtifactsResponse struct {
	Artifacts []store.ArtifactRecord `json:"artifacts"`
	Total     int                    `json:"total"`
}

// SendMessageRequest is the request body for a turn.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// WorkflowResponse describes one workflow.
type WorkflowResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ListWorkflowsResponse is the response body for listing workflows.
type ListWorkflowsResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
	Total     int                `json:"total"`
}

// HealthResponse is the response body for the health check.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// === Handlers ===

// Create creates a session and provisions its workspace.
// POST /api/sessions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.Workflow == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "workflow is required", "")
		return
	}

	sess, err := h.svc.Create(r.Context(), sessions.CreateRequest{
		Workflow:     req.Workflow,
		Message:      req.Message,
		SystemPrompt: req.SystemPrompt,
		MCPConfigs:   req.MCPConfigs,
		Repositories: req.Repositories,
		Inputs:       req.Inputs,
	})
	if err != nil {
		h.writeServiceError(w, "create_failed", "Failed to create session", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionToResponse(sess))
}

// List returns every session.
// GET /api/sessions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list sessions", err.Error())
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	h.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: list, Total: len(list)})
}

// Get returns one session with its conversation.
// GET /api/sessions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "get_failed", "Failed to get session", err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// Delete removes a session.
// DELETE /api/sessions/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, "delete_failed", "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListArtifacts returns the session's artifacts, optionally filtered by ?type=.
// GET /api/sessions/{id}/artifacts
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Artifacts(r.Context(), r.PathValue("id"), r.URL.Query().Get("type"))
	if err != nil {
		h.writeServiceError(w, "list_failed", "Failed to list artifacts", err)
		return
	}
	if records == nil {
		records = []store.ArtifactRecord{}
	}
	h.writeJSON(w, http.StatusOK, ListArtifactsResponse{Artifacts: records, Total: len(records)})
}

// ListWorkflows returns the registered workflows.
// GET /api/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	names := h.svc.Workflows()
	resp := ListWorkflowsResponse{Workflows: make([]WorkflowResponse, 0, len(names)), Total: len(names)}
	for _, name := range names {
		wf := WorkflowResponse{ID: name}
		if t, ok := h.templates[name]; ok {
			wf.Name = t.Name
			wf.Description = t.Description
			wf.Category = t.Category
		}
		resp.Workflows = append(resp.Workflows, wf)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SendMessage appends a user message and streams the turn.
// POST /api/sessions/{id}/messages
//
// Errors raised before the first event are returned as JSON with a matching
// status code. Once streaming starts, failures arrive as a finish event.
// Closing the connection cancels the turn.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	ctx, span := tracing.Start(r.Context(), h.tracer, tracing.SpanHTTPTurn,
		attribute.String(tracing.AttrSessionID, id))

	events, err := h.svc.Turn(ctx, id, req.Content)
	if err != nil {
		tracing.End(span, err)
		h.writeServiceError(w, "turn_failed", "Failed to start turn", err)
		return
	}

	log.Debug(log.CatHTTP, "streaming turn", "session", id)
	count := h.streamEvents(ctx, w, flusher, events)
	span.SetAttributes(attribute.Int(tracing.AttrEventCount, count))
	tracing.End(span, nil)
	log.Debug(log.CatHTTP, "turn stream closed", "session", id, "events", count, "clientGone", ctx.Err() != nil)
}

// StreamLogs tails the process log.
// GET /api/logs
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	entries := log.NewListener(r.Context())
	if entries == nil {
		h.writeError(w, http.StatusNotFound, "logging_disabled", "Logging is not enabled", "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case entry, ok := <-entries:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]string{"category": entry.Topic, "line": entry.Payload})
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Health reports whether the store is reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: len(list)})
}

// === Helpers ===

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
}

// streamEvents writes each event as `data: <json>` until the channel closes.
// It returns the number of events written.
func (h *Handler) streamEvents(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, events <-chan stream.Event) int {
	setSSEHeaders(w)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			// The service drains and closes events once it sees the cancellation.
			for range events {
			}
			return count
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return count
			}
			data, err := stream.Encode(ev)
			if err != nil {
				log.Error(log.CatHTTP, "Failed to marshal event", "error", err, "kind", ev.Kind())
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			count++
		}
	}
}

func sessionToResponse(s workflow.Session) SessionResponse {
	resp := SessionResponse{
		ID:           s.ID,
		Workflow:     s.Workflow,
		WorkspaceDir: s.WorkspaceDir,
		LLMSessionID: s.LLMSessionID,
		Messages:     make([]MessageResponse, 0, len(s.Messages)),
		Inputs:       s.Inputs,
	}
	for _, m := range s.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{Role: string(m.Role), Content: m.Content})
	}
	for _, r := range s.Repositories {
		r.URL = git.RedactURL(r.URL)
		resp.Repositories = append(resp.Repositories, r)
	}
	return resp
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sessions.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, workflow.ErrUnknownWorkflow), errors.Is(err, workflow.ErrMissingInput),
		errors.Is(err, git.ErrInvalidName):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, workflow.ErrPrepareFailed):
		return http.StatusUnprocessableEntity, "prepare_failed"
	default:
		return http.StatusInternalServerError, ""
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, fallbackCode, message string, err error) {
	status, code := statusFor(err)
	if code == "" {
		code = fallbackCode
		log.ErrorErr(log.CatHTTP, message, err)
	}
	h.writeError(w, status, code, message, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatHTTP, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	port     int // Actual port after binding (useful when using :0)
	// cancel ends every in-flight turn on Stop.
	cancel   context.CancelFunc
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:8080").
	Addr    string
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// NewServer creates a new API server.
// If Addr uses port 0 the OS assigns one; Port reports it.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(cfg.Handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:  handler,
		port:     port,
		listener: listener,
		cancel:   cancel,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,

			// No write timeout: turns stream for as long as the agent runs.
			BaseContext: func(net.Listener) context.Context { return baseCtx },
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatHTTP, "Starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatHTTP, "Stopping API server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
