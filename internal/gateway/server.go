package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vexlio/drover/internal/config"
)

// BridgeStatus reports whether an extension is currently connected.
type BridgeStatus interface {
	Connected() bool
}

// Server is the dashboard-facing HTTP API.
type Server struct {
	cfg        config.GatewayConfig
	logger     *zap.Logger
	bridge     BridgeStatus
	queue      *Queue
	httpServer *http.Server
}

// NewServer creates the gateway HTTP server over the given bridge and queue.
func NewServer(cfg config.GatewayConfig, bridge BridgeStatus, queue *Queue, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.Named("gateway"),
		bridge: bridge,
		queue:  queue,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/{taskID}", s.handleGetTask)
			r.Post("/{taskID}/stop", s.handleStopTask)
		})
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. The returned error covers listener
// setup only; serve-loop failures are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Gateway API listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Gateway server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusResponse struct {
	BridgeStatus string `json:"bridge_status"`
	AgentStatus  string `json:"agent_status"`
	Queued       int    `json:"queued"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bridgeStatus := "disconnected"
	if s.bridge.Connected() {
		bridgeStatus = "connected"
	}
	agentStatus := "idle"
	if s.queue.Depth() > 0 {
		agentStatus = "busy"
	}
	writeJSON(w, http.StatusOK, statusResponse{
		BridgeStatus: bridgeStatus,
		AgentStatus:  agentStatus,
		Queued:       s.queue.Depth(),
	})
}

type createTaskRequest struct {
	Prompt   string `json:"prompt"`
	MaxSteps int    `json:"max_steps"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 25
	}

	task, err := s.queue.Enqueue(req.Prompt, req.MaxSteps)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.queue.Get(chi.URLParam(r, "taskID"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.queue.Stop(chi.URLParam(r, "taskID"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
