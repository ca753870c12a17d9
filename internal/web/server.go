// Package web is the HTTP front door: a JSON API over the orchestrator plus
// a server-sent-events stream of run progress. Handlers only marshal
// arguments; all run logic stays in the pipeline package.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lucasnoah/buildmedic/internal/pipeline"
	"github.com/lucasnoah/buildmedic/internal/safety"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch *pipeline.Orchestrator
	addr string

	// webhookToken guards POST /webhook. Empty means every request is
	// accepted, an explicit opt-in posture for trusted networks.
	webhookToken string

	// baseConfig supplies the run configuration that request-body overrides
	// are merged onto.
	baseConfig func() pipeline.Config
}

// NewServer creates a Server. baseConfig is called per request so config
// reloads take effect without a restart.
func NewServer(orch *pipeline.Orchestrator, addr, webhookToken string, baseConfig func() pipeline.Config) *Server {
	return &Server{
		orch:         orch,
		addr:         addr,
		webhookToken: webhookToken,
		baseConfig:   baseConfig,
	}
}

// Handler returns the route table. Split from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.routeRun)
	mux.HandleFunc("/webhook", s.handleWebhook)
	return mux
}

// Start registers routes and listens until the process exits.
func (s *Server) Start() error {
	log.Printf("medic API: http://localhost%s", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// runOverrides is the accepted POST /api/run body: every field optional,
// merged over the base configuration.
type runOverrides struct {
	ProjectRoot    *string `json:"project_root"`
	BuildCommand   *string `json:"build_command"`
	TestCommand    *string `json:"test_command"`
	LintCommand    *string `json:"lint_command"`
	MaxFixAttempts *int    `json:"max_fix_attempts"`
	AutoFix        *bool   `json:"auto_fix"`
	RunTests       *bool   `json:"run_tests"`
	RunLint        *bool   `json:"run_lint"`
	GitEnabled     *bool   `json:"git_enabled"`
	GitCommitFixes *bool   `json:"git_commit_fixes"`
	TimeoutMs      *int    `json:"timeout_ms"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := s.baseConfig()
	var ov runOverrides
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	applyOverrides(&cfg, &ov)

	run, err := s.orch.Start(cfg)
	if errors.Is(err, pipeline.ErrRunActive) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// applyOverrides merges request-body fields over the base config. Numeric
// fields are clamped again in Config.Normalize; the clamp here just keeps
// obviously hostile values out of logs.
func applyOverrides(cfg *pipeline.Config, ov *runOverrides) {
	if ov.ProjectRoot != nil {
		cfg.ProjectRoot = *ov.ProjectRoot
	}
	if ov.BuildCommand != nil {
		cfg.BuildCommand = *ov.BuildCommand
	}
	if ov.TestCommand != nil {
		cfg.TestCommand = *ov.TestCommand
	}
	if ov.LintCommand != nil {
		cfg.LintCommand = *ov.LintCommand
	}
	if ov.MaxFixAttempts != nil {
		cfg.MaxFixAttempts = safety.ClampInt(*ov.MaxFixAttempts, 0, pipeline.MaxFixAttemptsCeiling)
	}
	if ov.AutoFix != nil {
		cfg.AutoFix = *ov.AutoFix
	}
	if ov.RunTests != nil {
		cfg.RunTests = *ov.RunTests
	}
	if ov.RunLint != nil {
		cfg.RunLint = *ov.RunLint
	}
	if ov.GitEnabled != nil {
		cfg.GitEnabled = *ov.GitEnabled
	}
	if ov.GitCommitFixes != nil {
		cfg.GitCommitFixes = *ov.GitCommitFixes
	}
	if ov.TimeoutMs != nil {
		cfg.Timeout = time.Duration(safety.ClampInt(*ov.TimeoutMs, 0, int(pipeline.MaxTimeout/time.Millisecond))) * time.Millisecond
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stopped := s.orch.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type statusResponse struct {
		Active *pipeline.Run `json:"active,omitempty"`
		Idle   bool          `json:"idle"`
		Stats  interface{}   `json:"stats"`
	}
	active := s.orch.Active()
	writeJSON(w, http.StatusOK, statusResponse{
		Active: active,
		Idle:   active == nil,
		Stats:  s.orch.History().Stats(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.History().List())
}

func (s *Server) routeRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 2 && parts[1] == "events" {
		s.handleEvents(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

// handleEvents serves the run's event stream over SSE. Late subscribers get
// a synthetic state snapshot first. The stream ends when the run completes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	snapshot, events, cancel := s.orch.Subscribe()
	defer cancel()
	if snapshot.RunID != runID {
		http.Error(w, "run not active", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	writeEvent(w, flusher, snapshot)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				fmt.Fprintf(w, "event: done\ndata: run finished\n\n")
				flusher.Flush()
				return
			}
			writeEvent(w, flusher, ev)
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev pipeline.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	flusher.Flush()
}

const (
	webhookBackoff = 2 * time.Second
	webhookMaxWait = 60 * time.Second
)

// handleWebhook triggers a run from an external push event. Unlike /api/run
// it waits behind an active run with a fixed backoff instead of rejecting.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cfg := s.baseConfig()
	// Query toggles let a push hook flip individual stages without a body.
	q := r.URL.Query()
	if v := q.Get("auto_fix"); v != "" {
		cfg.AutoFix = safety.CoerceBool(v, cfg.AutoFix)
	}
	if v := q.Get("run_tests"); v != "" {
		cfg.RunTests = safety.CoerceBool(v, cfg.RunTests)
	}
	if v := q.Get("run_lint"); v != "" {
		cfg.RunLint = safety.CoerceBool(v, cfg.RunLint)
	}

	go func() {
		if _, err := s.orch.StartWait(cfg, webhookBackoff, webhookMaxWait); err != nil {
			log.Printf("webhook run not started: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// authorized checks the webhook bearer token in constant time. With no token
// configured every request passes.
func (s *Server) authorized(r *http.Request) bool {
	if s.webhookToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return safety.SecureCompare(strings.TrimPrefix(auth, prefix), s.webhookToken)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
