package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// Monitor is the subset of *activity.Monitor the server drives.
type Monitor interface {
	NotifyActivity()
	CurrentState() activity.State
	InactivityTimeout() time.Duration
	SetInactivityTimeout(d time.Duration)
	AwaitInactive(ctx context.Context, timeout time.Duration) activity.Outcome
}

var _ Monitor = (*activity.Monitor)(nil)

// maxTimeoutMs is the largest timeout_ms that fits in a time.Duration.
const maxTimeoutMs = math.MaxInt64 / int64(time.Millisecond)

// ErrAlreadyRunning means another server is answering on the socket.
var ErrAlreadyRunning = errors.New("quiesce is already running")

// Server is the control API server over a Unix socket.
type Server struct {
	sockPath  string
	monitor   Monitor
	server    *http.Server
	listener  net.Listener
	startedAt time.Time
	log       *logrus.Entry
}

// NewServer creates a control server for monitor that will listen on sockPath.
func NewServer(sockPath string, monitor Monitor) *Server {
	s := &Server{
		sockPath:  sockPath,
		monitor:   monitor,
		startedAt: time.Now(),
		log:       logrus.WithField("component", "control"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/activity", s.handleActivity)
	mux.HandleFunc("POST /v1/wait", s.handleWait)
	mux.HandleFunc("PUT /v1/inactivity-timeout", s.handleSetTimeout)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start begins listening on the Unix socket. A stale socket file is
// removed first; a live one is left alone.
func (s *Server) Start() error {
	if conn, err := net.DialTimeout("unix", s.sockPath, time.Second); err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, s.sockPath)
	}
	_ = os.Remove(s.sockPath)
	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.sockPath, err)
	}
	if err := os.Chmod(s.sockPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod %s: %w", s.sockPath, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("control server stopped")
		}
	}()
	s.log.WithField("socket", s.sockPath).Info("control server listening")
	return nil
}

// Stop gracefully shuts down the server and removes the socket file.
// In-flight waits are expected to have been resolved by monitor teardown.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.listener != nil {
		_ = os.Remove(s.sockPath)
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		PID:       os.Getpid(),
		StartedAt: s.startedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStateResponse(s.monitor.CurrentState(), s.monitor.InactivityTimeout()))
}

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	s.monitor.NotifyActivity()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	var req WaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	timeout, msg := timeoutFromMillis(req.TimeoutMs)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	outcome := s.monitor.AwaitInactive(r.Context(), timeout)
	s.log.WithField("outcome", outcome).Debug("wait resolved")
	writeJSON(w, http.StatusOK, WaitResponse{Outcome: outcome})
}

func (s *Server) handleSetTimeout(w http.ResponseWriter, r *http.Request) {
	var req TimeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	timeout, msg := timeoutFromMillis(req.TimeoutMs)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.monitor.SetInactivityTimeout(timeout)
	s.log.WithField("timeout", timeout).Info("inactivity timeout changed")
	w.WriteHeader(http.StatusNoContent)
}

// timeoutFromMillis converts a request's timeout_ms, or returns the reason it
// is out of range.
func timeoutFromMillis(ms int64) (time.Duration, string) {
	switch {
	case ms < 0:
		return 0, "timeout_ms must be non-negative"
	case ms > maxTimeoutMs:
		return 0, fmt.Sprintf("timeout_ms must be at most %d", maxTimeoutMs)
	}
	return time.Duration(ms) * time.Millisecond, ""
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
