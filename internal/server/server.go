package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/internal/version"
)

// IndexServer shares one service between CLI invocations over a unix socket.
type IndexServer struct {
	svc          *service.Service
	listener     net.Listener
	server       *http.Server
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
	socketPath   string // Custom socket path (empty uses the root's)
}

// NewIndexServer wraps an opened service. The caller keeps ownership of svc.
func NewIndexServer(svc *service.Service) *IndexServer {
	return &IndexServer{
		svc:          svc,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}
}

// GetSocketPathForRoot returns a project-specific socket path based on the root directory
// This allows multiple servers to run for different projects simultaneously
func GetSocketPathForRoot(root string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	sum := uint32(xxhash.Sum64String(absRoot))
	return filepath.Join(os.TempDir(), fmt.Sprintf("ccindex-server-%08x.sock", sum))
}

// SetSocketPath sets a custom socket path for this server (used for testing)
func (s *IndexServer) SetSocketPath(path string) {
	s.socketPath = path
}

// SocketPath returns the socket path this server is using
func (s *IndexServer) SocketPath() string {
	if s.socketPath != "" {
		return s.socketPath
	}
	return GetSocketPathForRoot(s.svc.Config().Project.Root)
}

// Start begins listening for client connections
func (s *IndexServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	socketPath := s.SocketPath()
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		debug.LogMCP("Removing stale socket %s: %v\n", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener
	if err := os.Chmod(socketPath, 0o600); err != nil {
		debug.LogMCP("Restricting socket %s: %v\n", socketPath, err)
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			debug.LogMCP("Server error: %v\n", err)
		}
	}()

	debug.LogMCP("Index server started on %s (pid: %d)\n", socketPath, os.Getpid())
	debug.LogMCP("Project root: %s\n", s.svc.Config().Project.Root)
	return nil
}

// registerHandlers sets up RPC endpoints
func (s *IndexServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/complete", s.handleComplete)
	mux.HandleFunc("/calltip", s.handleCallTip)
	mux.HandleFunc("/current_function", s.handleCurrentFunction)
	mux.HandleFunc("/tokens", s.handleTokens)
	mux.HandleFunc("/buffer_functions", s.handleBufferFunctions)
	mux.HandleFunc("/reparse", s.handleReparse)
	mux.HandleFunc("/environment", s.handleEnvironment)
	mux.HandleFunc("/shutdown", s.handleShutdown)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.LogMCP("Encoding response: %v\n", err)
	}
}

// writeError maps service failures onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var fe *errors.FileError
	switch {
	case stderrors.Is(err, errors.ErrMissingFile),
		stderrors.Is(err, errors.ErrInvalidPosition),
		stderrors.Is(err, errors.ErrNotParsable):
		code = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrNotReady):
		code = http.StatusServiceUnavailable
	case stderrors.As(err, &fe):
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

// decode reads the request body into v; an empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// handlePing responds to health check requests
func (s *IndexServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PingResponse{
		Uptime:  time.Since(s.startTime).Seconds(),
		Version: version.Version,
		BuildID: version.BuildID(),
		PID:     os.Getpid(),
		Root:    s.svc.Config().Project.Root,
	})
}

func (s *IndexServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Status())
}

func (s *IndexServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req service.CompleteRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Complete(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleCallTip(w http.ResponseWriter, r *http.Request) {
	var req service.PositionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.CallTip(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleCurrentFunction(w http.ResponseWriter, r *http.Request) {
	var req service.PositionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.CurrentFunction(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	var req service.TokensRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Tokens(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleBufferFunctions(w http.ResponseWriter, r *http.Request) {
	var req service.BufferRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.BufferFunctions(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleReparse(w http.ResponseWriter, r *http.Request) {
	var req ReparseRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Reparse(r.Context(), req.File)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *IndexServer) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Environment(r.Context()))
}

// handleShutdown answers first, then releases Wait.
func (s *IndexServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, ShutdownResponse{Success: true, Message: "Server shutting down"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	}()
}

// Wait blocks until a client requests shutdown or ctx is done.
func (s *IndexServer) Wait(ctx context.Context) {
	select {
	case <-s.shutdownChan:
	case <-ctx.Done():
	}
}

// Shutdown stops serving and removes the socket. The service stays open.
func (s *IndexServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	s.wg.Wait()

	if err := os.Remove(s.SocketPath()); err != nil && !os.IsNotExist(err) {
		debug.LogMCP("Removing socket: %v\n", err)
	}
	debug.LogMCP("Index server shut down cleanly\n")
	return nil
}
