package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/owss/owss/internal/ratelimit"
	"github.com/owss/owss/internal/resource"
)

const defaultMaxUploadSize = 100 << 20 // 100 MB

// Options configures the HTTP layer.
type Options struct {
	Name string
	// Private restricts resource creation to loopback and whitelisted clients.
	Private               bool
	EnableAccessWhitelist bool
	AccessWhitelist       []string
	// CreateRateLimit is the number of creates allowed per IP per minute.
	// Zero disables the limit.
	CreateRateLimit int
	MaxUploadSize   int64
	// TmpDir receives uploads before they are moved into a resource.
	TmpDir     string
	StagingTTL time.Duration
}

// Server is the HTTP front of the storage engine.
type Server struct {
	engine  *resource.Engine
	opts    Options
	mux     *http.ServeMux
	access  *Whitelist
	creator *Whitelist
	limiter *ratelimit.Keyed
	tmpDir  string
}

// New creates a new Server with all routes registered.
func New(engine *resource.Engine, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = "OWSS"
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	if opts.StagingTTL <= 0 {
		opts.StagingTTL = time.Hour
	}
	if opts.TmpDir == "" {
		opts.TmpDir = filepath.Join(engine.Layout().Root, "tmp")
	}
	tmpDir, err := filepath.Abs(opts.TmpDir)
	if err != nil {
		return nil, fmt.Errorf("resolve tmp dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	access, err := NewWhitelist(opts.AccessWhitelist)
	if err != nil {
		return nil, err
	}
	creator, err := NewWhitelist(append(append([]string{}, loopback...), opts.AccessWhitelist...))
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:  engine,
		opts:    opts,
		mux:     http.NewServeMux(),
		access:  access,
		creator: creator,
		tmpDir:  tmpDir,
	}
	if opts.CreateRateLimit > 0 {
		s.limiter = ratelimit.NewKeyed(opts.CreateRateLimit, time.Minute)
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler. It applies CORS headers and the global
// access whitelist before routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "X-Requested-With")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.opts.EnableAccessWhitelist && !s.access.Allows(peerIP(r)) {
		writeError(w, http.StatusUnauthorized, codePermissionDenied)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /storage", s.handleWelcome)

	// Resources
	s.mux.HandleFunc("GET /storage/create", s.handleCreate)
	s.mux.HandleFunc("GET /storage/{resourceId}/list", s.handleList)
	s.mux.HandleFunc("POST /storage/{resourceId}/add", s.handleAdd)
	s.mux.HandleFunc("GET /storage/{resourceId}/get/{path...}", s.handleGet)
	s.mux.HandleFunc("POST /storage/{resourceId}/delete/{path...}", s.handleDelete)
	s.mux.HandleFunc("POST /storage/{resourceId}/recount", s.handleRecount)

	// Shares
	s.mux.HandleFunc("GET /storage/{resourceId}/shares", s.handleListShares)
	s.mux.HandleFunc("POST /storage/{resourceId}/shares/{token}/delete", s.handleRevokeShare)
	s.mux.HandleFunc("GET /share/{token}", s.handleShareDownload)
}

// handleWelcome returns the liveness text.
func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Welcome to use %s.", s.opts.Name)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeData writes the success envelope {"data": ...}.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// writeError writes the failure envelope {"error": code}.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
