// Package controlchannel implements the Control Channel (C10): the HTTP
// surface a preflight UI or automation script uses to inspect the input
// shape, apply a config, start/stop a run, and let spawned workers push
// telemetry updates back to the hub. It replaces the teacher's embedded
// web dashboard with the RPC contract from spec.md Section 6, grounded on
// the teacher's internal/api server (chi router, layered middleware,
// requestID/logging/recover/timeout, optional API-key gate).
package controlchannel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/classify"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/gate"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
)

// Runner is the subset of orchestrator.Orchestrator the control channel
// drives. Defined here (not imported from internal/orchestrator) so the
// two packages don't import each other.
type Runner interface {
	RequestStop() error
	Hub() *telemetry.Hub
}

// Starter launches a run once a valid config has been applied. It is
// invoked in a goroutine by the /start handler. cmd/run.go passes a nil
// Starter (its own runRunCommand drives the crawl), so in that binary
// POST /start answers 500 "no start handler wired".
type Starter func(ctx context.Context, applied AppliedConfig) error

// AppliedConfig is the persisted, gate-validated configuration a preflight
// client submits via POST /config.
type AppliedConfig struct {
	Outputs []config.OutputKind    `json:"outputs"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Server exposes the endpoints from spec.md Section 6 under a single chi
// router.
type Server struct {
	router  chi.Router
	logger  *zap.Logger
	outDir  string
	apiKey  string
	shape   classify.Shape
	runner  Runner
	start   Starter

	state   sessionState
}

// sessionState holds the mutable session fields, kept in their own small
// struct so their zero value is directly usable.
type sessionState struct {
	appliedPath string
	started     bool
}

// New builds a Server. shape is the Input Shape already computed for the
// resolved --input file (or its zero value when no input was given); apiKey
// enables the same X-API-Key/api_key gate as the teacher's API when
// non-empty.
func New(logger *zap.Logger, outDir string, apiKey string, shape classify.Shape, runner Runner, start Starter) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		outDir: outDir,
		apiKey: apiKey,
		shape:  shape,
		runner: runner,
		start:  start,
		state:  sessionState{appliedPath: filepath.Join(outDir, "telemetry", "config.json")},
	}
	s.router = s.routes()
	return s
}

// Handler returns the assembled http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if s.apiKey != "" {
		r.Use(apiKeyMiddleware(s.apiKey))
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/preflight", s.preflight)
	r.Post("/config", s.postConfig)
	r.Post("/start", s.postStart)
	r.Post("/stop", s.postStop)
	r.Post("/reset", s.postReset)
	r.Post("/update", s.postUpdate)
	r.Get("/snapshot", s.getSnapshot)
	r.Get("/files", s.getFiles)
	r.Get("/download", s.getDownload)
	return r
}

type preflightResponse struct {
	Shape    classify.Shape         `json:"shape"`
	Options  []config.OutputKind    `json:"options"`
	Selected []config.OutputKind    `json:"selected"`
	Meta     map[string]interface{} `json:"meta"`
	Applied  bool                   `json:"applied"`
	Started  bool                   `json:"started"`
}

var allOutputOptions = []config.OutputKind{
	config.OutputURLs, config.OutputSiteCatalog, config.OutputInternalLinks,
	config.OutputTree, config.OutputExistenceCSV, config.OutputComparisonCSV,
}

func (s *Server) preflight(w http.ResponseWriter, r *http.Request) {
	_, appliedErr := os.Stat(s.state.appliedPath)
	resp := preflightResponse{
		Shape:    s.shape,
		Options:  allOutputOptions,
		Selected: allOutputOptions,
		Meta:     map[string]interface{}{},
		Applied:  appliedErr == nil,
		Started:  s.state.started,
	}
	writeJSON(w, http.StatusOK, resp)
}

type configResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var req AppliedConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, configResponse{Valid: false, Errors: []string{"malformed request body"}})
		return
	}
	result := gate.Evaluate(s.shape, req.Outputs)
	if !result.OK {
		errs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, e.Error())
		}
		writeJSON(w, http.StatusOK, configResponse{Valid: false, Errors: errs})
		return
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode applied config")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.state.appliedPath), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "prepare telemetry dir")
		return
	}
	if err := os.WriteFile(s.state.appliedPath, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "persist config")
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Valid: true})
}

func (s *Server) postStart(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.state.appliedPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no applied config; POST /config first")
		return
	}
	var applied AppliedConfig
	if err := json.Unmarshal(data, &applied); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt applied config")
		return
	}
	if s.start == nil {
		writeError(w, http.StatusInternalServerError, "no start handler wired")
		return
	}
	s.state.started = true
	go func() {
		if err := s.start(context.Background(), applied); err != nil {
			s.logger.Error("run failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) postStop(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusInternalServerError, "no runner wired")
		return
	}
	if err := s.runner.RequestStop(); err != nil {
		writeError(w, http.StatusInternalServerError, "write stop flag: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	stopFlag := filepath.Join(s.outDir, "telemetry", "stop.flag")
	statePath := filepath.Join(s.outDir, "telemetry", "state.json")
	_ = os.Remove(stopFlag)
	_ = os.Remove(statePath)
	s.state.started = false
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) postUpdate(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil || s.runner.Hub() == nil {
		writeError(w, http.StatusInternalServerError, "no telemetry hub wired")
		return
	}
	var evt telemetry.TelemetryEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "malformed telemetry event")
		return
	}
	evt.TS = time.Now().UTC()
	s.runner.Hub().Emit(evt)
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil || s.runner.Hub() == nil {
		writeJSON(w, http.StatusOK, telemetry.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.runner.Hub().Snapshot())
}

type fileEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"isDir"`
}

// getFiles lists the flat contents of outDir (or a "?dir=" subpath under
// it), scope-restricted per spec.md Section 6.
func (s *Server) getFiles(w http.ResponseWriter, r *http.Request) {
	root, err := s.resolveScoped(r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		writeError(w, http.StatusNotFound, "read directory: "+err.Error())
		return
	}
	out := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fileEntry{Name: e.Name(), Size: info.Size(), IsDir: e.IsDir()})
	}
	writeJSON(w, http.StatusOK, out)
}

// getDownload streams one file under outDir, refusing to serve outside it.
func (s *Server) getDownload(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("file")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter")
		return
	}
	path, err := s.resolveScoped(rel)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	http.ServeFile(w, r, path)
}

// resolveScoped joins rel onto outDir and rejects any path that escapes it,
// the same containment check the teacher's static-asset handler applies to
// user-supplied paths.
func (s *Server) resolveScoped(rel string) (string, error) {
	joined := filepath.Join(s.outDir, rel)
	absOut, err := filepath.Abs(s.outDir)
	if err != nil {
		return "", errors.New("resolve outDir")
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", errors.New("resolve path")
	}
	if absJoined != absOut && !strings.HasPrefix(absJoined, absOut+string(filepath.Separator)) {
		return "", errors.New("path escapes output directory")
	}
	return absJoined, nil
}

// --- middleware, grounded on internal/api/server.go ---

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("control channel request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("control channel panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
