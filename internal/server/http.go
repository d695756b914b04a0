package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daanzu/speech-training-recorder/internal/audio"
	"github.com/daanzu/speech-training-recorder/internal/config"
	"github.com/daanzu/speech-training-recorder/internal/metrics"
	"github.com/daanzu/speech-training-recorder/internal/session"
	"github.com/daanzu/speech-training-recorder/internal/store"
)

const shutdownTimeout = 5 * time.Second

// SessionSource exposes the state of the running session
type SessionSource interface {
	Snapshot() session.Snapshot
}

// MetadataSource reads the metadata log
type MetadataSource interface {
	ReadMetadata() ([]store.Metadata, error)
}

// Deps are the components the HTTP API reports on
type Deps struct {
	Session     SessionSource
	Metadata    MetadataSource
	BufferStats func() audio.BufferStats
	Metrics     *metrics.Metrics
}

// HTTPServer provides HTTP API endpoints for monitoring a recording session
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	deps    Deps
	handler http.Handler

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, deps Deps) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))
	mux.HandleFunc("/recordings", h.withMetrics("/recordings", h.handleRecordings))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (h *HTTPServer) Run(ctx context.Context) error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return h.Stop(shutdownCtx)
	}
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.deps.Session.Snapshot()
	status := "healthy"
	if snap.LastError != "" {
		status = "degraded"
	}

	health := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "speech-training-recorder",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"session": map[string]any{
				"id":         snap.ID,
				"state":      snap.State,
				"last_error": snap.LastError,
			},
			"capture_buffer": h.deps.BufferStats(),
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleSession implements the /session endpoint
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Session.Snapshot())
}

// handleRecordings implements the /recordings endpoint
func (h *HTTPServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.deps.Metadata.ReadMetadata()
	if err != nil {
		h.logger.Error("Failed to read metadata log", slog.String("error", err.Error()))
		http.Error(w, "Failed to read metadata log", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Metadata{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(records),
		"timestamp":  time.Now().UTC(),
		"recordings": records,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var promptsCount any = "all"
	if h.config.Recorder.PromptsCount != nil {
		promptsCount = *h.config.Recorder.PromptsCount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recorder": map[string]any{
			"save_dir":            h.config.Recorder.SaveDir,
			"prompts_file":        h.config.Recorder.PromptsFile,
			"prompts_count":       promptsCount,
			"prompt_len_soft_max": h.config.Recorder.PromptLenSoftMax,
			"randomize":           h.config.Recorder.Randomize,
			"drop_last_chunks":    h.config.Recorder.DropLastChunks,
			"strip_punctuation":   h.config.Recorder.StripPunctuation,
			"metadata_file":       h.config.Recorder.MetadataFile,
		},
		"audio": map[string]any{
			"sample_rate":       h.config.Audio.SampleRate,
			"channels":          h.config.Audio.Channels,
			"bit_depth":         h.config.Audio.BitDepth,
			"frames_per_buffer": h.config.Audio.FramesPerBuffer,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Speech Training Recorder",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":           "API documentation",
			"GET /health":     "Service health check",
			"GET /session":    "Current session state",
			"GET /recordings": "Records of the metadata log",
			"GET /config":     "Effective configuration",
			"GET /metrics":    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
