package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/canvas"
	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/observability"
)

const (
	// DefaultMaxBodyBytes bounds a ChatKit request body.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultMetricsPath is where the Prometheus handler is mounted.
	DefaultMetricsPath = "/metrics"
	appName            = "canvas-http"
)

// Processor turns a raw ChatKit request body into a result.
// *chatkit.Server is the production implementation.
type Processor interface {
	Process(ctx context.Context, body []byte) (chatkit.Result, error)
}

// Server holds the gateway dependencies.
type Server struct {
	processor    Processor
	streams      *StreamManager
	logger       *slog.Logger
	metrics      *observability.Metrics
	gatherer     prometheus.Gatherer
	metricsPath  string
	corsOrigins  []string
	maxBodyBytes int64
	perMinute    int
	burst        int
}

// Option configures the gateway.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams shares a StreamManager with the engine hooks that feed it.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithMetrics counts requests in m and exposes g on the metrics path.
func WithMetrics(m *observability.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithMetricsPath overrides DefaultMetricsPath.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithCORSOrigins sets the allowed origins. Empty means "*".
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithRateLimit enables a per-client token bucket on the ChatKit routes.
// perMinute <= 0 disables it; burst <= 0 defaults to perMinute.
func WithRateLimit(perMinute, burst int) Option {
	return func(s *Server) {
		s.perMinute = perMinute
		s.burst = burst
	}
}

// NewHandler creates the HTTP handler for the ChatKit gateway.
func NewHandler(processor Processor, opts ...Option) http.Handler {
	s := &Server{
		processor:    processor,
		metricsPath:  DefaultMetricsPath,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(instrument(s.metrics))
	}
	r.Use(enableCORS(s.corsOrigins))

	r.Group(func(r chi.Router) {
		if s.perMinute > 0 {
			r.Use(newRateLimiter(s.perMinute, s.burst).middleware)
		}
		r.Post("/chatkit", s.chatkit)
		r.Post("/chat-endpoint", s.chatkit)
	})

	r.Get("/events", s.subscribeEvents)
	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.gatherer != nil {
		r.Handle(s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// chatkit handles POST /chatkit and its alias.
func (s *Server) chatkit(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("request_id", middleware.GetReqID(r.Context()))

	// 1. Size check, early on Content-Length and again while reading
	if r.ContentLength > s.maxBodyBytes {
		s.tooLarge(w, log, r.ContentLength)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.tooLarge(w, log, -1)
			return
		}
		log.Warn("reading chatkit body", "err", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// 2. Shape checks before the protocol layer runs
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && !json.Valid(trimmed) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// 3. Process
	result, err := s.processor.Process(r.Context(), body)
	if err != nil {
		log.Warn("chatkit payload rejected", "err", err)
		writeError(w, http.StatusBadRequest, "ChatKit payload rejected")
		return
	}

	// 4. Respond
	switch res := result.(type) {
	case *chatkit.StreamingResult:
		s.stream(w, log, res)
	case *chatkit.NonStreamingResult:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.JSON)
	case *chatkit.ObjectResult:
		data, err := json.Marshal(res.Value)
		if err != nil {
			log.Error("encoding chatkit result", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		log.Error("unsupported chatkit result", "type", fmt.Sprintf("%T", result))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) stream(w http.ResponseWriter, log *slog.Logger, res *chatkit.StreamingResult) {
	flusher, _ := w.(http.Flusher)
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)

	for frame, err := range res.Frames() {
		if err != nil {
			log.Error("chatkit stream failed", "err", err)
			return
		}
		if _, err := w.Write(frame); err != nil {
			log.Debug("chatkit client went away", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) tooLarge(w http.ResponseWriter, log *slog.Logger, contentLength int64) {
	log.Warn("request entity too large", "max_size", s.maxBodyBytes, "content_length", contentLength)
	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
		"error":   "Request entity too large",
		"maxSize": s.maxBodyBytes,
	})
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, _ *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	} else if err != nil {
		s.logger.Error("failed to load openapi document", "err", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         appName,
		"version":     strings.TrimSpace(canvas.Version),
		"api_version": apiVersion,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
