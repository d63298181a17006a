package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/anonydoc/anonydoc/config"
	"github.com/anonydoc/anonydoc/pii"
	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

// maxRequestBody caps transform request bodies at 10 MB.
const maxRequestBody = 10 << 20

// Server exposes the substitution engine and mapping management over HTTP.
type Server struct {
	config   *config.Config
	engine   *pii.Engine
	detector detectors.Detector
	mapping  *pii.Mapping
	limiter  *rate.Limiter

	mu         sync.Mutex
	httpServer *http.Server
	lastRecord pii.Record
	lastLen    int
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, detector detectors.Detector, mapping *pii.Mapping) *Server {
	return &Server{
		config:   cfg,
		engine:   pii.NewEngine(cfg.ContextWindow),
		detector: detector,
		mapping:  mapping,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting pseudonymization service on port %s", s.config.ServerPort)
	if s.detector != nil {
		log.Printf("Entity detection enabled with detector: %s", s.detector.GetName())
	}
	if s.config.Database.Enabled {
		log.Println("Database storage enabled")
	} else {
		log.Println("Using in-memory storage")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthCheck)
	mux.HandleFunc("/v1/anonymize", s.handleAnonymize)
	mux.HandleFunc("/v1/pseudonymize", s.handlePseudonymize)
	mux.HandleFunc("/v1/restore", s.handleRestore)
	mux.HandleFunc("/api/mappings/count", s.handleMappingsCount)
	mux.HandleFunc("/api/mappings/clear", s.handleMappingsClear)
	mux.HandleFunc("/api/stats", s.handleStats)

	server := &http.Server{
		Addr:         s.config.ServerPort,
		Handler:      s.rateLimited(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("❌ Shutdown failed: %v", err)
		}
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("Server stopped")
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
// Start returns nil once shutdown completes, so callers can run their
// persistence steps afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// rateLimited rejects requests beyond the configured global rate.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestPrefix returns the log prefix for one request.
func requestPrefix() string {
	return fmt.Sprintf("[req-%s]", uuid.NewString()[:8])
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"mappings": s.mapping.Len(),
	})
}

// transformRequest is the body of the anonymize and pseudonymize endpoints.
type transformRequest struct {
	Text          string            `json:"text"`
	Labels        map[string]string `json:"labels,omitempty"`
	DefaultLabel  string            `json:"default_label,omitempty"`
	AllowedLabels []string          `json:"allowed_labels,omitempty"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	logPrefix := requestPrefix()
	req, ok := s.decodeTransform(w, r, logPrefix)
	if !ok {
		return
	}

	resolved, ok := s.detectAndResolve(r.Context(), w, req, logPrefix)
	if !ok {
		return
	}

	labels := pii.LabelTable{Labels: req.Labels, Default: req.DefaultLabel}
	if labels.Default == "" {
		labels.Default = s.config.DefaultLabel
	}

	result, err := s.engine.Anonymize(req.Text, resolved, labels)
	if err != nil {
		s.transformError(w, err, logPrefix)
		return
	}

	s.recordResult(result, len(req.Text))
	if s.config.Logging.LogSubstitutions {
		log.Printf("%s Anonymized %d entities", logPrefix, len(result.Record))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":          result.Text,
		"substitutions": len(result.Record),
	})
}

func (s *Server) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	logPrefix := requestPrefix()
	req, ok := s.decodeTransform(w, r, logPrefix)
	if !ok {
		return
	}

	resolved, ok := s.detectAndResolve(r.Context(), w, req, logPrefix)
	if !ok {
		return
	}

	result, err := s.engine.Pseudonymize(r.Context(), req.Text, resolved, s.mapping)
	if err != nil {
		s.transformError(w, err, logPrefix)
		return
	}

	s.recordResult(result, len(req.Text))
	if s.config.Logging.LogSubstitutions {
		log.Printf("%s Pseudonymized %d entities (%d mappings total)", logPrefix, len(result.Record), s.mapping.Len())
	}
	if s.config.Logging.LogVerbose {
		for _, sub := range result.Record {
			log.Printf("%s   %s -> %s", logPrefix, sub.Entity.Text, sub.Replacement)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":          result.Text,
		"substitutions": len(result.Record),
		"mappings":      s.mapping.Len(),
	})
}

type restoreRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	logPrefix := requestPrefix()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Depseudonymize(req.Text, s.mapping)
	if err != nil {
		s.serverError(w, err, logPrefix)
		return
	}

	unresolved := make([]map[string]interface{}, 0, len(result.Unresolved))
	for _, u := range result.Unresolved {
		log.Printf("%s ⚠️  Unresolved token %q at [%d:%d)", logPrefix, u.Token, u.StartPos, u.EndPos)
		unresolved = append(unresolved, map[string]interface{}{
			"token":     u.Token,
			"start_pos": u.StartPos,
			"end_pos":   u.EndPos,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":       result.Text,
		"restored":   result.Restored,
		"unresolved": unresolved,
	})
}

func (s *Server) handleMappingsCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.mapping.Count(r.Context())
	if err != nil {
		s.serverError(w, err, requestPrefix())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (s *Server) handleMappingsClear(w http.ResponseWriter, r *http.Request) {
	logPrefix := requestPrefix()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.mapping.Clear(ctx); err != nil {
		s.serverError(w, err, logPrefix)
		return
	}

	log.Printf("%s All mappings cleared", logPrefix)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cleared"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	record := s.lastRecord
	textLen := s.lastLen
	s.mu.Unlock()

	stats := pii.Summarize(record)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    stats.Total,
		"by_label": stats.ByLabel,
		"entries":  stats.Entries,
		"ranking":  stats.Ranking,
		"density":  stats.Density(textLen),
	})
}

// decodeTransform parses and validates a transform request body.
func (s *Server) decodeTransform(w http.ResponseWriter, r *http.Request, logPrefix string) (transformRequest, bool) {
	var req transformRequest
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		log.Printf("%s Invalid request body: %v", logPrefix, err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// detectAndResolve runs the external detector and resolves the spans.
func (s *Server) detectAndResolve(ctx context.Context, w http.ResponseWriter, req transformRequest, logPrefix string) (pii.ResolvedSpans, bool) {
	if s.detector == nil {
		http.Error(w, "no detector configured", http.StatusServiceUnavailable)
		return nil, false
	}

	output, err := s.detector.Detect(ctx, detectors.DetectorInput{
		Text:          req.Text,
		AllowedLabels: req.AllowedLabels,
	})
	if err != nil {
		log.Printf("%s ❌ Detection failed: %v", logPrefix, err)
		sentry.CaptureException(err)
		http.Error(w, "detection service unavailable", http.StatusBadGateway)
		return nil, false
	}

	resolved, err := pii.ResolveSpans(req.Text, output.Entities)
	if err != nil {
		s.transformError(w, err, logPrefix)
		return nil, false
	}
	return resolved, true
}

// transformError maps engine errors to HTTP statuses.
func (s *Server) transformError(w http.ResponseWriter, err error, logPrefix string) {
	var spanErr *pii.InvalidSpanError
	var labelErr *pii.UnknownLabelError

	switch {
	case errors.As(err, &spanErr):
		log.Printf("%s ❌ Invalid span: %v", logPrefix, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &labelErr):
		log.Printf("%s ❌ Label misconfiguration: %v", logPrefix, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.serverError(w, err, logPrefix)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error, logPrefix string) {
	log.Printf("%s ❌ Internal error: %v", logPrefix, err)
	sentry.CaptureException(err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// recordResult stores the last record for the stats endpoint.
func (s *Server) recordResult(result pii.Result, textLen int) {
	s.mu.Lock()
	s.lastRecord = result.Record
	s.lastLen = textLen
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
