package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/config"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestIDHeader carries the id assigned to every request
const requestIDHeader = "X-Request-ID"

// HealthSource reports the bridge status for /health
type HealthSource interface {
	Authenticated() bool
	LastUpdateSuccess() bool
	CircuitBreakerState() string
}

// NewHandler builds the HTTP routes: /metrics, /health and the JSON API
func NewHandler(registry *prometheus.Registry, bridge Bridge, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Register /metrics endpoint with our custom registry
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Timeout:           10 * time.Second,
	}))

	mux.HandleFunc("/health", healthHandler(bridge))

	api := &apiHandler{bridge: bridge, log: logger.OrDiscard(log)}
	api.register(mux)

	return withRequestID(mux, logger.OrDiscard(log))
}

// StartServer serves handler until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, cfg *config.Config, handler http.Handler, log *logger.Logger) error {
	log = logger.OrDiscard(log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  65 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr, "port", cfg.Port)
		log.Info("Metrics endpoint available", "url", fmt.Sprintf("http://localhost:%d/metrics", cfg.Port))
		log.Info("Health endpoint available", "url", fmt.Sprintf("http://localhost:%d/health", cfg.Port))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}

		log.Info("HTTP server stopped")
		return nil
	}
}

type healthResponse struct {
	Status            string `json:"status"`
	Authenticated     bool   `json:"authenticated"`
	LastUpdateSuccess bool   `json:"last_update_success"`
	CircuitBreaker    string `json:"circuit_breaker"`
}

// healthHandler reports ok when the last poll succeeded and degraded otherwise
func healthHandler(source HealthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:            "ok",
			Authenticated:     source.Authenticated(),
			LastUpdateSuccess: source.LastUpdateSuccess(),
			CircuitBreaker:    source.CircuitBreakerState(),
		}
		status := http.StatusOK
		if !resp.LastUpdateSuccess {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID assigns an X-Request-ID (keeping a client supplied one),
// echoes it back and logs the request under it
func withRequestID(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		).Debug("Handled request")
	})
}

// SetupGracefulShutdown sets up signal handlers for graceful shutdown
// Returns a context that is cancelled on interrupt or termination signal
func SetupGracefulShutdown(log *logger.Logger) context.Context {
	log = logger.OrDiscard(log)
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("Received signal", "signal", sig.String())
		cancel()
	}()

	return ctx
}
