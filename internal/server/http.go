package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
)

// HTTPServerConfig holds configuration for the client-facing HTTP server.
type HTTPServerConfig struct {
	// Addr is the address to bind to (e.g., ":8080").
	Addr string
}

// HTTPServer is the client-facing listener: the SSE transport, the OAuth
// endpoints and the health probes share it. Metrics live on their own
// listener, see MetricsServer.
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	gateway    *Gateway
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewHTTPServer assembles the HTTP surface around gateway and mcpServer.
func NewHTTPServer(config HTTPServerConfig, gateway *Gateway, mcpServer *mcpserver.MCPServer, metrics *instrumentation.Metrics, logger *slog.Logger) *HTTPServer {
	health := NewHealthChecker()
	transport := NewSSETransport(mcpServer, gateway.Registry(), metrics, logger)
	oauthHandler := NewOAuthHandler(gateway, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", transport.HandleSSE)
	mux.HandleFunc("/message", transport.HandleMessage)
	oauthHandler.RegisterEndpoints(mux)
	health.RegisterHealthEndpoints(mux)

	s := &HTTPServer{
		health:  health,
		gateway: gateway,
		metrics: metrics,
		logger:  logging.WithComponent(logger, "http"),
	}

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: /sse streams for the session's lifetime.
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start starts the server and blocks until it is shut down.
func (s *HTTPServer) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains readiness, closes all streaming sessions and stops the
// listener.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	s.gateway.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

// Health returns the server's health checker.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer so SSE streaming keeps working
// through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}
