package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/server"
	"github.com/calgate/calgate/internal/session"
	"github.com/calgate/calgate/internal/token"
	"github.com/calgate/calgate/internal/tools/calendar_tools"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode          bool
		transport          string
		httpAddr           string
		googleClientID     string
		googleClientSecret string
		tokenDir           string
		baseURL            string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Google Calendar
tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events with OAuth and health endpoints

OAuth Configuration:
  Client credentials (required):
    --google-client-id and --google-client-secret flags
    OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars

  SSE Transport:
    Base URL (required for deployed instances):
      --base-url https://your-domain.com OR CALGATE_BASE_URL env var
      Defaults to http://localhost:8080 for development
    Visit <base-url>/oauth/authorize to grant access.

  STDIO Transport:
    There are no HTTP endpoints, so run 'calgate auth' once to
    authorize before starting the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags win; fall back to the environment for deployment configs.
			if googleClientID == "" {
				googleClientID = os.Getenv("GOOGLE_CLIENT_ID")
			}
			if googleClientSecret == "" {
				googleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
			}
			if tokenDir == "" {
				tokenDir = os.Getenv("CALGATE_TOKEN_DIR")
			}
			if baseURL == "" {
				baseURL = os.Getenv("CALGATE_BASE_URL")
			}
			if !cmd.Flags().Changed("metrics-enabled") {
				if os.Getenv("METRICS_ENABLED") == "true" {
					metricsEnabled = true
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					metricsAddr = addr
				}
			}

			return runServe(serveOptions{
				Debug:              debugMode,
				Transport:          transport,
				HTTPAddr:           httpAddr,
				GoogleClientID:     googleClientID,
				GoogleClientSecret: googleClientSecret,
				TokenDir:           tokenDir,
				BaseURL:            baseURL,
				MetricsEnabled:     metricsEnabled,
				MetricsAddr:        metricsAddr,
			})
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "Transport type (stdio or sse)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for sse transport)")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth client ID (or GOOGLE_CLIENT_ID env var)")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth client secret (or GOOGLE_CLIENT_SECRET env var)")
	cmd.Flags().StringVar(&tokenDir, "token-dir", "", "Directory for persisted tokens (or CALGATE_TOKEN_DIR env var)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL the server is reachable at (or CALGATE_BASE_URL env var)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Enable the Prometheus metrics server (or METRICS_ENABLED env var)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address (or METRICS_ADDR env var)")

	return cmd
}

// serveOptions carries the resolved serve configuration after flag/env
// merging.
type serveOptions struct {
	Debug              bool
	Transport          string
	HTTPAddr           string
	GoogleClientID     string
	GoogleClientSecret string
	TokenDir           string
	BaseURL            string
	MetricsEnabled     bool
	MetricsAddr        string
}

// resolveBaseURL normalizes the configured base URL, defaulting to
// localhost for development setups.
func resolveBaseURL(baseURL, httpAddr string) string {
	if baseURL == "" {
		port := httpAddr
		if idx := strings.LastIndex(httpAddr, ":"); idx >= 0 {
			port = httpAddr[idx+1:]
		}
		return fmt.Sprintf("http://localhost:%s", port)
	}
	return strings.TrimRight(baseURL, "/")
}

func runServe(opts serveOptions) error {
	if opts.GoogleClientID == "" || opts.GoogleClientSecret == "" {
		return fmt.Errorf("google OAuth client credentials are required: set --google-client-id and --google-client-secret or the GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars")
	}

	// Set up signal handling for graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(opts.Debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !opts.MetricsEnabled {
		instrConfig.Enabled = false
	}
	instrProvider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := instrProvider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := instrProvider.Metrics()

	baseURL := resolveBaseURL(opts.BaseURL, opts.HTTPAddr)
	provider, err := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     opts.GoogleClientID,
		ClientSecret: opts.GoogleClientSecret,
		RedirectURL:  baseURL + "/oauth/callback",
	})
	if err != nil {
		return fmt.Errorf("failed to configure OAuth provider: %w", err)
	}

	tokenDir := opts.TokenDir
	if tokenDir == "" {
		tokenDir, err = token.DefaultDir()
		if err != nil {
			return fmt.Errorf("failed to determine token directory: %w", err)
		}
	}
	store := token.NewStore(tokenDir, logger)

	manager := auth.NewManager(provider, store, logger)
	factory := calendar.NewFactory(manager, provider.Config(), metrics, logger)
	registry := session.NewRegistry(logger)
	gateway := server.NewGateway(manager, factory, registry, metrics, logger)

	mcpSrv := mcpserver.NewMCPServer(
		"calgate",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, factory, metrics); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}

	authenticated, err := gateway.Initialize(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	if !authenticated {
		logger.Info("no stored credentials; calendar tools require authorization",
			"authorize_url", baseURL+"/oauth/authorize")
	}

	switch opts.Transport {
	case "stdio":
		defer gateway.Shutdown()
		return runStdioServer(shutdownCtx, mcpSrv, logger)
	case "sse":
		return runSSEServer(shutdownCtx, opts, gateway, mcpSrv, metrics, instrProvider, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse)", opts.Transport)
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

func runSSEServer(ctx context.Context, opts serveOptions, gateway *server.Gateway, mcpSrv *mcpserver.MCPServer, metrics *instrumentation.Metrics, instrProvider *instrumentation.Provider, logger *slog.Logger) error {
	// Start the metrics server on its own listener so scrape traffic is
	// isolated from the client-facing one.
	var metricsSrv *server.MetricsServer
	if opts.MetricsEnabled {
		var err error
		metricsSrv, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.MetricsAddr,
			InstrumentationProvider: instrProvider,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	httpSrv := server.NewHTTPServer(server.HTTPServerConfig{Addr: opts.HTTPAddr}, gateway, mcpSrv, metrics, logger)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpSrv.Start(); err != nil {
			serverDone <- err
		}
	}()
	logger.Info("SSE server listening", "addr", opts.HTTPAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
