package server

import (
	"context"
	"log/slog"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/session"
	"github.com/calgate/calgate/internal/token"
)

// Gateway wires the credential lifecycle manager, the calendar client
// factory and the session registry together. It is the single entry point
// the transports and tools use to reach authentication state.
type Gateway struct {
	manager  *auth.Manager
	factory  *calendar.Factory
	registry *session.Registry
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewGateway creates a Gateway. metrics may be a no-op recorder but must
// not be nil.
func NewGateway(manager *auth.Manager, factory *calendar.Factory, registry *session.Registry, metrics *instrumentation.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		manager:  manager,
		factory:  factory,
		registry: registry,
		metrics:  metrics,
		logger:   logging.WithComponent(logger, "gateway"),
	}
}

// Initialize resumes persisted credentials and starts the auto-refresh
// schedule. It reports whether usable credentials were found; startup never
// fails for lack of prior authorization.
func (g *Gateway) Initialize(ctx context.Context) (bool, error) {
	ts, err := g.manager.ResumeFromStorage()
	if err != nil {
		return false, err
	}

	authenticated := ts.HasRefreshToken()
	if authenticated {
		if _, err := g.factory.Rebuild(ctx, ts); err != nil {
			return false, err
		}
		g.logger.Info("resumed persisted credentials", "expiry", ts.Expiry)
	} else {
		g.logger.Info("no persisted credentials, authorization required")
	}

	// The schedule runs even before first authorization; each check is a
	// no-op until credentials appear.
	g.manager.ScheduleAutoRefresh(g.onRefreshed)

	return authenticated, nil
}

// AuthURL returns the provider's authorization URL.
func (g *Gateway) AuthURL() string {
	return g.manager.AuthCodeURL()
}

// HandleAuthCode exchanges an authorization code, persists the resulting
// token set and rebuilds the calendar client.
func (g *Gateway) HandleAuthCode(ctx context.Context, code string) error {
	ts, err := g.manager.ExchangeCode(ctx, code)
	if err != nil {
		g.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return err
	}

	if _, err := g.factory.Rebuild(ctx, ts); err != nil {
		g.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return err
	}

	g.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	g.logger.Info("authorization completed")
	return nil
}

// RevokeAccess revokes credentials at the provider, clears local state and
// invalidates the cached calendar client.
func (g *Gateway) RevokeAccess(ctx context.Context) error {
	err := g.manager.Revoke(ctx)
	g.factory.Invalidate()

	if err != nil {
		g.metrics.RecordOAuthRevocation(ctx, instrumentation.OAuthResultFailure)
		return err
	}
	g.metrics.RecordOAuthRevocation(ctx, instrumentation.OAuthResultSuccess)
	return nil
}

// IsAuthenticated reports whether usable credentials are held. An expired
// access token with a refresh token still counts as authenticated.
func (g *Gateway) IsAuthenticated() bool {
	return g.manager.IsUsable()
}

// Factory returns the calendar client factory for the tool layer.
func (g *Gateway) Factory() *calendar.Factory {
	return g.factory
}

// Registry returns the session registry for the transport layer.
func (g *Gateway) Registry() *session.Registry {
	return g.registry
}

// Shutdown stops the refresh schedule and closes all streaming sessions.
func (g *Gateway) Shutdown() {
	g.manager.StopAutoRefresh()
	g.registry.Shutdown()
}

// onRefreshed is the auto-refresh listener: every successful background
// refresh rebinds the calendar client to the new token set.
func (g *Gateway) onRefreshed(ts *token.TokenSet) {
	ctx := context.Background()
	if _, err := g.factory.Rebuild(ctx, ts); err != nil {
		g.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		g.logger.Warn("failed to rebuild calendar client after refresh", logging.Err(err))
		return
	}
	g.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
}
