package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/token"
)

// Factory builds and owns the current authenticated Client.
//
// The client is rebuilt, never mutated, whenever credentials change: after a
// successful code exchange and after every background refresh. Callers must
// always fetch the client through Client rather than caching it across a
// refresh boundary.
type Factory struct {
	manager     *auth.Manager
	oauthConfig *oauth2.Config
	metrics     *instrumentation.Metrics
	logger      *slog.Logger

	mu     sync.Mutex
	client *Client
}

// NewFactory creates a Factory. oauthConfig is used to wrap token sets in a
// self-refreshing token source, so an access token expiring mid-flight is
// renewed transparently. metrics may be nil, yielding unmetered clients.
func NewFactory(manager *auth.Manager, oauthConfig *oauth2.Config, metrics *instrumentation.Metrics, logger *slog.Logger) *Factory {
	return &Factory{
		manager:     manager,
		oauthConfig: oauthConfig,
		metrics:     metrics,
		logger:      logging.WithComponent(logger, "calendar-factory"),
	}
}

// Client returns the current client, constructing one from stored
// credentials on first use. It fails with auth.ErrNotAuthenticated when no
// usable token set exists.
func (f *Factory) Client(ctx context.Context) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	ts, err := f.manager.ResumeFromStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !ts.HasRefreshToken() {
		return nil, auth.ErrNotAuthenticated
	}

	return f.buildLocked(ctx, ts)
}

// Rebuild discards any cached client and constructs a new one bound to ts.
// Called after code exchange and from the refresh listener.
func (f *Factory) Rebuild(ctx context.Context, ts *token.TokenSet) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.client = nil
	return f.buildLocked(ctx, ts)
}

// Invalidate drops the cached client. Called on revocation so a stale
// client cannot outlive its credentials.
func (f *Factory) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.client = nil
}

func (f *Factory) buildLocked(ctx context.Context, ts *token.TokenSet) (*Client, error) {
	if ts == nil {
		return nil, auth.ErrNotAuthenticated
	}

	source := f.oauthConfig.TokenSource(ctx, ts.OAuth2())
	httpClient := oauth2.NewClient(ctx, source)

	// Force HTTP/1.1: the Google API endpoints intermittently reset HTTP/2
	// streams under long-lived clients.
	if transport, ok := httpClient.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{ForceAttemptHTTP2: false}
	}

	client, err := NewClient(ctx, httpClient, f.metrics, f.logger)
	if err != nil {
		return nil, err
	}

	f.client = client
	f.logger.Debug("calendar client rebuilt", "expiry", ts.Expiry)
	return client, nil
}
