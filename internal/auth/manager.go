package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/token"
)

const (
	// RefreshLead is the threshold before access-token expiry at which a
	// proactive refresh is triggered.
	RefreshLead = 15 * time.Minute

	// RefreshInterval is the fixed polling interval between refresh checks.
	// A fixed poll tolerates clock drift and missed windows at the cost of
	// up to one wasted cycle of latency.
	RefreshInterval = 30 * time.Minute
)

// Listener is invoked with the new token set after every successful
// background refresh. The Manager keeps exactly one registered listener;
// registering a new one replaces the previous.
type Listener func(*token.TokenSet)

// Manager owns the credential lifecycle: code exchange, persistence,
// scheduled refresh and revocation. All load-modify-save sequences run under
// one mutex, so a concurrent authorization callback and a firing refresh
// timer cannot interleave their store writes.
type Manager struct {
	provider Provider
	store    *token.Store
	clock    clockwork.Clock
	logger   *slog.Logger

	mu          sync.Mutex
	timer       clockwork.Timer
	onRefreshed Listener
}

// NewManager creates a Manager using the wall clock.
func NewManager(provider Provider, store *token.Store, logger *slog.Logger) *Manager {
	return NewManagerWithClock(provider, store, logger, clockwork.NewRealClock())
}

// NewManagerWithClock creates a Manager with an explicit clock, for tests.
func NewManagerWithClock(provider Provider, store *token.Store, logger *slog.Logger, clock clockwork.Clock) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		clock:    clock,
		logger:   logging.WithComponent(logger, "auth"),
	}
}

// AuthCodeURL returns the provider's authorization URL.
func (m *Manager) AuthCodeURL() string {
	return m.provider.AuthCodeURL()
}

// ExchangeCode trades an authorization code for a token set and persists it.
// The exchange fails with ErrConsentRequired if the provider granted no
// refresh token: a refresh-less grant can never be silently renewed, and the
// authorization URL forces re-consent exactly so this cannot happen.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (*token.TokenSet, error) {
	ts, err := m.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ts.HasRefreshToken() {
		return nil, ErrConsentRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ts); err != nil {
		return nil, fmt.Errorf("failed to persist token set: %w", err)
	}
	m.logger.Info("authorization code exchanged",
		"expiry", ts.Expiry,
		"access_token", logging.SanitizeToken(ts.AccessToken))
	return ts, nil
}

// ResumeFromStorage loads a previously persisted token set without
// contacting the provider. It returns (nil, nil) when none exists.
func (m *Manager) ResumeFromStorage() (*token.TokenSet, error) {
	return m.store.Load()
}

// IsUsable reports whether a token set with a refresh token is held.
// An expired access token alone does not make credentials unusable; the
// backend client silently refreshes before the next call.
func (m *Manager) IsUsable() bool {
	ts, err := m.store.Load()
	if err != nil {
		return false
	}
	return ts.HasRefreshToken()
}

// RefreshNow refreshes ts immediately. It fails fast with ErrNoRefreshToken
// if ts carries no refresh token. If the provider's response omits a refresh
// token, the previous one is carried forward before persisting: a granted
// refresh token is never silently dropped.
func (m *Manager) RefreshNow(ctx context.Context, ts *token.TokenSet) (*token.TokenSet, error) {
	if !ts.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// ts may have been loaded before the lock was acquired. If a code
	// exchange landed in between, the stored set is newer than ts; keep it
	// rather than overwriting it with a refresh of the stale one.
	if current, loadErr := m.store.Load(); loadErr == nil && current != nil &&
		current.AccessToken != ts.AccessToken {
		m.logger.Debug("refresh superseded by newer credentials")
		return current, nil
	}

	refreshed, err := m.provider.Refresh(ctx, ts.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = ts.RefreshToken
	}

	if err := m.store.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token set: %w", err)
	}
	m.logger.Debug("token set refreshed",
		"expiry", refreshed.Expiry,
		"access_token", logging.SanitizeToken(refreshed.AccessToken))
	return refreshed, nil
}

// ScheduleAutoRefresh registers listener as the single refresh subscriber,
// cancels any existing timer and immediately performs one refresh check.
// Regardless of the check's outcome the next check runs after
// RefreshInterval. At most one timer is ever pending; scheduling a new one
// always cancels the previous.
func (m *Manager) ScheduleAutoRefresh(listener Listener) {
	m.mu.Lock()
	m.onRefreshed = listener
	m.stopTimerLocked()
	m.mu.Unlock()

	m.check(context.Background())
}

// StopAutoRefresh cancels any pending refresh timer. Used at shutdown.
func (m *Manager) StopAutoRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// Revoke best-effort notifies the provider to invalidate the access token,
// then unconditionally clears the store and cancels the refresh timer.
// Local clearing happens even when the provider call fails: local state must
// never point at credentials the provider has forgotten.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load token set: %w", err)
	}

	var revokeErr error
	if ts != nil && ts.AccessToken != "" {
		if revokeErr = m.provider.Revoke(ctx, ts.AccessToken); revokeErr != nil {
			m.logger.Warn("provider-side revocation failed, clearing local state anyway",
				logging.Err(revokeErr))
		}
	}

	m.stopTimerLocked()

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	m.logger.Info("credentials revoked")

	if revokeErr != nil {
		return fmt.Errorf("revocation incomplete at provider: %w", revokeErr)
	}
	return nil
}

// check performs one refresh check and schedules the next one.
func (m *Manager) check(ctx context.Context) {
	ts, err := m.store.Load()
	if err == nil && ts.HasRefreshToken() && ts.ExpiresWithin(m.clock.Now(), RefreshLead) {
		refreshed, refreshErr := m.RefreshNow(ctx, ts)
		if refreshErr != nil {
			// Logged only: the prior token set stays in effect and the next
			// poll retries on its own.
			m.logger.Warn("scheduled refresh failed", logging.Err(refreshErr))
		} else {
			m.logger.Info("scheduled refresh succeeded", "expiry", refreshed.Expiry)
			m.notify(refreshed)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.timer = m.clock.AfterFunc(RefreshInterval, func() {
		m.check(context.Background())
	})
}

func (m *Manager) notify(ts *token.TokenSet) {
	m.mu.Lock()
	listener := m.onRefreshed
	m.mu.Unlock()

	if listener != nil {
		listener(ts)
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
