package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/calendar"
	"github.com/calgate/calgate/internal/instrumentation"
	"github.com/calgate/calgate/internal/session"
	"github.com/calgate/calgate/internal/token"
)

// fakeProvider is a scriptable auth.Provider.
type fakeProvider struct {
	authURL      string
	exchangeTS   *token.TokenSet
	exchangeErr  error
	refreshTS    *token.TokenSet
	refreshErr   error
	revokeErr    error
	revokeCalled int
}

func (p *fakeProvider) AuthCodeURL() string { return p.authURL }

func (p *fakeProvider) Exchange(context.Context, string) (*token.TokenSet, error) {
	return p.exchangeTS, p.exchangeErr
}

func (p *fakeProvider) Refresh(context.Context, string) (*token.TokenSet, error) {
	return p.refreshTS, p.refreshErr
}

func (p *fakeProvider) Revoke(context.Context, string) error {
	p.revokeCalled++
	return p.revokeErr
}

func newTestGateway(t *testing.T, provider *fakeProvider) (*Gateway, *token.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := token.NewStore(t.TempDir(), logger)
	manager := auth.NewManager(provider, store, logger)
	factory := calendar.NewFactory(manager, &oauth2.Config{ClientID: "id", ClientSecret: "secret"}, &instrumentation.Metrics{}, logger)
	registry := session.NewRegistry(logger)

	g := NewGateway(manager, factory, registry, &instrumentation.Metrics{}, logger)
	t.Cleanup(g.Shutdown)
	return g, store
}

func usableTokenSet() *token.TokenSet {
	return &token.TokenSet{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestGateway_InitializeWithoutCredentials(t *testing.T) {
	g, _ := newTestGateway(t, &fakeProvider{})

	authenticated, err := g.Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, authenticated)
	assert.False(t, g.IsAuthenticated())

	_, err = g.Factory().Client(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestGateway_InitializeResumesCredentials(t *testing.T) {
	g, store := newTestGateway(t, &fakeProvider{})
	require.NoError(t, store.Save(usableTokenSet()))

	authenticated, err := g.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, authenticated)
	assert.True(t, g.IsAuthenticated())

	client, err := g.Factory().Client(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestGateway_HandleAuthCode(t *testing.T) {
	provider := &fakeProvider{exchangeTS: usableTokenSet()}
	g, store := newTestGateway(t, provider)

	require.NoError(t, g.HandleAuthCode(context.Background(), "code"))
	assert.True(t, g.IsAuthenticated())

	ts, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, "refresh", ts.RefreshToken)
}

func TestGateway_HandleAuthCodeWithoutRefreshToken(t *testing.T) {
	provider := &fakeProvider{exchangeTS: &token.TokenSet{AccessToken: "access"}}
	g, store := newTestGateway(t, provider)

	err := g.HandleAuthCode(context.Background(), "code")
	assert.ErrorIs(t, err, auth.ErrConsentRequired)
	assert.False(t, g.IsAuthenticated())

	ts, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestGateway_HandleAuthCodeExchangeError(t *testing.T) {
	provider := &fakeProvider{exchangeErr: errors.New("provider down")}
	g, _ := newTestGateway(t, provider)

	err := g.HandleAuthCode(context.Background(), "code")
	assert.Error(t, err)
	assert.False(t, g.IsAuthenticated())
}

func TestGateway_RevokeAccess(t *testing.T) {
	provider := &fakeProvider{exchangeTS: usableTokenSet()}
	g, store := newTestGateway(t, provider)
	require.NoError(t, g.HandleAuthCode(context.Background(), "code"))

	require.NoError(t, g.RevokeAccess(context.Background()))
	assert.Equal(t, 1, provider.revokeCalled)
	assert.False(t, g.IsAuthenticated())

	ts, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, ts)

	_, err = g.Factory().Client(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestGateway_RevokeAccessProviderFailureStillClearsLocally(t *testing.T) {
	provider := &fakeProvider{
		exchangeTS: usableTokenSet(),
		revokeErr:  errors.New("revocation endpoint unavailable"),
	}
	g, store := newTestGateway(t, provider)
	require.NoError(t, g.HandleAuthCode(context.Background(), "code"))

	err := g.RevokeAccess(context.Background())
	assert.Error(t, err)

	// Local state is cleared regardless of the provider failure.
	assert.False(t, g.IsAuthenticated())
	ts, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Nil(t, ts)
}

func TestGateway_AuthURL(t *testing.T) {
	g, _ := newTestGateway(t, &fakeProvider{authURL: "https://accounts.example.com/auth"})
	assert.Equal(t, "https://accounts.example.com/auth", g.AuthURL())
}
