package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/calgate/calgate/internal/token"
)

// DefaultScopes are the Google OAuth scopes the gateway requests.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// googleRevokeURL is Google's OAuth 2.0 token revocation endpoint (RFC 7009).
const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// Provider abstracts the identity provider's authorize/token/revoke
// endpoints so the Manager can be tested without network access.
type Provider interface {
	// AuthCodeURL returns the URL a user visits to authorize the gateway.
	AuthCodeURL() string

	// Exchange trades an authorization code for a token set.
	Exchange(ctx context.Context, code string) (*token.TokenSet, error)

	// Refresh mints a new token set from a refresh token. The returned set
	// may omit the refresh token; callers are responsible for carrying the
	// previous one forward.
	Refresh(ctx context.Context, refreshToken string) (*token.TokenSet, error)

	// Revoke invalidates an access token at the provider.
	Revoke(ctx context.Context, accessToken string) error
}

// GoogleConfig holds the settings for the Google OAuth provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // defaults to DefaultScopes

	// RevokeURL overrides the revocation endpoint, for tests.
	RevokeURL string

	// HTTPClient overrides the client used for revocation, for tests.
	HTTPClient *http.Client
}

// GoogleProvider implements Provider against Google's OAuth 2.0 endpoints
// using golang.org/x/oauth2.
type GoogleProvider struct {
	conf       *oauth2.Config
	revokeURL  string
	httpClient *http.Client
}

// NewGoogleProvider creates a Provider for Google.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google client ID and secret are required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = googleRevokeURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		revokeURL:  revokeURL,
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL returns the authorization URL. Offline access with forced
// re-consent is always requested so Google reliably returns a refresh token.
func (p *GoogleProvider) AuthCodeURL() string {
	return p.conf.AuthCodeURL("state",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token set.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*token.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return token.FromOAuth2(tok, p.conf.Scopes), nil
}

// Refresh mints a new token set from a refresh token.
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*token.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	ts := p.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token.FromOAuth2(tok, p.conf.Scopes), nil
}

// Revoke invalidates an access token at Google's revocation endpoint.
func (p *GoogleProvider) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revoke endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Config returns the underlying oauth2 config for building API clients.
func (p *GoogleProvider) Config() *oauth2.Config {
	return p.conf
}
