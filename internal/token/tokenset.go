package token

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the bundle of credentials for one Google OAuth grant.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// HasRefreshToken reports whether this grant can be silently renewed.
// A TokenSet without a refresh token is a terminal, expiring credential.
func (t *TokenSet) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires within lead of now.
// A zero expiry means the provider did not report one; such tokens are never
// considered expiring.
func (t *TokenSet) ExpiresWithin(now time.Time, lead time.Duration) bool {
	if t == nil || t.Expiry.IsZero() {
		return false
	}
	return now.Add(lead).After(t.Expiry)
}

// OAuth2 converts the TokenSet to an *oauth2.Token for use with token sources.
func (t *TokenSet) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// FromOAuth2 builds a TokenSet from an *oauth2.Token. The scope list is
// carried separately because oauth2.Token only exposes scopes via Extra.
func FromOAuth2(tok *oauth2.Token, scopes []string) *TokenSet {
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}
