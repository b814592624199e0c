package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/logging"
)

const callbackSuccessHTML = `<!DOCTYPE html>
<html>
<head><title>Authorization complete</title></head>
<body>
<h1>Authorization complete</h1>
<p>calgate is now connected to your Google Calendar. You can close this window.</p>
</body>
</html>`

const callbackFailureHTML = `<!DOCTYPE html>
<html>
<head><title>Authorization failed</title></head>
<body>
<h1>Authorization failed</h1>
<p>%s</p>
<p>Close this window and try again.</p>
</body>
</html>`

// OAuthHandler serves the browser-facing OAuth endpoints: the authorize
// redirect, the provider callback and revocation.
type OAuthHandler struct {
	gateway *Gateway
	logger  *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler backed by gateway.
func NewOAuthHandler(gateway *Gateway, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		gateway: gateway,
		logger:  logging.WithComponent(logger, "oauth-http"),
	}
}

// RegisterEndpoints registers the OAuth endpoints on mux.
func (h *OAuthHandler) RegisterEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/oauth/authorize", h.HandleAuthorize)
	mux.HandleFunc("/oauth/callback", h.HandleCallback)
	mux.HandleFunc("/oauth/revoke", h.HandleRevoke)
}

// HandleAuthorize redirects the browser to the provider's consent screen.
func (h *OAuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	http.Redirect(w, r, h.gateway.AuthURL(), http.StatusFound)
}

// HandleCallback receives the provider redirect carrying the authorization
// code and completes the exchange. The outcome is rendered as a small HTML
// page since this endpoint is only ever hit by a browser.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := logging.WithOperation(h.logger, "callback")

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Warn("authorization denied at provider", "provider_error", errParam)
		h.writeFailure(w, http.StatusBadRequest, fmt.Sprintf("The provider reported: %s", errParam))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeFailure(w, http.StatusBadRequest, "The callback carried no authorization code.")
		return
	}

	if err := h.gateway.HandleAuthCode(r.Context(), code); err != nil {
		logger.Error("authorization code exchange failed", logging.Err(err))
		switch {
		case errors.Is(err, auth.ErrConsentRequired):
			h.writeFailure(w, http.StatusBadRequest,
				"Google did not grant offline access. Remove the app from your account's third-party access list and authorize again.")
		default:
			h.writeFailure(w, http.StatusInternalServerError, "The authorization code could not be exchanged.")
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, callbackSuccessHTML)
}

// HandleRevoke revokes the stored credentials. Local state is cleared even
// when provider-side revocation fails, so a failure response still means
// the gateway is signed out.
func (h *OAuthHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := h.gateway.RevokeAccess(r.Context()); err != nil {
		logging.WithOperation(h.logger, "revoke").Warn("revocation completed with errors", logging.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "revoked_locally",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
}

func (h *OAuthHandler) writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, callbackFailureHTML, message)
}
