package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calgate/calgate/internal/auth"
	"github.com/calgate/calgate/internal/logging"
	"github.com/calgate/calgate/internal/token"
)

const authCallbackPath = "/oauth/callback"

const authSuccessPage = `<!DOCTYPE html>
<html><body>
<h1>Authorization complete</h1>
<p>calgate is connected to your Google Calendar. You can close this window.</p>
</body></html>`

const authFailurePage = `<!DOCTYPE html>
<html><body>
<h1>Authorization failed</h1>
<p>%s</p>
</body></html>`

func newAuthCmd() *cobra.Command {
	var (
		debugMode          bool
		googleClientID     string
		googleClientSecret string
		tokenDir           string
		revoke             bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize calgate with Google Calendar",
		Long: `Run the OAuth authorization flow from the console and persist the
resulting tokens. This is required before using the stdio transport,
which has no HTTP endpoints for the browser callback.

A temporary listener on 127.0.0.1 captures the authorization code:
visit the printed URL, approve access, and the browser redirect
completes the flow.

Use --revoke to invalidate the stored credentials instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if googleClientID == "" {
				googleClientID = os.Getenv("GOOGLE_CLIENT_ID")
			}
			if googleClientSecret == "" {
				googleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
			}
			if tokenDir == "" {
				tokenDir = os.Getenv("CALGATE_TOKEN_DIR")
			}
			return runAuth(cmd, googleClientID, googleClientSecret, tokenDir, debugMode, revoke)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth client ID (or GOOGLE_CLIENT_ID env var)")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth client secret (or GOOGLE_CLIENT_SECRET env var)")
	cmd.Flags().StringVar(&tokenDir, "token-dir", "", "Directory for persisted tokens (or CALGATE_TOKEN_DIR env var)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Revoke the stored credentials")

	return cmd
}

// callbackResult is the outcome of one loopback redirect.
type callbackResult struct {
	code string
	err  error
}

// callbackHandler serves the loopback redirect, reporting the first result
// on results. Later hits (browser refreshes) are answered but not reported.
func callbackHandler(results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var res callbackResult
		switch {
		case r.URL.Query().Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", r.URL.Query().Get("error"))
		case r.URL.Query().Get("code") == "":
			res.err = fmt.Errorf("redirect carried no authorization code")
		default:
			res.code = r.URL.Query().Get("code")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, authFailurePage, res.err)
		} else {
			fmt.Fprint(w, authSuccessPage)
		}

		select {
		case results <- res:
		default:
		}
	}
}

func runAuth(cmd *cobra.Command, clientID, clientSecret, tokenDir string, debug, revoke bool) error {
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("google OAuth client credentials are required: set --google-client-id and --google-client-secret or the GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars")
	}

	logger := logging.New(debug)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	if tokenDir == "" {
		tokenDir, err = token.DefaultDir()
		if err != nil {
			return fmt.Errorf("failed to determine token directory: %w", err)
		}
	}
	store := token.NewStore(tokenDir, logger)

	if revoke {
		// Revocation needs no redirect; any loopback URL satisfies the
		// provider config.
		provider, err := auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "http://127.0.0.1" + authCallbackPath,
		})
		if err != nil {
			return fmt.Errorf("failed to configure OAuth provider: %w", err)
		}
		manager := auth.NewManager(provider, store, logger)

		ts, err := manager.ResumeFromStorage()
		if err != nil {
			return fmt.Errorf("failed to load stored credentials: %w", err)
		}
		if ts == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No stored credentials to revoke.")
			return nil
		}
		if err := manager.Revoke(ctx); err != nil {
			return fmt.Errorf("revocation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Credentials revoked and removed from local storage.")
		return nil
	}

	// A short-lived loopback listener catches the browser redirect; Google
	// allows any port on 127.0.0.1 for desktop-style clients.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to open loopback listener: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	provider, err := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  fmt.Sprintf("http://127.0.0.1:%d%s", port, authCallbackPath),
	})
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to configure OAuth provider: %w", err)
	}
	manager := auth.NewManager(provider, store, logger)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(authCallbackPath, callbackHandler(results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("callback listener stopped", logging.Err(serveErr))
		}
	}()
	defer srv.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Visit the following URL to authorize calgate:")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), "  "+manager.AuthCodeURL())
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), "Waiting for the browser redirect...")

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	if _, err := manager.ExchangeCode(ctx, res.code); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Authorization complete. Tokens saved to "+tokenDir+".")
	return nil
}
