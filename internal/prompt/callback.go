package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the handler.
type callbackResult struct {
	code string
	err  error
}

// Callback receives the authorization code on a localhost redirect instead of
// having the user paste it. The redirect URL (including port) must be
// registered on the Dropbox app. A Callback serves a single authorization;
// Close it afterwards.
type Callback struct {
	srv      *http.Server
	mux      *http.ServeMux
	port     int
	resultCh chan callbackResult
	out      io.Writer
	logger   *slog.Logger

	// OpenURL launches the browser. Defaults to OpenBrowser.
	OpenURL func(string) error
}

// StartCallback binds 127.0.0.1:port (0 picks a free port) and starts serving.
func StartCallback(ctx context.Context, port int, out io.Writer, logger *slog.Logger) (*Callback, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, errors.New("listener address is not TCP")
	}

	c := &Callback{
		mux:      http.NewServeMux(),
		port:     tcpAddr.Port,
		resultCh: make(chan callbackResult, 1),
		out:      out,
		logger:   logger,
		OpenURL:  OpenBrowser,
	}

	c.srv = &http.Server{
		Handler:           c.mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	logger.Info("callback server listening", slog.Int("port", c.port))

	go func() {
		if serveErr := c.srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			c.send(callbackResult{err: fmt.Errorf("callback server error: %w", serveErr)})
		}
	}()

	return c, nil
}

// RedirectURL is the URL Dropbox redirects to after authorization.
func (c *Callback) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d", c.port)
}

// PromptForCode opens authURL and blocks until the redirect arrives or ctx
// is canceled. The state parameter embedded in authURL must come back
// unchanged.
func (c *Callback) PromptForCode(ctx context.Context, authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("parsing authorization URL: %w", err)
	}

	state := u.Query().Get("state")

	c.mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		c.handleOAuthCallback(w, r, state)
	})

	launchBrowser(authURL, c.OpenURL, c.logger)
	fmt.Fprintf(c.out, "Authorize the app in your browser. If it did not open, visit:\n%s\n", authURL)

	select {
	case result := <-c.resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("browser authorization canceled: %w", ctx.Err())
	}
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func (c *Callback) handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string) {
	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		c.send(callbackResult{err: errors.New("OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		c.send(callbackResult{err: fmt.Errorf("authorization failed: %s: %s", errParam, desc)})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		c.send(callbackResult{err: errors.New("callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	c.send(callbackResult{code: code})
}

// send delivers the first result and drops later ones (browser retries,
// favicon-style duplicates).
func (c *Callback) send(r callbackResult) {
	select {
	case c.resultCh <- r:
	default:
	}
}

// Close shuts the callback server down.
func (c *Callback) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
		return err
	}

	return nil
}
