package dropbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// Dropbox OAuth2 endpoints.
const (
	authorizeURL = "https://www.dropbox.com/oauth2/authorize"
	tokenURL     = "https://api.dropboxapi.com/oauth2/token" //nolint:gosec // endpoint URL, not a credential
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// Endpoint is the Dropbox OAuth2 endpoint. The client credentials travel in
// an HTTP Basic Authorization header.
var Endpoint = oauth2.Endpoint{
	AuthURL:   authorizeURL,
	TokenURL:  tokenURL,
	AuthStyle: oauth2.AuthStyleInHeader,
}

// Prompter shows the authorization URL to the user and blocks until they
// supply the authorization code.
type Prompter interface {
	PromptForCode(ctx context.Context, authURL string) (string, error)
}

// RedirectPrompter is a Prompter that receives the code on a redirect URL
// instead of having the user paste it. The URL is sent as redirect_uri in
// both the authorization URL and the code exchange.
type RedirectPrompter interface {
	Prompter
	RedirectURL() string
}

// Authenticator runs the authorization-code flow for one Dropbox app.
type Authenticator struct {
	cfg        *oauth2.Config
	prompter   Prompter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAuthenticator returns an Authenticator for the app identified by
// appKey/appSecret. httpClient is used for the token exchange.
func NewAuthenticator(
	appKey, appSecret string, prompter Prompter, httpClient *http.Client, logger *slog.Logger,
) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		cfg: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			Endpoint:     Endpoint,
		},
		prompter:   prompter,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Authorize asks the user to authorize the app, then exchanges the code for
// an access token. The prompter is called once and the exchange is
// attempted once. A 2xx or 3xx response carrying an access_token succeeds;
// anything else returns *AuthError.
func (a *Authenticator) Authorize(ctx context.Context) (string, error) {
	cfg := *a.cfg

	var state string

	if rp, ok := a.prompter.(RedirectPrompter); ok {
		cfg.RedirectURL = rp.RedirectURL()

		s, err := generateState()
		if err != nil {
			return "", fmt.Errorf("%w: generating state token: %w", failure.ErrAuth, err)
		}

		state = s
	}

	authURL := cfg.AuthCodeURL(state)

	a.logger.Info("waiting for user authorization",
		slog.Bool("redirect", cfg.RedirectURL != ""),
	)

	code, err := a.prompter.PromptForCode(ctx, authURL)
	if err != nil {
		return "", fmt.Errorf("%w: reading authorization code: %w", failure.ErrAuth, err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: no authorization code entered", failure.ErrAuth)
	}

	a.logger.Info("received authorization code, exchanging for token")

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			if token, ok := redirectToken(re.Response.StatusCode, re.Body); ok {
				a.logger.Info("token exchange successful",
					slog.Int("status", re.Response.StatusCode),
				)

				return token, nil
			}

			a.logger.Warn("token endpoint rejected code",
				slog.Int("status", re.Response.StatusCode),
			)

			return "", &AuthError{StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}

		return "", fmt.Errorf("%w: exchanging authorization code: %w", failure.ErrAuth, err)
	}

	a.logger.Info("token exchange successful")

	return tok.AccessToken, nil
}

// redirectToken extracts access_token from a 3xx token response body.
// oauth2 treats any non-2xx status as a failure.
func redirectToken(status int, body []byte) (string, bool) {
	if status < http.StatusMultipleChoices || status >= http.StatusBadRequest {
		return "", false
	}

	var tr struct {
		AccessToken string `json:"access_token"`
	}

	if json.Unmarshal(body, &tr) != nil || tr.AccessToken == "" {
		return "", false
	}

	return tr.AccessToken, true
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
