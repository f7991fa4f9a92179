package prompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAuthURL = "https://www.dropbox.com/oauth2/authorize?client_id=K&response_type=code"

func TestTerminal_ReadsPastedCode(t *testing.T) {
	var out bytes.Buffer
	var opened string

	term := NewTerminal(strings.NewReader("  the-code \n"), &out, slog.Default())
	term.OpenURL = func(u string) error {
		opened = u
		return nil
	}

	code, err := term.PromptForCode(context.Background(), testAuthURL)
	require.NoError(t, err)
	assert.Equal(t, "the-code", code)
	assert.Equal(t, testAuthURL, opened)
	assert.Contains(t, out.String(), testAuthURL)
	assert.Contains(t, out.String(), "paste the authorization code")
}

func TestTerminal_BrowserFailureStillPrompts(t *testing.T) {
	var out bytes.Buffer

	term := NewTerminal(strings.NewReader("code\n"), &out, slog.Default())
	term.OpenURL = func(string) error { return errors.New("no display") }

	code, err := term.PromptForCode(context.Background(), testAuthURL)
	require.NoError(t, err)
	assert.Equal(t, "code", code)
	assert.Contains(t, out.String(), testAuthURL)
}

func TestTerminal_CodeWithoutNewline(t *testing.T) {
	term := NewTerminal(strings.NewReader("last-line"), io.Discard, slog.Default())
	term.OpenURL = nil

	code, err := term.PromptForCode(context.Background(), testAuthURL)
	require.NoError(t, err)
	assert.Equal(t, "last-line", code)
}

func TestTerminal_EmptyInput(t *testing.T) {
	term := NewTerminal(strings.NewReader(""), io.Discard, slog.Default())
	term.OpenURL = nil

	_, err := term.PromptForCode(context.Background(), testAuthURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}

// startTestCallback starts a Callback on a free port with the browser
// replaced by a function that follows the redirect with the given query.
func startTestCallback(t *testing.T, query func(state string) url.Values) *Callback {
	t.Helper()

	cb, err := StartCallback(context.Background(), 0, io.Discard, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cb.Close() })

	cb.OpenURL = func(authURL string) error {
		u, parseErr := url.Parse(authURL)
		if parseErr != nil {
			return parseErr
		}

		q := query(u.Query().Get("state"))

		go func() {
			resp, getErr := http.Get(cb.RedirectURL() + "/?" + q.Encode()) //nolint:noctx // test helper
			if getErr == nil {
				resp.Body.Close()
			}
		}()

		return nil
	}

	return cb
}

func authURLWithState(state string) string {
	return testAuthURL + "&state=" + state
}

func TestCallback_Success(t *testing.T) {
	cb := startTestCallback(t, func(state string) url.Values {
		return url.Values{"state": {state}, "code": {"redirect-code"}}
	})

	assert.True(t, strings.HasPrefix(cb.RedirectURL(), "http://localhost:"))

	code, err := cb.PromptForCode(context.Background(), authURLWithState("abc123"))
	require.NoError(t, err)
	assert.Equal(t, "redirect-code", code)
}

func TestCallback_StateMismatch(t *testing.T) {
	cb := startTestCallback(t, func(string) url.Values {
		return url.Values{"state": {"forged"}, "code": {"c"}}
	})

	_, err := cb.PromptForCode(context.Background(), authURLWithState("abc123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestCallback_AuthorizationDenied(t *testing.T) {
	cb := startTestCallback(t, func(state string) url.Values {
		return url.Values{"state": {state}, "error": {"access_denied"}, "error_description": {"user said no"}}
	})

	_, err := cb.PromptForCode(context.Background(), authURLWithState("abc123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestCallback_MissingCode(t *testing.T) {
	cb := startTestCallback(t, func(state string) url.Values {
		return url.Values{"state": {state}}
	})

	_, err := cb.PromptForCode(context.Background(), authURLWithState("abc123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing authorization code")
}

func TestCallback_ContextCanceled(t *testing.T) {
	cb, err := StartCallback(context.Background(), 0, io.Discard, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cb.Close() })

	cb.OpenURL = nil

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = cb.PromptForCode(ctx, authURLWithState("abc123"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallback_PortInUse(t *testing.T) {
	first, err := StartCallback(context.Background(), 0, io.Discard, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	_, err = StartCallback(context.Background(), first.port, io.Discard, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d", first.port))
}
