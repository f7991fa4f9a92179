package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf16"
)

const (
	// DefaultContentURL is the base URL of the Dropbox content endpoints.
	DefaultContentURL = "https://content.dropboxapi.com/2"

	userAgent = "dropbox-upload/0.1"

	// apiArgHeader carries the JSON arguments of content endpoints.
	apiArgHeader = "Dropbox-API-Arg"
)

// Client is an HTTP client for the Dropbox content-upload endpoints.
// Every call makes exactly one request; nothing is retried.
type Client struct {
	contentURL string
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// NewClient creates a Dropbox client authenticated with the bearer token.
// httpClient should have no overall timeout: uploads can take a long time.
func NewClient(token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		contentURL: DefaultContentURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
	}
}

// doContent POSTs body to a content endpoint with arg in the Dropbox-API-Arg
// header. A nil body sends an empty request. The caller closes the response
// body on success; non-2xx responses are returned as *APIError.
func (c *Client) doContent(
	ctx context.Context, endpoint string, arg any, body io.Reader, size int64,
) (*http.Response, error) {
	argHeader, err := headerSafeJSON(arg)
	if err != nil {
		return nil, fmt.Errorf("dropbox: encoding %s arguments: %w", endpoint, err)
	}

	if body == nil {
		body = http.NoBody
		size = 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: creating %s request: %w", endpoint, err)
	}

	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(apiArgHeader, argHeader)

	c.logger.Debug("sending request",
		slog.String("endpoint", endpoint),
		slog.Int64("size", size),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("dropbox: %s request failed: %w", endpoint, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		resp.Body.Close()

		apiErr := newAPIError(resp.StatusCode, errBody)

		c.logger.Error("request returned error status",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("summary", apiErr.Summary),
		)

		return nil, apiErr
	}

	c.logger.Debug("request succeeded",
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// headerSafeJSON encodes v as JSON with every rune outside printable ASCII
// escaped as \uXXXX, as HTTP headers cannot carry raw UTF-8.
func headerSafeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len(raw))

	for _, r := range string(raw) {
		if r < 0x7f {
			sb.WriteRune(r)
			continue
		}

		if r > 0xffff {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, hi, lo)

			continue
		}

		fmt.Fprintf(&sb, `\u%04x`, r)
	}

	return sb.String(), nil
}
