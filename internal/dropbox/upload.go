package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// MaxRequestSize is the largest body a single upload or append request may
// carry (150 MiB).
const MaxRequestSize = 150 * 1024 * 1024

// Upload sends a file of size bytes to path in one request.
// A name clash under AddMode or a stale revision under UpdateMode fails with
// an *APIError wrapping ErrWriteConflict.
func (c *Client) Upload(
	ctx context.Context, path string, r io.Reader, size int64, mode WriteMode,
) (*FileMetadata, error) {
	c.logger.Info("upload",
		slog.String("path", path),
		slog.Int64("size", size),
		slog.String("mode", mode.String()),
	)

	arg := commitInfo{Path: path, Mode: mode}

	resp, err := c.doContent(ctx, "/files/upload", arg, r, size)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.decodeMetadata(resp, "upload")
}

// StartSession opens an upload session with the first size bytes from r.
// The returned cursor's offset already counts those bytes.
func (c *Client) StartSession(ctx context.Context, r io.Reader, size int64) (*Cursor, error) {
	c.logger.Info("starting upload session", slog.Int64("size", size))

	resp, err := c.doContent(ctx, "/files/upload_session/start", sessionStartArg{}, r, size)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ssr sessionStartResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&ssr); decErr != nil {
		return nil, fmt.Errorf("dropbox: decoding session start response: %w", decErr)
	}

	if ssr.SessionID == "" {
		return nil, fmt.Errorf("dropbox: session start response missing session_id")
	}

	c.logger.Debug("upload session started")

	return &Cursor{SessionID: ssr.SessionID, Offset: size}, nil
}

// AppendSession sends the next size bytes from r to the session and advances
// cursor.Offset past them. Appends must be issued in file order.
func (c *Client) AppendSession(ctx context.Context, cursor *Cursor, r io.Reader, size int64) error {
	c.logger.Debug("appending to upload session",
		slog.Int64("offset", cursor.Offset),
		slog.Int64("size", size),
	)

	arg := sessionAppendArg{Cursor: *cursor}

	resp, err := c.doContent(ctx, "/files/upload_session/append_v2", arg, r, size)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain body to reuse connection.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("dropbox: draining append response body: %w", drainErr)
	}

	cursor.Offset += size

	return nil
}

// FinishSession commits the session's bytes to path.
func (c *Client) FinishSession(
	ctx context.Context, cursor *Cursor, path string, mode WriteMode,
) (*FileMetadata, error) {
	c.logger.Info("finishing upload session",
		slog.String("path", path),
		slog.Int64("size", cursor.Offset),
		slog.String("mode", mode.String()),
	)

	arg := sessionFinishArg{
		Cursor: *cursor,
		Commit: commitInfo{Path: path, Mode: mode},
	}

	resp, err := c.doContent(ctx, "/files/upload_session/finish", arg, nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.decodeMetadata(resp, "session finish")
}

// decodeMetadata parses a file metadata response body.
func (c *Client) decodeMetadata(resp *http.Response, what string) (*FileMetadata, error) {
	var fmr fileMetadataResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&fmr); decErr != nil {
		return nil, fmt.Errorf("dropbox: decoding %s response: %w", what, decErr)
	}

	md := &FileMetadata{
		ID:          fmr.ID,
		Name:        fmr.Name,
		PathDisplay: fmr.PathDisplay,
		Rev:         fmr.Rev,
		Size:        fmr.Size,
		ContentHash: fmr.ContentHash,
	}

	if fmr.ServerModified != "" {
		t, parseErr := time.Parse(time.RFC3339, fmr.ServerModified)
		if parseErr != nil {
			c.logger.Warn("invalid server_modified, using zero time",
				slog.String("raw", fmr.ServerModified),
				slog.String("error", parseErr.Error()),
			)
		}

		md.ServerModified = t
	}

	c.logger.Debug("upload complete",
		slog.String("name", md.Name),
		slog.String("rev", md.Rev),
	)

	return md, nil
}
