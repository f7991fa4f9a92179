// Package uploader drives one upload of a local file to Dropbox: it resolves
// the write mode, obtains an access token (from the credential store or an
// interactive authorization), sends the file in one request or through an
// upload session, and verifies what the server stored.
//
// Every failure is terminal. Nothing is retried and each Run performs at most
// one attempt.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/dropbox-upload/internal/chunker"
	"github.com/tonimelisma/dropbox-upload/internal/dropbox"
	"github.com/tonimelisma/dropbox-upload/internal/failure"
	"github.com/tonimelisma/dropbox-upload/pkg/contenthash"
)

// ChunkThreshold is the file size at which uploads switch from a single
// request to an upload session. Files of exactly this size are chunked.
const ChunkThreshold = dropbox.MaxRequestSize

// ChunkSize is the size of every part but the last in a chunked upload.
const ChunkSize = ChunkThreshold

// Backend is the remote storage capability. Satisfied by *dropbox.Client.
type Backend interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, mode dropbox.WriteMode) (*dropbox.FileMetadata, error)
	StartSession(ctx context.Context, r io.Reader, size int64) (*dropbox.Cursor, error)
	AppendSession(ctx context.Context, cursor *dropbox.Cursor, r io.Reader, size int64) error
	FinishSession(ctx context.Context, cursor *dropbox.Cursor, path string, mode dropbox.WriteMode) (*dropbox.FileMetadata, error)
}

// TokenStore looks up and persists the access token. Satisfied by
// *credstore.TokenStore.
type TokenStore interface {
	Get(ctx context.Context, storeID, unlockSecret string) (string, bool, error)
	Put(ctx context.Context, storeID, token string) error
}

// Authorizer runs the interactive authorization. Satisfied by
// *dropbox.Authenticator.
type Authorizer interface {
	Authorize(ctx context.Context) (string, error)
}

// ProgressFunc reports bytes sent so far out of total.
type ProgressFunc func(sent, total int64)

// Request describes one upload.
type Request struct {
	FilePath          string
	DestinationFolder string  // Dropbox folder; empty means the app root
	WriteMode         *string // nil means add
	UpdateRev         *string // required when WriteMode is "update"
	AppKey            string
	AppSecret         string
	StoreID           string // credential store id; empty means the platform default
	UnlockSecret      string // optional credential store unlock secret
}

// Result describes the stored file.
type Result struct {
	Name        string
	PathDisplay string
	Rev         string
	Size        int64
	Chunked     bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Tokens        TokenStore
	NewAuthorizer func(appKey, appSecret string) Authorizer
	NewBackend    func(token string) Backend
	Logger        *slog.Logger
	Progress      ProgressFunc // optional
	TempDir       string       // where part files go; empty means os.TempDir()
}

// Orchestrator runs uploads.
type Orchestrator struct {
	tokens        TokenStore
	newAuthorizer func(appKey, appSecret string) Authorizer
	newBackend    func(token string) Backend
	logger        *slog.Logger
	progress      ProgressFunc
	tempDir       string

	// threshold and chunkSize default to ChunkThreshold and ChunkSize.
	// Tests shrink them to exercise the session path with small files.
	threshold int64
	chunkSize int64

	// hashFile computes the local content hash. Defaults to contenthash.File.
	hashFile func(path string) (string, error)
}

// New returns an Orchestrator wired to d.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	progress := d.Progress
	if progress == nil {
		progress = func(int64, int64) {}
	}

	return &Orchestrator{
		tokens:        d.Tokens,
		newAuthorizer: d.NewAuthorizer,
		newBackend:    d.NewBackend,
		logger:        logger,
		progress:      progress,
		tempDir:       d.TempDir,
		threshold:     ChunkThreshold,
		chunkSize:     ChunkSize,
		hashFile:      contenthash.File,
	}
}

// ResolveWriteMode maps the user's write mode to a WriteMode. nil means add.
// "update" needs a revision. Unknown modes pass through verbatim for the
// server to judge.
func ResolveWriteMode(mode, rev *string) (dropbox.WriteMode, error) {
	if mode == nil {
		return dropbox.AddMode(), nil
	}

	switch *mode {
	case dropbox.ModeUpdate:
		if rev == nil || *rev == "" {
			return dropbox.WriteMode{}, fmt.Errorf("%w: write mode %q requires a revision (update_rev)",
				failure.ErrConfig, dropbox.ModeUpdate)
		}

		return dropbox.UpdateMode(*rev), nil
	case dropbox.ModeAdd:
		return dropbox.AddMode(), nil
	case dropbox.ModeOverwrite:
		return dropbox.OverwriteMode(), nil
	default:
		return dropbox.WriteMode{Tag: *mode}, nil
	}
}

// Run performs one upload and returns the stored file's revision.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.FilePath == "" {
		return nil, fmt.Errorf("%w: no file to upload", failure.ErrConfig)
	}

	mode, err := ResolveWriteMode(req.WriteMode, req.UpdateRev)
	if err != nil {
		return nil, err
	}

	token, err := o.AcquireToken(ctx, req)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", failure.ErrIO, req.FilePath, err)
	}

	name := filepath.Base(req.FilePath)
	dest := path.Join("/", req.DestinationFolder, name)
	backend := o.newBackend(token)
	chunked := usesSession(fi.Size(), o.threshold)

	o.logger.Info("uploading file",
		slog.String("file", req.FilePath),
		slog.String("destination", dest),
		slog.String("size", humanize.IBytes(uint64(fi.Size()))), //nolint:gosec // size is non-negative
		slog.String("mode", mode.String()),
		slog.Bool("chunked", chunked),
	)

	var md *dropbox.FileMetadata
	if chunked {
		md, err = o.uploadChunked(ctx, backend, req.FilePath, dest, fi.Size(), mode)
	} else {
		md, err = o.uploadDirect(ctx, backend, req.FilePath, dest, fi.Size(), mode)
	}

	if err != nil {
		return nil, err
	}

	if err := o.verify(req.FilePath, name, md); err != nil {
		return nil, err
	}

	o.logger.Info("upload verified",
		slog.String("path", md.PathDisplay),
		slog.String("rev", md.Rev),
	)

	return &Result{
		Name:        md.Name,
		PathDisplay: md.PathDisplay,
		Rev:         md.Rev,
		Size:        md.Size,
		Chunked:     chunked,
	}, nil
}

// AcquireToken returns the stored token, or runs the authorization flow and
// stores the new token. A new token that cannot be stored is an error.
func (o *Orchestrator) AcquireToken(ctx context.Context, req Request) (string, error) {
	token, found, err := o.tokens.Get(ctx, req.StoreID, req.UnlockSecret)
	if err != nil {
		return "", err
	}

	if found {
		o.logger.Debug("using stored access token")
		return token, nil
	}

	if req.AppKey == "" || req.AppSecret == "" {
		return "", fmt.Errorf("%w: app key and app secret are required to authorize", failure.ErrConfig)
	}

	o.logger.Info("no stored access token, starting authorization")

	token, err = o.newAuthorizer(req.AppKey, req.AppSecret).Authorize(ctx)
	if err != nil {
		return "", err
	}

	if err := o.tokens.Put(ctx, req.StoreID, token); err != nil {
		return "", fmt.Errorf("%w: failed to persist token: %w", failure.ErrAuth, err)
	}

	return token, nil
}

// usesSession reports whether a file of size bytes goes through an upload
// session. A file of exactly threshold bytes uses the session path.
func usesSession(size, threshold int64) bool {
	return size >= threshold
}

func (o *Orchestrator) uploadDirect(
	ctx context.Context, backend Backend, filePath, dest string, size int64, mode dropbox.WriteMode,
) (*dropbox.FileMetadata, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", failure.ErrIO, filePath, err)
	}
	defer f.Close()

	md, err := backend.Upload(ctx, dest, f, size, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrUpload, err)
	}

	o.progress(size, size)

	return md, nil
}

// uploadChunked splits the file and sends the parts in order through one
// session. Part files are removed on every exit path.
func (o *Orchestrator) uploadChunked(
	ctx context.Context, backend Backend, filePath, dest string, size int64, mode dropbox.WriteMode,
) (md *dropbox.FileMetadata, err error) {
	parts, err := chunker.Split(filePath, o.chunkSize, o.tempDir)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rmErr := chunker.Remove(parts); rmErr != nil {
			o.logger.Warn("failed to remove part files", slog.String("error", rmErr.Error()))

			if err == nil {
				md, err = nil, rmErr
			}
		}
	}()

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s produced no parts", failure.ErrIO, filePath)
	}

	o.logger.Debug("file split", slog.Int("parts", len(parts)))

	var cursor *dropbox.Cursor

	err = sendPart(parts[0], func(r io.Reader, n int64) error {
		var startErr error
		cursor, startErr = backend.StartSession(ctx, r, n)

		return startErr
	})
	if err != nil {
		return nil, err
	}

	o.progress(cursor.Offset, size)

	for _, p := range parts[1:] {
		err = sendPart(p, func(r io.Reader, n int64) error {
			return backend.AppendSession(ctx, cursor, r, n)
		})
		if err != nil {
			return nil, err
		}

		o.progress(cursor.Offset, size)
	}

	md, err = backend.FinishSession(ctx, cursor, dest, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrUpload, err)
	}

	return md, nil
}

// sendPart opens a part file and hands it to send. Backend failures are
// upload errors; failures to read the part are I/O errors.
func sendPart(p chunker.Part, send func(r io.Reader, n int64) error) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("%w: opening part %d: %w", failure.ErrIO, p.Index, err)
	}
	defer f.Close()

	if err := send(f, p.Size); err != nil {
		return fmt.Errorf("%w: sending part %d: %w", failure.ErrUpload, p.Index, err)
	}

	return nil
}

// verify checks that the server stored the file under its own name and,
// when the server reports one, with the same content hash.
func (o *Orchestrator) verify(filePath, name string, md *dropbox.FileMetadata) error {
	if md == nil {
		return fmt.Errorf("%w: failed to upload file: no metadata returned", failure.ErrUpload)
	}

	if md.Name != name {
		o.logger.Error("uploaded name does not match",
			slog.String("want", name),
			slog.String("got", md.Name),
		)

		return fmt.Errorf("%w: failed to upload file: stored as %q, expected %q", failure.ErrUpload, md.Name, name)
	}

	if md.ContentHash == "" {
		return nil
	}

	local, err := o.hashFile(filePath)
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %w", failure.ErrIO, filePath, err)
	}

	if local != md.ContentHash {
		return fmt.Errorf("%w: failed to upload file: content hash mismatch (local %s, remote %s)",
			failure.ErrUpload, local, md.ContentHash)
	}

	return nil
}

// IsWriteConflict reports whether err came from the server refusing to
// overwrite or update the destination.
func IsWriteConflict(err error) bool {
	return errors.Is(err, dropbox.ErrWriteConflict)
}
