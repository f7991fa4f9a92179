package credstore

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/dropbox-upload/internal/tokenfile"
)

// defaultTokenFile is the token file name inside the data directory.
const defaultTokenFile = "tokens.json"

// File stores the token in a 0600 JSON file. The store id is the file path.
type File struct {
	dataDir string
	logger  *slog.Logger

	// now is the clock for SavedAt. Tests override it.
	now func() time.Time
}

// NewFile returns a File whose default token file lives in dataDir.
func NewFile(dataDir string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}

	return &File{dataDir: dataDir, logger: logger, now: time.Now}
}

// DefaultID returns <dataDir>/tokens.json.
func (f *File) DefaultID(_ context.Context) (string, error) {
	if f.dataDir == "" {
		return "", errors.New("cannot determine data directory for token file")
	}

	return filepath.Join(f.dataDir, defaultTokenFile), nil
}

// Unlock is a no-op: file permissions protect the token.
func (f *File) Unlock(_ context.Context, id, _ string) error {
	f.logger.Debug("token file does not take an unlock secret, ignoring", slog.String("store", id))

	return nil
}

// Find loads the entry for service from the file at id.
func (f *File) Find(_ context.Context, id, service string) (string, bool, error) {
	entry, err := tokenfile.Load(id, service)
	if err != nil {
		return "", false, err
	}

	if entry == nil {
		return "", false, nil
	}

	return entry.Token.AccessToken, true, nil
}

// Add saves secret for service in the file at id.
func (f *File) Add(_ context.Context, id, service, account, secret string) error {
	return tokenfile.Save(id, service, tokenfile.Entry{
		Account: account,
		Token:   &oauth2.Token{AccessToken: secret, TokenType: "bearer"},
		SavedAt: f.now().UTC(),
	})
}
