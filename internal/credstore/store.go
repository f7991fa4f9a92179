// Package credstore persists the Dropbox access token in a platform credential
// store. TokenStore holds the lookup/persist policy; CredentialStore
// implementations wrap the macOS keychain (security tool), the OS keyring, or
// a plain token file.
package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// ServiceName scopes every stored entry. It is unique to this tool and must
// stay stable across releases, otherwise existing tokens are orphaned.
const ServiceName = "dropbox-upload-access-token"

// Store kinds accepted by New.
const (
	KindKeychain = "keychain"
	KindKeyring  = "keyring"
	KindFile     = "file"
)

// CredentialStore is the OS capability TokenStore needs. id selects a
// concrete store (a keychain path, a keyring user, or a token file path).
type CredentialStore interface {
	// DefaultID returns the platform default store identifier.
	DefaultID(ctx context.Context) (string, error)
	// Unlock makes the store readable with secret.
	Unlock(ctx context.Context, id, secret string) error
	// Find returns the secret stored for service. found is false when no
	// entry exists; that is not an error.
	Find(ctx context.Context, id, service string) (secret string, found bool, err error)
	// Add writes secret for service, replacing any existing entry.
	Add(ctx context.Context, id, service, account, secret string) error
}

// TokenStore reads and writes the access token under ServiceName.
type TokenStore struct {
	store  CredentialStore
	logger *slog.Logger
}

// NewTokenStore wraps store.
func NewTokenStore(store CredentialStore, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenStore{store: store, logger: logger}
}

// Get unlocks the store when unlockSecret is set, then looks up the token.
// An empty storeID resolves to the platform default store. A missing entry
// returns found=false with a nil error.
func (s *TokenStore) Get(ctx context.Context, storeID, unlockSecret string) (string, bool, error) {
	id, err := s.resolveID(ctx, storeID)
	if err != nil {
		return "", false, err
	}

	if unlockSecret != "" {
		if err := s.store.Unlock(ctx, id, unlockSecret); err != nil {
			return "", false, fmt.Errorf("%w: unlocking credential store %s: %w", failure.ErrAuth, id, err)
		}

		s.logger.Debug("credential store unlocked", slog.String("store", id))
	}

	token, found, err := s.store.Find(ctx, id, ServiceName)
	if err != nil {
		return "", false, fmt.Errorf("%w: reading token from %s: %w", failure.ErrAuth, id, err)
	}

	s.logger.Debug("token lookup",
		slog.String("store", id),
		slog.Bool("found", found),
	)

	return token, found, nil
}

// Put writes token under ServiceName. A failed write returns an error; the
// caller decides whether that is fatal.
func (s *TokenStore) Put(ctx context.Context, storeID, token string) error {
	id, err := s.resolveID(ctx, storeID)
	if err != nil {
		return err
	}

	if err := s.store.Add(ctx, id, ServiceName, ServiceName, token); err != nil {
		return fmt.Errorf("%w: writing token to %s: %w", failure.ErrAuth, id, err)
	}

	s.logger.Info("token saved", slog.String("store", id))

	return nil
}

// resolveID returns storeID, or the store's default when storeID is empty.
// Default resolution only happens when a lookup or write needs it.
func (s *TokenStore) resolveID(ctx context.Context, storeID string) (string, error) {
	if storeID != "" {
		return storeID, nil
	}

	id, err := s.store.DefaultID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: resolving default credential store: %w", failure.ErrAuth, err)
	}

	s.logger.Debug("using default credential store", slog.String("store", id))

	return id, nil
}

// DefaultKind returns the store kind used when none is configured: the
// keychain on macOS and the OS keyring elsewhere.
func DefaultKind() string {
	if runtime.GOOS == "darwin" {
		return KindKeychain
	}

	return KindKeyring
}

// New builds the CredentialStore for kind. An empty kind means DefaultKind().
// dataDir is where the file store keeps its default token file.
func New(kind, dataDir string, logger *slog.Logger) (CredentialStore, error) {
	if kind == "" {
		kind = DefaultKind()
	}

	switch kind {
	case KindKeychain:
		return NewKeychain(logger), nil
	case KindKeyring:
		return NewKeyring(logger), nil
	case KindFile:
		return NewFile(dataDir, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown credential store %q (want %s, %s, or %s)",
			failure.ErrConfig, kind, KindKeychain, KindKeyring, KindFile)
	}
}
