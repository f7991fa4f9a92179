package credstore

import (
	"context"
	"errors"
	"log/slog"
	"os/user"

	"github.com/zalando/go-keyring"
)

// Keyring stores the token in the OS keyring (Secret Service on Linux,
// Credential Manager on Windows, the login keychain on macOS). The store id
// is used as the keyring user.
type Keyring struct {
	logger *slog.Logger
}

// NewKeyring returns a Keyring backed by github.com/zalando/go-keyring.
func NewKeyring(logger *slog.Logger) *Keyring {
	if logger == nil {
		logger = slog.Default()
	}

	return &Keyring{logger: logger}
}

// DefaultID returns the current OS user name.
func (k *Keyring) DefaultID(_ context.Context) (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}

	return u.Username, nil
}

// Unlock is a no-op: the OS session unlocks the keyring.
func (k *Keyring) Unlock(_ context.Context, id, _ string) error {
	k.logger.Debug("keyring does not take an unlock secret, ignoring", slog.String("store", id))

	return nil
}

// Find reads the secret for (service, id).
func (k *Keyring) Find(_ context.Context, id, service string) (string, bool, error) {
	secret, err := keyring.Get(service, id)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return secret, secret != "", nil
}

// Add writes the secret for (service, id). account is implied by id.
func (k *Keyring) Add(_ context.Context, id, service, _, secret string) error {
	return keyring.Set(service, id, secret)
}
