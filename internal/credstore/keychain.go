package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// securityBin is the macOS keychain command-line tool.
const securityBin = "security"

// exitItemNotFound is the exit status security uses when no keychain item
// matches a find-generic-password query (errSecItemNotFound).
const exitItemNotFound = 44

// runFunc executes a command and returns its stdout. A non-zero exit must be
// reported as an error exposing ExitCode() (as *exec.ExitError does).
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Keychain stores the token in a macOS keychain through the security tool.
// Success and failure follow the tool's exit status.
type Keychain struct {
	logger *slog.Logger

	// run executes security. Tests replace it to avoid touching a keychain.
	run runFunc
}

// NewKeychain returns a Keychain that runs the real security binary.
func NewKeychain(logger *slog.Logger) *Keychain {
	if logger == nil {
		logger = slog.Default()
	}

	return &Keychain{logger: logger, run: execRun}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DefaultID asks security for the user's default keychain path.
func (k *Keychain) DefaultID(ctx context.Context) (string, error) {
	out, err := k.run(ctx, securityBin, "default-keychain")
	if err != nil {
		return "", fmt.Errorf("security default-keychain: %w", commandError(err))
	}

	// Output is the quoted path, indented: `    "/Users/me/Library/Keychains/login.keychain-db"`.
	path := strings.Trim(strings.TrimSpace(string(out)), `"`)
	if path == "" {
		return "", errors.New("security default-keychain returned no keychain")
	}

	return path, nil
}

// Unlock unlocks the keychain at id with secret.
func (k *Keychain) Unlock(ctx context.Context, id, secret string) error {
	if _, err := k.run(ctx, securityBin, "unlock-keychain", "-p", secret, id); err != nil {
		return fmt.Errorf("security unlock-keychain: %w", commandError(err))
	}

	return nil
}

// Find reads the generic password stored for service in keychain id.
func (k *Keychain) Find(ctx context.Context, id, service string) (string, bool, error) {
	out, err := k.run(ctx, securityBin, "find-generic-password", "-s", service, "-w", id)
	if err != nil {
		if exitCode(err) == exitItemNotFound {
			return "", false, nil
		}

		return "", false, fmt.Errorf("security find-generic-password: %w", commandError(err))
	}

	secret := strings.TrimRight(string(out), "\r\n")
	if secret == "" {
		return "", false, nil
	}

	return secret, true, nil
}

// Add writes secret for service in keychain id, updating an existing item.
func (k *Keychain) Add(ctx context.Context, id, service, account, secret string) error {
	_, err := k.run(ctx, securityBin, "add-generic-password",
		"-U", "-a", account, "-s", service, "-w", secret, id)
	if err != nil {
		return fmt.Errorf("security add-generic-password: %w", commandError(err))
	}

	k.logger.Debug("keychain item written", slog.String("keychain", id))

	return nil
}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// exitCode returns the exit status carried by err, or -1.
func exitCode(err error) int {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}

	return -1
}

// commandError adds the exit status and stderr to a command failure. Never
// includes the command line, which carries secrets.
func commandError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		if stderr != "" {
			return fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), stderr)
		}

		return fmt.Errorf("exit status %d", exitErr.ExitCode())
	}

	if code := exitCode(err); code >= 0 {
		return fmt.Errorf("exit status %d: %w", code, err)
	}

	return err
}
