// Package testutil provides shared environment helpers for the E2E tests
// and the integration bootstrap tool.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the E2E suite.
const (
	EnvTokenFile = "DROPBOX_UPLOAD_E2E_TOKEN_FILE" // token file written by cmd/integration-bootstrap
	EnvFolder    = "DROPBOX_UPLOAD_E2E_FOLDER"     // Dropbox folder the suite may write to
	EnvLarge     = "DROPBOX_UPLOAD_E2E_LARGE"      // set to run the chunked upload test
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireEnv returns the value of name or crashes the process with a hint.
// E2E tests cannot do anything useful without their credentials.
func RequireEnv(name, hint string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", name)

		if hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}

		os.Exit(1)
	}

	return v
}

// RequireTestFolder returns the Dropbox folder the suite may write to. It
// must be a dedicated folder below the app root, never the root itself.
func RequireTestFolder() string {
	folder := RequireEnv(EnvFolder, "Example: DROPBOX_UPLOAD_E2E_FOLDER=/e2e")

	if folder == "/" || !strings.HasPrefix(folder, "/") {
		fmt.Fprintf(os.Stderr, "FATAL: %s=%q must be an absolute folder other than /\n", EnvFolder, folder)
		os.Exit(1)
	}

	return strings.TrimSuffix(folder, "/")
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
