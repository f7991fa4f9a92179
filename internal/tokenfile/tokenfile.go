// Package tokenfile reads and writes token files. A token file holds one
// OAuth2 token per service name so several tools can share a single file.
// It backs the file credential store for hosts with no OS secret store.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token file's directory.
const DirPerms = 0o700

// Entry is one stored credential.
type Entry struct {
	Account string        `json:"account"`
	Token   *oauth2.Token `json:"token"`
	SavedAt time.Time     `json:"saved_at"`
}

// File is the on-disk format: entries keyed by service name.
type File struct {
	Entries map[string]Entry `json:"entries"`
}

// Load returns the entry stored for service. Returns (nil, nil) if the file
// does not exist or holds no entry for service.
func Load(path, service string) (*Entry, error) {
	tf, err := read(path)
	if err != nil {
		return nil, err
	}

	entry, ok := tf.Entries[service]
	if !ok {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if entry.Token == nil || entry.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s entry %q missing token", path, service)
	}

	return &entry, nil
}

// Save stores entry under service, keeping entries for other services. The
// file is replaced atomically (write-to-temp + rename) with 0600 permissions.
// Never logs token values.
func Save(path, service string, entry Entry) error {
	tf, err := read(path)
	if err != nil {
		return err
	}

	if tf.Entries == nil {
		tf.Entries = make(map[string]Entry, 1)
	}

	tf.Entries[service] = entry

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return writeAtomic(path, data)
}

// read loads the whole file. A missing file yields an empty File.
func read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	return &tf, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
