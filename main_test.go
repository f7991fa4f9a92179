package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/dropbox-upload/internal/config"
	"github.com/tonimelisma/dropbox-upload/internal/credstore"
	"github.com/tonimelisma/dropbox-upload/internal/dropbox"
	"github.com/tonimelisma/dropbox-upload/internal/failure"
	"github.com/tonimelisma/dropbox-upload/internal/tokenfile"
	"github.com/tonimelisma/dropbox-upload/internal/uploader"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests set
// globals after newRootCmd() or let Cobra parse them through SetArgs.

// cliBackend is an uploader.Backend that accepts direct uploads.
type cliBackend struct {
	token string
	paths []string
	err   error
}

func (b *cliBackend) Upload(
	_ context.Context, path string, r io.Reader, _ int64, _ dropbox.WriteMode,
) (*dropbox.FileMetadata, error) {
	b.paths = append(b.paths, path)

	if b.err != nil {
		return nil, b.err
	}

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, err
	}

	return &dropbox.FileMetadata{
		Name:        filepath.Base(path),
		PathDisplay: path,
		Rev:         "a1c10ce0dd78",
		Size:        n,
	}, nil
}

func (b *cliBackend) StartSession(context.Context, io.Reader, int64) (*dropbox.Cursor, error) {
	return nil, errors.New("unexpected session")
}

func (b *cliBackend) AppendSession(context.Context, *dropbox.Cursor, io.Reader, int64) error {
	return errors.New("unexpected session")
}

func (b *cliBackend) FinishSession(
	context.Context, *dropbox.Cursor, string, dropbox.WriteMode,
) (*dropbox.FileMetadata, error) {
	return nil, errors.New("unexpected session")
}

type cliHarness struct {
	out       *bytes.Buffer
	errOut    *bytes.Buffer
	backend   *cliBackend
	built     int
	dir       string
	cfgPath   string
	tokenPath string
	file      string
}

// newCLIHarness redirects the CLI's streams, replaces the Dropbox client
// with a fake, and seeds a token file holding "stored-token".
func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	h := &cliHarness{
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
		backend: &cliBackend{},
		dir:     t.TempDir(),
	}

	oldOut, oldErr, oldIn := stdout, stderr, stdin
	oldTerm, oldPw, oldTTY, oldBackend := stdinIsTerminal, readPassword, stderrIsTTY, newBackend

	t.Cleanup(func() {
		stdout, stderr, stdin = oldOut, oldErr, oldIn
		stdinIsTerminal, readPassword, stderrIsTTY, newBackend = oldTerm, oldPw, oldTTY, oldBackend
	})

	stdout, stderr, stdin = h.out, h.errOut, strings.NewReader("")
	stdinIsTerminal = func() bool { return false }
	stderrIsTTY = func() bool { return false }
	newBackend = func(token string, _ *slog.Logger) uploader.Backend {
		h.built++
		h.backend.token = token

		return h.backend
	}

	for _, env := range []string{config.EnvConfig, config.EnvAppKey, config.EnvAppSecret, config.EnvKeychainPassword} {
		t.Setenv(env, "")
	}

	h.cfgPath = filepath.Join(h.dir, "config.toml")
	require.NoError(t, os.WriteFile(h.cfgPath, []byte("[dropbox]\napp_key = \"K\"\napp_secret = \"S\"\n"), 0o600))

	h.tokenPath = filepath.Join(h.dir, "tokens.json")
	require.NoError(t, tokenfile.Save(h.tokenPath, credstore.ServiceName, tokenfile.Entry{
		Token: &oauth2.Token{AccessToken: "stored-token"},
	}))

	h.file = filepath.Join(h.dir, "build.ipa")
	require.NoError(t, os.WriteFile(h.file, []byte("payload"), 0o600))

	return h
}

// run executes the root command with the harness's config and token file.
func (h *cliHarness) run(args ...string) error {
	cmd := newRootCmd()
	full := append([]string{args[0], "--config", h.cfgPath, "--store", "file", "--keychain", h.tokenPath}, args[1:]...)
	cmd.SetArgs(full)

	return cmd.Execute()
}

func TestUpload_PrintsRevision(t *testing.T) {
	h := newCLIHarness(t)

	require.NoError(t, h.run("upload", "--file", h.file, "--dropbox-path", "/Releases"))

	assert.Equal(t, "a1c10ce0dd78\n", h.out.String())
	assert.Equal(t, "stored-token", h.backend.token)
	assert.Equal(t, []string{"/Releases/build.ipa"}, h.backend.paths)
	assert.Contains(t, h.errOut.String(), "Uploaded build.ipa (7 B) to /Releases/build.ipa")
}

func TestUpload_JSON(t *testing.T) {
	h := newCLIHarness(t)

	require.NoError(t, h.run("upload", "--file", h.file, "--json"))

	var out uploadJSONOutput
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	assert.Equal(t, uploadJSONOutput{
		Name: "build.ipa",
		Path: "/build.ipa",
		Rev:  "a1c10ce0dd78",
		Size: 7,
	}, out)
}

func TestUpload_QuietSuppressesStatus(t *testing.T) {
	h := newCLIHarness(t)

	require.NoError(t, h.run("upload", "--file", h.file, "-q"))
	assert.Equal(t, "a1c10ce0dd78\n", h.out.String())
	assert.NotContains(t, h.errOut.String(), "Uploaded")
}

func TestUpload_MissingFileFailsBeforeIO(t *testing.T) {
	h := newCLIHarness(t)

	err := h.run("upload", "--file", filepath.Join(h.dir, "missing.ipa"))
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
	assert.Equal(t, exitConfig, exitCode(err))
	assert.Equal(t, 0, h.built)
}

func TestUpload_UpdateWithoutRev(t *testing.T) {
	h := newCLIHarness(t)

	err := h.run("upload", "--file", h.file, "--write-mode", "update")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
	assert.Contains(t, err.Error(), "update_rev")
	assert.Equal(t, 0, h.built)
}

func TestUpload_ShortRevRejected(t *testing.T) {
	h := newCLIHarness(t)

	err := h.run("upload", "--file", h.file, "--write-mode", "update", "--update-rev", "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
}

func TestUpload_WriteConflictHint(t *testing.T) {
	h := newCLIHarness(t)
	h.backend.err = &dropbox.APIError{
		StatusCode: 409,
		Summary:    "path/conflict/file/..",
		Err:        dropbox.ErrWriteConflict,
	}

	err := h.run("upload", "--file", h.file)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrUpload)
	assert.Equal(t, exitUpload, exitCode(err))
	assert.Contains(t, h.errOut.String(), "already exists")
	assert.Empty(t, h.out.String())
}

func TestUpload_AppKeyFlagOverridesConfig(t *testing.T) {
	h := newCLIHarness(t)

	err := h.run("upload", "--file", h.file, "--app-key", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
	assert.Contains(t, err.Error(), "app_key")
}

func TestLogin_TokenAlreadyStored(t *testing.T) {
	h := newCLIHarness(t)

	require.NoError(t, h.run("login", "--json"))

	var out loginJSONOutput
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	assert.True(t, out.Authorized)
	assert.Equal(t, credstore.KindFile, out.Kind)
	assert.Equal(t, h.tokenPath, out.Store)
	assert.Equal(t, 0, h.built, "login never builds a Dropbox client")
}

func TestLoginResult_DefaultStoreID(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dataDir := t.TempDir()

	out := loginResult(ctx, &config.Params{Store: credstore.KindFile}, dataDir, logger)
	assert.Equal(t, loginJSONOutput{
		Authorized: true,
		Kind:       credstore.KindFile,
		Store:      filepath.Join(dataDir, "tokens.json"),
	}, out)

	out = loginResult(ctx, &config.Params{Store: credstore.KindFile, Keychain: "/tmp/t.json"}, dataDir, logger)
	assert.Equal(t, "/tmp/t.json", out.Store)

	out = loginResult(ctx, &config.Params{Store: credstore.KindFile}, "", logger)
	assert.Empty(t, out.Store)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"store"`)

	out = loginResult(ctx, &config.Params{}, dataDir, logger)
	assert.Equal(t, credstore.DefaultKind(), out.Kind)
}

func TestLogin_UnknownStore(t *testing.T) {
	h := newCLIHarness(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"login", "--config", h.cfgPath, "--store", "vault"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.Contains(t, names, "upload")
	assert.Contains(t, names, "login")

	upload, _, err := cmd.Find([]string{"upload"})
	require.NoError(t, err)

	for _, flag := range []string{
		"file", "dropbox-path", "write-mode", "update-rev", "app-key", "app-secret",
		"keychain", "keychain-password", "ask-keychain-password", "store", "redirect", "temp-dir",
	} {
		assert.NotNil(t, upload.Flags().Lookup(flag), flag)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", failure.ErrConfig), exitConfig},
		{&dropbox.AuthError{StatusCode: 400}, exitAuth},
		{fmt.Errorf("%w: x", failure.ErrUpload), exitUpload},
		{fmt.Errorf("%w: x", failure.ErrIO), exitIO},
		{errors.New("other"), exitGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestBuildLogger_Levels(t *testing.T) {
	_ = newRootCmd()

	t.Cleanup(func() { flagVerbose, flagQuiet = false, false })

	ctx := context.Background()

	logger := buildLogger(&config.Params{LogLevel: "warn"})
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))

	logger = buildLogger(nil)
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))

	flagVerbose = true
	logger = buildLogger(&config.Params{LogLevel: "error"})
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	flagQuiet = true
	logger = buildLogger(&config.Params{LogLevel: "debug"})
	assert.False(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.True(t, logger.Enabled(ctx, slog.LevelError))
}
