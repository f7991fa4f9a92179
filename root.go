package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-upload/internal/config"
	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// authHTTPClientTimeout bounds the token exchange. Uploads use a client
// without an overall timeout; see uploadHTTPClient.
const authHTTPClientTimeout = 30 * time.Second

// authHTTPClient returns the HTTP client for the OAuth2 token exchange.
func authHTTPClient() *http.Client {
	return &http.Client{Timeout: authHTTPClientTimeout}
}

// uploadHTTPClient returns the HTTP client for content uploads. A 150 MiB
// part on a slow link takes minutes, so only the context bounds a request.
func uploadHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 5 * time.Minute,
		},
	}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dropbox-upload",
		Short: "Upload a build artifact to Dropbox",
		Long: `Upload a single file to a Dropbox folder. Files of 150 MiB or more are
sent in 150 MiB parts through an upload session. On first use the app is
authorized in the browser and the access token is kept in the OS credential
store (macOS keychain, Secret Service / Windows Credential Manager, or a
0600 token file).`,
		Version: version,
		// Silence Cobra's default error/usage printing; main reports errors.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newLoginCmd())

	return cmd
}

// credentialFlags are the flags shared by upload and login.
type credentialFlags struct {
	appKey           string
	appSecret        string
	store            string
	keychain         string
	keychainPassword string
	tempDir          string
	askPassword      bool
	redirect         bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.appKey, "app-key", "", "Dropbox app key")
	cmd.Flags().StringVar(&f.appSecret, "app-secret", "", "Dropbox app secret")
	cmd.Flags().StringVar(&f.store, "store", "", "credential store: keychain, keyring, or file")
	cmd.Flags().StringVar(&f.keychain, "keychain", "",
		"keychain path, keyring user, or token file path (default: platform default)")
	cmd.Flags().StringVar(&f.keychainPassword, "keychain-password", "", "password to unlock the keychain")
	cmd.Flags().BoolVar(&f.askPassword, "ask-keychain-password", false, "prompt for the keychain password")
	cmd.Flags().BoolVar(&f.redirect, "redirect", false,
		"receive the authorization code on a localhost redirect instead of pasting it")
	cmd.Flags().StringVar(&f.tempDir, "temp-dir", "", "directory for part files of chunked uploads")
}

// apply copies explicitly set flags into cli. Unset flags leave the config
// file and environment values in place.
func (f *credentialFlags) apply(cmd *cobra.Command, cli *config.CLIOverrides) {
	set := func(name string, value string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}

		return &value
	}

	cli.AppKey = set("app-key", f.appKey)
	cli.AppSecret = set("app-secret", f.appSecret)
	cli.Store = set("store", f.store)
	cli.Keychain = set("keychain", f.keychain)
	cli.KeychainPassword = set("keychain-password", f.keychainPassword)
	cli.TempDir = set("temp-dir", f.tempDir)
}

// loadParams resolves the effective parameters from the override chain.
func loadParams(cli config.CLIOverrides) (*config.Params, error) {
	cli.ConfigPath = flagConfigPath

	params, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return params, nil
}

// unlockSecret returns the keychain password, prompting for it when
// --ask-keychain-password is set. The prompt wins over every other source.
func unlockSecret(p *config.Params, ask bool) (string, error) {
	if !ask {
		return p.KeychainPassword, nil
	}

	secret, err := readSecret("Keychain password: ")
	if err != nil {
		return "", fmt.Errorf("%w: reading keychain password: %w", failure.ErrConfig, err)
	}

	return secret, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. The config file log level provides the baseline; --verbose and
// --quiet override it.
func buildLogger(p *config.Params) *slog.Logger {
	level := slog.LevelInfo

	if p != nil {
		switch p.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// Exit codes by failure class.
const (
	exitGeneric = 1
	exitConfig  = 2
	exitAuth    = 3
	exitUpload  = 4
	exitIO      = 5
)

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	switch failure.Kind(err) {
	case "config":
		return exitConfig
	case "auth":
		return exitAuth
	case "upload":
		return exitUpload
	case "io":
		return exitIO
	default:
		return exitGeneric
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
