package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-upload/internal/config"
	"github.com/tonimelisma/dropbox-upload/internal/credstore"
)

func newLoginCmd() *cobra.Command {
	f := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the Dropbox app and store the access token",
		Long: `Authorize the Dropbox app in the browser and store the access token in the
credential store, without uploading anything. Does nothing when a token is
already stored. Useful for preparing a build machine ahead of time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, f)
		},
	}

	f.register(cmd)

	return cmd
}

// loginJSONOutput is the JSON output schema for the login command.
type loginJSONOutput struct {
	Authorized bool   `json:"authorized"`
	Kind       string `json:"kind"`
	Store      string `json:"store,omitempty"`
}

// loginResult reports the store kind and id the token lives in. An unset id
// resolves to the store's default; it is omitted when that cannot be resolved.
func loginResult(ctx context.Context, p *config.Params, dataDir string, logger *slog.Logger) loginJSONOutput {
	out := loginJSONOutput{Authorized: true, Kind: p.Store, Store: p.Keychain}
	if out.Kind == "" {
		out.Kind = credstore.DefaultKind()
	}

	if out.Store != "" {
		return out
	}

	store, err := credstore.New(out.Kind, dataDir, logger)
	if err != nil {
		return out
	}

	id, err := store.DefaultID(ctx)
	if err != nil {
		logger.Debug("default credential store unresolved", slog.String("error", err.Error()))

		return out
	}

	out.Store = id

	return out
}

func runLogin(cmd *cobra.Command, f *credentialFlags) error {
	cli := config.CLIOverrides{}
	f.apply(cmd, &cli)

	params, err := loadParams(cli)
	if err != nil {
		return err
	}

	logger := buildLogger(params)

	secret, err := unlockSecret(params, f.askPassword)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(params, f.redirect, logger)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(cmdContext(cmd), logger)
	defer cancel()

	logger.Info("login started", "store", params.Store, "keychain", params.Keychain)

	if _, err := orch.AcquireToken(ctx, uploadRequest(params, secret)); err != nil {
		return err
	}

	logger.Info("login successful")

	if flagJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(loginResult(ctx, params, config.DefaultDataDir(), logger))
	}

	statusf("Access token stored.\n")

	return nil
}
