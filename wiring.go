package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/dropbox-upload/internal/config"
	"github.com/tonimelisma/dropbox-upload/internal/credstore"
	"github.com/tonimelisma/dropbox-upload/internal/dropbox"
	"github.com/tonimelisma/dropbox-upload/internal/failure"
	"github.com/tonimelisma/dropbox-upload/internal/prompt"
	"github.com/tonimelisma/dropbox-upload/internal/uploader"
)

// newBackend builds the Dropbox client for an access token. Tests replace it.
var newBackend = func(token string, logger *slog.Logger) uploader.Backend {
	return dropbox.NewClient(token, uploadHTTPClient(), logger)
}

// newOrchestrator wires the credential store, the interactive authorizer
// and the Dropbox client into an uploader.
func newOrchestrator(p *config.Params, redirect bool, logger *slog.Logger) (*uploader.Orchestrator, error) {
	store, err := credstore.New(p.Store, config.DefaultDataDir(), logger)
	if err != nil {
		return nil, err
	}

	progress := newProgressPrinter()

	return uploader.New(uploader.Deps{
		Tokens: credstore.NewTokenStore(store, logger),
		NewAuthorizer: func(appKey, appSecret string) uploader.Authorizer {
			return &interactiveAuthorizer{
				appKey:       appKey,
				appSecret:    appSecret,
				redirect:     redirect,
				redirectPort: p.RedirectPort,
				logger:       logger,
			}
		},
		NewBackend: func(token string) uploader.Backend {
			return newBackend(token, logger)
		},
		Logger:   logger,
		Progress: progress.report,
		TempDir:  p.TempDir,
	}), nil
}

// interactiveAuthorizer picks the prompter when authorization is actually
// needed, so the redirect listener is only bound when there is no token.
type interactiveAuthorizer struct {
	appKey       string
	appSecret    string
	redirect     bool
	redirectPort int
	logger       *slog.Logger
}

func (a *interactiveAuthorizer) Authorize(ctx context.Context) (string, error) {
	var prompter dropbox.Prompter = prompt.NewTerminal(stdin, stderr, a.logger)

	if a.redirect {
		cb, err := prompt.StartCallback(ctx, a.redirectPort, stderr, a.logger)
		if err != nil {
			return "", fmt.Errorf("%w: %w", failure.ErrAuth, err)
		}
		defer cb.Close()

		statusf("Register %s as a redirect URI of the Dropbox app.\n", cb.RedirectURL())

		prompter = cb
	}

	return dropbox.NewAuthenticator(a.appKey, a.appSecret, prompter, authHTTPClient(), a.logger).Authorize(ctx)
}

// uploadRequest builds the orchestrator request for p.
func uploadRequest(p *config.Params, secret string) uploader.Request {
	return uploader.Request{
		FilePath:          p.FilePath,
		DestinationFolder: p.DropboxPath,
		WriteMode:         p.WriteMode,
		UpdateRev:         p.UpdateRev,
		AppKey:            p.AppKey,
		AppSecret:         p.AppSecret,
		StoreID:           p.Keychain,
		UnlockSecret:      secret,
	}
}
