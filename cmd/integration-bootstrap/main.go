// Authorizes the Dropbox app once and writes the token file the E2E suite
// reads, without touching the OS credential store.
//
// Usage: go run ./cmd/integration-bootstrap --out .testdata/tokens.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/dropbox-upload/internal/credstore"
	"github.com/tonimelisma/dropbox-upload/internal/dropbox"
	"github.com/tonimelisma/dropbox-upload/internal/prompt"
	"github.com/tonimelisma/dropbox-upload/testutil"
)

func main() {
	out := flag.String("out", ".testdata/tokens.json", "token file to write")
	flag.Parse()

	testutil.LoadDotEnv(".env")

	appKey := testutil.RequireEnv("DROPBOX_UPLOAD_APP_KEY", "")
	appSecret := testutil.RequireEnv("DROPBOX_UPLOAD_APP_SECRET", "")

	ctx := context.Background()
	logger := slog.Default()

	if err := os.MkdirAll(filepath.Dir(*out), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", filepath.Dir(*out), err)
		os.Exit(1)
	}

	auth := dropbox.NewAuthenticator(appKey, appSecret, prompt.NewTerminal(os.Stdin, os.Stderr, logger), nil, logger)

	token, err := auth.Authorize(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authorization failed: %v\n", err)
		os.Exit(1)
	}

	store := credstore.NewTokenStore(credstore.NewFile("", logger), logger)
	if err := store.Put(ctx, *out, token); err != nil {
		fmt.Fprintf(os.Stderr, "saving token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token saved to %s. Set %s=%s for the E2E suite.\n", *out, testutil.EnvTokenFile, *out)
}
