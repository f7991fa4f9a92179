// Package prompt implements the interactive step of the OAuth2 flow: showing
// the authorization URL and getting the authorization code back, either
// pasted on the terminal (Terminal) or delivered to a localhost redirect
// listener (Callback).
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// Terminal opens the authorization URL in the browser and reads the code the
// user pastes. Reading blocks until a line arrives; there is no timeout.
type Terminal struct {
	in     *bufio.Reader
	inFile *os.File // set when in is a file, for terminal detection
	out    io.Writer
	logger *slog.Logger

	// OpenURL launches the browser. Defaults to OpenBrowser.
	OpenURL func(string) error
}

// NewTerminal returns a Terminal reading from in and writing instructions to out.
func NewTerminal(in io.Reader, out io.Writer, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}

	f, _ := in.(*os.File) //nolint:errcheck // type assertion, not an error

	return &Terminal{
		in:      bufio.NewReader(in),
		inFile:  f,
		out:     out,
		logger:  logger,
		OpenURL: OpenBrowser,
	}
}

// PromptForCode shows authURL, then waits for one line of input.
func (t *Terminal) PromptForCode(_ context.Context, authURL string) (string, error) {
	launchBrowser(authURL, t.OpenURL, t.logger)

	fmt.Fprintf(t.out, "Authorize the app in your browser, then paste the authorization code here.\n")
	fmt.Fprintf(t.out, "If the browser did not open, visit:\n%s\n", authURL)

	if t.inFile != nil && !isTerminal(t.inFile) {
		t.logger.Warn("stdin is not a terminal, reading authorization code from input stream")
	}

	fmt.Fprint(t.out, "Code: ")

	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}

		return "", fmt.Errorf("reading authorization code: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// OpenBrowser opens url in the platform's default browser without waiting
// for it to exit.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}

// launchBrowser attempts to open the auth URL, logging on failure. Callers
// always print the URL as well so headless hosts can copy it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	if openURL == nil {
		return
	}

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser",
			slog.String("error", openErr.Error()),
		)
	}
}
