package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Output streams and terminal hooks. Tests replace them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin

	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
	stderrIsTTY     = func() bool { return isatty.IsTerminal(os.Stderr.Fd()) }
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(stderr, format, args...)
	}
}

// formatSize returns a human-readable size string (e.g. "150 MiB").
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.IBytes(uint64(bytes))
}

// readSecret prompts on stderr and reads one line without echo. When stdin
// is not a terminal the line is read as-is, one byte at a time so nothing
// past the newline is consumed.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(stderr, prompt)

	if stdinIsTerminal() {
		b, err := readPassword()
		fmt.Fprintln(stderr)

		if err != nil {
			return "", err
		}

		return string(b), nil
	}

	return readLineUnbuffered(stdin)
}

// readLineUnbuffered reads up to the next newline from r.
func readLineUnbuffered(r io.Reader) (string, error) {
	var line []byte

	b := make([]byte, 1)

	for {
		n, err := r.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				break
			}

			line = append(line, b[0])
		}

		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				break
			}

			return "", err
		}
	}

	return strings.TrimRight(string(line), "\r"), nil
}

// progressPrinter reports upload progress on stderr. It rewrites one line
// on a terminal and prints nothing otherwise, keeping CI logs clean.
type progressPrinter struct {
	w       io.Writer
	enabled bool
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{w: stderr, enabled: !flagQuiet && !flagJSON && stderrIsTTY()}
}

func (p *progressPrinter) report(sent, total int64) {
	if !p.enabled {
		return
	}

	fmt.Fprintf(p.w, "\rUploaded %s / %s", formatSize(sent), formatSize(total))

	if sent >= total {
		fmt.Fprintln(p.w)
	}
}
