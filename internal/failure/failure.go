// Package failure defines the error taxonomy shared by every layer of
// dropbox-upload. Each sentinel names a class of terminal failure; packages
// wrap them with fmt.Errorf("%w") or typed errors whose Unwrap returns one.
// Use errors.Is(err, failure.ErrAuth) to classify.
package failure

import "errors"

// Sentinel errors for the four failure classes.
var (
	// ErrConfig covers bad or missing parameters. Always detected before any
	// network or credential store I/O.
	ErrConfig = errors.New("configuration error")

	// ErrAuth covers token lookup, exchange, and persistence failures.
	ErrAuth = errors.New("authentication error")

	// ErrUpload covers backend write failures and post-upload verification.
	ErrUpload = errors.New("upload error")

	// ErrIO covers local filesystem failures while chunking or cleaning up.
	ErrIO = errors.New("I/O error")
)

// Kind returns a short label for the class of err, or "error" when err does
// not belong to the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "error"
	}
}
