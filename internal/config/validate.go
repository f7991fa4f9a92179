package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tonimelisma/dropbox-upload/internal/credstore"
	"github.com/tonimelisma/dropbox-upload/internal/dropbox"
	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// Validation range constants.
const (
	minRedirectPort = 1
	maxRedirectPort = 65535
)

// updateRevPattern matches a Dropbox file revision: at least nine hex digits.
var updateRevPattern = regexp.MustCompile(`^[0-9a-fA-F]{9,}$`)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validWriteModes = map[string]bool{
	dropbox.ModeAdd:       true,
	dropbox.ModeOverwrite: true,
	dropbox.ModeUpdate:    true,
}

var validStores = map[string]bool{
	credstore.KindKeychain: true,
	credstore.KindKeyring:  true,
	credstore.KindFile:     true,
}

// Validate checks the values of a parsed config file and returns every
// error found, so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogLevel(cfg.Logging.LogLevel)...)
	errs = append(errs, validateStore(cfg.Credentials.Store)...)
	errs = append(errs, validateRedirectPort(cfg.Credentials.RedirectPort)...)

	if cfg.Upload.WriteMode != "" {
		errs = append(errs, validateWriteMode(cfg.Upload.WriteMode)...)
	}

	return joinConfig(errs)
}

// ValidateParams checks the resolved parameters every command needs.
func ValidateParams(p *Params) error {
	var errs []error

	if p.AppKey == "" {
		errs = append(errs, errors.New("app_key: must not be empty"))
	}

	if p.AppSecret == "" {
		errs = append(errs, errors.New("app_secret: must not be empty"))
	}

	errs = append(errs, validateLogLevel(p.LogLevel)...)
	errs = append(errs, validateStore(p.Store)...)
	errs = append(errs, validateRedirectPort(p.RedirectPort)...)
	errs = append(errs, validateKeychain(p.Store, p.Keychain)...)

	if p.TempDir != "" {
		if fi, err := os.Stat(p.TempDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("temp_dir: %q is not a directory", p.TempDir))
		}
	}

	return joinConfig(errs)
}

// ValidateUpload checks the parameters only an upload needs: the file, the
// write mode and the revision.
func ValidateUpload(p *Params) error {
	var errs []error

	switch fi, err := os.Stat(p.FilePath); {
	case p.FilePath == "":
		errs = append(errs, errors.New("file_path: must not be empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("file_path: %q does not exist", p.FilePath))
	case !fi.Mode().IsRegular():
		errs = append(errs, fmt.Errorf("file_path: %q is not a regular file", p.FilePath))
	}

	if p.WriteMode != nil {
		errs = append(errs, validateWriteMode(*p.WriteMode)...)
	}

	isUpdate := p.WriteMode != nil && *p.WriteMode == dropbox.ModeUpdate

	switch {
	case isUpdate && (p.UpdateRev == nil || *p.UpdateRev == ""):
		errs = append(errs, errors.New("update_rev: required when write_mode is \"update\""))
	case p.UpdateRev != nil && *p.UpdateRev != "" && !updateRevPattern.MatchString(*p.UpdateRev):
		errs = append(errs, fmt.Errorf("update_rev: %q is not a revision (at least 9 hex digits)", *p.UpdateRev))
	}

	return joinConfig(errs)
}

func joinConfig(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", failure.ErrConfig, errors.Join(errs...))
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

func validateWriteMode(mode string) []error {
	if !validWriteModes[mode] {
		return []error{fmt.Errorf("write_mode: must be one of add, overwrite, update; got %q", mode)}
	}

	return nil
}

func validateStore(store string) []error {
	if store != "" && !validStores[store] {
		return []error{fmt.Errorf("store: must be one of keychain, keyring, file; got %q", store)}
	}

	return nil
}

func validateRedirectPort(port int) []error {
	if port < minRedirectPort || port > maxRedirectPort {
		return []error{fmt.Errorf("redirect_port: must be between %d and %d, got %d",
			minRedirectPort, maxRedirectPort, port)}
	}

	return nil
}

// validateKeychain checks that an explicitly named store exists. A keychain
// must exist; a token file may be created later but its directory must
// exist. Keyring ids are user names and are not checked.
func validateKeychain(store, keychain string) []error {
	if keychain == "" {
		return nil
	}

	if store == "" {
		store = credstore.DefaultKind()
	}

	switch store {
	case credstore.KindKeychain:
		if _, err := os.Stat(keychain); err != nil {
			return []error{fmt.Errorf("keychain: %q does not exist", keychain)}
		}
	case credstore.KindFile:
		if fi, err := os.Stat(filepath.Dir(keychain)); err != nil || !fi.IsDir() {
			return []error{fmt.Errorf("keychain: directory of %q does not exist", keychain)}
		}
	}

	return nil
}
