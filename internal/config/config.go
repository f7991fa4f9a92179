// Package config resolves the parameters of an upload from a TOML file,
// environment variables and CLI flags (defaults -> file -> env -> CLI), and
// validates them before any network or credential store access. Every
// validation failure wraps failure.ErrConfig.
package config

// Config is the TOML file structure.
type Config struct {
	Dropbox     DropboxConfig     `toml:"dropbox"`
	Upload      UploadConfig      `toml:"upload"`
	Credentials CredentialsConfig `toml:"credentials"`
	Logging     LoggingConfig     `toml:"logging"`
}

// DropboxConfig identifies the Dropbox app the token is issued to.
type DropboxConfig struct {
	AppKey    string `toml:"app_key"`
	AppSecret string `toml:"app_secret"`
}

// UploadConfig holds per-upload defaults.
type UploadConfig struct {
	DropboxPath string `toml:"dropbox_path"`
	WriteMode   string `toml:"write_mode"`
	TempDir     string `toml:"temp_dir"`
}

// CredentialsConfig selects where the access token lives.
type CredentialsConfig struct {
	Store            string `toml:"store"`
	Keychain         string `toml:"keychain"`
	KeychainPassword string `toml:"keychain_password"`
	RedirectPort     int    `toml:"redirect_port"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the empty string".
type CLIOverrides struct {
	ConfigPath       string // --config (empty = env or default)
	FilePath         string // --file
	DropboxPath      *string
	WriteMode        *string
	UpdateRev        *string
	AppKey           *string
	AppSecret        *string
	Store            *string
	Keychain         *string
	KeychainPassword *string
	TempDir          *string
}

// Params is the fully resolved parameter set for one invocation.
type Params struct {
	ConfigPath string

	FilePath    string
	DropboxPath string
	WriteMode   *string // nil when not given anywhere
	UpdateRev   *string

	AppKey    string
	AppSecret string

	Store            string // credential store kind; empty means the platform default
	Keychain         string // store id; empty means the store's default
	KeychainPassword string
	RedirectPort     int

	TempDir  string
	LogLevel string
}
