package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing config file %s: %w", failure.ErrConfig, path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", failure.ErrConfig, path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain
// defaults -> config file -> environment -> CLI flags. The result has passed
// ValidateParams; upload-specific checks are left to ValidateUpload.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Params, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	p := &Params{
		ConfigPath:       cfgPath,
		DropboxPath:      cfg.Upload.DropboxPath,
		AppKey:           cfg.Dropbox.AppKey,
		AppSecret:        cfg.Dropbox.AppSecret,
		Store:            cfg.Credentials.Store,
		Keychain:         cfg.Credentials.Keychain,
		KeychainPassword: cfg.Credentials.KeychainPassword,
		RedirectPort:     cfg.Credentials.RedirectPort,
		TempDir:          cfg.Upload.TempDir,
		LogLevel:         cfg.Logging.LogLevel,
	}

	if cfg.Upload.WriteMode != "" {
		mode := cfg.Upload.WriteMode
		p.WriteMode = &mode
	}

	applyEnv(p, env)
	applyCLI(p, cli)

	p.FilePath = expandHome(p.FilePath)
	p.Keychain = expandHome(p.Keychain)
	p.TempDir = expandHome(p.TempDir)

	if err := ValidateParams(p); err != nil {
		return nil, err
	}

	return p, nil
}

func applyEnv(p *Params, env EnvOverrides) {
	if env.AppKey != "" {
		p.AppKey = env.AppKey
	}

	if env.AppSecret != "" {
		p.AppSecret = env.AppSecret
	}

	if env.KeychainPassword != "" {
		p.KeychainPassword = env.KeychainPassword
	}
}

func applyCLI(p *Params, cli CLIOverrides) {
	if cli.FilePath != "" {
		p.FilePath = cli.FilePath
	}

	setIf(&p.DropboxPath, cli.DropboxPath)
	setIf(&p.AppKey, cli.AppKey)
	setIf(&p.AppSecret, cli.AppSecret)
	setIf(&p.Store, cli.Store)
	setIf(&p.Keychain, cli.Keychain)
	setIf(&p.KeychainPassword, cli.KeychainPassword)
	setIf(&p.TempDir, cli.TempDir)

	if cli.WriteMode != nil {
		p.WriteMode = cli.WriteMode
	}

	if cli.UpdateRev != nil {
		p.UpdateRev = cli.UpdateRev
	}
}

func setIf(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}
