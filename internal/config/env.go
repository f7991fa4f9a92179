package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig           = "DROPBOX_UPLOAD_CONFIG"
	EnvAppKey           = "DROPBOX_UPLOAD_APP_KEY"
	EnvAppSecret        = "DROPBOX_UPLOAD_APP_SECRET"
	EnvKeychainPassword = "DROPBOX_UPLOAD_KEYCHAIN_PASSWORD"
)

// EnvOverrides holds values read from the environment. Secrets are accepted
// here so CI jobs need not write them to a config file.
type EnvOverrides struct {
	ConfigPath       string
	AppKey           string
	AppSecret        string
	KeychainPassword string
}

// ReadEnvOverrides reads the DROPBOX_UPLOAD_* variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:       os.Getenv(EnvConfig),
		AppKey:           os.Getenv(EnvAppKey),
		AppSecret:        os.Getenv(EnvAppSecret),
		KeychainPassword: os.Getenv(EnvKeychainPassword),
	}
}
