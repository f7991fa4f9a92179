package config

// Default values for configuration options, layer 0 of the override chain.
const (
	defaultLogLevel     = "info"
	defaultRedirectPort = 53682
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Credentials: CredentialsConfig{
			RedirectPort: defaultRedirectPort,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
	}
}
