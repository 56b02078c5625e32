package config

import "fmt"

// ServerConfig holds the HTTP listener settings and API auth tokens.
type ServerConfig struct {
	Host string
	Port int

	// AuthTokens is the set of accepted bearer tokens. Empty disables auth,
	// which is only acceptable for local development.
	AuthTokens []string
}

// DefaultServerConfig returns local development listener defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// LoadServerConfigFromEnv returns defaults overridden by SERVER_* and
// API_AUTH_TOKENS variables.
func LoadServerConfigFromEnv() *ServerConfig {
	cfg := DefaultServerConfig()
	cfg.Host = getEnvOrDefault("SERVER_HOST", cfg.Host)
	cfg.Port = getEnvInt("SERVER_PORT", cfg.Port)
	cfg.AuthTokens = getEnvList("API_AUTH_TOKENS", nil)
	return cfg
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
