// Package models contains the data structures used throughout tapwake.
package models

// Config holds the complete configuration of the actuator.
type Config struct {
	Link        LinkConfig
	Target      TargetConfig
	Login       LoginConfig
	Keyboard    KeyboardConfig
	Auth        AuthConfig
	Telegram    *TelegramConfig    // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// AuthConfig holds the authorization gate configuration.
type AuthConfig struct {
	Token string // text a presented tag must contain, case-insensitively
}

// Close releases the secret material held by the configuration.
func (c *Config) Close() error {
	var firstErr error
	if c.Link.Password != nil {
		if err := c.Link.Password.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Login.Password != nil {
		if err := c.Login.Password.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
