package database

import "time"

// Config holds the transport settings handed to the driver.
// A zero timeout means the driver default (no timeout).
type Config struct {
	// Searchd ignores credentials on the SphinxQL listener, but proxies in
	// front of it may not.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // dial + handshake
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`    // per network read
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`   // per network write
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}
