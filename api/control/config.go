package control

import (
	"fmt"
	"time"
)

// Config defines the manual control HTTP surface.
type Config struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string `json:"cors_origins"`
	AccessLog   bool     `json:"access_log"`
	// StreamKeepAliveSeconds is the comment interval of the status stream.
	StreamKeepAliveSeconds int `json:"stream_keepalive_seconds"`
}

// Enabled reports whether the API should be served.
func (c Config) Enabled() bool { return c.Addr != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.StreamKeepAliveSeconds == 0 {
		c.StreamKeepAliveSeconds = 15
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StreamKeepAliveSeconds < 0 {
		return fmt.Errorf("stream_keepalive_seconds must not be negative")
	}
	return nil
}

func (c Config) keepAlive() time.Duration {
	return time.Duration(c.StreamKeepAliveSeconds) * time.Second
}
