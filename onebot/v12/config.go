package v12

import "time"

// Config holds the adapter's v12-specific settings, loaded under the
// "onebot_v12" key of the process-wide configuration.
type Config struct {
	AccessToken string `yaml:"access_token"`

	// WSURLs lists reverse-WebSocket endpoints this adapter should connect
	// out to as a client.
	WSURLs []string `yaml:"ws_urls"`

	// HTTPURLs maps a bot's self_id to the base URL of its HTTP API.
	HTTPURLs map[string]string `yaml:"http_urls"`

	// UseMsgpack, when true, sends outbound frames as MessagePack binary
	// frames instead of JSON text frames. UseMsgpackByImpl overrides this
	// per implementation name, taking precedence when present.
	UseMsgpack       bool            `yaml:"use_msgpack"`
	UseMsgpackByImpl map[string]bool `yaml:"use_msgpack_by_impl"`

	APITimeout        time.Duration `yaml:"api_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// Nicknames, if non-empty, enables nickname-prefix to_me detection on
	// inbound messages, matching the v11 adapter's behavior over mention
	// segments instead of at segments.
	Nicknames []string `yaml:"nicknames"`
}

// DefaultConfig returns a Config with the upstream adapter's defaults.
func DefaultConfig() Config {
	return Config{
		APITimeout:        30 * time.Second,
		ReconnectInterval: 3 * time.Second,
	}
}

func (c Config) msgpackFor(impl string) bool {
	if v, ok := c.UseMsgpackByImpl[impl]; ok {
		return v
	}
	return c.UseMsgpack
}
