// Package config loads the adapter process's single YAML configuration
// file, covering the HTTP bind address and both protocol adapters' settings.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/nonebot/adapter-onebot/onebot/v11"
	"github.com/nonebot/adapter-onebot/onebot/v12"
)

// Config is the top-level shape of the adapter process's YAML file.
type Config struct {
	// ListenAddr is the address the HTTP server binds, serving both
	// protocol versions' HTTP and WebSocket endpoints.
	ListenAddr string `yaml:"listen_addr"`

	V11 v11.Config `yaml:"onebot_v11"`
	V12 v12.Config `yaml:"onebot_v12"`
}

// Default returns a Config with every field set to the adapters' own
// documented defaults, plus a loopback listen address.
func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8080",
		V11:        v11.DefaultConfig(),
		V12:        v12.DefaultConfig(),
	}
}

// Load reads and parses the YAML file at path, starting from Default() so
// that omitted fields retain their documented defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
