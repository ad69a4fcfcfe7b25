package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen_addr: "0.0.0.0:9000"
onebot_v11:
  access_token: tok11
  ws_urls:
    - ws://127.0.0.1:6700
onebot_v12:
  use_msgpack: true
  use_msgpack_by_impl:
    walle: false
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.V11.AccessToken != "tok11" {
		t.Errorf("V11.AccessToken = %q", cfg.V11.AccessToken)
	}
	if len(cfg.V11.WSURLs) != 1 || cfg.V11.WSURLs[0] != "ws://127.0.0.1:6700" {
		t.Errorf("V11.WSURLs = %v", cfg.V11.WSURLs)
	}
	if cfg.V11.APITimeout != 30*time.Second {
		t.Errorf("V11.APITimeout = %v, want default 30s", cfg.V11.APITimeout)
	}
	if cfg.V12.ReconnectInterval != 3*time.Second {
		t.Errorf("V12.ReconnectInterval = %v, want default 3s", cfg.V12.ReconnectInterval)
	}
	if !cfg.V12.UseMsgpack {
		t.Error("V12.UseMsgpack should be true")
	}
	if v, ok := cfg.V12.UseMsgpackByImpl["walle"]; !ok || v {
		t.Errorf("V12.UseMsgpackByImpl[walle] = %v, %v", v, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() of a missing file should error")
	}
}
