package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HostURL != "ws://localhost:8765" {
		t.Errorf("host_url = %q", cfg.HostURL)
	}
	if cfg.Reconnect.Base.D() != time.Second || cfg.Reconnect.Max.D() != 10*time.Second {
		t.Errorf("reconnect = %v/%v", cfg.Reconnect.Base, cfg.Reconnect.Max)
	}
	if cfg.Store.Kind != StoreFile {
		t.Errorf("store.kind = %q", cfg.Store.Kind)
	}
	if cfg.Host.MaxMessage != 10<<20 {
		t.Errorf("max_message = %d", cfg.Host.MaxMessage)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
host_url: wss://term.example.com/ws
simulated: true
reconnect:
  base: 250ms
  max: 4s
ping_interval: 15s
store:
  kind: sqlite
  path: /tmp/wterm.db
log:
  level: debug
host:
  shell: /bin/zsh
  output_rate: 64 KiB
  max_message: 1MiB
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HostURL != "wss://term.example.com/ws" || !cfg.Simulated {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Reconnect.Base.D() != 250*time.Millisecond || cfg.Reconnect.Max.D() != 4*time.Second {
		t.Errorf("reconnect = %v/%v", cfg.Reconnect.Base, cfg.Reconnect.Max)
	}
	if cfg.PingInterval.D() != 15*time.Second {
		t.Errorf("ping = %v", cfg.PingInterval)
	}
	if cfg.Host.OutputRate != 64<<10 || cfg.Host.MaxMessage != 1<<20 {
		t.Errorf("sizes = %d %d", cfg.Host.OutputRate, cfg.Host.MaxMessage)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Host.Addr != "0.0.0.0:8765" || cfg.Host.InitTimeout.D() != 5*time.Second {
		t.Errorf("host = %+v", cfg.Host)
	}
	got, err := cfg.StorePath()
	if err != nil || got != "/tmp/wterm.db" {
		t.Errorf("StorePath = %q, %v", got, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WTERM_HOST_URL", "ws://10.0.0.2:9000")
	t.Setenv("WTERM_LOG_LEVEL", "warn")
	t.Setenv("WTERM_STORE", "memory")
	cfg, err := Load(writeConfig(t, "host_url: ws://ignored:1\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HostURL != "ws://10.0.0.2:9000" || cfg.Logging.Level != "warn" || cfg.Store.Kind != StoreMemory {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "host_url: [", "failed to parse"},
		{"bad duration", "reconnect:\n  base: soon\n", "failed to parse"},
		{"bad size", "host:\n  max_message: lots\n", "failed to parse"},
		{"http scheme", "host_url: http://localhost:8765\n", "ws:// or wss://"},
		{"zero base", "reconnect:\n  base: 0s\n", "reconnect.base"},
		{"max below base", "reconnect:\n  base: 5s\n  max: 1s\n", "reconnect.max"},
		{"store kind", "store:\n  kind: redis\n", "store.kind"},
		{"log level", "log:\n  level: loud\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestDurationMarshal(t *testing.T) {
	out, err := yaml.Marshal(Default().Reconnect)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "base: 1s") || !strings.Contains(string(out), "max: 10s") {
		t.Errorf("yaml = %q", out)
	}
}

func TestStorePathDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("WTERM_HOME", home)

	cfg := Default()
	got, _ := cfg.StorePath()
	if got != filepath.Join(home, "state.json") {
		t.Errorf("file store path = %q", got)
	}
	cfg.Store.Kind = StoreSQLite
	got, _ = cfg.StorePath()
	if got != filepath.Join(home, "state.db") {
		t.Errorf("sqlite store path = %q", got)
	}
	path, _ := DefaultPath()
	if path != filepath.Join(home, "config.yaml") {
		t.Errorf("DefaultPath = %q", path)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, _ := ExpandHome("~/x/state.db")
	if got != filepath.Join(home, "x", "state.db") {
		t.Errorf("ExpandHome = %q", got)
	}
	got, _ = ExpandHome("/abs/path")
	if got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
