package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rasky/gzstream"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Span != gzstream.DefaultSpan || cfg.ChunkSize != gzstream.DefaultChunkSize {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StatePath == "" {
		t.Error("no default state path")
	}
	if n := len(cfg.Options(zerolog.Nop())); n != 5 {
		t.Errorf("%d options", n)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "gzseek.yaml")
	err := ioutil.WriteFile(fn, []byte(`
chunk_size: 4096
span: 262144
log_level: debug
tracing:
  enabled: true
  protocol: http
  endpoint: collector:4318
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("GZSEEK_SPAN", "131072")
	t.Setenv("GZSEEK_STATE", "/tmp/state.db")

	cfg, err := Load(fn)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChunkSize != 4096 || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Span != 131072 || cfg.StatePath != "/tmp/state.db" {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Protocol != "http" || cfg.Tracing.Endpoint != "collector:4318" {
		t.Errorf("tracing: %+v", cfg.Tracing)
	}
	if cfg.OutputSize != gzstream.DefaultOutputSize {
		t.Errorf("unset value lost its default: %d", cfg.OutputSize)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	ioutil.WriteFile(bad, []byte("span: [1, 2"), 0644)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := Load(bad); err == nil {
		t.Error("malformed file accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"tiny chunk", func(c *Config) { c.ChunkSize = 10 }, false},
		{"max below chunk", func(c *Config) { c.MaxChunkSize = c.ChunkSize - 1 }, false},
		{"tiny span", func(c *Config) { c.Span = 1000 }, false},
		{"tiny output", func(c *Config) { c.OutputSize = 100 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }, false},
		{"bad protocol", func(c *Config) { c.Tracing = Tracing{Enabled: true, Protocol: "udp"} }, false},
		{"protocol ignored when disabled", func(c *Config) { c.Tracing.Protocol = "udp" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.IsNotValid(err) {
				t.Errorf("expected NotValid error, got %v", err)
			}
		})
	}
}
