package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_PositionalPort(t *testing.T) {
	cfg, err := Parse([]string{"9000"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	def := Default()
	if cfg.DocRoot != def.DocRoot || cfg.MaxRequests != def.MaxRequests || cfg.ContentType != def.ContentType {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Addr() != ":9000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestParse_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing port", nil},
		{"bad port", []string{"http"}},
		{"extra args", []string{"80", "81"}},
		{"unknown flag", []string{"-nope", "80"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.args, io.Discard); !errors.Is(err, ErrUsage) {
				t.Errorf("Parse(%q) error = %v, want ErrUsage", tt.args, err)
			}
		})
	}
}

func TestParse_Layering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "httpd.json")
	json := `{"port": 7000, "doc_root": "/srv/json", "workers": 3, "idle_timeout": "30s", "log_level": "warn"}`
	if err := os.WriteFile(file, []byte(json), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HTTPD_WORKERS", "5")
	t.Setenv("HTTPD_ALLOW_DOTDOT", "true")
	t.Setenv("HTTPD_MAX_CONNS", "100")
	t.Setenv("HTTPD_MEMORY_LIMIT", "1073741824")

	cfg, err := Parse([]string{"-config", file, "-max-conns", "50", "-doc-root", "/srv/flag"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want file value", cfg.Port)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want env over file", cfg.Workers)
	}
	if cfg.DocRoot != "/srv/flag" {
		t.Errorf("DocRoot = %q, want flag over file", cfg.DocRoot)
	}
	if cfg.MaxConns != 50 {
		t.Errorf("MaxConns = %d, want flag over env", cfg.MaxConns)
	}
	if !cfg.AllowDotDot {
		t.Error("AllowDotDot not taken from env")
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.MemoryLimit != 1<<30 {
		t.Errorf("MemoryLimit = %d, want env value", cfg.MemoryLimit)
	}

	cfg, err = Parse([]string{"-config", file, "-memory-limit", "536870912"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MemoryLimit != 1<<29 {
		t.Errorf("MemoryLimit = %d, want flag over env", cfg.MemoryLimit)
	}

	cfg, err = Parse([]string{"-config", file, "8081"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want positional over file", cfg.Port)
	}
}

func TestParse_BadSources(t *testing.T) {
	if _, err := Parse([]string{"-config", "/does/not/exist.json", "80"}, io.Discard); err == nil {
		t.Error("expected error for missing config file")
	}

	t.Setenv("HTTPD_WORKERS", "many")
	if _, err := Parse([]string{"80"}, io.Discard); err == nil {
		t.Error("expected error for non-numeric HTTPD_WORKERS")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"port zero", func(c *Config) { c.Port = 0 }, false},
		{"port high", func(c *Config) { c.Port = 70000 }, false},
		{"relative root", func(c *Config) { c.DocRoot = "www" }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"zero queue", func(c *Config) { c.MaxRequests = 0 }, false},
		{"zero conns", func(c *Config) { c.MaxConns = 0 }, false},
		{"negative idle", func(c *Config) { c.IdleTimeout = -time.Second }, false},
		{"negative gogc", func(c *Config) { c.GOGC = -1 }, false},
		{"negative memory limit", func(c *Config) { c.MemoryLimit = -1 }, false},
		{"memory limit", func(c *Config) { c.MemoryLimit = 64 << 20 }, true},
		{"bad env", func(c *Config) { c.Env = "staging" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"debug level", func(c *Config) { c.LogLevel = "debug" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Port = 8080
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
