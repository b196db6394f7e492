package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment overrides, e.g. HTTPD_WORKERS.
const EnvPrefix = "HTTPD"

// ErrUsage reports a command line that cannot be run.
var ErrUsage = errors.New("usage: httpd [flags] <port>")

// Config holds all application configuration.
type Config struct {
	Port        int           `config:"port"`
	DocRoot     string        `config:"doc_root"`
	Workers     int           `config:"workers"`
	MaxRequests int           `config:"max_requests"`
	MaxConns    int           `config:"max_conns"`
	ContentType string        `config:"content_type"`
	IdleTimeout time.Duration `config:"idle_timeout"`
	AllowDotDot bool          `config:"allow_dotdot"`
	Env         string        `config:"env"`
	LogLevel    string        `config:"log_level"`
	GOGC        int           `config:"gogc"`
	MemoryLimit int64         `config:"memory_limit"` // bytes, 0 = no limit
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DocRoot:     "/var/www/html",
		Workers:     8,
		MaxRequests: 10000,
		MaxConns:    65535,
		ContentType: "text/html",
		Env:         "development",
		LogLevel:    "info",
		GOGC:        200,
	}
}

// Parse builds the configuration from args (without the program name).
// Later sources win: defaults, the -config JSON file, HTTPD_* environment
// variables, explicit flags, then the positional port.
func Parse(args []string, output io.Writer) (*Config, error) {
	def := Default()

	fs := flag.NewFlagSet("httpd", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: httpd [flags] <port>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	configFile := fs.String("config", "", "JSON configuration file")
	fs.Int("port", def.Port, "listen port (the positional argument takes precedence)")
	fs.String("doc-root", def.DocRoot, "absolute document root")
	fs.Int("workers", def.Workers, "worker goroutines (0 = one per CPU)")
	fs.Int("max-requests", def.MaxRequests, "pending request queue capacity")
	fs.Int("max-conns", def.MaxConns, "maximum live connections")
	fs.String("content-type", def.ContentType, "Content-Type of every response")
	fs.Duration("idle-timeout", def.IdleTimeout, "close connections idle this long (0 = never)")
	fs.Bool("allow-dotdot", def.AllowDotDot, "serve URLs containing '..' segments")
	fs.String("env", def.Env, "environment (development/production)")
	fs.String("log-level", def.LogLevel, "log level (debug/info/warn/error)")
	fs.Int("gogc", def.GOGC, "GC target percentage (0 = leave runtime default)")
	fs.Int64("memory-limit", def.MemoryLimit, "soft memory limit in bytes (0 = no limit)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrUsage
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected arguments %q", ErrUsage, fs.Args()[1:])
	}

	m := NewManager()
	if *configFile != "" {
		if err := m.LoadFromJSON(*configFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			m.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
		}
	})
	if fs.NArg() == 1 {
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			fs.Usage()
			return nil, fmt.Errorf("%w: invalid port %q", ErrUsage, fs.Arg(0))
		}
		m.Set("port", port)
	}

	cfg := def
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: missing port", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and paths.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case !filepath.IsAbs(c.DocRoot):
		return fmt.Errorf("doc root %q is not absolute", c.DocRoot)
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	case c.MaxRequests <= 0:
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	case c.MaxConns <= 0:
		return fmt.Errorf("max conns must be positive, got %d", c.MaxConns)
	case c.IdleTimeout < 0:
		return fmt.Errorf("idle timeout must not be negative, got %v", c.IdleTimeout)
	case c.GOGC < 0:
		return fmt.Errorf("gogc must not be negative, got %d", c.GOGC)
	case c.MemoryLimit < 0:
		return fmt.Errorf("memory limit must not be negative, got %d", c.MemoryLimit)
	case c.Env != "development" && c.Env != "production":
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Addr returns the listen address for all interfaces.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
