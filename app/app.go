package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchktools/edge-httpd/config"
	"github.com/searchktools/edge-httpd/core"
	"github.com/searchktools/edge-httpd/core/pools"
)

// App wires configuration, logging and the engine together and owns the
// process lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *core.Engine
}

// New creates an application instance. Logs are written to out.
func New(cfg *config.Config, out io.Writer) (*App, error) {
	logger, err := NewLogger(cfg, out)
	if err != nil {
		return nil, err
	}

	engine, err := core.NewEngine(core.Options{
		Addr:        cfg.Addr(),
		DocRoot:     cfg.DocRoot,
		Workers:     cfg.Workers,
		MaxRequests: cfg.MaxRequests,
		MaxConns:    cfg.MaxConns,
		ContentType: cfg.ContentType,
		AllowDotDot: cfg.AllowDotDot,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		engine: engine,
	}, nil
}

// NewLogger builds a text logger in development and a JSON logger in
// production.
func NewLogger(cfg *config.Config, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h).With("service", "httpd"), nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

func gcConfig(cfg *config.Config) pools.GCConfig {
	gc := pools.DefaultGCConfig()
	gc.GOGC = cfg.GOGC
	gc.MemoryLimit = cfg.MemoryLimit
	return gc
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives. SIGUSR1
// dumps engine statistics to the log.
func (a *App) Run(ctx context.Context) error {
	gc := gcConfig(a.cfg)
	if prev := pools.ApplyGCConfig(gc); prev >= 0 {
		a.logger.Debug("gc tuned", "gogc", gc.GOGC, "previous", prev, "memory_limit", gc.MemoryLimit)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.awaitStatsSignal(ctx)

	a.logger.Info("starting", "port", a.cfg.Port, "env", a.cfg.Env, "doc_root", a.cfg.DocRoot)
	if err := a.engine.Run(ctx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

func (a *App) awaitStatsSignal(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			a.DumpStats()
		}
	}
}

// DumpStats logs the current engine statistics.
func (a *App) DumpStats() {
	out, err := a.engine.Stats().Format()
	if err != nil {
		a.logger.Error("stats", "error", err)
		return
	}
	a.logger.Info("stats", "snapshot", out)
}
